package permissions

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"Manage Server", discordgo.PermissionManageGuild},
		{"manage_guild", discordgo.PermissionManageGuild},
		{"KICK_MEMBERS", discordgo.PermissionKickMembers},
		{"ban members", discordgo.PermissionBanMembers},
		{" Manage-Roles ", discordgo.PermissionManageRoles},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Parse("fly")
	assert.Error(t, err)
}

func TestMissingListsOnlyMissingPermissions(t *testing.T) {
	set := Set{Granted: discordgo.PermissionKickMembers | discordgo.PermissionManageMessages}
	required := []int64{discordgo.PermissionKickMembers, discordgo.PermissionBanMembers, discordgo.PermissionManageMessages}

	assert.Equal(t, []string{"Ban Members"}, set.MissingNames(required))
}

func TestOwnersAndAdministratorBypass(t *testing.T) {
	required := []int64{discordgo.PermissionBanMembers, discordgo.PermissionManageGuild}

	assert.Empty(t, Set{IsGuildOwner: true}.Missing(required))
	assert.Empty(t, Set{IsBotOwner: true}.Missing(required))
	assert.Empty(t, Set{Granted: discordgo.PermissionAdministrator}.Missing(required))
	assert.Len(t, Set{}.Missing(required), 2)
}

func TestNameFallsBackToHex(t *testing.T) {
	assert.Equal(t, "Manage Roles", Name(discordgo.PermissionManageRoles))
	assert.Equal(t, "0x8000000000000", Name(1<<51))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, []string{"Ban Members", "Kick Members"},
		Describe(discordgo.PermissionKickMembers|discordgo.PermissionBanMembers))
}
