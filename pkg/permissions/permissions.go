// Package permissions resolves Discord permission flags into a named capability set.
package permissions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Names maps permission flags to their human-readable names.
var Names = map[int64]string{
	discordgo.PermissionCreateInstantInvite:    "Create Instant Invite",
	discordgo.PermissionKickMembers:            "Kick Members",
	discordgo.PermissionBanMembers:             "Ban Members",
	discordgo.PermissionAdministrator:          "Administrator",
	discordgo.PermissionManageChannels:         "Manage Channels",
	discordgo.PermissionManageGuild:            "Manage Server",
	discordgo.PermissionAddReactions:           "Add Reactions",
	discordgo.PermissionViewAuditLogs:          "View Audit Logs",
	discordgo.PermissionViewChannel:            "View Channel",
	discordgo.PermissionSendMessages:           "Send Messages",
	discordgo.PermissionSendTTSMessages:        "Send TTS Messages",
	discordgo.PermissionManageMessages:         "Manage Messages",
	discordgo.PermissionEmbedLinks:             "Embed Links",
	discordgo.PermissionAttachFiles:            "Attach Files",
	discordgo.PermissionReadMessageHistory:     "Read Message History",
	discordgo.PermissionMentionEveryone:        "Mention Everyone",
	discordgo.PermissionUseExternalEmojis:      "Use External Emojis",
	discordgo.PermissionUseApplicationCommands: "Use Application Commands",
	discordgo.PermissionManageThreads:          "Manage Threads",
	discordgo.PermissionCreatePublicThreads:    "Create Public Threads",
	discordgo.PermissionCreatePrivateThreads:   "Create Private Threads",
	discordgo.PermissionUseExternalStickers:    "Use External Stickers",
	discordgo.PermissionSendMessagesInThreads:  "Send Messages in Threads",
	discordgo.PermissionVoicePrioritySpeaker:   "Priority Speaker",
	discordgo.PermissionVoiceStreamVideo:       "Stream Video",
	discordgo.PermissionVoiceConnect:           "Connect to Voice Channel",
	discordgo.PermissionVoiceSpeak:             "Speak",
	discordgo.PermissionVoiceMuteMembers:       "Mute Members",
	discordgo.PermissionVoiceDeafenMembers:     "Deafen Members",
	discordgo.PermissionVoiceMoveMembers:       "Move Members",
	discordgo.PermissionVoiceUseVAD:            "Use Voice Activity Detection",
	discordgo.PermissionVoiceRequestToSpeak:    "Request to Speak",
	discordgo.PermissionChangeNickname:         "Change Nickname",
	discordgo.PermissionManageNicknames:        "Manage Nicknames",
	discordgo.PermissionManageRoles:            "Manage Roles",
	discordgo.PermissionManageWebhooks:         "Manage Webhooks",
	discordgo.PermissionManageEvents:           "Manage Events",
	discordgo.PermissionViewGuildInsights:      "View Guild Insights",
	discordgo.PermissionModerateMembers:        "Moderate Members",
}

// aliases are accepted by Parse in addition to the display names.
var aliases = map[string]int64{
	"MANAGE_GUILD":    discordgo.PermissionManageGuild,
	"MANAGE_SERVER":   discordgo.PermissionManageGuild,
	"READ_MESSAGES":   discordgo.PermissionViewChannel,
	"CONNECT":         discordgo.PermissionVoiceConnect,
	"MODERATE":        discordgo.PermissionModerateMembers,
	"TIMEOUT_MEMBERS": discordgo.PermissionModerateMembers,
}

var byKey = func() map[string]int64 {
	m := make(map[string]int64, len(Names)+len(aliases))
	for flag, name := range Names {
		m[normalize(name)] = flag
	}
	for alias, flag := range aliases {
		m[normalize(alias)] = flag
	}
	return m
}()

func normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// Name returns the display name of flag, or its hex form when unknown.
func Name(flag int64) string {
	if name, ok := Names[flag]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", flag)
}

// Parse resolves a permission by display name or SCREAMING_SNAKE alias,
// case-insensitively ("Manage Server", "manage_guild", "KICK_MEMBERS").
func Parse(name string) (int64, error) {
	if flag, ok := byKey[normalize(name)]; ok {
		return flag, nil
	}
	return 0, fmt.Errorf("unknown permission %q", name)
}

// ParseAll resolves every name in names.
func ParseAll(names []string) ([]int64, error) {
	out := make([]int64, 0, len(names))
	for _, name := range names {
		flag, err := Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, flag)
	}
	return out, nil
}

// Set is the capability set of one member in one channel, resolved once per invocation.
type Set struct {
	IsBotOwner   bool
	IsGuildOwner bool
	Granted      int64
}

// Bypass reports whether the member skips permission checks entirely.
func (s Set) Bypass() bool {
	return s.IsBotOwner || s.IsGuildOwner
}

// HasPermission reports whether flag is granted. Administrator implies every flag.
func (s Set) HasPermission(flag int64) bool {
	if s.Granted&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return s.Granted&flag == flag
}

// Missing returns the flags of required that are not satisfied, in order.
// Bot owners and guild owners miss nothing.
func (s Set) Missing(required []int64) []int64 {
	if s.Bypass() {
		return nil
	}
	var missing []int64
	for _, flag := range required {
		if !s.HasPermission(flag) {
			missing = append(missing, flag)
		}
	}
	return missing
}

// MissingNames is Missing rendered as display names.
func (s Set) MissingNames(required []int64) []string {
	missing := s.Missing(required)
	names := make([]string, 0, len(missing))
	for _, flag := range missing {
		names = append(names, Name(flag))
	}
	return names
}

// Describe lists the display names of every known flag in mask, sorted.
func Describe(mask int64) []string {
	var names []string
	for flag, name := range Names {
		if mask&flag != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
