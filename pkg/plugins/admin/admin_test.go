package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugin/plugintest"
	"guildkeeper/pkg/registry"
)

const channelID = "123456789012345678"

func TestParseID(t *testing.T) {
	for _, in := range []string{
		channelID,
		"<#" + channelID + ">",
		"<@&" + channelID + ">",
		" <@" + channelID + "> ",
	} {
		got, ok := ParseID(in)
		assert.True(t, ok, in)
		assert.Equal(t, channelID, got, in)
	}

	for _, in := range []string{"", "general", "12", "<#abc>"} {
		_, ok := ParseID(in)
		assert.False(t, ok, in)
	}
}

func TestPrefixCommand(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)

	rec, err := h.Run("prefix", registry.Invocation{GuildID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "The prefix is `!`.", rec.Last().Content)

	rec, err = h.Run("prefix", registry.Invocation{GuildID: "g1", Args: []string{"?"}})
	require.NoError(t, err)
	assert.Equal(t, "The prefix is now `?`.", rec.Last().Content)

	g, err := h.Settings.Guild(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "?", g.Prefix)

	rec, err = h.Run("prefix", registry.Invocation{GuildID: "g1", Args: []string{"toolong"}})
	require.NoError(t, err)
	assert.Contains(t, rec.Last().Content, "at most 5")

	_, err = h.Run("prefix", registry.Invocation{GuildID: "g1", Args: []string{"reset"}})
	require.NoError(t, err)
	g, err = h.Settings.Guild(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, g.Prefix)
}

func TestWelcomeTextCommands(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)

	rec, err := h.Run("welcome", registry.Invocation{GuildID: "g1", Args: []string{"on"}})
	require.NoError(t, err)
	assert.Contains(t, rec.Last().Content, "set a channel first")

	_, err = h.Run("welcome", registry.Invocation{GuildID: "g1", Args: []string{"channel", "<#" + channelID + ">"}})
	require.NoError(t, err)
	_, err = h.Run("welcome", registry.Invocation{GuildID: "g1", Args: []string{"message", "Hello", "{user}!"}})
	require.NoError(t, err)
	_, err = h.Run("welcome", registry.Invocation{GuildID: "g1", Args: []string{"on"}})
	require.NoError(t, err)

	g, err := h.Settings.Guild(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, g.WelcomeEnabled)
	assert.Equal(t, channelID, g.WelcomeChannel)
	assert.Equal(t, "Hello {user}!", g.WelcomeMessage)
}

func TestWelcomeSlashOpensModal(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)

	rec, err := h.Run("welcome", registry.Invocation{GuildID: "g1", Interaction: plugintest.Slash("welcome", "")})
	require.NoError(t, err)
	require.Len(t, rec.Modals, 1)
	assert.Equal(t, "admin:welcome", rec.Modals[0].CustomID)
	assert.Len(t, rec.Modals[0].Components, 2)

	rec, err = h.Component(plugin.Component{
		Kind:    plugin.KindModal,
		Owner:   Name,
		Action:  "welcome",
		GuildID: "g1",
		Fields:  map[string]string{"channel": channelID, "message": " Hi {user} "},
	})
	require.NoError(t, err)
	assert.Contains(t, rec.Last().Content, channelID)

	g, err := h.Settings.Guild(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, g.WelcomeEnabled)
	assert.Equal(t, "Hi {user}", g.WelcomeMessage)
}

func TestAutoroleCommand(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)

	rec, err := h.Run("autorole", registry.Invocation{GuildID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "Auto-role is off.", rec.Last().Content)

	_, err = h.Run("autorole", registry.Invocation{GuildID: "g1", Args: []string{"<@&" + channelID + ">"}})
	require.NoError(t, err)
	g, err := h.Settings.Guild(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, g.AutoRoleEnabled)
	assert.Equal(t, channelID, g.AutoRoleID)

	_, err = h.Run("autorole", registry.Invocation{GuildID: "g1", Args: []string{"off"}})
	require.NoError(t, err)
	g, err = h.Settings.Guild(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, g.AutoRoleEnabled)
}

func TestCommandsDeclarePermissions(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)

	for _, name := range []string{"prefix", "welcome", "autorole"} {
		desc, ok := h.Registry.Lookup(name)
		require.True(t, ok)
		assert.True(t, desc.GuildOnly, name)
		assert.NotEmpty(t, desc.Permissions, name)
	}
}
