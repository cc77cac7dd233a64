package tags

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugin/plugintest"
	"guildkeeper/pkg/registry"
)

func message(guild, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   guild,
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: "u1"},
	}}
}

func TestStoreMatchOrderAndModes(t *testing.T) {
	h := plugintest.New(t)
	store := NewStore(h.Settings)
	ctx := context.Background()

	_, err := store.Put(ctx, "g1", Tag{Name: "b-docs", Pattern: "docs", Response: "see the docs"})
	require.NoError(t, err)
	_, err = store.Put(ctx, "g1", Tag{Name: "a-version", Pattern: `v\d+\.\d+`, Regex: true, Response: "latest is v2.0"})
	require.NoError(t, err)

	m, err := store.Match(ctx, "g1", "Where are the DOCS for v1.2?")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "a-version", m.Name, "first match in name order wins")

	m, err = store.Match(ctx, "g1", "read the Docs")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "b-docs", m.Name)

	m, err = store.Match(ctx, "g2", "docs")
	require.NoError(t, err)
	assert.Nil(t, m, "tags are scoped per guild")
}

func TestStoreRejectsInvalidTags(t *testing.T) {
	h := plugintest.New(t)
	store := NewStore(h.Settings)
	ctx := context.Background()

	_, err := store.Put(ctx, "g1", Tag{Name: "bad name", Response: "x"})
	assert.Error(t, err)
	_, err = store.Put(ctx, "g1", Tag{Name: "empty"})
	assert.Error(t, err)
	_, err = store.Put(ctx, "g1", Tag{Name: "re", Pattern: "(", Regex: true, Response: "x"})
	assert.Error(t, err)

	assert.ErrorIs(t, store.Delete(ctx, "g1", "nothing"), ErrNotFound)
}

func TestAutoResponderCountsUses(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)
	ctx := context.Background()

	store := NewStore(h.Settings)
	_, err := store.Put(ctx, "g1", Tag{Name: "hello", Response: "Hi there!"})
	require.NoError(t, err)

	h.Session.Dispatch(message("g1", "well HELLO everyone"))
	h.Session.Dispatch(message("g1", "!hello is a command, not a trigger"))
	h.Session.Dispatch(message("", "hello from a DM"))

	require.Len(t, h.Session.Sent, 1)
	assert.Equal(t, "Hi there!", h.Session.Sent[0].Content)

	tag, ok, err := store.Get(ctx, "g1", "hello")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, tag.Uses)
}

func TestTagAddAndListText(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)

	rec, err := h.Run("tag", registry.Invocation{GuildID: "g1", UserID: "u1", Args: []string{"add", "Rules", "Be", "nice"}})
	require.NoError(t, err)
	assert.Equal(t, "Tag `rules` saved.", rec.Last().Content)

	rec, err = h.Run("tags", registry.Invocation{GuildID: "g1"})
	require.NoError(t, err)
	require.Len(t, rec.Replies, 1)
	require.Len(t, rec.Replies[0].Embeds, 1)
	assert.Contains(t, rec.Replies[0].Embeds[0].Description, "`rules` (text, used 0 times)")

	rec, err = h.Run("tag", registry.Invocation{GuildID: "g1", Args: []string{"add"}})
	require.NoError(t, err)
	assert.Contains(t, rec.Last().Content, "Usage")
}

func TestTagAddSlash(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)

	rec, err := h.Run("tag", registry.Invocation{
		GuildID: "g1",
		Interaction: plugintest.Slash("tag", "add",
			plugintest.StringOpt("name", "faq"),
			plugintest.StringOpt("response", "Read #faq"),
		),
	})
	require.NoError(t, err)
	assert.Equal(t, "Tag `faq` saved.", rec.Last().Content)

	tag, ok, err := NewStore(h.Settings).Get(context.Background(), "g1", "faq")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "faq", tag.Pattern)
}

func TestTagRemoveNeedsConfirmation(t *testing.T) {
	h := plugintest.New(t)
	h.Load(Name, New)
	ctx := context.Background()
	store := NewStore(h.Settings)
	_, err := store.Put(ctx, "g1", Tag{Name: "old", Response: "x"})
	require.NoError(t, err)

	rec, err := h.Run("tag", registry.Invocation{GuildID: "g1", UserID: "u1", Args: []string{"remove", "old"}})
	require.NoError(t, err)
	require.Len(t, rec.Replies, 1)
	row := rec.Replies[0].Components[0].(discordgo.ActionsRow)
	confirm := row.Components[0].(discordgo.Button)
	assert.Equal(t, "tags:remove:u1:old", confirm.CustomID)

	_, ok, _ := store.Get(ctx, "g1", "old")
	assert.True(t, ok, "nothing is removed before confirmation")

	rec, err = h.Component(plugin.Component{Kind: plugin.KindButton, Owner: Name, Action: "remove", Data: "u1:old", GuildID: "g1", UserID: "intruder"})
	require.NoError(t, err)
	assert.True(t, rec.Last().Ephemeral)
	_, ok, _ = store.Get(ctx, "g1", "old")
	assert.True(t, ok)

	rec, err = h.Component(plugin.Component{Kind: plugin.KindButton, Owner: Name, Action: "remove", Data: "u1:old", GuildID: "g1", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, rec.Updates, 1)
	assert.Equal(t, "Tag `old` removed.", rec.Updates[0].Content)
	_, ok, _ = store.Get(ctx, "g1", "old")
	assert.False(t, ok)
}
