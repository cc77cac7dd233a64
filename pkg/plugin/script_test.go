package plugin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildkeeper/pkg/discord/discordtest"
	"guildkeeper/pkg/registry"
)

type captureResponder struct {
	mu      sync.Mutex
	replies []registry.Reply
}

func (r *captureResponder) Reply(_ context.Context, reply registry.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *captureResponder) Defer(context.Context, bool) error { return nil }

func (r *captureResponder) Followup(ctx context.Context, reply registry.Reply) error {
	return r.Reply(ctx, reply)
}

func (r *captureResponder) Update(ctx context.Context, reply registry.Reply) error {
	return r.Reply(ctx, reply)
}

func (r *captureResponder) Acknowledged() bool { return false }

const scriptManifest = `
name: faq
version: 0.2.0
description: Canned answers
factory: script
commands:
  - name: rules
    aliases: [r]
    description: Show the rules
    cooldown: 10
    guild_only: true
    permissions: [send messages]
    response: "{user}, please read the rules of {server}."
    slash: true
  - name: echo
    cooldown: -1
    response: "{args}"
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(scriptManifest))
	require.NoError(t, err)

	assert.Equal(t, "faq", m.Name)
	assert.Equal(t, ScriptFactory, m.FactoryName("ignored"))
	assert.True(t, m.IsEnabled())
	require.Len(t, m.Commands, 2)
	assert.Equal(t, []string{"r"}, m.Commands[0].Aliases)
	assert.Equal(t, 10.0, m.Commands[0].Cooldown)
}

func TestParseManifestRejectsBadInput(t *testing.T) {
	for name, content := range map[string]string{
		"bad yaml":       "name: [",
		"bad name":       "name: Has Spaces\nversion: 1\n",
		"empty script":   "name: faq\nversion: 1\nfactory: script\n",
		"no response":    "name: faq\nversion: 1\nfactory: script\ncommands:\n  - name: x\n",
		"nameless entry": "name: faq\nversion: 1\nfactory: script\ncommands:\n  - response: hi\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestScriptPluginRegistersCommands(t *testing.T) {
	f := newFixture(t)
	session := discordtest.NewSession()
	session.Guilds["g1"] = &discordgo.Guild{ID: "g1", Name: "Test Server"}
	f.loader.session = session
	f.writeManifest(t, "faq", scriptManifest)

	require.True(t, f.loader.LoadOne(context.Background(), "faq"))

	rules, ok := f.registry.Lookup("r")
	require.True(t, ok)
	assert.Equal(t, "faq", rules.Owner)
	assert.Equal(t, 10*time.Second, rules.EffectiveCooldown())
	assert.True(t, rules.GuildOnly)
	assert.Equal(t, []int64{discordgo.PermissionSendMessages}, rules.Permissions)
	assert.NotNil(t, rules.InvokeInteraction)

	echo, ok := f.registry.Lookup("echo")
	require.True(t, ok)
	assert.Zero(t, echo.EffectiveCooldown())
	assert.Nil(t, echo.InvokeInteraction)

	resp := &captureResponder{}
	require.NoError(t, rules.Invoke(context.Background(), &registry.Invocation{
		GuildID: "g1", UserID: "u1", Responder: resp,
	}))
	require.NoError(t, echo.Invoke(context.Background(), &registry.Invocation{
		Args: []string{"hello", "there"}, Responder: resp,
	}))

	require.Len(t, resp.replies, 2)
	assert.Equal(t, "<@u1>, please read the rules of Test Server.", resp.replies[0].Content)
	assert.Equal(t, "hello there", resp.replies[1].Content)

	info, ok := f.loader.Get("faq")
	require.True(t, ok)
	assert.Equal(t, "Canned answers", info.Description)
}

func TestScriptPluginUnknownPermissionFailsLoad(t *testing.T) {
	f := newFixture(t)
	f.writeManifest(t, "faq", "name: faq\nversion: 1\nfactory: script\ncommands:\n  - name: x\n    response: y\n    permissions: [fly]\n")

	_, err := f.loader.Load(context.Background(), "faq")

	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	_, ok := f.registry.Lookup("x")
	assert.False(t, ok)
}
