package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildkeeper/pkg/cooldown"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/discord/discordtest"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/pipeline"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
	"guildkeeper/pkg/state"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type pingPlugin struct {
	name  string
	calls int
}

func (p *pingPlugin) Name() string    { return p.name }
func (p *pingPlugin) Version() string { return "1.0.0" }

func (p *pingPlugin) Initialize(_ context.Context, pc *plugin.Context) error {
	handler := func(ctx context.Context, inv *registry.Invocation) error {
		p.calls++
		return registry.Respond(ctx, inv.Responder, registry.Reply{Content: "Pong from " + p.name})
	}
	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "ping",
		Aliases:           []string{"p"},
		Invoke:            handler,
		InvokeInteraction: handler,
	})
	pc.RegisterCommand(registry.CommandDescriptor{Name: "help", Invoke: handler, InvokeInteraction: handler})
	return nil
}

type widgetPlugin struct {
	err  error
	seen *plugin.Component
}

func (w *widgetPlugin) Name() string                                      { return "widgets" }
func (w *widgetPlugin) Version() string                                   { return "1" }
func (w *widgetPlugin) Initialize(context.Context, *plugin.Context) error { return nil }

func (w *widgetPlugin) HandleButton(ctx context.Context, c *plugin.Component) error {
	w.seen = c
	if w.err != nil {
		_ = c.Responder.Defer(ctx, true)
		return w.err
	}
	return c.Responder.Update(ctx, registry.Reply{Content: "clicked " + c.Data})
}

type stubPlugins map[string]plugin.Plugin

func (s stubPlugins) Lookup(name string) (plugin.Plugin, bool) {
	p, ok := s[name]
	return p, ok
}

type harness struct {
	session  *discordtest.Session
	registry *registry.Registry
	clock    *fakeClock
	catalog  *plugin.Catalog
	loader   *plugin.Loader
	settings *settings.Store
	dir      string
}

func newHarness(t *testing.T, lookup PluginLookup) *harness {
	t.Helper()
	h := &harness{
		session: discordtest.NewSession(),
		clock:   &fakeClock{now: time.Unix(1_700_000_000, 0)},
		catalog: plugin.NewCatalog(),
		dir:     t.TempDir(),
	}
	h.registry = registry.NewRegistry(logger.NewNop(), discord.NewEventSource(h.session))

	kv, err := state.NewFileStore(logger.NewNop(), &state.FileStoreConfig{FilePath: filepath.Join(t.TempDir(), "state.json")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	h.settings = settings.New(kv)

	h.loader = plugin.NewLoader(logger.NewNop(), h.dir, h.catalog, h.registry, plugin.WithSession(h.session))
	if lookup == nil {
		lookup = h.loader
	}

	executor := pipeline.NewExecutor(logger.NewNop(), cooldown.NewTracker(cooldown.WithClock(h.clock.Now)), nil, nil)
	d := New(logger.NewNop(), h.registry, executor, lookup, h.session, h.settings, "!")
	require.NoError(t, d.Register())
	return h
}

func (h *harness) addPlugin(t *testing.T, folder string, p plugin.Plugin) {
	t.Helper()
	require.NoError(t, h.catalog.Register(folder, func(*plugin.Manifest) (plugin.Plugin, error) { return p, nil }))
	require.NoError(t, os.MkdirAll(filepath.Join(h.dir, folder), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, folder, plugin.ManifestFile), []byte("version: 1.0.0\n"), 0644))
}

func (h *harness) slash(name, user string) {
	h.session.Dispatch(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:      "i-" + name,
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: user}},
		Data:    discordgo.ApplicationCommandInteractionData{Name: name},
	}})
}

func (h *harness) button(customID string) {
	h.session.Dispatch(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:   "b-" + customID,
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "u1"},
		Data: discordgo.MessageComponentInteractionData{CustomID: customID, ComponentType: discordgo.ButtonComponent},
	}})
}

func (h *harness) text(guild, content string, bot bool) {
	h.session.Dispatch(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		GuildID:   guild,
		ChannelID: "c1",
		Content:   content,
		Author:    &discordgo.User{ID: "u1", Username: "alice", Bot: bot},
	}})
}

func lastResponse(t *testing.T, s *discordtest.Session) *discordgo.InteractionResponse {
	t.Helper()
	require.NotEmpty(t, s.Responses)
	return s.Responses[len(s.Responses)-1]
}

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		id                  string
		owner, action, data string
	}{
		{"tags:confirm:hello", "tags", "confirm", "hello"},
		{"tags:confirm:https://example.com:8080/x", "tags", "confirm", "https://example.com:8080/x"},
		{"tags:list", "tags", "list", ""},
		{"tags", "tags", "", ""},
		{"a::", "a", "", ""},
	}
	for _, tt := range tests {
		owner, action, data := ParseCustomID(tt.id)
		assert.Equal(t, tt.owner, owner, tt.id)
		assert.Equal(t, tt.action, action, tt.id)
		assert.Equal(t, tt.data, data, tt.id)
	}
}

func TestPingCooldownEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	p := &pingPlugin{name: "alpha"}
	h.addPlugin(t, "alpha", p)
	require.True(t, h.loader.LoadOne(context.Background(), "alpha"))

	h.slash("ping", "u1")
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "Pong from alpha", lastResponse(t, h.session).Data.Content)

	h.clock.Advance(time.Second)
	h.slash("ping", "u1")
	assert.Equal(t, 1, p.calls)
	resp := lastResponse(t, h.session)
	assert.Equal(t, "Please wait 2.0 more second(s) before reusing the `ping` command.", resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)

	h.clock.Advance(2 * time.Second)
	h.slash("ping", "u1")
	assert.Equal(t, 2, p.calls)
}

func TestAliasSharesCooldownWithTextCommands(t *testing.T) {
	h := newHarness(t, nil)
	p := &pingPlugin{name: "alpha"}
	h.addPlugin(t, "alpha", p)
	require.True(t, h.loader.LoadOne(context.Background(), "alpha"))

	h.text("g1", "!ping", false)
	h.text("g1", "!P now", false)

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, "Please wait 3.0 more second(s) before reusing the `ping` command.", h.session.LastContent())
}

func TestDuplicateHelpResolvesToFirstPlugin(t *testing.T) {
	h := newHarness(t, nil)
	alpha := &pingPlugin{name: "alpha"}
	beta := &pingPlugin{name: "beta"}
	h.addPlugin(t, "alpha", alpha)
	h.addPlugin(t, "beta", beta)
	h.loader.LoadAll(context.Background())

	h.slash("help", "u1")

	assert.Equal(t, 1, alpha.calls)
	assert.Zero(t, beta.calls)
}

func TestUnknownSlashCommand(t *testing.T) {
	h := newHarness(t, nil)

	h.slash("gone", "u1")

	resp := lastResponse(t, h.session)
	assert.Equal(t, unknownCommandMessage, resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
}

func TestTextCommandUsesGuildPrefix(t *testing.T) {
	h := newHarness(t, nil)
	p := &pingPlugin{name: "alpha"}
	h.addPlugin(t, "alpha", p)
	require.True(t, h.loader.LoadOne(context.Background(), "alpha"))

	_, err := h.settings.UpdateGuild(context.Background(), "g1", func(g *settings.GuildSettings) error {
		g.Prefix = "?"
		return nil
	})
	require.NoError(t, err)

	h.text("g1", "!ping", false)
	assert.Zero(t, p.calls)

	h.text("g1", "?ping", false)
	assert.Equal(t, 1, p.calls)

	h.clock.Advance(time.Minute)
	h.text("", "!ping", false)
	assert.Equal(t, 2, p.calls, "direct messages use the default prefix")

	h.clock.Advance(time.Minute)
	h.text("g1", "?ping", true)
	assert.Equal(t, 2, p.calls, "bots are ignored")
}

func TestComponentRouting(t *testing.T) {
	widgets := &widgetPlugin{}
	h := newHarness(t, stubPlugins{
		"widgets": widgets,
		"plain":   &pingPlugin{name: "plain"},
	})

	h.button("widgets:open:a:b")
	require.NotNil(t, widgets.seen)
	assert.Equal(t, "open", widgets.seen.Action)
	assert.Equal(t, "a:b", widgets.seen.Data)
	assert.Equal(t, "u1", widgets.seen.UserID)
	resp := lastResponse(t, h.session)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, resp.Type)
	assert.Equal(t, "clicked a:b", resp.Data.Content)

	h.button("missing:open")
	assert.Equal(t, "This button is no longer supported. The bot may have been updated.", lastResponse(t, h.session).Data.Content)

	h.button("plain:open")
	assert.Equal(t, "This button is not handled properly.", lastResponse(t, h.session).Data.Content)
}

func TestComponentFailureAfterDeferFollowsUp(t *testing.T) {
	widgets := &widgetPlugin{err: errors.New("broken")}
	h := newHarness(t, stubPlugins{"widgets": widgets})

	h.button("widgets:open")

	require.Len(t, h.session.Responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredMessageUpdate, h.session.Responses[0].Type)
	require.Len(t, h.session.Followups, 1)
	assert.Equal(t, "There was an error processing this button!", h.session.Followups[0].Content)
}

func TestModalFields(t *testing.T) {
	fields := modalFields([]discordgo.MessageComponent{
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: "channel", Value: "123"},
		}},
		&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: "message", Value: "Hi {user}"},
		}},
	})
	assert.Equal(t, map[string]string{"channel": "123", "message": "Hi {user}"}, fields)
}
