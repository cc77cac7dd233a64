// Package plugintest runs plugins against an in-memory session, registry and
// settings store.
package plugintest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cron"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/discord/discordtest"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
	"guildkeeper/pkg/state"
)

// Harness wires a loader to fakes.
type Harness struct {
	t *testing.T

	Session   *discordtest.Session
	Registry  *registry.Registry
	Settings  *settings.Store
	Scheduler *cron.Manager
	Catalog   *plugin.Catalog
	Loader    *plugin.Loader
	Config    *config.Config
}

// New creates a harness with an empty plugins directory.
func New(t *testing.T) *Harness {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Plugins.Dir = t.TempDir()
	cfg.Bot.OwnerIDs = []string{"owner"}

	kv, err := state.NewFileStore(logger.NewNop(), &state.FileStoreConfig{
		FilePath: filepath.Join(t.TempDir(), "state.json"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	h := &Harness{
		t:         t,
		Session:   discordtest.NewSession(),
		Settings:  settings.New(kv),
		Scheduler: cron.New(logger.NewNop()),
		Catalog:   plugin.NewCatalog(),
		Config:    cfg,
	}
	h.Registry = registry.NewRegistry(logger.NewNop(), discord.NewEventSource(h.Session))
	h.Loader = plugin.NewLoader(logger.NewNop(), cfg.Plugins.Dir, h.Catalog, h.Registry,
		plugin.WithScheduler(h.Scheduler),
		plugin.WithSettings(h.Settings),
		plugin.WithSession(h.Session),
		plugin.WithConfig(cfg),
	)
	return h
}

// Install registers factory under folder and writes a manifest for it.
func (h *Harness) Install(folder string, factory plugin.Factory, manifest string) {
	h.t.Helper()
	require.NoError(h.t, h.Catalog.Register(folder, factory))
	if manifest == "" {
		manifest = "version: 1.0.0\n"
	}
	dir := filepath.Join(h.Config.Plugins.Dir, folder)
	require.NoError(h.t, os.MkdirAll(dir, 0755))
	require.NoError(h.t, os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(manifest), 0644))
}

// Load installs and loads factory, failing the test if loading fails.
func (h *Harness) Load(folder string, factory plugin.Factory) {
	h.t.Helper()
	h.Install(folder, factory, "")
	require.True(h.t, h.Loader.LoadOne(context.Background(), folder))
}

// Run invokes a registered command directly, bypassing the pipeline.
// Interaction invocations use InvokeInteraction.
func (h *Harness) Run(name string, inv registry.Invocation) (*Recorder, error) {
	h.t.Helper()
	desc, ok := h.Registry.Lookup(name)
	require.True(h.t, ok, "command %s not registered", name)

	rec := &Recorder{}
	inv.Command = desc
	inv.InvokedAs = name
	inv.Responder = rec

	handler := desc.Invoke
	if inv.Interaction != nil {
		handler = desc.InvokeInteraction
	}
	require.NotNil(h.t, handler)
	return rec, handler(context.Background(), &inv)
}

// Component calls the component handler of an active plugin.
func (h *Harness) Component(c plugin.Component) (*Recorder, error) {
	h.t.Helper()
	p, ok := h.Loader.Lookup(c.Owner)
	require.True(h.t, ok, "plugin %s not loaded", c.Owner)

	rec := &Recorder{}
	c.Responder = rec
	ctx := context.Background()
	switch c.Kind {
	case plugin.KindButton:
		return rec, p.(plugin.ButtonHandler).HandleButton(ctx, &c)
	case plugin.KindSelectMenu:
		return rec, p.(plugin.SelectMenuHandler).HandleSelectMenu(ctx, &c)
	default:
		return rec, p.(plugin.ModalSubmitHandler).HandleModalSubmit(ctx, &c)
	}
}

// Slash builds an interaction carrying options, optionally under a subcommand.
func Slash(name, subcommand string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	data := discordgo.ApplicationCommandInteractionData{Name: name, Options: opts}
	if subcommand != "" {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{{
			Name:    subcommand,
			Type:    discordgo.ApplicationCommandOptionSubCommand,
			Options: opts,
		}}
	}
	return &discordgo.Interaction{
		ID:   "interaction",
		Type: discordgo.InteractionApplicationCommand,
		Data: data,
	}
}

// StringOpt builds a string option.
func StringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

// Modal is a modal opened through a Recorder.
type Modal struct {
	CustomID   string
	Title      string
	Components []discordgo.MessageComponent
}

// Recorder is a registry.Responder that records what it was asked to send.
type Recorder struct {
	mu        sync.Mutex
	acked     bool
	Replies   []registry.Reply
	Followups []registry.Reply
	Updates   []registry.Reply
	Modals    []Modal
	Deferred  bool
}

func (r *Recorder) Reply(_ context.Context, reply registry.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	r.Replies = append(r.Replies, reply)
	return nil
}

func (r *Recorder) Defer(context.Context, bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	r.Deferred = true
	return nil
}

func (r *Recorder) Followup(_ context.Context, reply registry.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Followups = append(r.Followups, reply)
	return nil
}

func (r *Recorder) Update(_ context.Context, reply registry.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	r.Updates = append(r.Updates, reply)
	return nil
}

func (r *Recorder) Acknowledged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acked
}

func (r *Recorder) Modal(customID, title string, components ...discordgo.MessageComponent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	r.Modals = append(r.Modals, Modal{CustomID: customID, Title: title, Components: components})
	return nil
}

// Last returns the most recent reply, followup or update.
func (r *Recorder) Last() registry.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, list := range [][]registry.Reply{r.Updates, r.Followups, r.Replies} {
		if len(list) > 0 {
			return list[len(list)-1]
		}
	}
	return registry.Reply{}
}
