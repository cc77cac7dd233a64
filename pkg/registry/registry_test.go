package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildkeeper/pkg/logger"
)

type fakeUpstream struct {
	mu       sync.Mutex
	handlers map[string]func(context.Context, any)
	subs     int
	cancels  int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{handlers: make(map[string]func(context.Context, any))}
}

func (f *fakeUpstream) Subscribe(name string, deliver func(ctx context.Context, payload any)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs++
	f.handlers[name] = deliver
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancels++
		delete(f.handlers, name)
	}
}

func (f *fakeUpstream) fire(name string, payload any) bool {
	f.mu.Lock()
	deliver, ok := f.handlers[name]
	f.mu.Unlock()
	if ok {
		deliver(context.Background(), payload)
	}
	return ok
}

func noop(context.Context, *Invocation) error { return nil }

func TestRegisterCommandRejectsCollisions(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)

	first := func(context.Context, *Invocation) error { return errors.New("first") }
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "help", Aliases: []string{"h"}, Invoke: first}, "core"))
	assert.False(t, r.RegisterCommand(CommandDescriptor{Name: "HELP", Invoke: noop}, "other"))
	assert.False(t, r.RegisterCommand(CommandDescriptor{Name: "assist", Aliases: []string{"h"}, Invoke: noop}, "other"))
	assert.False(t, r.RegisterCommand(CommandDescriptor{Name: "h", Invoke: noop}, "other"))

	assert.Len(t, r.Commands(), 1)
	desc, ok := r.Lookup("help")
	require.True(t, ok)
	assert.Equal(t, "core", desc.Owner)
	assert.EqualError(t, desc.Invoke(context.Background(), nil), "first")

	_, ok = r.Lookup("assist")
	assert.False(t, ok, "rejected registration must not leave its name behind")
}

func TestRegisterCommandRejectsInvalid(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)

	assert.False(t, r.RegisterCommand(CommandDescriptor{Name: " ", Invoke: noop}, "core"))
	assert.False(t, r.RegisterCommand(CommandDescriptor{Name: "ping"}, "core"))
	assert.Empty(t, r.Commands())
}

func TestLookupByAliasIsCaseInsensitive(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "Ping", Aliases: []string{"P", "pong", "p"}, Invoke: noop}, "core"))

	desc, ok := r.Lookup("P")
	require.True(t, ok)
	assert.Equal(t, "ping", desc.Name)
	assert.Equal(t, []string{"p", "pong"}, desc.Aliases)

	desc, ok = r.Lookup("/PONG")
	require.True(t, ok)
	assert.Equal(t, "ping", desc.Name)
}

func TestRegistryStoresCopy(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)
	desc := CommandDescriptor{Name: "ping", Description: "Pong", Invoke: noop}
	require.True(t, r.RegisterCommand(desc, "core"))

	desc.Description = "changed"
	got, _ := r.Lookup("ping")
	assert.Equal(t, "Pong", got.Description)

	got.Description = "changed again"
	again, _ := r.Lookup("ping")
	assert.Equal(t, "Pong", again.Description)
}

func TestUnregisterOwnerRemovesEverything(t *testing.T) {
	up := newFakeUpstream()
	r := NewRegistry(logger.NewNop(), up)
	handler := func(context.Context, Event) error { return nil }

	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "tag", Aliases: []string{"t"}, Invoke: noop}, "tags"))
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "tags", Invoke: noop}, "tags"))
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "ping", Invoke: noop}, "core"))
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "messageCreate", Invoke: handler}, "tags"))
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "messageCreate", Invoke: handler}, "core"))
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "guildMemberAdd", Invoke: handler}, "tags"))
	assert.Equal(t, 2, up.subs)

	removal := r.UnregisterOwner("tags")
	assert.Equal(t, Removal{CommandsRemoved: 2, EventsRemoved: 2}, removal)

	for _, desc := range r.Commands() {
		assert.NotEqual(t, "tags", desc.Owner)
	}
	_, ok := r.Lookup("t")
	assert.False(t, ok)
	assert.Equal(t, []string{"messageCreate"}, r.Subscriptions())
	assert.Equal(t, 1, up.cancels)
	assert.Equal(t, []string{"core"}, r.Owners())

	// The alias is free again.
	assert.True(t, r.RegisterCommand(CommandDescriptor{Name: "t", Invoke: noop}, "core"))
}

func TestEventFanOutOrderAndSingleSubscription(t *testing.T) {
	up := newFakeUpstream()
	r := NewRegistry(logger.NewNop(), up)

	var order []string
	record := func(tag string) EventHandler {
		return func(_ context.Context, ev Event) error {
			order = append(order, tag+":"+ev.Payload.(string))
			return nil
		}
	}
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "ready", Invoke: record("a")}, "a"))
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "ready", Invoke: record("b")}, "b"))
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "ready", Invoke: record("c")}, "c"))
	assert.Equal(t, 1, up.subs)

	require.True(t, up.fire("ready", "x"))
	assert.Equal(t, []string{"a:x", "b:x", "c:x"}, order)
}

func TestEmitContinuesAfterFailureAndPanic(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)

	reached := false
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "e", Invoke: func(context.Context, Event) error {
		return errors.New("boom")
	}}, "a"))
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "e", Invoke: func(context.Context, Event) error {
		panic("kaboom")
	}}, "b"))
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "e", Invoke: func(context.Context, Event) error {
		reached = true
		return nil
	}}, "c"))

	assert.Equal(t, 3, r.Emit(context.Background(), "e", nil))
	assert.True(t, reached)
}

func TestOnceEventDetaches(t *testing.T) {
	up := newFakeUpstream()
	r := NewRegistry(logger.NewNop(), up)

	calls := 0
	require.True(t, r.RegisterEvent(EventDescriptor{Name: "ready", Once: true, Invoke: func(context.Context, Event) error {
		calls++
		return nil
	}}, "core"))

	require.True(t, up.fire("ready", nil))
	assert.False(t, up.fire("ready", nil), "upstream subscription should be torn down")
	assert.Equal(t, 1, calls)
	assert.Empty(t, r.Subscriptions())
	assert.Equal(t, 0, r.EventHandlers("ready"))
}

func TestRegisterEventRejectsInvalid(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)
	assert.False(t, r.RegisterEvent(EventDescriptor{Name: "ready"}, "core"))
	assert.False(t, r.RegisterEvent(EventDescriptor{Invoke: func(context.Context, Event) error { return nil }}, "core"))
}

func TestSlashCommands(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "textonly", Invoke: noop}, "core"))
	require.True(t, r.RegisterCommand(CommandDescriptor{
		Name:              "prefix",
		Description:       "Set the prefix",
		GuildOnly:         true,
		Permissions:       []int64{discordgo.PermissionManageGuild},
		InvokeInteraction: noop,
		Slash: &discordgo.ApplicationCommand{
			Options: []*discordgo.ApplicationCommandOption{{
				Type: discordgo.ApplicationCommandOptionString, Name: "value", Description: "New prefix", Required: true,
			}},
		},
	}, "admin"))
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "ping", InvokeInteraction: noop}, "core"))

	cmds := r.SlashCommands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "ping", cmds[0].Name)
	assert.Equal(t, "No description provided", cmds[0].Description)

	prefix := cmds[1]
	assert.Equal(t, "prefix", prefix.Name)
	assert.Equal(t, discordgo.ChatApplicationCommand, prefix.Type)
	require.NotNil(t, prefix.DefaultMemberPermissions)
	assert.Equal(t, int64(discordgo.PermissionManageGuild), *prefix.DefaultMemberPermissions)
	require.NotNil(t, prefix.DMPermission)
	assert.False(t, *prefix.DMPermission)
	assert.Len(t, prefix.Options, 1)
}

func TestSlashDescriptionTruncatesOnRunes(t *testing.T) {
	r := NewRegistry(logger.NewNop(), nil)
	long := strings.Repeat("é", 150)
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "accent", Description: long, InvokeInteraction: noop}, "core"))
	require.True(t, r.RegisterCommand(CommandDescriptor{Name: "short", Description: strings.Repeat("ü", 100), InvokeInteraction: noop}, "core"))

	cmds := r.SlashCommands()
	require.Len(t, cmds, 2)

	accent := cmds[0].Description
	assert.True(t, utf8.ValidString(accent))
	assert.Equal(t, maxDescription, utf8.RuneCountInString(accent))
	assert.True(t, strings.HasSuffix(accent, "..."))

	assert.Equal(t, strings.Repeat("ü", 100), cmds[1].Description, "100 characters fit even when longer in bytes")
}

func TestEffectiveCooldown(t *testing.T) {
	assert.Equal(t, DefaultCooldown, (&CommandDescriptor{}).EffectiveCooldown())
	assert.Equal(t, 0*DefaultCooldown, (&CommandDescriptor{Cooldown: -1}).EffectiveCooldown())
	assert.Equal(t, 2*DefaultCooldown, (&CommandDescriptor{Cooldown: 2 * DefaultCooldown}).EffectiveCooldown())
}
