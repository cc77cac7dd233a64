package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildkeeper/pkg/logger"
)

// maxDescription is Discord's limit for slash command descriptions, in characters.
const maxDescription = 100

type eventEntry struct {
	id    uint64
	desc  EventDescriptor
	fired atomic.Bool
}

// Registry is the command and event table.
type Registry struct {
	log      *logger.Logger
	upstream Upstream

	// subMu serializes upstream subscription changes; Emit never takes it.
	subMu sync.Mutex

	mu       sync.RWMutex
	commands map[string]*CommandDescriptor
	aliases  map[string]string
	events   map[string][]*eventEntry
	cancels  map[string]func()
	nextID   uint64
}

// NewRegistry creates an empty registry. A nil upstream only fans out events
// passed to Emit directly.
func NewRegistry(log *logger.Logger, upstream Upstream) *Registry {
	return &Registry{
		log:      log,
		upstream: upstream,
		commands: make(map[string]*CommandDescriptor),
		aliases:  make(map[string]string),
		events:   make(map[string][]*eventEntry),
		cancels:  make(map[string]func()),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "/")))
}

// RegisterCommand stores desc under its name and aliases and stamps owner.
// It returns false when the descriptor is invalid or collides with an existing
// name or alias; the existing registration is left untouched.
func (r *Registry) RegisterCommand(desc CommandDescriptor, owner string) bool {
	desc.Name = normalizeName(desc.Name)
	desc.Owner = owner

	if desc.Name == "" {
		r.log.Error("Rejected command without a name", zap.String("owner", owner))
		return false
	}
	if desc.Invoke == nil && desc.InvokeInteraction == nil {
		r.log.Error("Rejected command without a handler",
			zap.String("owner", owner),
			zap.String("command", desc.Name))
		return false
	}

	seen := map[string]bool{desc.Name: true}
	aliases := make([]string, 0, len(desc.Aliases))
	for _, alias := range desc.Aliases {
		alias = normalizeName(alias)
		if alias == "" || seen[alias] {
			continue
		}
		seen[alias] = true
		aliases = append(aliases, alias)
	}
	desc.Aliases = aliases
	desc.Permissions = append([]int64(nil), desc.Permissions...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if conflict := r.conflictLocked(&desc); conflict != nil {
		r.log.Warn("Command registration rejected",
			zap.String("command", desc.Name),
			zap.String("owner", owner),
			zap.String("existing_owner", conflict.ExistingOwner),
			zap.Error(conflict))
		return false
	}

	stored := desc
	r.commands[stored.Name] = &stored
	for _, alias := range stored.Aliases {
		r.aliases[alias] = stored.Name
	}

	r.log.Debug("Registered command",
		zap.String("command", stored.Name),
		zap.Strings("aliases", stored.Aliases),
		zap.String("owner", owner))
	return true
}

func (r *Registry) conflictLocked(desc *CommandDescriptor) *ConflictError {
	keys := append([]string{desc.Name}, desc.Aliases...)
	for i, key := range keys {
		existing := r.resolveLocked(key)
		if existing == nil {
			continue
		}
		return &ConflictError{
			Key:           key,
			Command:       desc.Name,
			Owner:         desc.Owner,
			ExistingOwner: existing.Owner,
			Alias:         i > 0,
		}
	}
	return nil
}

func (r *Registry) resolveLocked(key string) *CommandDescriptor {
	if desc, ok := r.commands[key]; ok {
		return desc
	}
	if name, ok := r.aliases[key]; ok {
		return r.commands[name]
	}
	return nil
}

// Lookup resolves a command name or alias, case-insensitively.
func (r *Registry) Lookup(nameOrAlias string) (*CommandDescriptor, bool) {
	key := normalizeName(nameOrAlias)

	r.mu.RLock()
	defer r.mu.RUnlock()

	desc := r.resolveLocked(key)
	if desc == nil {
		return nil, false
	}
	out := *desc
	return &out, true
}

// RegisterEvent appends desc to the fan-out list of its event name and stamps
// owner. The upstream subscription for a name is created with its first descriptor.
func (r *Registry) RegisterEvent(desc EventDescriptor, owner string) bool {
	desc.Owner = owner
	if desc.Name == "" || desc.Invoke == nil {
		r.log.Error("Rejected invalid event handler",
			zap.String("owner", owner),
			zap.String("event", desc.Name))
		return false
	}

	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.mu.Lock()
	r.nextID++
	r.events[desc.Name] = append(r.events[desc.Name], &eventEntry{id: r.nextID, desc: desc})
	_, subscribed := r.cancels[desc.Name]
	r.mu.Unlock()

	if !subscribed {
		cancel := r.subscribe(desc.Name)
		r.mu.Lock()
		r.cancels[desc.Name] = cancel
		r.mu.Unlock()
		r.log.Debug("Subscribed upstream event", zap.String("event", desc.Name))
	}

	r.log.Debug("Registered event handler",
		zap.String("event", desc.Name),
		zap.String("owner", owner),
		zap.Bool("once", desc.Once))
	return true
}

func (r *Registry) subscribe(name string) func() {
	if r.upstream == nil {
		return func() {}
	}
	return r.upstream.Subscribe(name, func(ctx context.Context, payload any) {
		r.Emit(ctx, name, payload)
	})
}

// UnregisterOwner removes every command, alias and event handler of owner and
// tears down upstream subscriptions left without handlers.
func (r *Registry) UnregisterOwner(owner string) Removal {
	var removal Removal

	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.mu.Lock()
	for name, desc := range r.commands {
		if desc.Owner != owner {
			continue
		}
		for _, alias := range desc.Aliases {
			delete(r.aliases, alias)
		}
		delete(r.commands, name)
		removal.CommandsRemoved++
	}

	var cancels []func()
	for name, entries := range r.events {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.desc.Owner == owner {
				removal.EventsRemoved++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			cancels = append(cancels, r.dropEventLocked(name))
			continue
		}
		r.events[name] = kept
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	r.log.Debug("Unregistered owner",
		zap.String("owner", owner),
		zap.Int("commands", removal.CommandsRemoved),
		zap.Int("events", removal.EventsRemoved))
	return removal
}

func (r *Registry) dropEventLocked(name string) func() {
	delete(r.events, name)
	cancel, ok := r.cancels[name]
	delete(r.cancels, name)
	if !ok || cancel == nil {
		return func() {}
	}
	r.log.Debug("Unsubscribed upstream event", zap.String("event", name))
	return cancel
}

func (r *Registry) detach(name string, id uint64) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.mu.Lock()
	entries := r.events[name]
	kept := make([]*eventEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.id != id {
			kept = append(kept, entry)
		}
	}
	var cancel func()
	if len(kept) == 0 {
		cancel = r.dropEventLocked(name)
	} else {
		r.events[name] = kept
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Emit runs the handlers of name sequentially in registration order and returns
// how many ran. A failing or panicking handler does not stop the others.
func (r *Registry) Emit(ctx context.Context, name string, payload any) int {
	r.mu.RLock()
	entries := append([]*eventEntry(nil), r.events[name]...)
	r.mu.RUnlock()

	ev := Event{Name: name, Payload: payload}
	ran := 0
	for _, entry := range entries {
		if entry.desc.Once && !entry.fired.CompareAndSwap(false, true) {
			continue
		}
		ran++
		if err := r.invokeEvent(ctx, entry, ev); err != nil {
			r.log.Error("Event handler failed",
				zap.String("event", name),
				zap.String("owner", entry.desc.Owner),
				zap.Error(err))
		}
		if entry.desc.Once {
			r.detach(name, entry.id)
		}
	}
	return ran
}

func (r *Registry) invokeEvent(ctx context.Context, entry *eventEntry, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			r.log.Debug("Recovered event handler panic", zap.ByteString("stack", debug.Stack()))
		}
	}()
	return entry.desc.Invoke(ctx, ev)
}

// Commands returns a snapshot of all commands sorted by name.
func (r *Registry) Commands() []CommandDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CommandDescriptor, 0, len(r.commands))
	for _, desc := range r.commands {
		out = append(out, *desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CommandsByOwner returns the commands registered by owner, sorted by name.
func (r *Registry) CommandsByOwner(owner string) []CommandDescriptor {
	var out []CommandDescriptor
	for _, desc := range r.Commands() {
		if desc.Owner == owner {
			out = append(out, desc)
		}
	}
	return out
}

// Owners returns the owners that currently hold commands or event handlers.
func (r *Registry) Owners() []string {
	r.mu.RLock()
	set := make(map[string]struct{})
	for _, desc := range r.commands {
		set[desc.Owner] = struct{}{}
	}
	for _, entries := range r.events {
		for _, entry := range entries {
			set[entry.desc.Owner] = struct{}{}
		}
	}
	r.mu.RUnlock()

	out := make([]string, 0, len(set))
	for owner := range set {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}

// Subscriptions returns the event names with an active upstream subscription.
func (r *Registry) Subscriptions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.cancels))
	for name := range r.cancels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EventHandlers returns the number of handlers registered for name.
func (r *Registry) EventHandlers(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events[name])
}

// SlashCommands builds the application command schemas of every command with
// an interaction handler.
func (r *Registry) SlashCommands() []*discordgo.ApplicationCommand {
	var out []*discordgo.ApplicationCommand
	for _, desc := range r.Commands() {
		if desc.InvokeInteraction == nil {
			continue
		}
		out = append(out, slashSchema(desc))
	}
	return out
}

func slashSchema(desc CommandDescriptor) *discordgo.ApplicationCommand {
	var cmd discordgo.ApplicationCommand
	if desc.Slash != nil {
		cmd = *desc.Slash
	}
	cmd.Name = desc.Name
	if cmd.Type == 0 {
		cmd.Type = discordgo.ChatApplicationCommand
	}
	if cmd.Description == "" {
		cmd.Description = desc.Description
	}
	if cmd.Description == "" {
		cmd.Description = "No description provided"
	}
	if runes := []rune(cmd.Description); len(runes) > maxDescription {
		cmd.Description = string(runes[:maxDescription-3]) + "..."
	}
	if cmd.DefaultMemberPermissions == nil && len(desc.Permissions) > 0 {
		var perms int64
		for _, p := range desc.Permissions {
			perms |= p
		}
		cmd.DefaultMemberPermissions = &perms
	}
	if cmd.DMPermission == nil && desc.GuildOnly {
		dm := false
		cmd.DMPermission = &dm
	}
	return &cmd
}
