// Package registry holds the command and event tables shared by the plugin loader,
// the dispatcher and the dashboard.
package registry

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DefaultCooldown applies to commands that leave Cooldown at zero.
const DefaultCooldown = 3 * time.Second

// Handler executes a command invocation.
type Handler func(ctx context.Context, inv *Invocation) error

// EventHandler receives one upstream event.
type EventHandler func(ctx context.Context, ev Event) error

// CommandDescriptor describes a command. The registry keeps its own copy, so
// changes made by the caller after registration have no effect.
type CommandDescriptor struct {
	// Name is the canonical, lowercase command name.
	Name string
	// Aliases are alternative names for text invocation.
	Aliases []string
	// Description is shown by help and used for the slash schema.
	Description string
	// Usage shows how to use the text form, e.g. "tag add <name> <response>".
	Usage string
	// Cooldown is the per-user re-invocation interval.
	// Zero means DefaultCooldown, negative disables it.
	Cooldown time.Duration
	// GuildOnly rejects invocations outside a guild.
	GuildOnly bool
	// OwnerOnly restricts the command to configured bot owners.
	OwnerOnly bool
	// Permissions lists discordgo permission flags the member must hold.
	Permissions []int64
	// Invoke handles text (prefix) invocations.
	Invoke Handler
	// InvokeInteraction handles slash invocations. Optional.
	InvokeInteraction Handler
	// Slash overrides the generated application command schema. Optional.
	Slash *discordgo.ApplicationCommand

	// Owner is the name of the registering plugin, stamped by the registry.
	Owner string
}

// EffectiveCooldown resolves the zero and negative conventions of Cooldown.
func (d *CommandDescriptor) EffectiveCooldown() time.Duration {
	switch {
	case d.Cooldown == 0:
		return DefaultCooldown
	case d.Cooldown < 0:
		return 0
	default:
		return d.Cooldown
	}
}

// EventDescriptor binds a handler to an upstream event name.
type EventDescriptor struct {
	Name   string
	Once   bool
	Invoke EventHandler

	// Owner is stamped by the registry.
	Owner string
}

// Event is one delivery of an upstream event.
type Event struct {
	Name    string
	Payload any
}

// Invocation is the context of a single command execution.
type Invocation struct {
	// ID correlates log lines of one invocation.
	ID string
	// Command is the resolved descriptor.
	Command *CommandDescriptor
	// InvokedAs is the name or alias the user typed.
	InvokedAs string

	GuildID   string
	ChannelID string
	UserID    string
	Username  string

	// Args are the whitespace-split arguments of a text invocation.
	Args []string

	// Exactly one of Message or Interaction is set.
	Message     *discordgo.Message
	Interaction *discordgo.Interaction

	Responder Responder
}

// IsInteraction reports whether the invocation came from a slash command.
func (inv *Invocation) IsInteraction() bool {
	return inv.Interaction != nil
}

func (inv *Invocation) options() []*discordgo.ApplicationCommandInteractionDataOption {
	if inv.Interaction == nil || inv.Interaction.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	return inv.Interaction.ApplicationCommandData().Options
}

// Subcommand returns the subcommand name of a slash invocation, or "".
func (inv *Invocation) Subcommand() string {
	for _, opt := range inv.options() {
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
			return opt.Name
		}
	}
	return ""
}

// Option returns the named option of a slash invocation, looking inside the
// subcommand when one was used.
func (inv *Invocation) Option(name string) (*discordgo.ApplicationCommandInteractionDataOption, bool) {
	for _, opt := range inv.options() {
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
			for _, sub := range opt.Options {
				if sub.Name == name {
					return sub, true
				}
			}
			continue
		}
		if opt.Name == name {
			return opt, true
		}
	}
	return nil, false
}

// StringOption returns the named string option, or "" when absent.
func (inv *Invocation) StringOption(name string) string {
	opt, ok := inv.Option(name)
	if !ok {
		return ""
	}
	if s, ok := opt.Value.(string); ok {
		return s
	}
	return ""
}

// BoolOption returns the named boolean option, or false when absent.
func (inv *Invocation) BoolOption(name string) bool {
	opt, ok := inv.Option(name)
	if !ok {
		return false
	}
	b, _ := opt.Value.(bool)
	return b
}

// Reply is a response payload independent of the transport.
type Reply struct {
	Content    string
	Ephemeral  bool
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// Responder sends replies for an invocation or a component interaction.
type Responder interface {
	// Reply sends the initial response.
	Reply(ctx context.Context, r Reply) error
	// Defer acknowledges without content; the answer follows via Followup.
	Defer(ctx context.Context, ephemeral bool) error
	// Followup sends an additional message after the first acknowledgement.
	Followup(ctx context.Context, r Reply) error
	// Update edits the message the interaction originated from.
	Update(ctx context.Context, r Reply) error
	// Acknowledged reports whether Reply, Defer or Update has succeeded.
	Acknowledged() bool
}

// ModalResponder is implemented by interaction responders that can open a
// modal dialog as the initial response.
type ModalResponder interface {
	Modal(customID, title string, components ...discordgo.MessageComponent) error
}

// Respond replies, or follows up when the responder was already acknowledged.
func Respond(ctx context.Context, r Responder, reply Reply) error {
	if r.Acknowledged() {
		return r.Followup(ctx, reply)
	}
	return r.Reply(ctx, reply)
}

// Upstream is the source of platform events.
type Upstream interface {
	// Subscribe delivers every event named name until cancel is called.
	Subscribe(name string, deliver func(ctx context.Context, payload any)) (cancel func())
}

// Removal counts what UnregisterOwner removed.
type Removal struct {
	CommandsRemoved int
	EventsRemoved   int
}
