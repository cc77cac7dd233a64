package discord

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/bwmarrin/discordgo"
)

// Event names understood by EventSource with typed payloads. Other names fall back
// to raw gateway events whose type matches the SCREAMING_SNAKE form of the name,
// e.g. "guildBanAdd" receives *discordgo.Event of type GUILD_BAN_ADD.
const (
	EventReady             = "ready"
	EventInteractionCreate = "interactionCreate"
	EventMessageCreate     = "messageCreate"
	EventGuildMemberAdd    = "guildMemberAdd"
	EventGuildMemberRemove = "guildMemberRemove"
	EventGuildCreate       = "guildCreate"
	EventGuildDelete       = "guildDelete"
)

// EventSource delivers discordgo events to registry subscriptions.
type EventSource struct {
	session Session

	mu  sync.RWMutex
	ctx context.Context
}

// NewEventSource creates an event source over session.
func NewEventSource(session Session) *EventSource {
	return &EventSource{session: session, ctx: context.Background()}
}

// Bind sets the context passed to deliveries, usually the application lifetime.
func (e *EventSource) Bind(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx = ctx
}

func (e *EventSource) context() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ctx
}

// Subscribe registers one discordgo handler for name.
func (e *EventSource) Subscribe(name string, deliver func(ctx context.Context, payload any)) func() {
	return e.session.AddHandler(e.handlerFor(name, deliver))
}

func (e *EventSource) handlerFor(name string, deliver func(ctx context.Context, payload any)) interface{} {
	switch name {
	case EventReady:
		return func(_ *discordgo.Session, ev *discordgo.Ready) { deliver(e.context(), ev) }
	case EventInteractionCreate:
		return func(_ *discordgo.Session, ev *discordgo.InteractionCreate) { deliver(e.context(), ev) }
	case EventMessageCreate:
		return func(_ *discordgo.Session, ev *discordgo.MessageCreate) { deliver(e.context(), ev) }
	case EventGuildMemberAdd:
		return func(_ *discordgo.Session, ev *discordgo.GuildMemberAdd) { deliver(e.context(), ev) }
	case EventGuildMemberRemove:
		return func(_ *discordgo.Session, ev *discordgo.GuildMemberRemove) { deliver(e.context(), ev) }
	case EventGuildCreate:
		return func(_ *discordgo.Session, ev *discordgo.GuildCreate) { deliver(e.context(), ev) }
	case EventGuildDelete:
		return func(_ *discordgo.Session, ev *discordgo.GuildDelete) { deliver(e.context(), ev) }
	}

	gatewayType := GatewayEventType(name)
	return func(_ *discordgo.Session, ev *discordgo.Event) {
		if ev.Type == gatewayType {
			deliver(e.context(), ev)
		}
	}
}

// GatewayEventType converts a camelCase event name to its gateway type,
// "guildBanAdd" -> "GUILD_BAN_ADD".
func GatewayEventType(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
