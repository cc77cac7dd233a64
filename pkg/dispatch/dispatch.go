// Package dispatch routes Discord interactions and prefixed text messages to
// registered commands and plugin component handlers.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/pipeline"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

const (
	unknownCommandMessage = "Unknown command. The bot may have been updated since this command was registered."
	textOnlyMessage       = "This command can only be used as a text command."
	slashOnlyMessage      = "This command can only be used as a slash command."
	unsupportedFormat     = "This %s is no longer supported. The bot may have been updated."
	unhandledFormat       = "This %s is not handled properly."
	componentErrorFormat  = "There was an error processing this %s!"
)

// PluginLookup finds the active plugin that owns a component.
type PluginLookup interface {
	Lookup(name string) (plugin.Plugin, bool)
}

// Dispatcher turns upstream events into command executions and component calls.
type Dispatcher struct {
	log           *logger.Logger
	registry      *registry.Registry
	executor      *pipeline.Executor
	plugins       PluginLookup
	session       discord.Session
	settings      *settings.Store
	defaultPrefix string
}

// New creates a dispatcher. store may be nil, in which case every guild uses
// defaultPrefix.
func New(
	log *logger.Logger,
	reg *registry.Registry,
	executor *pipeline.Executor,
	plugins PluginLookup,
	session discord.Session,
	store *settings.Store,
	defaultPrefix string,
) *Dispatcher {
	if defaultPrefix == "" {
		defaultPrefix = settings.DefaultPrefix
	}
	return &Dispatcher{
		log:           log.Component("dispatch"),
		registry:      reg,
		executor:      executor,
		plugins:       plugins,
		session:       session,
		settings:      store,
		defaultPrefix: defaultPrefix,
	}
}

// Register subscribes the dispatcher to interactions and messages as the
// framework owner.
func (d *Dispatcher) Register() error {
	if !d.registry.RegisterEvent(registry.EventDescriptor{
		Name:   discord.EventInteractionCreate,
		Invoke: d.onInteraction,
	}, plugin.ReservedOwner) {
		return fmt.Errorf("registering %s handler", discord.EventInteractionCreate)
	}
	if !d.registry.RegisterEvent(registry.EventDescriptor{
		Name:   discord.EventMessageCreate,
		Invoke: d.onMessage,
	}, plugin.ReservedOwner) {
		return fmt.Errorf("registering %s handler", discord.EventMessageCreate)
	}
	return nil
}

func (d *Dispatcher) onInteraction(ctx context.Context, ev registry.Event) error {
	ic, ok := ev.Payload.(*discordgo.InteractionCreate)
	if !ok || ic == nil || ic.Interaction == nil {
		return nil
	}
	d.HandleInteraction(ctx, ic.Interaction)
	return nil
}

func (d *Dispatcher) onMessage(ctx context.Context, ev registry.Event) error {
	mc, ok := ev.Payload.(*discordgo.MessageCreate)
	if !ok || mc == nil || mc.Message == nil {
		return nil
	}
	d.HandleMessage(ctx, mc.Message)
	return nil
}

// HandleInteraction routes one interaction. Nothing it does returns an error to
// the caller; failures are logged and answered in the channel.
func (d *Dispatcher) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	responder := discord.NewInteractionResponder(d.session, i)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		d.handleCommand(ctx, i, responder)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		kind := plugin.KindSelectMenu
		if data.ComponentType == discordgo.ButtonComponent {
			kind = plugin.KindButton
		}
		d.handleComponent(ctx, i, responder, &plugin.Component{
			Kind:   kind,
			Values: data.Values,
		}, data.CustomID)
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		d.handleComponent(ctx, i, responder, &plugin.Component{
			Kind:   plugin.KindModal,
			Fields: modalFields(data.Components),
		}, data.CustomID)
	default:
		d.log.Debug("Ignoring interaction", zap.String("type", i.Type.String()))
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, i *discordgo.Interaction, r registry.Responder) {
	data := i.ApplicationCommandData()

	desc, ok := d.registry.Lookup(data.Name)
	if !ok {
		d.log.Warn("Interaction for unknown command", zap.String("command", data.Name))
		d.reply(ctx, r, unknownCommandMessage)
		return
	}
	if desc.InvokeInteraction == nil {
		d.reply(ctx, r, textOnlyMessage)
		return
	}

	userID, username := interactionUser(i)
	inv := &registry.Invocation{
		Command:     desc,
		InvokedAs:   data.Name,
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		UserID:      userID,
		Username:    username,
		Interaction: i,
		Responder:   r,
	}
	_ = d.executor.Execute(ctx, inv, desc.InvokeInteraction)
}

func (d *Dispatcher) handleComponent(ctx context.Context, i *discordgo.Interaction, r registry.Responder, c *plugin.Component, customID string) {
	c.Owner, c.Action, c.Data = ParseCustomID(customID)
	c.UserID, _ = interactionUser(i)
	c.GuildID = i.GuildID
	c.ChannelID = i.ChannelID
	c.Interaction = i
	c.Responder = r

	log := d.log.WithFields(
		zap.String("custom_id", customID),
		zap.String("kind", c.Kind.String()),
		zap.String("user", c.UserID))

	p, ok := d.plugins.Lookup(c.Owner)
	if !ok {
		log.Warn("Component for unknown plugin")
		d.reply(ctx, r, fmt.Sprintf(unsupportedFormat, c.Kind))
		return
	}

	handle := componentHandler(p, c.Kind)
	if handle == nil {
		log.Warn("Plugin does not handle component kind")
		d.reply(ctx, r, fmt.Sprintf(unhandledFormat, c.Kind))
		return
	}

	if err := safeCall(ctx, c, handle); err != nil {
		log.Error("Component handler failed", zap.Error(err))
		d.reply(ctx, r, fmt.Sprintf(componentErrorFormat, c.Kind))
	}
}

// HandleMessage runs a prefixed text command. Messages from bots and webhooks,
// and messages that do not name a known command, are ignored.
func (d *Dispatcher) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.WebhookID != "" {
		return
	}

	prefix := d.prefixFor(ctx, m.GuildID)
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, prefix) {
		return
	}
	fields := strings.Fields(content[len(prefix):])
	if len(fields) == 0 {
		return
	}

	name := strings.ToLower(fields[0])
	desc, ok := d.registry.Lookup(name)
	if !ok {
		return
	}

	responder := discord.NewMessageResponder(d.session, m)
	if desc.Invoke == nil {
		d.reply(ctx, responder, slashOnlyMessage)
		return
	}

	inv := &registry.Invocation{
		Command:   desc,
		InvokedAs: name,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		Args:      fields[1:],
		Message:   m,
		Responder: responder,
	}
	_ = d.executor.Execute(ctx, inv, desc.Invoke)
}

// Prefix returns the text-command prefix in effect for guildID.
func (d *Dispatcher) Prefix(ctx context.Context, guildID string) string {
	return d.prefixFor(ctx, guildID)
}

func (d *Dispatcher) prefixFor(ctx context.Context, guildID string) string {
	if guildID == "" || d.settings == nil {
		return d.defaultPrefix
	}
	g, err := d.settings.Guild(ctx, guildID)
	if err != nil {
		d.log.Warn("Failed to read guild settings", zap.String("guild", guildID), zap.Error(err))
		return d.defaultPrefix
	}
	return g.PrefixOr(d.defaultPrefix)
}

// reply answers ephemerally, following up when the interaction was already
// acknowledged.
func (d *Dispatcher) reply(ctx context.Context, r registry.Responder, content string) {
	if err := registry.Respond(ctx, r, registry.Reply{Content: content, Ephemeral: true}); err != nil {
		d.log.Warn("Failed to send reply", zap.Error(err))
	}
}

// ParseCustomID splits a component custom ID into owner, action and data.
// Only the first two colons separate; data keeps any further colons.
func ParseCustomID(id string) (owner, action, data string) {
	parts := strings.SplitN(id, ":", 3)
	owner = parts[0]
	if len(parts) > 1 {
		action = parts[1]
	}
	if len(parts) > 2 {
		data = parts[2]
	}
	return owner, action, data
}

type componentFunc func(ctx context.Context, c *plugin.Component) error

func componentHandler(p plugin.Plugin, kind plugin.ComponentKind) componentFunc {
	switch kind {
	case plugin.KindButton:
		if h, ok := p.(plugin.ButtonHandler); ok {
			return h.HandleButton
		}
	case plugin.KindSelectMenu:
		if h, ok := p.(plugin.SelectMenuHandler); ok {
			return h.HandleSelectMenu
		}
	case plugin.KindModal:
		if h, ok := p.(plugin.ModalSubmitHandler); ok {
			return h.HandleModalSubmit
		}
	}
	return nil
}

func safeCall(ctx context.Context, c *plugin.Component, fn componentFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, c)
}

func interactionUser(i *discordgo.Interaction) (id, name string) {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID, i.Member.User.Username
	}
	if i.User != nil {
		return i.User.ID, i.User.Username
	}
	return "", ""
}

func modalFields(rows []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, row := range rows {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if input, ok := comp.(*discordgo.TextInput); ok {
				fields[input.CustomID] = input.Value
			}
		}
	}
	return fields
}
