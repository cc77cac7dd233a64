// Package utility provides ping, help, plugin management and the bot presence.
package utility

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
)

// Name is the plugin name.
const Name = "utility"

const defaultPresenceSchedule = "@every 30m"

// Plugin is the utility plugin.
type Plugin struct {
	registry *registry.Registry
	plugins  *plugin.Loader
	session  discord.Session
	log      *logger.Logger
	prefix   string
	presence string
	now      func() time.Time
}

// New is the catalog factory.
func New(*plugin.Manifest) (plugin.Plugin, error) {
	return &Plugin{now: time.Now}, nil
}

func (p *Plugin) Name() string        { return Name }
func (p *Plugin) Version() string     { return "1.0.0" }
func (p *Plugin) Description() string { return "Ping, help and plugin management" }
func (p *Plugin) Author() string      { return "guildkeeper" }

func (p *Plugin) Initialize(_ context.Context, pc *plugin.Context) error {
	p.registry = pc.Registry()
	p.plugins = pc.Plugins()
	p.session = pc.Session
	p.log = pc.Log
	p.prefix = "!"
	if pc.Config != nil {
		if pc.Config.Bot.DefaultPrefix != "" {
			p.prefix = pc.Config.Bot.DefaultPrefix
		}
		p.presence = pc.Config.Bot.Presence
	}
	p.presence = pc.OptionString("presence", p.presence)

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "ping",
		Description:       "Check the bot's latency",
		Invoke:            p.ping,
		InvokeInteraction: p.ping,
	})

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "help",
		Aliases:           []string{"commands"},
		Description:       "List all commands or show details of one",
		Usage:             "help [command]",
		Invoke:            p.help,
		InvokeInteraction: p.help,
		Slash: &discordgo.ApplicationCommand{
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "command",
				Description: "Command to describe",
			}},
		},
	})

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "plugins",
		Description:       "List, load, unload or reload plugins",
		Usage:             "plugins [list | load <folder> | unload <name> | reload <name>]",
		OwnerOnly:         true,
		Cooldown:          -1,
		Invoke:            p.managePlugins,
		InvokeInteraction: p.managePlugins,
		Slash: &discordgo.ApplicationCommand{
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "What to do",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "list", Value: "list"},
						{Name: "load", Value: "load"},
						{Name: "unload", Value: "unload"},
						{Name: "reload", Value: "reload"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "target",
					Description: "Plugin name, or folder for load",
				},
			},
		},
	})

	if p.session != nil && p.presence != "" {
		pc.RegisterEvent(registry.EventDescriptor{
			Name: discord.EventReady,
			Once: true,
			Invoke: func(ctx context.Context, _ registry.Event) error {
				return p.refreshPresence(ctx)
			},
		})
		schedule := pc.OptionString("presence_schedule", defaultPresenceSchedule)
		if err := pc.Schedule("presence", schedule, p.refreshPresence); err != nil {
			pc.Log.Warn("Presence refresh not scheduled", zap.Error(err))
		}
	}
	return nil
}

func (p *Plugin) refreshPresence(context.Context) error {
	return p.session.UpdateCustomStatus(p.presence)
}

func (p *Plugin) ping(ctx context.Context, inv *registry.Invocation) error {
	start := p.now()
	if err := registry.Respond(ctx, inv.Responder, registry.Reply{Content: "Pinging..."}); err != nil {
		return err
	}
	roundtrip := p.now().Sub(start)

	content := fmt.Sprintf("Pong! Roundtrip: %dms", roundtrip.Milliseconds())
	if p.session != nil {
		content += fmt.Sprintf(", gateway: %dms", p.session.Latency().Milliseconds())
	}
	return inv.Responder.Update(ctx, registry.Reply{Content: content})
}

func (p *Plugin) help(ctx context.Context, inv *registry.Invocation) error {
	query := inv.StringOption("command")
	if !inv.IsInteraction() && len(inv.Args) > 0 {
		query = inv.Args[0]
	}

	if query != "" {
		desc, ok := p.registry.Lookup(query)
		if !ok {
			return registry.Respond(ctx, inv.Responder, registry.Reply{
				Content:   fmt.Sprintf("No command named `%s`.", query),
				Ephemeral: true,
			})
		}
		return registry.Respond(ctx, inv.Responder, registry.Reply{Embeds: []*discordgo.MessageEmbed{p.commandEmbed(desc)}})
	}

	return registry.Respond(ctx, inv.Responder, registry.Reply{
		Embeds:     []*discordgo.MessageEmbed{p.overviewEmbed("")},
		Components: p.pluginMenu(),
	})
}

// HandleSelectMenu filters the help overview by plugin.
func (p *Plugin) HandleSelectMenu(ctx context.Context, c *plugin.Component) error {
	if c.Action != "help" {
		return fmt.Errorf("unknown utility menu %q", c.Action)
	}
	owner := ""
	if len(c.Values) > 0 && c.Values[0] != "all" {
		owner = c.Values[0]
	}
	return c.Responder.Update(ctx, registry.Reply{
		Embeds:     []*discordgo.MessageEmbed{p.overviewEmbed(owner)},
		Components: p.pluginMenu(),
	})
}

func (p *Plugin) commandEmbed(desc *registry.CommandDescriptor) *discordgo.MessageEmbed {
	description := desc.Description
	if description == "" {
		description = "No description provided"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Plugin", Value: desc.Owner, Inline: true},
		{Name: "Cooldown", Value: fmt.Sprintf("%.0fs", desc.EffectiveCooldown().Seconds()), Inline: true},
	}
	if desc.Usage != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Usage", Value: "`" + p.prefix + desc.Usage + "`"})
	}
	if len(desc.Aliases) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Aliases", Value: strings.Join(desc.Aliases, ", ")})
	}
	return &discordgo.MessageEmbed{
		Title:       p.prefix + desc.Name,
		Description: description,
		Color:       0x5865F2,
		Fields:      fields,
	}
}

func (p *Plugin) overviewEmbed(owner string) *discordgo.MessageEmbed {
	byOwner := make(map[string][]string)
	for _, desc := range p.registry.Commands() {
		if owner != "" && desc.Owner != owner {
			continue
		}
		byOwner[desc.Owner] = append(byOwner[desc.Owner], "`"+desc.Name+"`")
	}

	owners := make([]string, 0, len(byOwner))
	for o := range byOwner {
		owners = append(owners, o)
	}
	sort.Strings(owners)

	fields := make([]*discordgo.MessageEmbedField, 0, len(owners))
	for _, o := range owners {
		sort.Strings(byOwner[o])
		fields = append(fields, &discordgo.MessageEmbedField{Name: o, Value: strings.Join(byOwner[o], " ")})
	}

	title := "Commands"
	if owner != "" {
		title = "Commands of " + owner
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("Use `%shelp <command>` for details.", p.prefix),
		Color:       0x5865F2,
		Fields:      fields,
	}
}

func (p *Plugin) pluginMenu() []discordgo.MessageComponent {
	options := []discordgo.SelectMenuOption{{Label: "All plugins", Value: "all"}}
	for _, owner := range p.registry.Owners() {
		if len(p.registry.CommandsByOwner(owner)) == 0 {
			continue
		}
		options = append(options, discordgo.SelectMenuOption{Label: owner, Value: owner})
	}
	// Discord caps select menus at 25 options.
	if len(options) > 25 {
		options = options[:25]
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    plugin.CustomID(Name, "help"),
				Placeholder: "Filter by plugin",
				Options:     options,
			},
		}},
	}
}

func (p *Plugin) managePlugins(ctx context.Context, inv *registry.Invocation) error {
	if p.plugins == nil {
		return errors.New("plugin manager not available")
	}

	action, target := inv.StringOption("action"), inv.StringOption("target")
	if !inv.IsInteraction() {
		if len(inv.Args) > 0 {
			action = strings.ToLower(inv.Args[0])
		}
		if len(inv.Args) > 1 {
			target = inv.Args[1]
		}
	}

	if action == "" || action == "list" {
		return registry.Respond(ctx, inv.Responder, registry.Reply{
			Embeds:    []*discordgo.MessageEmbed{p.pluginsEmbed()},
			Ephemeral: true,
		})
	}
	if target == "" {
		return registry.Respond(ctx, inv.Responder, registry.Reply{Content: "Usage: `" + p.prefix + inv.Command.Usage + "`", Ephemeral: true})
	}

	var ok bool
	switch action {
	case "load":
		ok = p.plugins.LoadOne(ctx, target)
	case "unload":
		ok = p.plugins.Unload(ctx, target)
	case "reload":
		ok = p.plugins.Reload(ctx, target)
	default:
		return registry.Respond(ctx, inv.Responder, registry.Reply{Content: "Usage: `" + p.prefix + inv.Command.Usage + "`", Ephemeral: true})
	}

	p.log.Info("Plugin management command",
		zap.String("action", action),
		zap.String("target", target),
		zap.String("user", inv.UserID),
		zap.Bool("ok", ok))

	outcome := "succeeded"
	if !ok {
		outcome = "failed, see the logs"
	}
	return registry.Respond(ctx, inv.Responder, registry.Reply{
		Content:   fmt.Sprintf("%s `%s` %s.", strings.ToUpper(action[:1])+action[1:], target, outcome),
		Ephemeral: true,
	})
}

func (p *Plugin) pluginsEmbed() *discordgo.MessageEmbed {
	infos := p.plugins.List()
	fields := make([]*discordgo.MessageEmbedField, 0, len(infos))
	for _, info := range infos {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%s v%s", info.Name, info.Version),
			Value: fmt.Sprintf("%s\nby %s, %d commands", info.Description, info.Author, len(info.Commands)),
		})
	}
	return &discordgo.MessageEmbed{
		Title:  fmt.Sprintf("Plugins (%d loaded)", len(infos)),
		Color:  0x5865F2,
		Fields: fields,
	}
}
