// Package admin lets server managers configure the prefix, welcome message and
// auto-role of their guild.
package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"

	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

// Name is the plugin name.
const Name = "admin"

const maxPrefixLen = 5

var snowflake = regexp.MustCompile(`^(?:<[#@]&?)?(\d{15,21})>?$`)

// Plugin is the admin plugin.
type Plugin struct {
	settings      *settings.Store
	defaultPrefix string
}

// New is the catalog factory.
func New(*plugin.Manifest) (plugin.Plugin, error) {
	return &Plugin{}, nil
}

func (p *Plugin) Name() string        { return Name }
func (p *Plugin) Version() string     { return "1.0.0" }
func (p *Plugin) Description() string { return "Server configuration commands" }
func (p *Plugin) Author() string      { return "guildkeeper" }

func (p *Plugin) Initialize(_ context.Context, pc *plugin.Context) error {
	if pc.Settings == nil {
		return errors.New("admin needs a settings store")
	}
	p.settings = pc.Settings
	p.defaultPrefix = settings.DefaultPrefix
	if pc.Config != nil && pc.Config.Bot.DefaultPrefix != "" {
		p.defaultPrefix = pc.Config.Bot.DefaultPrefix
	}

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "prefix",
		Description:       "Show or change the text command prefix",
		Usage:             "prefix [new prefix | reset]",
		GuildOnly:         true,
		Permissions:       []int64{discordgo.PermissionManageGuild},
		Invoke:            p.prefix,
		InvokeInteraction: p.prefix,
		Slash: &discordgo.ApplicationCommand{
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prefix",
				Description: "New prefix, or \"reset\"",
				MaxLength:   maxPrefixLen,
			}},
		},
	})

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "welcome",
		Description:       "Configure the welcome message",
		Usage:             "welcome [on | off | channel <#channel> | message <text>]",
		GuildOnly:         true,
		Permissions:       []int64{discordgo.PermissionManageGuild},
		Invoke:            p.welcome,
		InvokeInteraction: p.welcome,
	})

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "autorole",
		Description:       "Give new members a role automatically",
		Usage:             "autorole [<@role> | off]",
		GuildOnly:         true,
		Permissions:       []int64{discordgo.PermissionManageRoles},
		Invoke:            p.autorole,
		InvokeInteraction: p.autorole,
		Slash: &discordgo.ApplicationCommand{
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to assign"},
				{Type: discordgo.ApplicationCommandOptionBoolean, Name: "off", Description: "Turn auto-role off"},
			},
		},
	})
	return nil
}

func reply(ctx context.Context, inv *registry.Invocation, format string, args ...interface{}) error {
	return registry.Respond(ctx, inv.Responder, registry.Reply{
		Content:   fmt.Sprintf(format, args...),
		Ephemeral: true,
	})
}

func (p *Plugin) prefix(ctx context.Context, inv *registry.Invocation) error {
	value := inv.StringOption("prefix")
	if !inv.IsInteraction() && len(inv.Args) > 0 {
		value = inv.Args[0]
	}

	if value == "" {
		g, err := p.settings.Guild(ctx, inv.GuildID)
		if err != nil {
			return err
		}
		return reply(ctx, inv, "The prefix is `%s`.", g.PrefixOr(p.defaultPrefix))
	}

	if strings.EqualFold(value, "reset") {
		value = ""
	} else if len(value) > maxPrefixLen || strings.ContainsAny(value, " \t\n`") {
		return reply(ctx, inv, "A prefix is at most %d characters without spaces or backticks.", maxPrefixLen)
	}

	g, err := p.settings.UpdateGuild(ctx, inv.GuildID, func(g *settings.GuildSettings) error {
		g.Prefix = value
		return nil
	})
	if err != nil {
		return err
	}
	return reply(ctx, inv, "The prefix is now `%s`.", g.PrefixOr(p.defaultPrefix))
}

func (p *Plugin) welcome(ctx context.Context, inv *registry.Invocation) error {
	if inv.IsInteraction() {
		if m, ok := inv.Responder.(registry.ModalResponder); ok {
			g, err := p.settings.Guild(ctx, inv.GuildID)
			if err != nil {
				return err
			}
			return m.Modal(plugin.CustomID(Name, "welcome"), "Welcome message", welcomeForm(g)...)
		}
	}

	if len(inv.Args) == 0 {
		g, err := p.settings.Guild(ctx, inv.GuildID)
		if err != nil {
			return err
		}
		state := "off"
		if g.WelcomeEnabled {
			state = "on"
		}
		channel := "not set"
		if g.WelcomeChannel != "" {
			channel = "<#" + g.WelcomeChannel + ">"
		}
		return reply(ctx, inv, "Welcome messages are %s.\nChannel: %s\nMessage: %s", state, channel, g.WelcomeTemplate())
	}

	var update func(g *settings.GuildSettings) error
	var done string
	switch strings.ToLower(inv.Args[0]) {
	case "on", "off":
		enabled := strings.EqualFold(inv.Args[0], "on")
		update = func(g *settings.GuildSettings) error {
			if enabled && g.WelcomeChannel == "" {
				return errors.New("set a channel first")
			}
			g.WelcomeEnabled = enabled
			return nil
		}
		done = "Welcome messages turned " + strings.ToLower(inv.Args[0]) + "."
	case "channel":
		if len(inv.Args) < 2 {
			return reply(ctx, inv, "Usage: `%s`", inv.Command.Usage)
		}
		id, ok := ParseID(inv.Args[1])
		if !ok {
			return reply(ctx, inv, "`%s` is not a channel.", inv.Args[1])
		}
		update = func(g *settings.GuildSettings) error {
			g.WelcomeChannel = id
			return nil
		}
		done = "Welcome channel set to <#" + id + ">."
	case "message":
		if len(inv.Args) < 2 {
			return reply(ctx, inv, "Usage: `%s`", inv.Command.Usage)
		}
		message := strings.Join(inv.Args[1:], " ")
		update = func(g *settings.GuildSettings) error {
			g.WelcomeMessage = message
			return nil
		}
		done = "Welcome message updated."
	default:
		return reply(ctx, inv, "Usage: `%s`", inv.Command.Usage)
	}

	if _, err := p.settings.UpdateGuild(ctx, inv.GuildID, update); err != nil {
		return reply(ctx, inv, "Could not update: %v", err)
	}
	return reply(ctx, inv, "%s", done)
}

func welcomeForm(g settings.GuildSettings) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:  "channel",
				Label:     "Channel ID",
				Style:     discordgo.TextInputShort,
				Value:     g.WelcomeChannel,
				Required:  true,
				MaxLength: 30,
			},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    "message",
				Label:       "Message ({user}, {server}, {count})",
				Style:       discordgo.TextInputParagraph,
				Value:       g.WelcomeMessage,
				Placeholder: settings.DefaultWelcomeMessage,
				MaxLength:   1000,
			},
		}},
	}
}

// HandleModalSubmit stores the welcome form and turns welcome messages on.
func (p *Plugin) HandleModalSubmit(ctx context.Context, c *plugin.Component) error {
	if c.Action != "welcome" {
		return fmt.Errorf("unknown admin form %q", c.Action)
	}
	if c.GuildID == "" {
		return errors.New("welcome form submitted outside a guild")
	}

	channel, ok := ParseID(c.Fields["channel"])
	if !ok {
		return registry.Respond(ctx, c.Responder, registry.Reply{
			Content:   fmt.Sprintf("`%s` is not a channel ID.", c.Fields["channel"]),
			Ephemeral: true,
		})
	}

	if _, err := p.settings.UpdateGuild(ctx, c.GuildID, func(g *settings.GuildSettings) error {
		g.WelcomeEnabled = true
		g.WelcomeChannel = channel
		g.WelcomeMessage = strings.TrimSpace(c.Fields["message"])
		return nil
	}); err != nil {
		return err
	}
	return registry.Respond(ctx, c.Responder, registry.Reply{
		Content:   "Welcome messages will be posted in <#" + channel + ">.",
		Ephemeral: true,
	})
}

func (p *Plugin) autorole(ctx context.Context, inv *registry.Invocation) error {
	var arg string
	if inv.IsInteraction() {
		if inv.BoolOption("off") {
			arg = "off"
		} else if opt, ok := inv.Option("role"); ok {
			arg, _ = opt.Value.(string)
		}
	} else if len(inv.Args) > 0 {
		arg = inv.Args[0]
	}

	if arg == "" {
		g, err := p.settings.Guild(ctx, inv.GuildID)
		if err != nil {
			return err
		}
		if !g.AutoRoleEnabled || g.AutoRoleID == "" {
			return reply(ctx, inv, "Auto-role is off.")
		}
		return reply(ctx, inv, "New members get <@&%s>.", g.AutoRoleID)
	}

	if strings.EqualFold(arg, "off") {
		if _, err := p.settings.UpdateGuild(ctx, inv.GuildID, func(g *settings.GuildSettings) error {
			g.AutoRoleEnabled = false
			return nil
		}); err != nil {
			return err
		}
		return reply(ctx, inv, "Auto-role turned off.")
	}

	role, ok := ParseID(arg)
	if !ok {
		return reply(ctx, inv, "`%s` is not a role.", arg)
	}
	if _, err := p.settings.UpdateGuild(ctx, inv.GuildID, func(g *settings.GuildSettings) error {
		g.AutoRoleEnabled = true
		g.AutoRoleID = role
		return nil
	}); err != nil {
		return err
	}
	return reply(ctx, inv, "New members now get <@&%s>.", role)
}

// ParseID extracts a snowflake from a raw ID or a channel, user or role mention.
func ParseID(s string) (string, bool) {
	m := snowflake.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1], true
}
