// Package tags answers messages that match per-guild tags and manages the tags.
package tags

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

// Name is the plugin name and the settings owner of tags.
const Name = "tags"

// Plugin is the tags plugin.
type Plugin struct {
	store         *Store
	session       discord.Session
	settings      *settings.Store
	log           *logger.Logger
	defaultPrefix string
}

// New is the catalog factory.
func New(*plugin.Manifest) (plugin.Plugin, error) {
	return &Plugin{}, nil
}

func (p *Plugin) Name() string        { return Name }
func (p *Plugin) Version() string     { return "1.0.0" }
func (p *Plugin) Description() string { return "Per-server auto responses" }
func (p *Plugin) Author() string      { return "guildkeeper" }

func (p *Plugin) Initialize(_ context.Context, pc *plugin.Context) error {
	if pc.Settings == nil {
		return errors.New("tags need a settings store")
	}
	p.store = NewStore(pc.Settings)
	p.settings = pc.Settings
	p.session = pc.Session
	p.log = pc.Log
	p.defaultPrefix = settings.DefaultPrefix
	if pc.Config != nil && pc.Config.Bot.DefaultPrefix != "" {
		p.defaultPrefix = pc.Config.Bot.DefaultPrefix
	}

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "tag",
		Description:       "Add or remove a tag",
		Usage:             "tag add <name> <response...> | tag remove <name>",
		GuildOnly:         true,
		Permissions:       []int64{discordgo.PermissionManageMessages},
		Invoke:            p.manage,
		InvokeInteraction: p.manage,
		Slash: &discordgo.ApplicationCommand{
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add or replace a tag",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Tag name", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "response", Description: "Response text", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "pattern", Description: "Trigger, defaults to the name"},
						{Type: discordgo.ApplicationCommandOptionBoolean, Name: "regex", Description: "Treat the pattern as a regular expression"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a tag",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Tag name", Required: true},
					},
				},
			},
		},
	})

	pc.RegisterCommand(registry.CommandDescriptor{
		Name:              "tags",
		Description:       "List the tags of this server",
		GuildOnly:         true,
		Invoke:            p.list,
		InvokeInteraction: p.list,
	})

	pc.RegisterEvent(registry.EventDescriptor{
		Name:   discord.EventMessageCreate,
		Invoke: p.onMessage,
	})
	return nil
}

func (p *Plugin) manage(ctx context.Context, inv *registry.Invocation) error {
	action, name, pattern, response, regex := parseManage(inv)

	switch action {
	case "add":
		if name == "" || response == "" {
			return p.usage(ctx, inv)
		}
		t, err := p.store.Put(ctx, inv.GuildID, Tag{
			Name:      name,
			Pattern:   pattern,
			Response:  response,
			Regex:     regex,
			CreatedBy: inv.UserID,
		})
		if err != nil {
			return registry.Respond(ctx, inv.Responder, registry.Reply{Content: err.Error(), Ephemeral: true})
		}
		return registry.Respond(ctx, inv.Responder, registry.Reply{
			Content:   fmt.Sprintf("Tag `%s` saved.", t.Name),
			Ephemeral: true,
		})

	case "remove":
		if name == "" {
			return p.usage(ctx, inv)
		}
		if _, ok, err := p.store.Get(ctx, inv.GuildID, name); err != nil {
			return err
		} else if !ok {
			return registry.Respond(ctx, inv.Responder, registry.Reply{Content: fmt.Sprintf("No tag named `%s`.", name), Ephemeral: true})
		}
		return registry.Respond(ctx, inv.Responder, registry.Reply{
			Content:    fmt.Sprintf("Remove tag `%s`?", strings.ToLower(name)),
			Ephemeral:  true,
			Components: confirmRow(inv.UserID, strings.ToLower(name)),
		})

	default:
		return p.usage(ctx, inv)
	}
}

func (p *Plugin) usage(ctx context.Context, inv *registry.Invocation) error {
	return registry.Respond(ctx, inv.Responder, registry.Reply{
		Content:   "Usage: `" + inv.Command.Usage + "`",
		Ephemeral: true,
	})
}

// parseManage reads the add/remove arguments from either invocation form.
func parseManage(inv *registry.Invocation) (action, name, pattern, response string, regex bool) {
	if inv.IsInteraction() {
		return inv.Subcommand(), inv.StringOption("name"), inv.StringOption("pattern"),
			inv.StringOption("response"), inv.BoolOption("regex")
	}
	if len(inv.Args) > 0 {
		action = strings.ToLower(inv.Args[0])
	}
	if len(inv.Args) > 1 {
		name = inv.Args[1]
	}
	if len(inv.Args) > 2 {
		response = strings.Join(inv.Args[2:], " ")
	}
	return action, name, "", response, false
}

func confirmRow(userID, name string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Remove",
				Style:    discordgo.DangerButton,
				CustomID: plugin.CustomID(Name, "remove", userID, name),
			},
			discordgo.Button{
				Label:    "Cancel",
				Style:    discordgo.SecondaryButton,
				CustomID: plugin.CustomID(Name, "cancel", userID, name),
			},
		}},
	}
}

func (p *Plugin) list(ctx context.Context, inv *registry.Invocation) error {
	tags, err := p.store.List(ctx, inv.GuildID)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return registry.Respond(ctx, inv.Responder, registry.Reply{Content: "This server has no tags yet.", Ephemeral: true})
	}

	var b strings.Builder
	for _, t := range tags {
		kind := "text"
		if t.Regex {
			kind = "regex"
		}
		fmt.Fprintf(&b, "`%s` (%s, used %d times)\n", t.Name, kind, t.Uses)
	}
	return registry.Respond(ctx, inv.Responder, registry.Reply{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "Tags",
			Description: b.String(),
			Color:       0x5865F2,
		}},
	})
}

// HandleButton confirms or cancels a tag removal.
func (p *Plugin) HandleButton(ctx context.Context, c *plugin.Component) error {
	requester, name, _ := strings.Cut(c.Data, ":")
	if c.UserID != requester {
		return registry.Respond(ctx, c.Responder, registry.Reply{
			Content:   "Only the member who asked can confirm this.",
			Ephemeral: true,
		})
	}

	switch c.Action {
	case "remove":
		err := p.store.Delete(ctx, c.GuildID, name)
		if errors.Is(err, ErrNotFound) {
			return c.Responder.Update(ctx, registry.Reply{Content: fmt.Sprintf("Tag `%s` was already removed.", name)})
		}
		if err != nil {
			return err
		}
		return c.Responder.Update(ctx, registry.Reply{Content: fmt.Sprintf("Tag `%s` removed.", name)})
	case "cancel":
		return c.Responder.Update(ctx, registry.Reply{Content: "Tag removal canceled."})
	default:
		return fmt.Errorf("unknown tags action %q", c.Action)
	}
}

func (p *Plugin) onMessage(ctx context.Context, ev registry.Event) error {
	mc, ok := ev.Payload.(*discordgo.MessageCreate)
	if !ok || mc.Message == nil || mc.Author == nil || mc.Author.Bot || mc.GuildID == "" {
		return nil
	}

	g, err := p.settings.Guild(ctx, mc.GuildID)
	if err != nil {
		return err
	}
	if strings.HasPrefix(strings.TrimSpace(mc.Content), g.PrefixOr(p.defaultPrefix)) {
		return nil
	}

	t, err := p.store.Match(ctx, mc.GuildID, mc.Content)
	if err != nil || t == nil {
		return err
	}
	if p.session == nil {
		return nil
	}
	if _, err := p.session.ChannelMessageSend(mc.ChannelID, t.Response); err != nil {
		return fmt.Errorf("sending tag %s: %w", t.Name, err)
	}
	if err := p.store.Use(ctx, mc.GuildID, t.Name); err != nil {
		p.log.Warn("Failed to count tag use", zap.String("tag", t.Name), zap.Error(err))
	}
	return nil
}
