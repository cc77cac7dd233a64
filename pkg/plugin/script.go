package plugin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/permissions"
	"guildkeeper/pkg/registry"
)

// scriptPlugin serves the text-reply commands declared in its manifest.
type scriptPlugin struct {
	manifest *Manifest
	session  discord.Session
}

// NewScriptPlugin is the factory for manifests with "factory: script".
func NewScriptPlugin(m *Manifest) (Plugin, error) {
	if m.Name == "" {
		return nil, fmt.Errorf("script plugins must declare a name")
	}
	return &scriptPlugin{manifest: m}, nil
}

func (p *scriptPlugin) Name() string        { return p.manifest.Name }
func (p *scriptPlugin) Version() string     { return p.manifest.Version }
func (p *scriptPlugin) Description() string { return p.manifest.Description }
func (p *scriptPlugin) Author() string      { return p.manifest.Author }

func (p *scriptPlugin) Initialize(_ context.Context, pc *Context) error {
	p.session = pc.Session

	for _, sc := range p.manifest.Commands {
		perms, err := permissions.ParseAll(sc.Permissions)
		if err != nil {
			return fmt.Errorf("command %s: %w", sc.Name, err)
		}

		desc := registry.CommandDescriptor{
			Name:        sc.Name,
			Aliases:     sc.Aliases,
			Description: sc.Description,
			Cooldown:    time.Duration(sc.Cooldown * float64(time.Second)),
			GuildOnly:   sc.GuildOnly,
			OwnerOnly:   sc.OwnerOnly,
			Permissions: perms,
			Invoke:      p.reply(sc),
		}
		if sc.Slash {
			desc.InvokeInteraction = desc.Invoke
		}
		if !pc.RegisterCommand(desc) {
			pc.Log.Warn("Script command not registered", zap.String("command", sc.Name))
		}
	}
	return nil
}

func (p *scriptPlugin) reply(sc ScriptCommand) registry.Handler {
	return func(ctx context.Context, inv *registry.Invocation) error {
		return registry.Respond(ctx, inv.Responder, registry.Reply{
			Content:   p.render(sc.Response, inv),
			Ephemeral: sc.Ephemeral,
		})
	}
}

// render expands {user}, {username}, {server}, {channel} and {args}.
func (p *scriptPlugin) render(tmpl string, inv *registry.Invocation) string {
	server := "this server"
	if inv.GuildID != "" && p.session != nil {
		if g, err := p.session.CachedGuild(inv.GuildID); err == nil && g != nil && g.Name != "" {
			server = g.Name
		}
	}
	channel := ""
	if inv.ChannelID != "" {
		channel = "<#" + inv.ChannelID + ">"
	}

	return strings.NewReplacer(
		"{user}", "<@"+inv.UserID+">",
		"{username}", inv.Username,
		"{server}", server,
		"{channel}", channel,
		"{args}", strings.Join(inv.Args, " "),
	).Replace(tmpl)
}
