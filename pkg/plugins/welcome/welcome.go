// Package welcome greets new members and assigns the configured auto-role.
package welcome

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

// Name is the plugin name.
const Name = "welcome"

// Plugin is the welcome plugin.
type Plugin struct {
	settings *settings.Store
	session  discord.Session
	log      *logger.Logger
}

// New is the catalog factory.
func New(*plugin.Manifest) (plugin.Plugin, error) {
	return &Plugin{}, nil
}

func (p *Plugin) Name() string        { return Name }
func (p *Plugin) Version() string     { return "1.0.0" }
func (p *Plugin) Description() string { return "Welcome messages and auto-roles for new members" }
func (p *Plugin) Author() string      { return "guildkeeper" }

func (p *Plugin) Initialize(_ context.Context, pc *plugin.Context) error {
	if pc.Settings == nil || pc.Session == nil {
		return errors.New("welcome needs a settings store and a session")
	}
	p.settings = pc.Settings
	p.session = pc.Session
	p.log = pc.Log

	pc.RegisterEvent(registry.EventDescriptor{
		Name:   discord.EventGuildMemberAdd,
		Invoke: p.onMemberAdd,
	})
	return nil
}

func (p *Plugin) onMemberAdd(ctx context.Context, ev registry.Event) error {
	add, ok := ev.Payload.(*discordgo.GuildMemberAdd)
	if !ok || add.Member == nil || add.User == nil {
		return nil
	}

	g, err := p.settings.Guild(ctx, add.GuildID)
	if err != nil {
		return err
	}

	var errs []error
	if g.WelcomeEnabled && g.WelcomeChannel != "" {
		serverName, count := p.guildInfo(add.GuildID)
		content := g.RenderWelcome(add.User.Mention(), serverName, count)
		if _, err := p.session.ChannelMessageSend(g.WelcomeChannel, content); err != nil {
			errs = append(errs, fmt.Errorf("sending welcome message: %w", err))
		}
	}

	if g.AutoRoleEnabled && g.AutoRoleID != "" && !add.User.Bot {
		if err := p.session.GuildMemberRoleAdd(add.GuildID, add.User.ID, g.AutoRoleID); err != nil {
			errs = append(errs, fmt.Errorf("adding auto-role: %w", err))
		} else {
			p.log.Debug("Assigned auto-role",
				zap.String("guild", add.GuildID),
				zap.String("user", add.User.ID),
				zap.String("role", g.AutoRoleID))
		}
	}
	return errors.Join(errs...)
}

func (p *Plugin) guildInfo(guildID string) (string, int) {
	g, err := p.session.CachedGuild(guildID)
	if err != nil || g == nil {
		return "the server", 0
	}
	return g.Name, g.MemberCount
}
