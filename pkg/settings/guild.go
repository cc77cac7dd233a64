package settings

import (
	"context"
	"strconv"
	"strings"
)

const (
	// CoreOwner owns the framework-level settings.
	CoreOwner = "core"
	// GuildKey is the key of the per-guild settings document.
	GuildKey = "guild"

	// DefaultPrefix is the text-command prefix when none is configured.
	DefaultPrefix = "!"
	// DefaultWelcomeMessage is used when a guild has not set its own message.
	DefaultWelcomeMessage = "Welcome {user} to {server}!"
)

// GuildSettings is the per-guild settings document.
type GuildSettings struct {
	Prefix          string `json:"prefix,omitempty"`
	WelcomeEnabled  bool   `json:"welcome_enabled"`
	WelcomeChannel  string `json:"welcome_channel,omitempty"`
	WelcomeMessage  string `json:"welcome_message,omitempty"`
	AutoRoleEnabled bool   `json:"auto_role_enabled"`
	AutoRoleID      string `json:"auto_role_id,omitempty"`
}

// PrefixOr returns the guild prefix, or def when unset.
func (g GuildSettings) PrefixOr(def string) string {
	if g.Prefix == "" {
		return def
	}
	return g.Prefix
}

// WelcomeTemplate returns the configured welcome message or the default.
func (g GuildSettings) WelcomeTemplate() string {
	if g.WelcomeMessage == "" {
		return DefaultWelcomeMessage
	}
	return g.WelcomeMessage
}

// RenderWelcome fills {user}, {server} and {count} in the welcome template.
func (g GuildSettings) RenderWelcome(userMention, serverName string, memberCount int) string {
	return strings.NewReplacer(
		"{user}", userMention,
		"{server}", serverName,
		"{count}", strconv.Itoa(memberCount),
	).Replace(g.WelcomeTemplate())
}

// Guild returns the settings of guildID, zero-valued when none are stored.
func (s *Store) Guild(ctx context.Context, guildID string) (GuildSettings, error) {
	var g GuildSettings
	if _, err := Load(ctx, s, CoreOwner, guildID, GuildKey, &g); err != nil {
		return GuildSettings{}, err
	}
	return g, nil
}

// UpdateGuild applies fn to the settings of guildID and stores the result.
func (s *Store) UpdateGuild(ctx context.Context, guildID string, fn func(g *GuildSettings) error) (GuildSettings, error) {
	return Mutate(ctx, s, CoreOwner, guildID, GuildKey, fn)
}
