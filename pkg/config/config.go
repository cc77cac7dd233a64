// Package config provides configuration management for guildkeeper.
// It uses Viper for the config file and environment overrides, and reads
// the Discord secrets from the process environment (optionally a .env file).
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Config represents the complete guildkeeper configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot" json:"bot"`
	Plugins   PluginsConfig   `mapstructure:"plugins" json:"plugins"`
	Cooldown  CooldownConfig  `mapstructure:"cooldown" json:"cooldown"`
	Logger    LoggerConfig    `mapstructure:"logger" json:"logger"`
	State     StateConfig     `mapstructure:"state" json:"state"`
	Redis     RedisConfig     `mapstructure:"redis" json:"redis"`
	Dashboard DashboardConfig `mapstructure:"dashboard" json:"dashboard"`
	mu        sync.RWMutex
}

// BotConfig holds the Discord connection settings.
type BotConfig struct {
	// Token is never written back to disk; it comes from DISCORD_TOKEN.
	Token         string   `mapstructure:"token" json:"-"`
	ClientID      string   `mapstructure:"client_id" json:"client_id"`
	DevGuildID    string   `mapstructure:"dev_guild_id" json:"dev_guild_id"`
	DevMode       bool     `mapstructure:"dev_mode" json:"dev_mode"`
	OwnerIDs      []string `mapstructure:"owner_ids" json:"owner_ids"`
	DefaultPrefix string   `mapstructure:"default_prefix" json:"default_prefix"`
	Presence      string   `mapstructure:"presence" json:"presence"`
}

// PluginsConfig controls plugin discovery.
type PluginsConfig struct {
	Dir        string   `mapstructure:"dir" json:"dir"`
	AutoReload bool     `mapstructure:"auto_reload" json:"auto_reload"`
	Disabled   []string `mapstructure:"disabled" json:"disabled"`
}

// CooldownConfig controls the cooldown tracker.
type CooldownConfig struct {
	DefaultSeconds int    `mapstructure:"default_seconds" json:"default_seconds"`
	SweepSchedule  string `mapstructure:"sweep_schedule" json:"sweep_schedule"`
}

// LoggerConfig mirrors logger.Config in file form.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	OutputPath  string `mapstructure:"output_path" json:"output_path"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress"`
	Development bool   `mapstructure:"development" json:"development"`
}

// StateConfig selects the persistence backend.
type StateConfig struct {
	Backend       string `mapstructure:"backend" json:"backend"` // file, redis or memory
	FilePath      string `mapstructure:"file_path" json:"file_path"`
	Prefix        string `mapstructure:"prefix" json:"prefix"`
	AutoSave      bool   `mapstructure:"auto_save" json:"auto_save"`
	SaveIntervalS int    `mapstructure:"save_interval_s" json:"save_interval_s"`
}

// RedisConfig is shared by every Redis-backed component.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
}

// DashboardConfig configures the administration API.
type DashboardConfig struct {
	Enabled           bool            `mapstructure:"enabled" json:"enabled"`
	Host              string          `mapstructure:"host" json:"host"`
	Port              int             `mapstructure:"port" json:"port"`
	PublicURL         string          `mapstructure:"public_url" json:"public_url"`
	JWTSecret         string          `mapstructure:"jwt_secret" json:"jwt_secret"`
	TokenTTLHours     int             `mapstructure:"token_ttl_hours" json:"token_ttl_hours"`
	AdminUsername     string          `mapstructure:"admin_username" json:"admin_username"`
	AdminPasswordHash string          `mapstructure:"admin_password_hash" json:"admin_password_hash"`
	AllowedUserIDs    []string        `mapstructure:"allowed_user_ids" json:"allowed_user_ids"`
	CORSOrigins       []string        `mapstructure:"cors_origins" json:"cors_origins"`
	OAuth             OAuthConfig     `mapstructure:"oauth" json:"oauth"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
}

// OAuthConfig holds the Discord OAuth2 application settings.
type OAuthConfig struct {
	ClientSecret string `mapstructure:"client_secret" json:"-"`
	RedirectURL  string `mapstructure:"redirect_url" json:"redirect_url"`
}

// RateLimitConfig is a per-IP token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`
	Burst             int     `mapstructure:"burst" json:"burst"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home := defaultHome()

	return &Config{
		Bot: BotConfig{
			OwnerIDs:      []string{},
			DefaultPrefix: "!",
			Presence:      "/help",
		},
		Plugins: PluginsConfig{
			Dir:        filepath.Join(home, "plugins"),
			AutoReload: true,
			Disabled:   []string{},
		},
		Cooldown: CooldownConfig{
			DefaultSeconds: 3,
			SweepSchedule:  "@every 1m",
		},
		Logger: LoggerConfig{
			Level:      "info",
			OutputPath: filepath.Join(home, "logs", "guildkeeper.log"),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		State: StateConfig{
			Backend:       "file",
			FilePath:      filepath.Join(home, "state.json"),
			Prefix:        "guildkeeper:",
			AutoSave:      true,
			SaveIntervalS: 5,
		},
		Dashboard: DashboardConfig{
			Enabled:        false,
			Host:           "127.0.0.1",
			Port:           8420,
			TokenTTLHours:  24,
			AdminUsername:  "admin",
			AllowedUserIDs: []string{},
			CORSOrigins:    []string{"*"},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
	}
}

// IsOwner reports whether userID is in the bot owner allow-list.
func (c *Config) IsOwner(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return userID != "" && slices.Contains(c.Bot.OwnerIDs, userID)
}

// CanUseDashboard reports whether a Discord user may log into the dashboard.
func (c *Config) CanUseDashboard(userID string) bool {
	if c.IsOwner(userID) {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return userID != "" && slices.Contains(c.Dashboard.AllowedUserIDs, userID)
}

// PluginDisabled reports whether a plugin folder is listed in plugins.disabled.
func (c *Config) PluginDisabled(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.Plugins.Disabled {
		if strings.EqualFold(strings.TrimSpace(d), name) {
			return true
		}
	}
	return false
}

// CommandScope returns the guild that slash commands are deployed to.
// Empty means global deployment.
func (c *Config) CommandScope() string {
	if c.Bot.DevMode {
		return strings.TrimSpace(c.Bot.DevGuildID)
	}
	return ""
}

func defaultHome() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".guildkeeper"
	}
	return filepath.Join(homeDir, ".guildkeeper")
}
