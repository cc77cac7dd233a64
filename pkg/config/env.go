package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env is the set of values read once from the process environment at startup.
type Env struct {
	Token        string   `env:"DISCORD_TOKEN"`
	ClientID     string   `env:"DISCORD_CLIENT_ID"`
	ClientSecret string   `env:"DISCORD_CLIENT_SECRET"`
	DevGuildID   string   `env:"DISCORD_DEV_GUILD_ID"`
	OwnerIDs     []string `env:"BOT_OWNER_IDS" envSeparator:","`
	LogLevel     string   `env:"LOG_LEVEL"`
}

// LoadEnv loads .env (if present) into the process environment and parses Env.
func LoadEnv() (*Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &e, nil
}

// Apply overlays non-empty environment values on cfg.
func (e *Env) Apply(cfg *Config) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	if v := strings.TrimSpace(e.Token); v != "" {
		cfg.Bot.Token = v
	}
	if v := strings.TrimSpace(e.ClientID); v != "" {
		cfg.Bot.ClientID = v
	}
	if v := strings.TrimSpace(e.ClientSecret); v != "" {
		cfg.Dashboard.OAuth.ClientSecret = v
	}
	if v := strings.TrimSpace(e.DevGuildID); v != "" {
		cfg.Bot.DevGuildID = v
	}
	if v := strings.TrimSpace(e.LogLevel); v != "" {
		cfg.Logger.Level = v
	}

	for _, id := range e.OwnerIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		found := false
		for _, existing := range cfg.Bot.OwnerIDs {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			cfg.Bot.OwnerIDs = append(cfg.Bot.OwnerIDs, id)
		}
	}
}
