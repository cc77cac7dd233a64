package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigPathEnv overrides the config file location when no path is given.
const ConfigPathEnv = "GUILDKEEPER_CONFIG_FILE"

// Loader handles configuration loading with Viper.
type Loader struct {
	viper *viper.Viper
	env   func() (*Env, error)
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(defaultHome())
	v.AddConfigPath(".")

	v.SetEnvPrefix("GUILDKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{viper: v, env: LoadEnv}
}

// Load reads the config file, then overlays the process environment.
// A missing file is created with defaults.
func (l *Loader) Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(configPath) == "" {
		configPath = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	resolved, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	l.viper.SetConfigFile(resolved)

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := l.Save(resolved, cfg); err != nil {
			return nil, fmt.Errorf("creating config file: %w", err)
		}
	} else if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	env, err := l.env()
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)

	return cfg, nil
}

// Save writes cfg to path as JSON. Secrets tagged json:"-" are not written.
func (l *Loader) Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("bot", map[string]interface{}{
		"client_id":      cfg.Bot.ClientID,
		"dev_guild_id":   cfg.Bot.DevGuildID,
		"dev_mode":       cfg.Bot.DevMode,
		"owner_ids":      cfg.Bot.OwnerIDs,
		"default_prefix": cfg.Bot.DefaultPrefix,
		"presence":       cfg.Bot.Presence,
	})
	v.Set("plugins", cfg.Plugins)
	v.Set("cooldown", cfg.Cooldown)
	v.Set("logger", cfg.Logger)
	v.Set("state", cfg.State)
	v.Set("redis", cfg.Redis)
	v.Set("dashboard", cfg.Dashboard)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ConfigFileUsed returns the path of the loaded config file.
func (l *Loader) ConfigFileUsed() string {
	return l.viper.ConfigFileUsed()
}

func resolveConfigPath(configPath string) (string, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = filepath.Join(defaultHome(), "config.json")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return abs, nil
}
