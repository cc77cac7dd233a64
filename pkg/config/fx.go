package config

import (
	"go.uber.org/fx"

	"guildkeeper/pkg/logger"
)

// Path is the --config flag value handed to the fx graph.
type Path string

// Module provides configuration for fx dependency injection.
var Module = fx.Module("config",
	fx.Provide(NewLoader),
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLoggerConfig),
)

// ProvideConfig loads and validates the configuration.
func ProvideConfig(loader *Loader, path Path) (*Config, error) {
	cfg, err := loader.Load(string(path))
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProvideLoggerConfig feeds logger.Module.
func ProvideLoggerConfig(cfg *Config) *logger.Config {
	return cfg.Logger.ToLoggerConfig()
}
