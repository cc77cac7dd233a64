package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"guildkeeper/pkg/logger"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validator validates configuration.
type Validator struct {
	errors       ValidationErrors
	requireToken bool
}

// NewValidator creates a validator. When requireToken is set a missing bot
// token is an error; commands that never talk to Discord skip that check.
func NewValidator(requireToken bool) *Validator {
	return &Validator{requireToken: requireToken}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateBot(&cfg.Bot)
	v.validatePlugins(&cfg.Plugins)
	v.validateCooldown(&cfg.Cooldown)
	v.validateLogger(&cfg.Logger)
	v.validateState(&cfg.State, &cfg.Redis)
	v.validateDashboard(&cfg.Dashboard)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateBot(cfg *BotConfig) {
	if v.requireToken && strings.TrimSpace(cfg.Token) == "" {
		v.addError("bot.token", "DISCORD_TOKEN is not set")
	}
	if cfg.DevMode && strings.TrimSpace(cfg.DevGuildID) == "" {
		v.addError("bot.dev_guild_id", "dev_mode requires a development guild id")
	}
	if strings.TrimSpace(cfg.DefaultPrefix) == "" {
		v.addError("bot.default_prefix", "prefix cannot be empty")
	}
}

func (v *Validator) validatePlugins(cfg *PluginsConfig) {
	if strings.TrimSpace(cfg.Dir) == "" {
		v.addError("plugins.dir", "plugins directory is required")
	}
}

func (v *Validator) validateCooldown(cfg *CooldownConfig) {
	if cfg.DefaultSeconds < 0 {
		v.addError("cooldown.default_seconds", "must be non-negative")
	}
	if cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
			v.addError("cooldown.sweep_schedule", fmt.Sprintf("invalid schedule: %v", err))
		}
	}
}

func (v *Validator) validateLogger(cfg *LoggerConfig) {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		v.addError("logger.level", err.Error())
	}
}

func (v *Validator) validateState(cfg *StateConfig, redis *RedisConfig) {
	switch cfg.Backend {
	case "", "file":
		if strings.TrimSpace(cfg.FilePath) == "" {
			v.addError("state.file_path", "file backend requires a path")
		}
	case "redis":
		if strings.TrimSpace(redis.Addr) == "" {
			v.addError("redis.addr", "redis backend requires an address")
		}
	case "memory":
	default:
		v.addError("state.backend", "must be one of: file, redis, memory")
	}
}

func (v *Validator) validateDashboard(cfg *DashboardConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("dashboard.port", "port must be between 1 and 65535")
	}
	if len(strings.TrimSpace(cfg.JWTSecret)) < 16 {
		v.addError("dashboard.jwt_secret", "secret must be at least 16 characters")
	}
	if cfg.OAuth.ClientSecret != "" && strings.TrimSpace(cfg.OAuth.RedirectURL) == "" {
		v.addError("dashboard.oauth.redirect_url", "redirect url is required when oauth is configured")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		v.addError("dashboard.rate_limit", "rate limit values must be non-negative")
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// ValidateConfig validates cfg for a process that connects to Discord.
func ValidateConfig(cfg *Config) error {
	return NewValidator(true).Validate(cfg)
}
