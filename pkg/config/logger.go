package config

import (
	"strings"

	"guildkeeper/pkg/logger"
)

// ToLoggerConfig converts LoggerConfig to logger.Config.
func (lc *LoggerConfig) ToLoggerConfig() *logger.Config {
	level := logger.Level(strings.ToLower(strings.TrimSpace(lc.Level)))
	if _, err := logger.ParseLevel(string(level)); err != nil || level == "" {
		level = logger.LevelInfo
	}

	return &logger.Config{
		Level:            level,
		OutputPath:       lc.OutputPath,
		MaxSize:          lc.MaxSize,
		MaxBackups:       lc.MaxBackups,
		MaxAge:           lc.MaxAge,
		Compress:         lc.Compress,
		Development:      lc.Development,
		EnableStacktrace: true,
	}
}
