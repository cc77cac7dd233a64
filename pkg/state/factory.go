package state

import (
	"fmt"
	"strings"
	"time"

	"guildkeeper/pkg/logger"
)

// NewKV opens the backend named by cfg.Backend. An empty backend means file.
func NewKV(log *logger.Logger, cfg *Config) (KV, error) {
	backend := BackendType(strings.ToLower(strings.TrimSpace(string(cfg.Backend))))

	switch backend {
	case BackendFile, "":
		if strings.TrimSpace(cfg.FilePath) == "" {
			return nil, fmt.Errorf("file backend requires a path")
		}
		return NewFileStore(log, &FileStoreConfig{
			FilePath:     cfg.FilePath,
			AutoSave:     cfg.AutoSave,
			SaveInterval: time.Duration(cfg.SaveIntervalS) * time.Second,
		})

	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required")
		}
		return NewRedisStore(log, &RedisStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})

	case BackendMemory:
		log.Warn("Using in-memory state, guild settings will not survive a restart")
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
