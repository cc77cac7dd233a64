package state

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/logger"
)

// Module is the fx module for state storage.
var Module = fx.Module("state",
	fx.Provide(NewKVStore),
)

// NewKVStore creates the KV store for fx and closes it on stop.
func NewKVStore(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config) (KV, error) {
	stateConfig := &Config{
		Backend:       BackendType(cfg.State.Backend),
		FilePath:      cfg.State.FilePath,
		AutoSave:      cfg.State.AutoSave,
		SaveIntervalS: cfg.State.SaveIntervalS,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   cfg.State.Prefix,
	}

	store, err := NewKV(log.Component("state"), stateConfig)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("State store initialized", zap.String("backend", string(stateConfig.Backend)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}
