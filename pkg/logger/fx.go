package logger

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the process logger. It expects a *Config in the container.
var Module = fx.Module("logger",
	fx.Provide(ProvideLogger),
)

// ProvideLogger builds the logger from cfg and flushes it on stop.
func ProvideLogger(cfg *Config, lc fx.Lifecycle) (*Logger, error) {
	log, err := New(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Logger initialized",
				zap.String("level", string(cfg.Level)),
				zap.String("output", cfg.OutputPath),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down logger")
			// Sync on stdout returns EINVAL on some platforms; nothing useful to do with it.
			_ = log.Sync()
			return nil
		},
	})

	return log, nil
}
