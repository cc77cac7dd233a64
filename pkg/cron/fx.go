package cron

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cooldown"
	"guildkeeper/pkg/logger"
)

// CoreOwner owns the framework's own jobs.
const CoreOwner = "core"

// Module is the fx module for cron.
var Module = fx.Module("cron",
	fx.Provide(NewManager),
	fx.Invoke(RegisterCooldownSweep),
)

// NewManager creates a new cron manager for fx.
func NewManager(lc fx.Lifecycle, log *logger.Logger) *Manager {
	manager := New(log.Component("cron"))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return manager.Start()
		},
		OnStop: func(ctx context.Context) error {
			return manager.Stop()
		},
	})

	return manager
}

// RegisterCooldownSweep schedules the periodic eviction of expired cooldowns.
func RegisterCooldownSweep(m *Manager, cfg *config.Config, tracker *cooldown.Tracker, log *logger.Logger) error {
	schedule := cfg.Cooldown.SweepSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	_, err := m.AddJob(CoreOwner, "cooldown-sweep", schedule, func(ctx context.Context) error {
		if removed := tracker.Sweep(); removed > 0 {
			log.Debug("Swept expired cooldowns", zap.Int("removed", removed))
		}
		return nil
	})
	return err
}
