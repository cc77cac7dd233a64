package pipeline

import (
	"time"

	"go.uber.org/fx"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cooldown"
	"guildkeeper/pkg/logger"
)

// Module provides the cooldown tracker and the executor.
var Module = fx.Module("pipeline",
	fx.Provide(
		func() *cooldown.Tracker { return cooldown.NewTracker() },
		func(log *logger.Logger, cooldowns *cooldown.Tracker, cfg *config.Config, resolver PermissionResolver) *Executor {
			return NewExecutor(log.Component("pipeline"), cooldowns, cfg.IsOwner, resolver,
				WithDefaultCooldown(time.Duration(cfg.Cooldown.DefaultSeconds)*time.Second))
		},
	),
)
