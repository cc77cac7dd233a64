package dashboard

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/logger"
)

// Module serves the dashboard when dashboard.enabled is set.
var Module = fx.Module("dashboard",
	fx.Provide(NewServer),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Server, cfg *config.Config, log *logger.Logger) {
	if !cfg.Dashboard.Enabled {
		log.Debug("Dashboard disabled")
		return
	}

	if cfg.Dashboard.AdminPasswordHash == "" && !s.oauthEnabled() {
		log.Warn("Dashboard has no login method, run 'guildkeeper reset-password' or configure Discord OAuth")
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("Starting dashboard",
				zap.String("addr", s.addr),
				zap.Bool("discord_login", s.oauthEnabled()))
			return s.Start()
		},
		OnStop: func(context.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Stop(ctx)
		},
	})
}
