package plugin

import (
	"context"

	"go.uber.org/fx"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cron"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

// Module is the fx module for the plugin system.
var Module = fx.Module("plugin",
	fx.Provide(
		NewCatalog,
		ProvideLoader,
	),
	fx.Invoke(Start),
)

// ProvideLoader builds the loader from configuration.
func ProvideLoader(
	log *logger.Logger,
	cfg *config.Config,
	catalog *Catalog,
	reg *registry.Registry,
	scheduler *cron.Manager,
	store *settings.Store,
	session discord.Session,
) *Loader {
	return NewLoader(log, cfg.Plugins.Dir, catalog, reg,
		WithScheduler(scheduler),
		WithSettings(store),
		WithSession(session),
		WithConfig(cfg),
	)
}

// Start loads all plugins when the application starts, watches the plugins
// directory when auto_reload is set, and unloads everything on stop.
func Start(lc fx.Lifecycle, log *logger.Logger, cfg *config.Config, loader *Loader) error {
	var watcher *Watcher
	if cfg.Plugins.AutoReload {
		w, err := NewWatcher(log, loader)
		if err != nil {
			return err
		}
		watcher = w
	}

	watchCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			loader.LoadAll(ctx)
			if watcher != nil {
				return watcher.Start(watchCtx)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if watcher != nil {
				_ = watcher.Stop()
			}
			loader.UnloadAll(ctx)
			return nil
		},
	})
	return nil
}
