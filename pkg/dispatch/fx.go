package dispatch

import (
	"go.uber.org/fx"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/discord"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/pipeline"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/registry"
	"guildkeeper/pkg/settings"
)

// Module provides the dispatcher and subscribes it to interactions and messages.
var Module = fx.Module("dispatch",
	fx.Provide(ProvideDispatcher),
	fx.Invoke(func(d *Dispatcher) error { return d.Register() }),
)

// ProvideDispatcher builds the dispatcher for fx.
func ProvideDispatcher(
	log *logger.Logger,
	reg *registry.Registry,
	executor *pipeline.Executor,
	loader *plugin.Loader,
	session discord.Session,
	store *settings.Store,
	cfg *config.Config,
) *Dispatcher {
	return New(log, reg, executor, loader, session, store, cfg.Bot.DefaultPrefix)
}
