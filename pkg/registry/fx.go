package registry

import (
	"go.uber.org/fx"

	"guildkeeper/pkg/logger"
)

// Module provides the registry. An Upstream must be supplied by the Discord module.
var Module = fx.Module("registry",
	fx.Provide(func(log *logger.Logger, upstream Upstream) *Registry {
		return NewRegistry(log.Component("registry"), upstream)
	}),
)
