package discord

import (
	"go.uber.org/fx"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/pipeline"
	"guildkeeper/pkg/registry"
)

// Module provides the Discord session, event source and permission resolver.
// Opening the session is left to the caller, after plugins have registered.
var Module = fx.Module("discord",
	fx.Provide(
		func(cfg *config.Config) (Session, error) {
			client, err := NewClient(cfg.Bot.Token)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		NewEventSource,
		func(src *EventSource) registry.Upstream { return src },
		NewResolver,
		func(r *Resolver) pipeline.PermissionResolver { return r },
	),
)
