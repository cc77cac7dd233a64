package settings

import (
	"go.uber.org/fx"
)

// Module provides the settings store.
var Module = fx.Module("settings",
	fx.Provide(New),
)
