package config

import "go.uber.org/fx"

// Module provides the loaded configuration to the application graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
