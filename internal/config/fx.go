package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(provideEntityTypeConfigHolder),
)

func provideEntityTypeConfigHolder(cfg Config) (*EntityTypeConfigHolder, error) {
	return NewEntityTypeConfigHolder(cfg.EntityTypesConfigPath)
}
