package app

import (
	"context"

	"candlepull/internal/config"
)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
	BuildAPI(context.Context) (*APIApp, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAPIFromBuilder(b appBuilderDeps, ctx context.Context) (*APIApp, error) {
	return b.BuildAPI(ctx)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}
