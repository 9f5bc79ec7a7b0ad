//go:build wireinject

package app

import (
	"context"

	"candlepull/internal/config"

	"github.com/google/wire"
)

var builderSet = wire.NewSet(
	provideAppBuilder,
	wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(builderSet, provideAppFromBuilder)
	return nil, nil
}

func buildAPIWithWire(ctx context.Context, cfg *config.Config) (*APIApp, error) {
	wire.Build(builderSet, provideAPIFromBuilder)
	return nil, nil
}
