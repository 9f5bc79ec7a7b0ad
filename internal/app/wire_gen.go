//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject

package app

import (
	"candlepull/internal/config"
	"context"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	appBuilder := provideAppBuilder(cfg)
	app, err := provideAppFromBuilder(appBuilder, ctx)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func buildAPIWithWire(ctx context.Context, cfg *config.Config) (*APIApp, error) {
	appBuilder := provideAppBuilder(cfg)
	apiApp, err := provideAPIFromBuilder(appBuilder, ctx)
	if err != nil {
		return nil, err
	}
	return apiApp, nil
}
