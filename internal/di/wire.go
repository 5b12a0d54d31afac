//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/karingamassive/membership-service/internal/app"
	"github.com/karingamassive/membership-service/internal/config"
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	wire.Build(
		ConfigSet,
		ObservabilitySet,
		InfraSet,
		SecuritySet,
		RateLimitSet,
		ServiceSet,
		HTTPSet,
		provideApp,
	)
	return nil, nil
}

func InitializeAdminTools(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AdminTools, error) {
	wire.Build(
		InfraSet,
		SecuritySet,
		provideLoginGuard,
		ServiceSet,
		provideAdminTools,
	)
	return nil, nil
}
