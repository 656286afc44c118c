//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"kwatch/internal"
	"kwatch/internal/controllers"
	"kwatch/internal/monitoring"
	"kwatch/internal/providers"
	"kwatch/internal/services"
	"kwatch/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewMetricsProvider,
		providers.NewInstrumentedCacheProvider,

		provideStore,
		provideSenders,
		provideSnapshotStore,

		monitoring.NewZstdCompressor,
		monitoring.NewFetcher,
		monitoring.NewKeywordMatcher,
		monitoring.NewCheckExecutor,
		monitoring.NewScheduler,

		services.NewMonitorService,
		services.NewAllocationService,
		services.NewNotificationDispatcher,

		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil
}
