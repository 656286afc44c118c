package di

import (
	"context"
	"fmt"

	"kwatch/internal/monitoring"
	"kwatch/internal/monitoring/interfaces"
	"kwatch/internal/notify"
	"kwatch/internal/providers"
	"kwatch/internal/storage"
	"kwatch/internal/storage/postgres"
	"kwatch/internal/storage/sqlite"
	"kwatch/internal/structures"
)

// provideStore opens the storage backend selected in the config.
func provideStore(conf *structures.Config) (storage.Store, error) {
	ctx := context.Background()
	switch conf.Storage.Driver {
	case "sqlite":
		return sqlite.New(ctx, conf.Storage.DSN)
	case "postgres":
		return postgres.New(ctx, conf.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", conf.Storage.Driver)
	}
}

func provideSnapshotStore(conf *structures.Config, compressor interfaces.CompressorInterface, logger providers.Logger) *monitoring.SnapshotStore {
	if conf.Scheduler.SnapshotDir == "" {
		return nil
	}
	return monitoring.NewSnapshotStore(conf.Scheduler.SnapshotDir, compressor, logger)
}

func provideSenders(conf *structures.Config) []notify.ChannelSender {
	return notify.BuildSenders(conf)
}
