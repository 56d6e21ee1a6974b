package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// MaybeRun applies pending migrations on boot when the storage driver is sql
// backed and auto migration is enabled.
func MaybeRun(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger, client *db.Client) error {
	if !cfg.AutoMigrate {
		return nil
	}
	if cfg.Driver != config.StorageDriverSQLite && cfg.Driver != config.StorageDriverPostgres {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"driver": cfg.Driver, "dir": embeddedDir})
	logg.Info(ctx, "running goose migrations")

	if err := Up(ctx, sqlDB, cfg.Driver); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
