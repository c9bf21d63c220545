package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger, node *snowflake.Node) error {
		if !cfg.DBAutoMigrate {
			log.Info("database auto migration disabled")
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB, cfg.DBType); err != nil {
			return err
		}

		if !cfg.DBSeedCatalog || cfg.IsProduction() {
			return nil
		}
		created, err := seed.EnsureDemoCatalog(context.Background(), conn, node, seed.DemoCatalog)
		if err != nil {
			return err
		}
		log.Info("demo catalog seeded", zap.Int("products_created", created))
		return nil
	}),
)
