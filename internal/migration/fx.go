package migration

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/config"
	"github.com/smallbiznis/recyclesim/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, c clock.Clock, log *zap.Logger) error {
		// The SQL migrations are written for postgres; other dialects get
		// the same tables from the models.
		if cfg.IsPostgres() {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}

		if !cfg.SeedDemoFleet {
			return nil
		}
		created, err := seed.EnsureDemoFleet(context.Background(), conn, node, c, seed.DefaultFleet())
		if err != nil {
			return err
		}
		if created {
			log.Info("seeded demo fleet")
		}
		return nil
	}),
)
