package migration

import (
	"github.com/clipverse/payrail/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module applies embedded migrations on startup. Only the postgres dialect is
// migrated automatically; other dialects are expected to be provisioned
// externally.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			return nil
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
