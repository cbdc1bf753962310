package migration

import (
	"github.com/smallbiznis/atelier/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded SQL targets postgres. Local sqlite setups get
		// their schema from AutoMigrate instead.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(models()...)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
