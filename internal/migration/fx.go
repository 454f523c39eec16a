package migration

import (
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if _, err := db.NormalizeDialect(cfg.DBType); err != nil {
			return err
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		log.Info("running migrations")
		return RunMigrations(sqlDB)
	}),
)
