package migration

import (
	"github.com/smallbiznis/computeledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBRunMigrations {
			log.Info("database migrations disabled")
			return nil
		}
		if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}
		log.Info("database schema up to date", zap.String("dialect", cfg.DBType))
		return nil
	}),
)
