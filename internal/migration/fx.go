package migration

import (
	"github.com/smallbiznis/attendly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

// Run applies migrations on startup. Only the postgres dialect is
// migrated automatically; test databases create their schema inline.
func Run(cfg config.Config, gdb *gorm.DB, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		log.Info("skipping migrations", zap.String("db_type", cfg.DBType))
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
