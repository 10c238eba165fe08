package migration

import (
	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB `optional:"true"`
	Cfg config.Config
	Log *zap.Logger
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if p.DB == nil {
			return nil
		}
		log := p.Log.Named("migration")

		if p.Cfg.DB.Type != db.TypePostgres {
			log.Info("auto-migrating schema", zap.String("type", p.Cfg.DB.Type))
			return AutoMigrate(p.DB)
		}

		sqlDB, err := p.DB.DB()
		if err != nil {
			return err
		}
		log.Info("applying postgres migrations")
		return RunMigrations(sqlDB)
	}),
)
