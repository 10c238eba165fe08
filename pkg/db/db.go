package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/observability"
	obslogger "github.com/smallbiznis/notifier/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	ObsCfg    observability.Config
	Log       *zap.Logger
}

// New opens the configured database, installs tracing and pool metrics, and closes it on shutdown.
// It returns a nil handle when the record store is not SQL-backed.
func New(p Params) (*gorm.DB, error) {
	if p.Cfg.Store.Backend != config.StoreSQL {
		p.Log.Info("sql database disabled", zap.String("record_store", p.Cfg.Store.Backend))
		return nil, nil
	}

	dialector, err := Dialect(p.Cfg.DB)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 obslogger.NewGormLogger(p.Log, obslogger.DefaultGormLoggerConfig(p.ObsCfg.Debug())),
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p.Cfg.DB.Type, err)
	}

	if err := conn.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(p.Cfg.DB.Name),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return nil, fmt.Errorf("install otelgorm: %w", err)
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          p.Cfg.DB.Name,
		RefreshInterval: 15,
	})); err != nil {
		return nil, fmt.Errorf("install gorm prometheus: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(p.Cfg.DB.MaxIdleConn)
	sqlDB.SetMaxOpenConns(p.Cfg.DB.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(p.Cfg.DB.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.Cfg.DB.ConnMaxIdleTime)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	p.Log.Info("database connected",
		zap.String("type", p.Cfg.DB.Type),
		zap.String("name", p.Cfg.DB.Name),
	)
	return conn, nil
}
