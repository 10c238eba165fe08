package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/notification/domain"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
	DB        *gorm.DB `optional:"true"`
}

// Provide selects the record store backend from RECORD_STORE.
func Provide(p Params) (domain.Repository, error) {
	log := p.Log.Named("notification.repository")

	switch p.Cfg.Store.Backend {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     p.Cfg.Redis.Addr,
			Password: p.Cfg.Redis.Password,
			DB:       p.Cfg.Redis.DB,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis ping %s: %w", p.Cfg.Redis.Addr, err)
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		log.Info("using redis record store", zap.String("addr", p.Cfg.Redis.Addr))
		return NewRedis(client, p.Cfg.Redis.KeyPrefix), nil
	case config.StoreSQL, "":
		if p.DB == nil {
			return nil, errors.New("sql record store selected but no database is configured")
		}
		log.Info("using sql record store", zap.String("type", p.Cfg.DB.Type))
		return NewGorm(p.DB), nil
	default:
		return nil, fmt.Errorf("unsupported record store %q", p.Cfg.Store.Backend)
	}
}
