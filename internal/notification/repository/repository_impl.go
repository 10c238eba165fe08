package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/notifier/internal/notification/domain"
	"github.com/smallbiznis/notifier/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

// NewGorm returns the SQL-backed record store.
func NewGorm(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) Upsert(ctx context.Context, n *domain.Notification) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(n).Error
	if err != nil {
		return fmt.Errorf("upsert notification %s (%s): %w", n.ID, db.Classify(err), err)
	}
	return nil
}

func (r *repo) FindByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	return r.find(ctx, r.db.Where("user_id = ?", userID))
}

func (r *repo) FindByOrder(ctx context.Context, orderID string) ([]domain.Notification, error) {
	return r.find(ctx, r.db.Where("order_id = ?", orderID))
}

func (r *repo) FindAll(ctx context.Context) ([]domain.Notification, error) {
	return r.find(ctx, r.db)
}

func (r *repo) find(ctx context.Context, stmt *gorm.DB) ([]domain.Notification, error) {
	var items []domain.Notification
	err := stmt.WithContext(ctx).
		Model(&domain.Notification{}).
		Order("created_at desc, id desc").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("find notifications (%s): %w", db.Classify(err), err)
	}
	return items, nil
}
