package domain

import "context"

// Repository persists notification records. Upsert is keyed by ID only;
// no other uniqueness is enforced.
type Repository interface {
	Upsert(ctx context.Context, n *Notification) error
	FindByUser(ctx context.Context, userID string) ([]Notification, error)
	FindByOrder(ctx context.Context, orderID string) ([]Notification, error)
	FindAll(ctx context.Context) ([]Notification, error)
}
