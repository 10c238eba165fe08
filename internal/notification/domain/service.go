package domain

import (
	"context"
	"errors"
)

type Service interface {
	ListByUser(ctx context.Context, userID string) ([]Notification, error)
	ListByOrder(ctx context.Context, orderID string) ([]Notification, error)
	ListAll(ctx context.Context) ([]Notification, error)
}

var (
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrInvalidUserID     = errors.New("invalid_user_id")
	ErrInvalidOrderID    = errors.New("invalid_order_id")
	ErrNotFound          = errors.New("not_found")
)
