package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/notifier/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:  p.Log.Named("notification.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	items, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		s.log.Error("list notifications by user failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return orEmpty(items), nil
}

func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]domain.Notification, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ErrInvalidOrderID
	}
	items, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		s.log.Error("list notifications by order failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}
	return orEmpty(items), nil
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Notification, error) {
	items, err := s.repo.FindAll(ctx)
	if err != nil {
		s.log.Error("list notifications failed", zap.Error(err))
		return nil, err
	}
	return orEmpty(items), nil
}

func orEmpty(items []domain.Notification) []domain.Notification {
	if items == nil {
		return []domain.Notification{}
	}
	return items
}
