package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/notifier/internal/migration"
	"github.com/smallbiznis/notifier/internal/notification/domain"
	"github.com/smallbiznis/notifier/internal/notification/repository"
	"github.com/smallbiznis/notifier/internal/notification/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingRepo struct {
	domain.Repository
	err error
}

func (r failingRepo) FindAll(context.Context) ([]domain.Notification, error) {
	return nil, r.err
}

func setupService(t *testing.T) (domain.Service, domain.Repository) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := migration.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := repository.NewGorm(conn)
	return service.New(service.Params{Log: zap.NewNop(), Repo: repo}), repo
}

func TestListRejectsBlankIdentifiers(t *testing.T) {
	svc, _ := setupService(t)

	if _, err := svc.ListByUser(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if _, err := svc.ListByOrder(context.Background(), ""); !errors.Is(err, domain.ErrInvalidOrderID) {
		t.Fatalf("expected ErrInvalidOrderID, got %v", err)
	}
}

func TestListReturnsEmptySliceNotNil(t *testing.T) {
	svc, _ := setupService(t)

	items, err := svc.ListByOrder(context.Background(), "missing")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty slice, got %#v", items)
	}
}

func TestListByOrderTrimsInput(t *testing.T) {
	svc, repo := setupService(t)
	n := domain.NewNotification(1, domain.TypeOrderConfirmation, nil, "o-1", "customer@example.com", "s", time.Now())
	if err := repo.Upsert(context.Background(), n); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	items, err := svc.ListByOrder(context.Background(), " o-1 ")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(items))
	}
}

func TestListAllPropagatesStoreError(t *testing.T) {
	boom := errors.New("boom")
	svc := service.New(service.Params{Log: zap.NewNop(), Repo: failingRepo{err: boom}})

	if _, err := svc.ListAll(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
