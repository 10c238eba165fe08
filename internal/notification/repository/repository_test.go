package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/notifier/internal/migration"
	"github.com/smallbiznis/notifier/internal/notification/domain"
	"github.com/smallbiznis/notifier/internal/notification/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive across statements
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(conn))
	return conn
}

func newNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	return node
}

func ptr(s string) *string { return &s }

// exerciseRepository checks the record store contract against any backend.
func exerciseRepository(t *testing.T, repo domain.Repository) {
	t.Helper()
	ctx := context.Background()
	node := newNode(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orderID := "order-" + node.Generate().String()
	userID := "user-" + node.Generate().String()

	confirmation := domain.NewNotification(node.Generate(), domain.TypeOrderConfirmation, ptr(userID), orderID,
		"customer@example.com", "Order Confirmation - Order #"+orderID, base)
	confirmation.Body = "<p>thanks</p>"
	confirmation.Metadata[domain.MetaMessageID] = "m-1"
	require.NoError(t, repo.Upsert(ctx, confirmation))

	payment := domain.NewNotification(node.Generate(), domain.TypePaymentSuccess, nil, orderID,
		"customer@example.com", "Payment Successful - Order #"+orderID, base.Add(time.Minute))
	require.NoError(t, repo.Upsert(ctx, payment))

	// status change is an upsert of the same id, not a second row
	require.NoError(t, confirmation.MarkSent(base.Add(2*time.Second)))
	require.NoError(t, repo.Upsert(ctx, confirmation))

	byOrder, err := repo.FindByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, byOrder, 2)
	assert.Equal(t, payment.ID, byOrder[0].ID, "newest first")
	assert.Equal(t, confirmation.ID, byOrder[1].ID)
	assert.Equal(t, domain.StatusSent, byOrder[1].Status)
	require.NotNil(t, byOrder[1].SentAt)
	assert.True(t, byOrder[1].SentAt.Equal(base.Add(2*time.Second)))
	assert.Equal(t, "<p>thanks</p>", byOrder[1].Body)
	assert.Equal(t, "m-1", byOrder[1].Metadata[domain.MetaMessageID])
	assert.Nil(t, byOrder[0].UserID)

	byUser, err := repo.FindByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, confirmation.ID, byUser[0].ID)

	none, err := repo.FindByUser(ctx, "user-unknown")
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	ids := map[snowflake.ID]bool{}
	for _, n := range all {
		ids[n.ID] = true
	}
	assert.True(t, ids[confirmation.ID])
	assert.True(t, ids[payment.ID])
}

func TestGormRepositorySQLite(t *testing.T) {
	exerciseRepository(t, repository.NewGorm(setupTestDB(t)))
}

func TestGormRepositoryFailedRecordKeepsReason(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewGorm(setupTestDB(t))
	node := newNode(t)

	n := domain.NewNotification(node.Generate(), domain.TypePaymentFailed, nil, "o-9", "customer@example.com", "Payment Failed - Order #o-9", time.Now())
	require.NoError(t, n.MarkFailed("sendgrid: status 503"))
	require.NoError(t, repo.Upsert(ctx, n))

	got, err := repo.FindByOrder(ctx, "o-9")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StatusFailed, got[0].Status)
	require.NotNil(t, got[0].ErrorMessage)
	assert.Equal(t, "sendgrid: status 503", *got[0].ErrorMessage)
	assert.Nil(t, got[0].SentAt)
}

func TestGormRepositoryClosedDatabase(t *testing.T) {
	conn := setupTestDB(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	repo := repository.NewGorm(conn)
	n := domain.NewNotification(newNode(t).Generate(), domain.TypeOrderConfirmation, nil, "o-1", "r", "s", time.Now())
	err = repo.Upsert(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection")
}
