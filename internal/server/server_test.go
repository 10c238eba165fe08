package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/notifier/internal/migration"
	"github.com/smallbiznis/notifier/internal/notification/domain"
	"github.com/smallbiznis/notifier/internal/notification/repository"
	"github.com/smallbiznis/notifier/internal/notification/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type listResponse struct {
	Data []domain.Notification `json:"data"`
}

type brokenService struct {
	err error
}

func (s brokenService) ListByUser(context.Context, string) ([]domain.Notification, error) {
	return nil, s.err
}

func (s brokenService) ListByOrder(context.Context, string) ([]domain.Notification, error) {
	return nil, s.err
}

func (s brokenService) ListAll(context.Context) ([]domain.Notification, error) {
	return nil, s.err
}

func newTestEngine(svc domain.Service, conn *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	s := NewServer(Params{Engine: r, Log: zap.NewNop(), Svc: svc, DB: conn})
	s.RegisterRoutes()
	return r
}

func setupStore(t *testing.T) (*gorm.DB, domain.Repository) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.AutoMigrate(conn))
	return conn, repository.NewGorm(conn)
}

func seed(t *testing.T, repo domain.Repository) {
	t.Helper()
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	user := "c7d4a3b2-0f6e-4b7a-9d1c-2f3e4a5b6c7d"
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	order := domain.NewNotification(node.Generate(), domain.TypeOrderConfirmation, &user,
		"9b2f5c1e-7a34-4d2b-8e6f-1c0d3a4b5e6f", "customer@example.com", "Order Confirmation", now)
	require.NoError(t, order.MarkSent(now.Add(time.Second)))
	require.NoError(t, repo.Upsert(context.Background(), order))

	payment := domain.NewNotification(node.Generate(), domain.TypePaymentFailed, nil,
		"9b2f5c1e-7a34-4d2b-8e6f-1c0d3a4b5e6f", "customer@example.com", "Payment Failed", now.Add(time.Minute))
	require.NoError(t, payment.MarkFailed("card declined"))
	require.NoError(t, repo.Upsert(context.Background(), payment))
}

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestListNotificationsEndpoints(t *testing.T) {
	conn, repo := setupStore(t)
	seed(t, repo)
	svc := service.New(service.Params{Log: zap.NewNop(), Repo: repo})
	r := newTestEngine(svc, conn)

	tests := []struct {
		name  string
		path  string
		count int
	}{
		{name: "all", path: "/api/notifications", count: 2},
		{name: "by order", path: "/api/notifications/order/9b2f5c1e-7a34-4d2b-8e6f-1c0d3a4b5e6f", count: 2},
		{name: "by user", path: "/api/notifications/user/c7d4a3b2-0f6e-4b7a-9d1c-2f3e4a5b6c7d", count: 1},
		{name: "unknown user", path: "/api/notifications/user/nobody", count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGet(r, tt.path)
			require.Equal(t, http.StatusOK, w.Code)

			var resp listResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotNil(t, resp.Data)
			assert.Len(t, resp.Data, tt.count)
		})
	}
}

func TestListByUserReturnsOnlyOrderNotifications(t *testing.T) {
	conn, repo := setupStore(t)
	seed(t, repo)
	r := newTestEngine(service.New(service.Params{Log: zap.NewNop(), Repo: repo}), conn)

	w := doGet(r, "/api/notifications/user/c7d4a3b2-0f6e-4b7a-9d1c-2f3e4a5b6c7d")
	require.Equal(t, http.StatusOK, w.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, domain.TypeOrderConfirmation, resp.Data[0].Type)
	assert.Equal(t, domain.StatusSent, resp.Data[0].Status)
}

func TestBlankIdentifierIsBadRequest(t *testing.T) {
	conn, repo := setupStore(t)
	r := newTestEngine(service.New(service.Params{Log: zap.NewNop(), Repo: repo}), conn)

	w := doGet(r, "/api/notifications/user/%20")
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error.Type)
	require.Len(t, resp.Error.Errors, 1)
	assert.Equal(t, "userId", resp.Error.Errors[0].Field)
}

func TestServiceFailureMapsToInternalError(t *testing.T) {
	r := newTestEngine(brokenService{err: errors.New("boom")}, nil)

	w := doGet(r, "/api/notifications")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestHealth(t *testing.T) {
	conn, repo := setupStore(t)
	r := newTestEngine(service.New(service.Params{Log: zap.NewNop(), Repo: repo}), conn)

	w := doGet(r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w = doGet(r, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(domain.ErrInvalidOrderID)
	assert.Equal(t, "validation_error", typ)
	assert.Equal(t, "invalid_order_id", code)

	typ, code = classifyErrorForLog(context.DeadlineExceeded)
	assert.Equal(t, "service_unavailable", typ)
	assert.Equal(t, "service_unavailable", code)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	cfg := corsConfig([]string{"https://shop.example.com"})
	assert.False(t, cfg.AllowAllOrigins)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.AllowOrigins)

	cfg = corsConfig(nil)
	assert.True(t, cfg.AllowAllOrigins)
}
