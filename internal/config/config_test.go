package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BrokerRabbitMQ, cfg.Broker.Driver)
	assert.Equal(t, StoreSQL, cfg.Store.Backend)
	assert.False(t, cfg.Email.Enabled)
	assert.Equal(t, "customer@example.com", cfg.Notify.DefaultRecipient)
	assert.Equal(t, "notification.order-created", cfg.Broker.OrderCreated.Queue)
	assert.Equal(t, "OrderCreatedEvent", cfg.Broker.OrderCreated.Exchange)
	assert.Equal(t, "notification.payment-processed", cfg.Broker.PaymentProcessed.Queue)
	assert.Equal(t, "PaymentFailedEvent", cfg.Broker.PaymentFailed.Exchange)
	assert.False(t, cfg.Broker.RequeueMalformed)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BROKER_DRIVER", "NATS")
	t.Setenv("BROKER_ORDER_CREATED_QUEUE", "orders.created")
	t.Setenv("BROKER_CONCURRENCY", "8")
	t.Setenv("BROKER_PREFETCH", "2")
	t.Setenv("RECORD_STORE", "redis")
	t.Setenv("DATABASE_TYPE", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BrokerNATS, cfg.Broker.Driver)
	assert.Equal(t, "orders.created", cfg.Broker.OrderCreated.Queue)
	assert.Equal(t, 8, cfg.Broker.Concurrency)
	assert.Equal(t, 8, cfg.Broker.Prefetch, "prefetch is raised to the worker count")
	assert.Equal(t, StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "sqlite", cfg.DB.Type)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BROKER_DRIVER", "sqs")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresSendGridKeyWhenEnabled(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EMAIL_ENABLED", "true")
	t.Setenv("EMAIL_PROVIDER", "sendgrid")

	_, err := Load()
	require.Error(t, err)
}

func TestCatalogDefaultsWhenFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewCatalogHolder(Config{}, zap.NewNop())
	require.NoError(t, err)

	d, ok := holder.Get().Lookup("ORDER_CONFIRMATION")
	require.True(t, ok)
	assert.Equal(t, "order-confirmation", d.Template)
	assert.Equal(t, "Order Confirmation - Order #%s", d.Subject)
}

func TestCatalogFileOverridesSingleType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifications.yml")
	content := []byte(`notifications:
  PAYMENT_FAILED:
    subject: "We could not charge order %s"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewCatalogHolder(Config{Notify: NotifyConfig{CatalogPath: path}}, zap.NewNop())
	require.NoError(t, err)

	failed, ok := holder.Get().Lookup("PAYMENT_FAILED")
	require.True(t, ok)
	assert.Equal(t, "We could not charge order %s", failed.Subject)
	assert.Equal(t, "payment-failed", failed.Template)

	success, ok := holder.Get().Lookup("PAYMENT_SUCCESS")
	require.True(t, ok)
	assert.Equal(t, "Payment Successful - Order #%s", success.Subject)
}

func TestCatalogRejectsSubjectWithoutPlaceholder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifications.yml")
	content := []byte(`notifications:
  order_confirmation:
    subject: "Thanks!"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewCatalogHolder(Config{Notify: NotifyConfig{CatalogPath: path}}, zap.NewNop())
	require.Error(t, err)
}
