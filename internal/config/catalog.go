package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Descriptor is the operator-tunable part of a notification type.
type Descriptor struct {
	Template string `mapstructure:"template"`
	Subject  string `mapstructure:"subject"`
}

// Catalog maps notification types (ORDER_CONFIRMATION, ...) to descriptors.
type Catalog struct {
	Notifications map[string]Descriptor `mapstructure:"notifications"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		Notifications: map[string]Descriptor{
			"order_confirmation": {Template: "order-confirmation", Subject: "Order Confirmation - Order #%s"},
			"payment_success":    {Template: "payment-success", Subject: "Payment Successful - Order #%s"},
			"payment_failed":     {Template: "payment-failed", Subject: "Payment Failed - Order #%s"},
		},
	}
}

// Lookup returns the descriptor for a notification type. Keys are case-insensitive.
func (c Catalog) Lookup(notificationType string) (Descriptor, bool) {
	d, ok := c.Notifications[strings.ToLower(strings.TrimSpace(notificationType))]
	return d, ok
}

type CatalogHolder struct {
	current atomic.Value // holds Catalog
}

// NewStaticCatalogHolder wraps a fixed catalog.
func NewStaticCatalogHolder(c Catalog) *CatalogHolder {
	h := &CatalogHolder{}
	h.current.Store(c)
	return h
}

// NewCatalogHolder loads notifications.yml and watches it for changes.
// Built-in defaults apply when no file is found; entries in the file override them per type.
func NewCatalogHolder(cfg Config, log *zap.Logger) (*CatalogHolder, error) {
	log = log.Named("config.catalog")

	v := viper.New()
	v.SetConfigType("yml")
	if path := strings.TrimSpace(cfg.Notify.CatalogPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("notifications")
		v.AddConfigPath("/etc/notifier")
		v.AddConfigPath(filepath.Join(".", "config"))
		v.AddConfigPath(".")
	}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read notification catalog: %w", err)
		}
		found = false
	}

	current, err := decodeCatalog(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticCatalogHolder(current)
	if !found {
		log.Info("notification catalog not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeCatalog(v)
		if err != nil {
			log.Warn("notification catalog reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("notification catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *CatalogHolder) Get() Catalog {
	return h.current.Load().(Catalog)
}

func decodeCatalog(v *viper.Viper) (Catalog, error) {
	var overrides Catalog
	if err := v.Unmarshal(&overrides); err != nil {
		return Catalog{}, fmt.Errorf("decode notification catalog: %w", err)
	}

	merged := DefaultCatalog()
	for key, d := range overrides.Notifications {
		key = strings.ToLower(strings.TrimSpace(key))
		base := merged.Notifications[key]
		if strings.TrimSpace(d.Template) != "" {
			base.Template = strings.TrimSpace(d.Template)
		}
		if strings.TrimSpace(d.Subject) != "" {
			base.Subject = d.Subject
		}
		merged.Notifications[key] = base
	}

	if err := validateCatalog(merged); err != nil {
		return Catalog{}, err
	}
	return merged, nil
}

func validateCatalog(c Catalog) error {
	if len(c.Notifications) == 0 {
		return errors.New("notifications cannot be empty")
	}
	for key, d := range c.Notifications {
		if d.Template == "" {
			return fmt.Errorf("notifications.%s.template cannot be empty", key)
		}
		if strings.Count(d.Subject, "%") != 1 || !strings.Contains(d.Subject, "%s") {
			return fmt.Errorf("notifications.%s.subject must contain exactly one %%s for the order id", key)
		}
	}
	return nil
}
