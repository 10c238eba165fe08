package dispatch

import (
	"context"
	"strings"

	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/event"
)

const DefaultRecipient = "customer@example.com"

// RecipientResolver finds the address a notification for ev is sent to.
type RecipientResolver interface {
	Resolve(ctx context.Context, ev event.Event) (string, error)
}

// StaticResolver sends every notification to one address.
type StaticResolver struct {
	Address string
}

func NewStaticResolver(cfg config.Config) RecipientResolver {
	addr := strings.TrimSpace(cfg.Notify.DefaultRecipient)
	if addr == "" {
		addr = DefaultRecipient
	}
	return StaticResolver{Address: addr}
}

func (r StaticResolver) Resolve(context.Context, event.Event) (string, error) {
	return r.Address, nil
}
