package dispatch

import (
	"strings"

	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/event"
	"github.com/smallbiznis/notifier/internal/notification/domain"
)

// Descriptor is everything the pipeline needs to know about one event variant.
type Descriptor struct {
	NotificationType domain.Type
	Template         string
	// SubjectFormat takes the order id as its only verb.
	SubjectFormat string
	Owner         func(event.Event) *string
	Variables     func(event.Event) map[string]any
}

// DefaultDescriptors returns the built-in descriptor per event variant.
func DefaultDescriptors() map[event.Type]Descriptor {
	defaults := config.DefaultCatalog()
	build := func(t domain.Type, vars func(event.Event) map[string]any) Descriptor {
		d, _ := defaults.Lookup(string(t))
		return Descriptor{
			NotificationType: t,
			Template:         d.Template,
			SubjectFormat:    d.Subject,
			Owner:            ownerOf,
			Variables:        vars,
		}
	}
	return map[event.Type]Descriptor{
		event.TypeOrderCreated:     build(domain.TypeOrderConfirmation, orderCreatedVars),
		event.TypePaymentProcessed: build(domain.TypePaymentSuccess, paymentProcessedVars),
		event.TypePaymentFailed:    build(domain.TypePaymentFailed, paymentFailedVars),
	}
}

// withCatalog applies operator overrides for the descriptor's notification type.
func (d Descriptor) withCatalog(c config.Catalog) Descriptor {
	override, ok := c.Lookup(string(d.NotificationType))
	if !ok {
		return d
	}
	if t := strings.TrimSpace(override.Template); t != "" {
		d.Template = t
	}
	if s := strings.TrimSpace(override.Subject); s != "" {
		d.SubjectFormat = s
	}
	return d
}

// ownerOf returns the customer id for events that carry one; payment events do not.
func ownerOf(ev event.Event) *string {
	o, ok := ev.(event.Owner)
	if !ok {
		return nil
	}
	id := o.Owner()
	return &id
}

func orderCreatedVars(ev event.Event) map[string]any {
	e := as[event.OrderCreated](ev)
	return map[string]any{
		"orderId":     e.OrderID.String(),
		"totalAmount": e.TotalAmount.Decimal.StringFixed(2),
		"itemCount":   len(e.Items),
	}
}

func paymentProcessedVars(ev event.Event) map[string]any {
	e := as[event.PaymentProcessed](ev)
	return map[string]any{
		"orderId":   e.OrderID.String(),
		"paymentId": e.PaymentID.String(),
		"amount":    e.Amount.Decimal.StringFixed(2),
		"currency":  strings.ToUpper(e.Currency),
	}
}

func paymentFailedVars(ev event.Event) map[string]any {
	e := as[event.PaymentFailed](ev)
	return map[string]any{
		"orderId":   e.OrderID.String(),
		"paymentId": e.PaymentID.String(),
		"reason":    e.Reason,
	}
}

func as[T any](ev event.Event) T {
	switch v := any(ev).(type) {
	case *T:
		return *v
	case T:
		return v
	}
	var zero T
	return zero
}
