package consumer

import (
	"context"

	"github.com/smallbiznis/notifier/internal/broker"
	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/envelope"
	"github.com/smallbiznis/notifier/internal/event"
	"github.com/smallbiznis/notifier/internal/observability/logger"
	"github.com/smallbiznis/notifier/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// EventHandler consumes one normalized event. It runs to completion before the
// broker message is settled.
type EventHandler func(ctx context.Context, ev event.Event) error

// Binding ties a queue to the event type it carries and the handler for it.
type Binding struct {
	Queue    string
	Exchange string
	Type     event.Type
	Handle   EventHandler
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Normalizer *envelope.Normalizer
	Handler    EventHandler
	Metrics    *metrics.Metrics `optional:"true"`
}

// Router normalizes deliveries and hands each event to its binding's handler.
type Router struct {
	log        *zap.Logger
	normalizer *envelope.Normalizer
	metrics    *metrics.Metrics
	bindings   []Binding
}

func NewRouter(p Params) *Router {
	b := p.Cfg.Broker
	return &Router{
		log:        p.Log.Named("consumer.router"),
		normalizer: p.Normalizer,
		metrics:    p.Metrics,
		bindings: []Binding{
			{Queue: b.OrderCreated.Queue, Exchange: b.OrderCreated.Exchange, Type: event.TypeOrderCreated, Handle: p.Handler},
			{Queue: b.PaymentProcessed.Queue, Exchange: b.PaymentProcessed.Exchange, Type: event.TypePaymentProcessed, Handle: p.Handler},
			{Queue: b.PaymentFailed.Queue, Exchange: b.PaymentFailed.Exchange, Type: event.TypePaymentFailed, Handle: p.Handler},
		},
	}
}

func (r *Router) Bindings() []Binding {
	out := make([]Binding, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// Subscriptions exposes one broker subscription per binding.
func (r *Router) Subscriptions() []broker.Subscription {
	subs := make([]broker.Subscription, 0, len(r.bindings))
	for _, b := range r.bindings {
		subs = append(subs, broker.Subscription{
			Queue:    b.Queue,
			Exchange: b.Exchange,
			Handler: func(ctx context.Context, d broker.Delivery) error {
				return r.Route(ctx, b, d)
			},
		})
	}
	return subs
}

// Route converts d into the binding's event type and runs its handler
// synchronously. Errors are returned unchanged so the broker can settle the message.
func (r *Router) Route(ctx context.Context, b Binding, d broker.Delivery) error {
	log := logger.WithContext(ctx, r.log).With(zap.String("event_type", string(b.Type)))
	log.Info("event received", zap.Int("body_bytes", len(d.Body)))

	hint := envelope.Hint{Explicit: b.Type}
	if advertised, ok := event.ParseType(d.Type); ok {
		hint.Binding = advertised
		if advertised != b.Type {
			log.Warn("broker type metadata disagrees with queue binding",
				zap.String("advertised", string(advertised)),
			)
		}
	}

	ev, err := r.normalizer.Normalize(ctx, d.Body, hint)
	if err != nil {
		r.metrics.RecordConversionError(ctx, b.Queue)
		log.Error("event conversion failed", zap.Error(err))
		return err
	}

	log = log.With(zap.String("order_id", ev.OrderRef()))
	if err := b.Handle(ctx, ev); err != nil {
		log.Error("event handling failed", zap.Error(err))
		return err
	}
	log.Debug("event handled")
	return nil
}
