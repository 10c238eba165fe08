package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/notifier/internal/clock"
	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/event"
	"github.com/smallbiznis/notifier/internal/notification/domain"
	obscontext "github.com/smallbiznis/notifier/internal/observability/context"
	"github.com/smallbiznis/notifier/internal/observability/logger"
	"github.com/smallbiznis/notifier/internal/observability/metrics"
	"github.com/smallbiznis/notifier/internal/observability/tracing"
	"github.com/smallbiznis/notifier/internal/providers/email"
	"github.com/smallbiznis/notifier/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeRenderFailed   Outcome = "render_failed"
	OutcomeDeliveryFailed Outcome = "delivery_failed"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeUnsupported    Outcome = "unsupported"
)

// Result describes one pipeline run. Err is set only when the message should
// go back to the broker; render and delivery failures end in a FAILED record instead.
type Result struct {
	NotificationID snowflake.ID
	Outcome        Outcome
	PersistErrors  []error
	Err            error
}

// defaultSendTimeout bounds a gateway call when EMAIL_TIMEOUT is unset.
const defaultSendTimeout = 10 * time.Second

type Params struct {
	fx.In

	Cfg      config.Config `optional:"true"`
	Log      *zap.Logger
	Repo     domain.Repository
	Gateway  email.Provider
	Renderer Renderer
	Resolver RecipientResolver
	Clock    clock.Clock
	Node     *snowflake.Node
	Catalog  *config.CatalogHolder    `optional:"true"`
	Metrics  *metrics.Metrics         `optional:"true"`
	Consumer *metrics.ConsumerMetrics `optional:"true"`
}

// Dispatcher turns domain events into delivered, recorded notifications.
type Dispatcher struct {
	log         *zap.Logger
	repo        domain.Repository
	gateway     email.Provider
	renderer    Renderer
	resolver    RecipientResolver
	clock       clock.Clock
	node        *snowflake.Node
	catalog     *config.CatalogHolder
	descriptors map[event.Type]Descriptor
	metrics     *metrics.Metrics
	consumer    *metrics.ConsumerMetrics
	tracer      trace.Tracer
	sendTimeout time.Duration
}

func New(p Params) *Dispatcher {
	sendTimeout := p.Cfg.Email.Timeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		log:         p.Log.Named("dispatch"),
		repo:        p.Repo,
		gateway:     p.Gateway,
		renderer:    p.Renderer,
		resolver:    p.Resolver,
		clock:       p.Clock,
		node:        p.Node,
		catalog:     p.Catalog,
		descriptors: DefaultDescriptors(),
		metrics:     p.Metrics,
		consumer:    p.Consumer,
		tracer:      otel.Tracer("notifier/dispatch"),
		sendTimeout: sendTimeout,
	}
}

// Descriptor returns the effective descriptor for t, catalog overrides applied.
func (d *Dispatcher) Descriptor(t event.Type) (Descriptor, bool) {
	desc, ok := d.descriptors[t]
	if !ok {
		return Descriptor{}, false
	}
	if d.catalog != nil {
		desc = desc.withCatalog(d.catalog.Get())
	}
	return desc, true
}

// Dispatch runs the notification pipeline for one event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) (res Result) {
	if ev == nil {
		return Result{Outcome: OutcomeUnsupported, Err: permanentError{ErrUnsupportedEvent}}
	}
	desc, ok := d.Descriptor(ev.Type())
	if !ok {
		return Result{
			Outcome: OutcomeUnsupported,
			Err:     permanentError{fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Type())},
		}
	}

	start := time.Now()
	typ := string(desc.NotificationType)
	ctx, span := d.tracer.Start(ctx, "dispatch."+typ,
		trace.WithAttributes(tracing.SafeAttributes(
			attribute.String("notification_type", typ),
			attribute.String("order_id", ev.OrderRef()),
		)...),
	)
	log := logger.WithContext(ctx, d.log).With(
		zap.String("notification_type", typ),
		zap.String("order_id", ev.OrderRef()),
	)
	defer func() {
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
		if res.Err != nil {
			span.RecordError(tracing.SafeError(res.Err))
			span.SetStatus(codes.Error, string(res.Outcome))
		}
		span.End()
		d.metrics.RecordDispatch(ctx, typ, string(res.Outcome))
		d.consumer.ObserveDispatch(typ, time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeCancelled, Err: err}
	}

	recipient := d.resolveRecipient(ctx, ev, log)
	subject := fmt.Sprintf(desc.SubjectFormat, ev.OrderRef())
	n := domain.NewNotification(d.node.Generate(), desc.NotificationType, desc.Owner(ev), ev.OrderRef(), recipient, subject, d.clock.Now())
	annotate(ctx, n)
	res.NotificationID = n.ID
	log = log.With(zap.String("notification_id", n.ID.String()))

	body, err := d.renderer.Render(desc.Template, desc.Variables(ev))
	if err != nil {
		rerr := &RenderError{Template: desc.Template, Err: err}
		_ = n.MarkFailed(rerr.Error())
		d.persist(context.WithoutCancel(ctx), n, &res, log)
		log.Error("notification render failed", zap.Error(rerr))
		res.Outcome = OutcomeRenderFailed
		return res
	}
	n.Body = body
	d.persist(ctx, n, &res, log)

	if err := ctx.Err(); err != nil {
		log.Warn("dispatch cancelled before delivery", zap.Error(err))
		res.Outcome = OutcomeCancelled
		res.Err = err
		return res
	}

	// Once a send starts it runs to completion so the record matches what the gateway did.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.sendTimeout)
	defer cancel()
	if err := d.deliver(sendCtx, recipient, subject, body); err != nil {
		_ = n.MarkFailed(err.Error())
		d.persist(context.WithoutCancel(ctx), n, &res, log)
		log.Error("notification delivery failed",
			zap.String("provider", d.gateway.Name()),
			zap.Error(err),
		)
		res.Outcome = OutcomeDeliveryFailed
		return res
	}

	_ = n.MarkSent(d.clock.Now())
	d.persist(context.WithoutCancel(ctx), n, &res, log)
	log.Info("notification sent", zap.String("provider", d.gateway.Name()))
	res.Outcome = OutcomeSent
	return res
}

// Handle adapts Dispatch to the router's handler signature.
func (d *Dispatcher) Handle(ctx context.Context, ev event.Event) error {
	return d.Dispatch(ctx, ev).Err
}

func (d *Dispatcher) resolveRecipient(ctx context.Context, ev event.Event, log *zap.Logger) string {
	addr, err := d.resolver.Resolve(ctx, ev)
	if err != nil || addr == "" {
		if err != nil {
			log.Warn("recipient lookup failed, using default recipient", zap.Error(err))
		}
		return DefaultRecipient
	}
	return addr
}

func (d *Dispatcher) deliver(ctx context.Context, to, subject, body string) error {
	provider := d.gateway.Name()
	ctx, span := d.tracer.Start(ctx, "gateway.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("provider", provider)),
	)
	defer span.End()

	err := d.gateway.Send(ctx, to, subject, body)
	if err != nil {
		var de *email.DeliveryError
		if errors.As(err, &de) && de.StatusCode > 0 {
			span.SetAttributes(attribute.String("status_code", strconv.Itoa(de.StatusCode)))
		}
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "delivery failed")
		d.consumer.IncDelivery(provider, "failure")
		return err
	}
	d.consumer.IncDelivery(provider, "success")
	return nil
}

// persist writes the record and never fails the pipeline.
func (d *Dispatcher) persist(ctx context.Context, n *domain.Notification, res *Result, log *zap.Logger) {
	err := d.repo.Upsert(ctx, n)
	if err == nil {
		return
	}
	perr := &PersistenceError{ID: n.ID, Status: n.Status, Reason: db.Classify(err), Err: err}
	res.PersistErrors = append(res.PersistErrors, perr)
	d.metrics.RecordPersistError(ctx, string(n.Type))
	log.Warn("notification record not persisted",
		zap.String("status", string(n.Status)),
		zap.String("reason", perr.Reason),
		zap.Error(err),
	)
}

// annotate copies broker delivery details onto the record.
func annotate(ctx context.Context, n *domain.Notification) {
	msg, ok := obscontext.MessageFromContext(ctx)
	if !ok {
		return
	}
	if msg.MessageID != "" {
		n.Metadata[domain.MetaMessageID] = msg.MessageID
	}
	if msg.Queue != "" {
		n.Metadata[domain.MetaQueue] = msg.Queue
	}
	if msg.EventType != "" {
		n.Metadata[domain.MetaEventType] = msg.EventType
	}
	if msg.Redelivered {
		n.Metadata[domain.MetaRedelivered] = true
	}
}
