package broker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/smallbiznis/notifier/internal/config"
	obscontext "github.com/smallbiznis/notifier/internal/observability/context"
	"github.com/smallbiznis/notifier/internal/observability/logger"
	"github.com/smallbiznis/notifier/internal/observability/metrics"
	"github.com/smallbiznis/notifier/internal/observability/tracing"
	"github.com/smallbiznis/notifier/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Header names that carry the event type outside the body.
const (
	HeaderEventType     = "x-event-type"
	HeaderNATSEventType = "Nats-Event-Type"
	HeaderKafkaType     = "event-type"
)

// Delivery is one broker message, detached from the client library.
// Type is the event type advertised by the broker (AMQP type property or a header).
type Delivery struct {
	Queue       string
	MessageID   string
	Type        string
	Headers     map[string]string
	Body        []byte
	Redelivered bool
}

// Handler processes one delivery. The returned error decides the disposition; see Decide.
type Handler func(ctx context.Context, d Delivery) error

// Subscription binds a queue (subject, topic) to a handler.
type Subscription struct {
	Queue    string
	Exchange string
	Handler  Handler
}

// Consumer delivers messages to subscription handlers until ctx is done.
// Consume returns after in-flight handlers have finished.
type Consumer interface {
	Consume(ctx context.Context, subs []Subscription) error
	Close() error
}

// Options shared by every adapter.
type Options struct {
	Prefetch         int
	Concurrency      int
	DeclareTopology  bool
	RequeueMalformed bool
	ConsumerGroup    string
}

func OptionsFromConfig(cfg config.BrokerConfig) Options {
	return Options{
		Prefetch:         cfg.Prefetch,
		Concurrency:      cfg.Concurrency,
		DeclareTopology:  cfg.DeclareTopology,
		RequeueMalformed: cfg.RequeueMalformed,
		ConsumerGroup:    cfg.ConsumerGroup,
	}
}

func (o Options) workers() int {
	if o.Concurrency <= 0 {
		return 1
	}
	return o.Concurrency
}

func (o Options) prefetch() int {
	if o.Prefetch < o.workers() {
		return o.workers()
	}
	return o.Prefetch
}

// permanent is implemented by errors that redelivery cannot fix.
type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether err (or anything it wraps) is marked permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}

// Decide maps a handler result onto ack, reject or requeue.
func Decide(err error, requeueMalformed bool) string {
	switch {
	case err == nil:
		return metrics.DispositionAck
	case IsPermanent(err) && !requeueMalformed:
		return metrics.DispositionReject
	default:
		return metrics.DispositionRequeue
	}
}

// runner wraps handler invocation with logging, tracing, metrics and panic recovery.
type runner struct {
	log     *zap.Logger
	metrics *metrics.ConsumerMetrics
	tracer  trace.Tracer
	opts    Options
	driver  string
}

func newRunner(driver string, log *zap.Logger, m *metrics.ConsumerMetrics, opts Options) runner {
	if log == nil {
		log = zap.NewNop()
	}
	return runner{
		log:     log.Named("broker." + driver),
		metrics: m,
		tracer:  otel.Tracer("notifier/broker"),
		opts:    opts,
		driver:  driver,
	}
}

// handle runs sub.Handler for d and returns the disposition to apply.
func (r runner) handle(ctx context.Context, sub Subscription, d Delivery) string {
	start := time.Now()
	done := r.metrics.TrackInFlight(sub.Queue)
	defer done()

	ctx = obscontext.WithMessage(ctx, obscontext.Message{
		Queue:       sub.Queue,
		MessageID:   d.MessageID,
		EventType:   d.Type,
		Redelivered: d.Redelivered,
	})
	ctx = tracing.ExtractFromHeaders(ctx, d.Headers)
	ctx, _ = correlation.FromHeaders(ctx, d.Headers)
	ctx, span := r.tracer.Start(ctx, "consumer."+sub.Queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", r.driver),
			attribute.String("messaging.destination.name", sub.Queue),
		),
	)
	defer span.End()

	err := safeCall(ctx, sub.Handler, d)
	disposition := Decide(err, r.opts.RequeueMalformed)

	span.SetAttributes(attribute.String("disposition", disposition))
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, disposition)
	}
	r.metrics.IncMessage(sub.Queue, disposition)
	r.metrics.ObserveHandle(sub.Queue, time.Since(start))

	log := logger.WithContext(ctx, r.log)
	switch disposition {
	case metrics.DispositionAck:
		log.Debug("message acknowledged")
	case metrics.DispositionReject:
		log.Warn("message rejected", zap.Error(err))
	default:
		log.Warn("message requeued", zap.Error(err))
	}
	return disposition
}

func safeCall(ctx context.Context, h Handler, d Delivery) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return h(ctx, d)
}

func typeFromHeaders(headers map[string]string, keys ...string) string {
	for _, key := range keys {
		for k, v := range headers {
			if strings.EqualFold(k, key) {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}
	return ""
}
