package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/notifier/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errConnectionClosed = errors.New("broker: rabbitmq connection closed")

// RabbitMQ consumes durable queues bound to fanout exchanges.
type RabbitMQ struct {
	url    string
	name   string
	opts   Options
	runner runner

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewRabbitMQ(url, name string, opts Options, log *zap.Logger, m *metrics.ConsumerMetrics) *RabbitMQ {
	return &RabbitMQ{
		url:    url,
		name:   name,
		opts:   opts,
		runner: newRunner("rabbitmq", log, m, opts),
	}
}

// Consume reconnects with exponential backoff until ctx is cancelled.
func (r *RabbitMQ) Consume(ctx context.Context, subs []Subscription) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.consumeOnce(ctx, subs)
		if err == nil || ctx.Err() != nil {
			return struct{}{}, nil
		}
		if !errors.Is(err, errConnectionClosed) && !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.runner.log.Warn("rabbitmq consumer interrupted, reconnecting",
				zap.Error(err),
				zap.Duration("retry_in", next),
			)
		}),
	)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *RabbitMQ) consumeOnce(ctx context.Context, subs []Subscription) error {
	conn, err := amqp.DialConfig(r.url, amqp.Config{
		Properties: amqp.Table{"connection_name": r.name},
	})
	if err != nil {
		return fmt.Errorf("%w: dial: %v", errConnectionClosed, err)
	}
	r.setConn(conn)
	defer func() {
		r.setConn(nil)
		_ = conn.Close()
	}()

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(consumeCtx)
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}
	for _, sub := range subs {
		ch, err := conn.Channel()
		if err != nil {
			return abort(fmt.Errorf("open channel for %s: %w", sub.Queue, err))
		}
		if r.opts.DeclareTopology {
			if err := declareTopology(ch, sub); err != nil {
				return abort(err)
			}
		}
		if err := ch.Qos(r.opts.prefetch(), 0, false); err != nil {
			return abort(fmt.Errorf("set qos on %s: %w", sub.Queue, err))
		}
		deliveries, err := ch.ConsumeWithContext(gctx, sub.Queue, r.name+"."+sub.Queue, false, false, false, false, nil)
		if err != nil {
			return abort(fmt.Errorf("consume %s: %w", sub.Queue, err))
		}

		r.runner.log.Info("consuming queue",
			zap.String("queue", sub.Queue),
			zap.String("exchange", sub.Exchange),
			zap.Int("workers", r.opts.workers()),
			zap.Int("prefetch", r.opts.prefetch()),
		)
		for i := 0; i < r.opts.workers(); i++ {
			g.Go(func() error {
				return r.work(gctx, sub, deliveries)
			})
		}
	}

	var connErr error
	g.Go(func() error {
		select {
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				connErr = fmt.Errorf("%w: %v", errConnectionClosed, amqpErr)
			} else {
				connErr = errConnectionClosed
			}
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return connErr
}

// work drains deliveries until the channel closes or ctx ends. A delivery that
// was received is always handled and settled before returning.
func (r *RabbitMQ) work(ctx context.Context, sub Subscription, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			disposition := r.runner.handle(ctx, sub, toDelivery(sub.Queue, d))
			if err := settle(d, disposition); err != nil {
				r.runner.log.Warn("settle delivery failed",
					zap.String("queue", sub.Queue),
					zap.String("disposition", disposition),
					zap.Error(err),
				)
			}
		}
	}
}

func settle(d amqp.Delivery, disposition string) error {
	switch disposition {
	case metrics.DispositionAck:
		return d.Ack(false)
	case metrics.DispositionReject:
		return d.Reject(false)
	default:
		return d.Nack(false, true)
	}
}

// declareTopology creates a durable fanout exchange and queue and binds them.
func declareTopology(ch *amqp.Channel, sub Subscription) error {
	if _, err := ch.QueueDeclare(sub.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", sub.Queue, err)
	}
	if strings.TrimSpace(sub.Exchange) == "" {
		return nil
	}
	if err := ch.ExchangeDeclare(sub.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", sub.Exchange, err)
	}
	if err := ch.QueueBind(sub.Queue, "", sub.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s: %w", sub.Queue, sub.Exchange, err)
	}
	return nil
}

func toDelivery(queue string, d amqp.Delivery) Delivery {
	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		switch val := v.(type) {
		case string:
			headers[k] = val
		case []byte:
			headers[k] = string(val)
		default:
			headers[k] = fmt.Sprint(val)
		}
	}
	if d.CorrelationId != "" {
		headers["correlation_id"] = d.CorrelationId
	}
	typ := strings.TrimSpace(d.Type)
	if typ == "" {
		typ = typeFromHeaders(headers, HeaderEventType)
	}
	return Delivery{
		Queue:       queue,
		MessageID:   d.MessageId,
		Type:        typ,
		Headers:     headers,
		Body:        d.Body,
		Redelivered: d.Redelivered,
	}
}

func (r *RabbitMQ) setConn(conn *amqp.Connection) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() {
		return nil
	}
	return r.conn.Close()
}

func isTransient(err error) bool {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Recover
	}
	return errors.Is(err, amqp.ErrClosed)
}
