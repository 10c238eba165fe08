package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/smallbiznis/notifier/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// JetStream consumes subjects through durable pull consumers.
// Each subscription queue is used as the subject; its exchange names the stream.
type JetStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	opts   Options
	runner runner
}

func NewJetStream(url, name string, opts Options, log *zap.Logger, m *metrics.ConsumerMetrics) (*JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &JetStream{
		nc:     nc,
		js:     js,
		opts:   opts,
		runner: newRunner("nats", log, m, opts),
	}, nil
}

func (j *JetStream) Consume(ctx context.Context, subs []Subscription) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}
	for _, sub := range subs {
		cons, err := j.consumer(gctx, sub)
		if err != nil {
			return abort(err)
		}
		it, err := cons.Messages(jetstream.PullMaxMessages(j.opts.prefetch()))
		if err != nil {
			return abort(fmt.Errorf("pull %s: %w", sub.Queue, err))
		}
		msgs := make(chan jetstream.Msg)
		g.Go(func() error {
			defer close(msgs)
			return j.fetch(gctx, sub, it, msgs)
		})

		j.runner.log.Info("consuming subject",
			zap.String("subject", sub.Queue),
			zap.Int("workers", j.opts.workers()),
		)
		for i := 0; i < j.opts.workers(); i++ {
			g.Go(func() error {
				j.work(gctx, sub, msgs)
				return nil
			})
		}
	}
	return g.Wait()
}

func (j *JetStream) consumer(ctx context.Context, sub Subscription) (jetstream.Consumer, error) {
	stream := streamName(sub)
	if j.opts.DeclareTopology {
		if _, err := j.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     stream,
			Subjects: []string{sub.Queue},
			Storage:  jetstream.FileStorage,
		}); err != nil {
			return nil, fmt.Errorf("declare stream %s: %w", stream, err)
		}
	}
	cons, err := j.js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durableName(j.opts.ConsumerGroup, sub.Queue),
		FilterSubject: sub.Queue,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: j.opts.prefetch(),
	})
	if err != nil {
		return nil, fmt.Errorf("declare consumer on %s: %w", stream, err)
	}
	return cons, nil
}

// fetch feeds msgs from a single iterator; MessagesContext is not shared between goroutines.
func (j *JetStream) fetch(ctx context.Context, sub Subscription, it jetstream.MessagesContext, msgs chan<- jetstream.Msg) error {
	go func() {
		<-ctx.Done()
		it.Stop()
	}()
	for {
		msg, err := it.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || ctx.Err() != nil {
				return nil
			}
			j.runner.log.Warn("fetch message failed", zap.String("subject", sub.Queue), zap.Error(err))
			continue
		}
		select {
		case msgs <- msg:
		case <-ctx.Done():
			// unacked; redelivered after AckWait
			return nil
		}
	}
}

func (j *JetStream) work(ctx context.Context, sub Subscription, msgs <-chan jetstream.Msg) {
	for msg := range msgs {
		disposition := j.runner.handle(ctx, sub, jetStreamDelivery(sub.Queue, msg))
		var err error
		switch disposition {
		case metrics.DispositionAck:
			err = msg.Ack()
		case metrics.DispositionReject:
			err = msg.Term()
		default:
			err = msg.Nak()
		}
		if err != nil {
			j.runner.log.Warn("settle message failed",
				zap.String("subject", sub.Queue),
				zap.String("disposition", disposition),
				zap.Error(err),
			)
		}
	}
}

func jetStreamDelivery(subject string, msg jetstream.Msg) Delivery {
	headers := make(map[string]string)
	for k, v := range msg.Headers() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	d := Delivery{
		Queue:     subject,
		MessageID: headers[nats.MsgIdHdr],
		Type:      typeFromHeaders(headers, HeaderNATSEventType, HeaderEventType),
		Headers:   headers,
		Body:      msg.Data(),
	}
	if meta, err := msg.Metadata(); err == nil {
		d.Redelivered = meta.NumDelivered > 1
		if d.MessageID == "" {
			d.MessageID = strconv.FormatUint(meta.Sequence.Stream, 10)
		}
	}
	return d
}

func (j *JetStream) Close() error {
	if j.nc == nil {
		return nil
	}
	return j.nc.Drain()
}

func streamName(sub Subscription) string {
	name := sub.Exchange
	if strings.TrimSpace(name) == "" {
		name = sub.Queue
	}
	return sanitizeName(name)
}

func durableName(group, queue string) string {
	if group == "" {
		return sanitizeName(queue)
	}
	return sanitizeName(group + "-" + queue)
}

// sanitizeName makes a JetStream stream or consumer name from a subject.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '/', '\\':
			return '-'
		}
		return r
	}, s)
}
