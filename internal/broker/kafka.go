package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/notifier/internal/observability/metrics"
	"go.uber.org/zap"
)

// Kafka consumes topics as a consumer group. Partitions are handled in
// parallel and messages within a partition in order; a requeued message is
// retried in place with backoff so later offsets never overtake it.
type Kafka struct {
	group  sarama.ConsumerGroup
	opts   Options
	runner runner
}

func NewKafka(brokers []string, name string, opts Options, log *zap.Logger, m *metrics.ConsumerMetrics) (*Kafka, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = name
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.ChannelBufferSize = opts.prefetch()

	group, err := sarama.NewConsumerGroup(brokers, opts.ConsumerGroup, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	return &Kafka{group: group, opts: opts, runner: newRunner("kafka", log, m, opts)}, nil
}

func (k *Kafka) Consume(ctx context.Context, subs []Subscription) error {
	handler := &groupHandler{kafka: k, subs: make(map[string]Subscription, len(subs))}
	topics := make([]string, 0, len(subs))
	for _, sub := range subs {
		handler.subs[sub.Queue] = sub
		topics = append(topics, sub.Queue)
	}

	go func() {
		for err := range k.group.Errors() {
			k.runner.log.Warn("kafka consumer error", zap.Error(err))
		}
	}()

	k.runner.log.Info("consuming topics", zap.Strings("topics", topics), zap.String("group", k.opts.ConsumerGroup))
	for {
		// Consume returns on every rebalance.
		if err := k.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("kafka consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (k *Kafka) Close() error {
	return k.group.Close()
}

type groupHandler struct {
	kafka *Kafka
	subs  map[string]Subscription
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	sub, ok := h.subs[claim.Topic()]
	if !ok {
		return fmt.Errorf("no subscription for topic %s", claim.Topic())
	}
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if h.process(ctx, sub, msg) {
				sess.MarkMessage(msg, "")
			}
		}
	}
}

// process reports whether the offset may be committed.
func (h *groupHandler) process(ctx context.Context, sub Subscription, msg *sarama.ConsumerMessage) bool {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxInterval = 30 * time.Second

	attempt := 0
	_, err := backoff.Retry(ctx, func() (string, error) {
		d := kafkaDelivery(msg)
		d.Redelivered = attempt > 0
		attempt++
		disposition := h.kafka.runner.handle(ctx, sub, d)
		if disposition == metrics.DispositionRequeue {
			return disposition, errRequeue
		}
		return disposition, nil
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxElapsedTime(0),
	)
	return err == nil
}

var errRequeue = errors.New("broker: message requeued")

func kafkaDelivery(msg *sarama.ConsumerMessage) Delivery {
	headers := make(map[string]string, len(msg.Headers))
	for _, rh := range msg.Headers {
		if rh == nil {
			continue
		}
		headers[string(rh.Key)] = string(rh.Value)
	}
	return Delivery{
		Queue:     msg.Topic,
		MessageID: msg.Topic + "/" + strconv.Itoa(int(msg.Partition)) + "/" + strconv.FormatInt(msg.Offset, 10),
		Type:      typeFromHeaders(headers, HeaderKafkaType, HeaderEventType),
		Headers:   headers,
		Body:      msg.Value,
	}
}
