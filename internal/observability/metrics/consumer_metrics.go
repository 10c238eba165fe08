package metrics

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispositions a consumer applies to a broker message.
const (
	DispositionAck     = "ack"
	DispositionReject  = "reject"
	DispositionRequeue = "requeue"
)

// ConsumerMetrics captures broker consumption and dispatch health.
type ConsumerMetrics struct {
	messages         *prometheus.CounterVec
	handleDuration   *prometheus.HistogramVec
	dispatchDuration *prometheus.HistogramVec
	deliveries       *prometheus.CounterVec
	inFlight         *prometheus.GaugeVec
}

var (
	consumerMetricsOnce sync.Once
	consumerMetrics     *ConsumerMetrics
)

// Consumer returns the process-wide consumer metrics registered on the default registerer.
func Consumer() *ConsumerMetrics {
	return ConsumerWithConfig(Config{})
}

// ConsumerWithConfig returns the singleton consumer metrics using config labels.
func ConsumerWithConfig(cfg Config) *ConsumerMetrics {
	consumerMetricsOnce.Do(func() {
		consumerMetrics = NewConsumerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return consumerMetrics
}

// ResetConsumerMetricsForTest resets the consumer metrics singleton for tests.
func ResetConsumerMetricsForTest() {
	consumerMetricsOnce = sync.Once{}
	consumerMetrics = nil
}

// NewConsumerMetrics registers a fresh set of collectors on registerer.
func NewConsumerMetrics(registerer prometheus.Registerer, cfg Config) *ConsumerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	m := &ConsumerMetrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "notifier_consumer_messages_total",
			Help:        "Broker messages by queue and the disposition applied to them.",
			ConstLabels: constLabels,
		}, []string{"queue", "disposition"}),
		handleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "notifier_consumer_handle_duration_seconds",
			Help:        "Time from delivery to disposition per queue.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"queue"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "notifier_dispatch_duration_seconds",
			Help:        "Render, persist and deliver latency per notification type.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"notification_type"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "notifier_gateway_deliveries_total",
			Help:        "Email gateway calls by provider and result.",
			ConstLabels: constLabels,
		}, []string{"provider", "result"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "notifier_consumer_in_flight",
			Help:        "Messages currently being handled per queue.",
			ConstLabels: constLabels,
		}, []string{"queue"}),
	}

	m.messages = register(registerer, m.messages)
	m.handleDuration = register(registerer, m.handleDuration)
	m.dispatchDuration = register(registerer, m.dispatchDuration)
	m.deliveries = register(registerer, m.deliveries)
	m.inFlight = register(registerer, m.inFlight)
	return m
}

func (m *ConsumerMetrics) IncMessage(queue, disposition string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(normalizeLabel(queue), normalizeLabel(disposition)).Inc()
}

func (m *ConsumerMetrics) ObserveHandle(queue string, d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.WithLabelValues(normalizeLabel(queue)).Observe(d.Seconds())
}

func (m *ConsumerMetrics) ObserveDispatch(notificationType string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(normalizeLabel(notificationType)).Observe(d.Seconds())
}

func (m *ConsumerMetrics) IncDelivery(provider, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

// TrackInFlight increments the in-flight gauge and returns the matching decrement.
func (m *ConsumerMetrics) TrackInFlight(queue string) func() {
	if m == nil {
		return func() {}
	}
	g := m.inFlight.WithLabelValues(normalizeLabel(queue))
	g.Inc()
	return g.Dec
}

func serviceLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "notifier"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{"service": serviceName, "env": environment}
}

// register returns the already-registered collector when an identical one exists.
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
