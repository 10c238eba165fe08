package broker

import (
	"context"
	"fmt"

	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("broker",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
	Metrics   *metrics.ConsumerMetrics `optional:"true"`
}

// New builds the consumer for BROKER_DRIVER and closes it on stop.
func New(p Params) (Consumer, error) {
	opts := OptionsFromConfig(p.Cfg.Broker)
	name := p.Cfg.AppName

	var (
		c   Consumer
		err error
	)
	switch p.Cfg.Broker.Driver {
	case config.BrokerRabbitMQ:
		c = NewRabbitMQ(p.Cfg.Broker.URL, name, opts, p.Log, p.Metrics)
	case config.BrokerNATS:
		c, err = NewJetStream(p.Cfg.Broker.URL, name, opts, p.Log, p.Metrics)
	case config.BrokerKafka:
		c, err = NewKafka(p.Cfg.Broker.KafkaBrokers, name, opts, p.Log, p.Metrics)
	default:
		return nil, fmt.Errorf("broker: unsupported driver %q", p.Cfg.Broker.Driver)
	}
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}
