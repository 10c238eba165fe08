package consumer

import (
	"context"
	"errors"

	"github.com/smallbiznis/notifier/internal/broker"
	"github.com/smallbiznis/notifier/internal/dispatch"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("consumer",
	fx.Provide(provideHandler),
	fx.Provide(NewRouter),
	fx.Invoke(Run),
)

func provideHandler(d *dispatch.Dispatcher) EventHandler {
	return d.Handle
}

// Run starts consuming on fx start. On stop it cancels the consumer and waits
// for in-flight messages to settle; a consumer that exits on its own stops the app.
func Run(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.Logger, c broker.Consumer, router *Router) {
	log = log.Named("consumer")
	done := make(chan struct{})
	var cancel context.CancelFunc = func() {}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			subs := router.Subscriptions()

			go func() {
				defer close(done)
				err := c.Consume(ctx, subs)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					log.Error("consumer stopped", zap.Error(err))
				} else {
					log.Warn("consumer stopped unexpectedly")
				}
				_ = shutdowner.Shutdown(fx.ExitCode(1))
			}()
			log.Info("consumer started", zap.Int("subscriptions", len(subs)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				log.Info("consumer drained")
				return nil
			case <-ctx.Done():
				return errors.Join(errors.New("consumer: in-flight messages did not settle before shutdown"), ctx.Err())
			}
		},
	})
}
