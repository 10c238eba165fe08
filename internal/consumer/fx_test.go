package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/notifier/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type fakeConsumer struct {
	started chan []broker.Subscription
	err     error
}

func (f *fakeConsumer) Consume(ctx context.Context, subs []broker.Subscription) error {
	f.started <- subs
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeShutdowner struct {
	calls atomic.Int32
}

func (s *fakeShutdowner) Shutdown(...fx.ShutdownOption) error {
	s.calls.Add(1)
	return nil
}

func TestRunStartsAndDrainsConsumer(t *testing.T) {
	r, _ := newRouter(t, &recorder{})
	c := &fakeConsumer{started: make(chan []broker.Subscription, 1)}
	sd := &fakeShutdowner{}
	lc := fxtest.NewLifecycle(t)

	Run(lc, sd, zap.NewNop(), c, r)
	lc.RequireStart()

	select {
	case subs := <-c.started:
		assert.Len(t, subs, 3)
	case <-time.After(time.Second):
		t.Fatal("consumer did not start")
	}

	lc.RequireStop()
	assert.Zero(t, sd.calls.Load())
}

func TestRunShutsDownWhenConsumerFails(t *testing.T) {
	r, _ := newRouter(t, &recorder{})
	c := &fakeConsumer{started: make(chan []broker.Subscription, 1), err: errors.New("access refused")}
	sd := &fakeShutdowner{}
	lc := fxtest.NewLifecycle(t)

	Run(lc, sd, zap.NewNop(), c, r)
	lc.RequireStart()

	require.Eventually(t, func() bool { return sd.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	lc.RequireStop()
}
