package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBus_FansOutToEverySubscriber(t *testing.T) {
	bus := NewBus(nil, Options{})
	var a, b atomic.Int32
	bus.Subscribe("order.paid", func(context.Context, domoutbox.Event) error { a.Add(1); return nil })
	bus.Subscribe("order.paid", func(context.Context, domoutbox.Event) error { b.Add(1); return nil })
	bus.Subscribe("order.cancelled", func(context.Context, domoutbox.Event) error {
		t.Error("unexpected delivery")
		return nil
	})
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{"order.paid"}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{"order.paid"}))
	require.NoError(t, bus.Publish(context.Background(), testEvent{"unknown"}))
	bus.Stop(context.Background())

	assert.Equal(t, int32(2), a.Load())
	assert.Equal(t, int32(2), b.Load())
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewBus(nil, Options{})
	var ok atomic.Int32
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error { panic("boom") })
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error { return errors.New("nope") })
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error { ok.Add(1); return nil })
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), testEvent{"e"}))
	bus.Stop(context.Background())
	assert.Equal(t, int32(1), ok.Load())
}

func TestBus_HandlerDeadline(t *testing.T) {
	bus := NewBus(nil, Options{HandlerTimeout: 10 * time.Millisecond})
	var sawDeadline atomic.Bool
	bus.Subscribe("e", func(ctx context.Context, _ domoutbox.Event) error {
		<-ctx.Done()
		sawDeadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	bus.Start(context.Background())
	require.NoError(t, bus.Publish(context.Background(), testEvent{"e"}))
	bus.Stop(context.Background())
	assert.True(t, sawDeadline.Load())
}

func TestBus_PublishAfterStop(t *testing.T) {
	bus := NewBus(nil, Options{})
	bus.Start(context.Background())
	bus.Stop(context.Background())
	bus.Stop(context.Background())

	assert.ErrorIs(t, bus.Publish(context.Background(), testEvent{"e"}), ErrBusStopped)
}

func TestBus_PublishHonoursContextWhenFull(t *testing.T) {
	bus := NewBus(nil, Options{QueueSize: 1})
	require.NoError(t, bus.Publish(context.Background(), testEvent{"e"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, testEvent{"e"}), context.DeadlineExceeded)
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	bus := NewBus(nil, Options{QueueSize: 8})
	var n atomic.Int32
	bus.Subscribe("e", func(context.Context, domoutbox.Event) error { n.Add(1); return nil })
	bus.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, bus.Publish(context.Background(), testEvent{"e"}))
		}()
	}
	wg.Wait()
	bus.Stop(context.Background())
	assert.Equal(t, int32(50), n.Load())
}
