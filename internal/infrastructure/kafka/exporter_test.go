package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

type capturingSubscriber struct{ names []string }

func (s *capturingSubscriber) Subscribe(name string, _ domoutbox.Handler) {
	s.names = append(s.names, name)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))

	_, err := NewWriter(nil, "")
	assert.ErrorIs(t, err, ErrDisabled)

	w, err := NewWriter([]string{"a:9092"}, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, w.Topic)
}

func TestExport(t *testing.T) {
	w := &memWriter{}
	e := NewExporter(w, nil)

	require.NoError(t, e.Export(context.Background(), domorder.PaidEvent{OrderID: "o-1", Number: 7, PaymentRef: "pay_1", Total: 450}))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "o-1", string(msg.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, "order.paid", env.Event)
	assert.Equal(t, "o-1", env.Key)

	var paid domorder.PaidEvent
	require.NoError(t, json.Unmarshal(env.Payload, &paid))
	assert.Equal(t, int64(450), paid.Total)
}

func TestHandleSwallowsWriteErrors(t *testing.T) {
	e := NewExporter(&memWriter{err: errors.New("leader not available")}, nil)
	assert.Error(t, e.Export(context.Background(), domorder.CancelledEvent{OrderID: "o-1"}))
	assert.NoError(t, e.handle(context.Background(), domorder.CancelledEvent{OrderID: "o-1"}))
}

func TestRegister(t *testing.T) {
	sub := &capturingSubscriber{}
	NewExporter(&memWriter{}, nil).Register(sub)
	assert.ElementsMatch(t, ExportedEvents, sub.names)
}
