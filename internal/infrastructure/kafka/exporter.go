// Package kafka exports domain events to a Kafka topic for downstream
// consumers such as analytics and accounting.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	dominv "github.com/Zhima-Mochi/freshcut/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "freshcut.events"
	kafkaPeer    = "kafka"
)

var ErrDisabled = errors.New("kafka: no brokers configured")

// Writer is the part of *kafka.Writer the exporter uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewWriter returns a hash-balanced writer so every event of one order lands
// on the same partition.
func NewWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, ErrDisabled
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}, nil
}

// Envelope is the wire format of an exported event.
type Envelope struct {
	Event      string          `json:"event"`
	Key        string          `json:"key"`
	ExportedAt time.Time       `json:"exported_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Exporter forwards bus events to Kafka. Export failures are logged and
// never reach the publisher.
type Exporter struct {
	writer Writer
	log    observability.Logger

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewExporter(writer Writer, tel observability.Observability) *Exporter {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Exporter{
		writer:       writer,
		log:          tel.Logger().With(observability.F("component", "kafka_exporter")),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// ExportedEvents are the event names Register subscribes to by default.
var ExportedEvents = []string{
	domorder.PaidEvent{}.EventName(),
	domorder.CancelledEvent{}.EventName(),
	dominv.StockDecrementedEvent{}.EventName(),
	dominv.DecrementFailedEvent{}.EventName(),
}

func (e *Exporter) Register(sub domoutbox.Subscriber, events ...string) {
	if len(events) == 0 {
		events = ExportedEvents
	}
	for _, name := range events {
		sub.Subscribe(name, e.handle)
	}
}

func (e *Exporter) handle(ctx context.Context, ev domoutbox.Event) error {
	if err := e.Export(ctx, ev); err != nil {
		logctx.FromOr(ctx, e.log).Warn("event_export_failed",
			observability.F("event", ev.EventName()),
			observability.F("error", err.Error()),
		)
	}
	return nil
}

// Export writes ev to Kafka keyed by its aggregate id.
func (e *Exporter) Export(ctx context.Context, ev domoutbox.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal %s: %w", ev.EventName(), err)
	}
	key := domoutbox.KeyOf(ev)
	value, err := json.Marshal(Envelope{
		Event:      ev.EventName(),
		Key:        key,
		ExportedAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("kafka: marshal envelope: %w", err)
	}

	start := time.Now()
	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.EventName())},
		},
	})
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.extCounter.Add(1,
		observability.L("peer", kafkaPeer),
		observability.L("endpoint", ev.EventName()),
		observability.L("outcome", outcome),
	)
	e.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", kafkaPeer),
		observability.L("endpoint", ev.EventName()),
	)
	if err != nil {
		return fmt.Errorf("kafka: write %s: %w", ev.EventName(), err)
	}
	return nil
}

func (e *Exporter) Close() error {
	return e.writer.Close()
}
