// Package rabbitmq hands customer notifications to an outbound queue that a
// messaging gateway consumes.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domnotif "github.com/Zhima-Mochi/freshcut/internal/domain/notification"

	amqp "github.com/rabbitmq/amqp091-go"
)

const NotificationQueue = "notifications.outbound"

// Channel publishes notifications to a durable queue on the default exchange.
type Channel struct {
	conn  *amqp.Connection
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

// Dial connects to url and declares queue (NotificationQueue when empty).
func Dial(url, queue string) (*Channel, error) {
	if queue == "" {
		queue = NotificationQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare queue %s: %w", queue, err)
	}
	return &Channel{conn: conn, ch: ch, queue: queue}, nil
}

func (c *Channel) Queue() string { return c.queue }

// Deliver publishes m as a persistent JSON message keyed by its order id.
func (c *Channel) Deliver(ctx context.Context, m domnotif.Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal notification: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.ch.PublishWithContext(ctx,
		"",      // exchange
		c.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    m.OrderID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", c.queue, err)
	}
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
