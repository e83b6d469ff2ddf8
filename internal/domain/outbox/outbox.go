// Package outbox defines the in-process event boundary between the checkout
// flow and its best-effort followers (billing, notification, export).
package outbox

import "context"

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Keyed events belong to one aggregate. Consumers use the key for ordering
// and log correlation.
type Keyed interface {
	Event
	AggregateID() string
}

// KeyOf returns the aggregate id of e, or its name when e is not Keyed.
func KeyOf(e Event) string {
	if k, ok := e.(Keyed); ok && k.AggregateID() != "" {
		return k.AggregateID()
	}
	return e.EventName()
}

type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
