// Package notification holds notification channels that need no broker.
package notification

import (
	"context"

	domnotif "github.com/Zhima-Mochi/freshcut/internal/domain/notification"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	"github.com/Zhima-Mochi/freshcut/internal/observability/logctx"
)

// LogChannel writes each message, with its share link, to the log. It is the
// channel used when no broker is configured.
type LogChannel struct {
	log observability.Logger
}

func NewLogChannel(logger observability.Logger) *LogChannel {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogChannel{log: logger.With(observability.F("component", "log_channel"))}
}

func (c *LogChannel) Deliver(ctx context.Context, m domnotif.Message) error {
	logctx.FromOr(ctx, c.log).Info("notification_logged",
		observability.F("order_id", m.OrderID),
		observability.F("phone", m.Phone),
		observability.F("text", m.Text),
		observability.F("share_link", domnotif.ShareLink(m.Phone, m.Text)),
	)
	return nil
}
