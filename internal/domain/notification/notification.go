// Package notification describes outbound customer messages.
package notification

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

var (
	ErrQueueFull  = errors.New("notification: queue full")
	ErrNoPhone    = errors.New("notification: recipient phone is empty")
	ErrNotStarted = errors.New("notification: dispatcher not running")
)

type Message struct {
	OrderID string `json:"order_id"`
	Phone   string `json:"phone"`
	Text    string `json:"text"`
}

// Channel delivers one message. Delivery receipts are not consumed.
type Channel interface {
	Deliver(ctx context.Context, m Message) error
}

// ShareLink builds a WhatsApp click-to-chat link carrying text for phone.
// Non-digit characters are stripped from the phone number.
func ShareLink(phone, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(text)
}
