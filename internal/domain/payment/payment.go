// Package payment describes the external payment widget boundary and the
// server-side check applied to the references it reports.
package payment

import (
	"context"
	"errors"
)

var (
	ErrWidgetUnavailable = errors.New("payment: widget unavailable")
	ErrUnverified        = errors.New("payment: reference could not be verified")
	ErrSessionNotFound   = errors.New("payment: no open session for order")
)

type Prefill struct {
	Name  string `json:"name"`
	Phone string `json:"contact"`
	Email string `json:"email,omitempty"`
}

type Theme struct {
	Color string `json:"color,omitempty"`
}

// Options configures one widget session. AmountMinorUnits is already in the
// provider's minor unit.
type Options struct {
	OrderID          string  `json:"order_id"`
	KeyID            string  `json:"key,omitempty"`
	AmountMinorUnits int64   `json:"amount"`
	Currency         string  `json:"currency"`
	Description      string  `json:"description"`
	Prefill          Prefill `json:"prefill"`
	Theme            Theme   `json:"theme"`
}

// Response is the success payload reported by the widget. Everything in it
// is unverified until a Verifier accepts it.
type Response struct {
	PaymentRef string            `json:"payment_ref"`
	OrderID    string            `json:"order_id,omitempty"`
	Signature  string            `json:"signature,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Widget is the externally controlled payment UI. Callbacks may fire zero,
// one or many times, on any goroutine.
type Widget interface {
	Load(ctx context.Context) (bool, error)
	Open(ctx context.Context, opts Options, onSuccess func(context.Context, Response), onDismiss func(context.Context)) error
}

// Verifier corroborates a widget response before an order is marked paid.
type Verifier interface {
	Verify(ctx context.Context, orderID string, resp Response) error
}

// TrustingVerifier accepts any non-empty reference. It exists for providers
// that offer no server-side check.
type TrustingVerifier struct{}

func (TrustingVerifier) Verify(_ context.Context, _ string, resp Response) error {
	if resp.PaymentRef == "" {
		return ErrUnverified
	}
	return nil
}

// MinorUnits converts whole currency units into the provider's minor unit.
func MinorUnits(whole int64) int64 {
	return whole * 100
}
