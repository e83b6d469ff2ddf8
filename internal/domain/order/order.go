package order

import (
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: conflict")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrPaymentRefMismatch     = errors.New("order: already paid with a different payment reference")
	ErrPaymentRefRequired     = errors.New("order: payment reference is required")
	ErrCustomerNameRequired   = errors.New("order: customer name is required")
	ErrCustomerPhoneRequired  = errors.New("order: customer phone is required")
	ErrEmpty                  = errors.New("order: no lines")
	ErrFulfillBeforePaid      = errors.New("order: cannot fulfil an unpaid order")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// Normalize trims every field.
func (c Customer) Normalize() Customer {
	return Customer{
		Name:  strings.TrimSpace(c.Name),
		Phone: strings.TrimSpace(c.Phone),
		Email: strings.TrimSpace(c.Email),
	}
}

func (c Customer) Validate() error {
	if c.Name == "" {
		return ErrCustomerNameRequired
	}
	if c.Phone == "" {
		return ErrCustomerPhoneRequired
	}
	return nil
}

// Order is the durable record of one checkout attempt. Fulfilled tracks
// physical handover and is independent of Status.
type Order struct {
	ID                 string
	Number             int64
	Lines              []cart.Line
	Customer           Customer
	Status             Status
	Fulfilled          bool
	PaymentRef         string
	BillingArtifactRef string
	CancelReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// New builds a pending order from a snapshot of cart lines.
func New(id string, lines []cart.Line, customer Customer) (*Order, error) {
	customer = customer.Normalize()
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmpty
	}
	now := time.Now().UTC()
	return &Order{
		ID:        id,
		Lines:     append([]cart.Line(nil), lines...),
		Customer:  customer,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o *Order) Total() int64 {
	return cart.Total(o.Lines)
}

// MarkPaid moves a pending order to paid. It reports changed=false when the
// order already carries the same payment reference.
func (o *Order) MarkPaid(paymentRef string) (changed bool, err error) {
	if strings.TrimSpace(paymentRef) == "" {
		return false, ErrPaymentRefRequired
	}
	prev := o.Status
	next, err := stateFor(o.Status).OnPaid(o, paymentRef)
	if err != nil {
		return false, err
	}
	o.Status = next.Status()
	if prev == o.Status {
		return false, nil
	}
	o.touch()
	return true, nil
}

// Cancel moves a pending order to cancelled. Cancelling twice is a no-op.
func (o *Order) Cancel(reason string) (changed bool, err error) {
	prev := o.Status
	next, err := stateFor(o.Status).OnCancelled(o, reason)
	if err != nil {
		return false, err
	}
	o.Status = next.Status()
	if prev == o.Status {
		return false, nil
	}
	o.touch()
	return true, nil
}

// SetFulfilled toggles the handover flag. When requirePaid is set, only paid
// orders may be marked fulfilled.
func (o *Order) SetFulfilled(value, requirePaid bool) error {
	if value && requirePaid && o.Status != StatusPaid {
		return ErrFulfillBeforePaid
	}
	o.Fulfilled = value
	o.touch()
	return nil
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Lines = append([]cart.Line(nil), o.Lines...)
	return &cp
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
