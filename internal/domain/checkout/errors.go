// Package checkout holds the error taxonomy shared by the checkout pipeline.
package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("checkout: validation failed")
	ErrPaymentFailure      = errors.New("checkout: payment failure")
	ErrUnverifiedPayment   = errors.New("checkout: unverified payment")
	ErrPersistence         = errors.New("checkout: persistence failure")
	ErrInventoryConflict   = errors.New("checkout: inventory conflict")
	ErrArtifactGeneration  = errors.New("checkout: billing artifact generation failed")
	ErrNotification        = errors.New("checkout: notification failed")
	ErrNeedsReconciliation = errors.New("checkout: paid order needs manual reconciliation")
)

// Validation wraps msg as an ErrValidation.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// ReconciliationError reports a store failure that happened after the
// provider had already taken the money.
type ReconciliationError struct {
	OrderID    string
	PaymentRef string
	Stage      string
	Err        error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("checkout: order %s paid with %s needs reconciliation (%s): %v",
		e.OrderID, e.PaymentRef, e.Stage, e.Err)
}

func (e *ReconciliationError) Unwrap() []error {
	return []error{ErrPersistence, ErrNeedsReconciliation, e.Err}
}
