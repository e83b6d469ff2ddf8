package order

// OrderState implements the state pattern for the payment lifecycle.
// pending → paid | cancelled; both are terminal.
type OrderState interface {
	Status() Status
	OnPaid(o *Order, paymentRef string) (OrderState, error)
	OnCancelled(o *Order, reason string) (OrderState, error)
}

func stateFor(s Status) OrderState {
	switch s {
	case StatusPaid:
		return paidState{}
	case StatusCancelled:
		return cancelledState{}
	default:
		return pendingState{}
	}
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaid(o *Order, paymentRef string) (OrderState, error) {
	o.PaymentRef = paymentRef
	return paidState{}, nil
}

func (pendingState) OnCancelled(o *Order, reason string) (OrderState, error) {
	o.CancelReason = reason
	return cancelledState{}, nil
}

type paidState struct{}

func (paidState) Status() Status { return StatusPaid }

func (paidState) OnPaid(o *Order, paymentRef string) (OrderState, error) {
	if o.PaymentRef != paymentRef {
		return nil, ErrPaymentRefMismatch
	}
	return paidState{}, nil
}

func (paidState) OnCancelled(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

type cancelledState struct{}

func (cancelledState) Status() Status { return StatusCancelled }

func (cancelledState) OnPaid(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (cancelledState) OnCancelled(*Order, string) (OrderState, error) {
	return cancelledState{}, nil
}
