// Package checkout runs a cart through order creation, payment and the
// paid-order side effects.
package checkout

import (
	appcart "github.com/Zhima-Mochi/freshcut/internal/application/cart"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
)

// CheckoutContext is everything a payment callback needs about the checkout
// that opened the widget. It is a value: callbacks get a copy and never see
// later changes to the cart or the order.
type CheckoutContext struct {
	Owner    appcart.Owner
	OrderID  string
	Number   int64
	Total    int64
	Customer domorder.Customer
	Options  dompay.Options
}

func newCheckoutContext(owner appcart.Owner, o *domorder.Order, opts dompay.Options) CheckoutContext {
	return CheckoutContext{
		Owner:    owner,
		OrderID:  o.ID,
		Number:   o.Number,
		Total:    o.Total(),
		Customer: o.Customer,
		Options:  opts,
	}
}
