package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWidget struct {
	loadOK    bool
	loadErr   error
	loadDelay time.Duration
	openErr   error
	opened    []dompay.Options
}

func (w *fakeWidget) Load(ctx context.Context) (bool, error) {
	if w.loadDelay > 0 {
		select {
		case <-time.After(w.loadDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return w.loadOK, w.loadErr
}

func (w *fakeWidget) Open(_ context.Context, opts dompay.Options, _ func(context.Context, dompay.Response), _ func(context.Context)) error {
	w.opened = append(w.opened, opts)
	return w.openErr
}

type rejectingVerifier struct{}

func (rejectingVerifier) Verify(context.Context, string, dompay.Response) error {
	return dompay.ErrUnverified
}

func TestEnsureWidgetLoaded(t *testing.T) {
	cases := []struct {
		name   string
		widget *fakeWidget
		ok     bool
	}{
		{name: "loaded", widget: &fakeWidget{loadOK: true}, ok: true},
		{name: "unavailable", widget: &fakeWidget{loadOK: false}},
		{name: "error", widget: &fakeWidget{loadErr: errors.New("dns")}},
		{name: "timeout", widget: &fakeWidget{loadOK: true, loadDelay: time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := NewOrchestrator(tc.widget, nil, Config{LoadTimeout: 20 * time.Millisecond}, nil)
			ok, err := o.EnsureWidgetLoaded(context.Background())
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, checkout.ErrPaymentFailure)
		})
	}
}

func TestEnsureWidgetLoaded_NoWidget(t *testing.T) {
	o := NewOrchestrator(nil, nil, Config{}, nil)
	_, err := o.EnsureWidgetLoaded(context.Background())
	assert.ErrorIs(t, err, checkout.ErrPaymentFailure)
	assert.ErrorIs(t, err, dompay.ErrWidgetUnavailable)
}

func TestOptionsFor(t *testing.T) {
	o := NewOrchestrator(&fakeWidget{}, nil, Config{KeyID: "key_1", ShopName: "Fresh Cuts", ThemeColor: "#b71c1c"}, nil)
	ord := &domorder.Order{
		ID:       "o-1",
		Number:   42,
		Lines:    []cart.Line{{ProductID: "p", WeightGrams: 750, ComputedPrice: 225, Quantity: 2}},
		Customer: domorder.Customer{Name: "Asha", Phone: "9800000000"},
	}

	opts := o.OptionsFor(ord)
	assert.Equal(t, int64(45000), opts.AmountMinorUnits)
	assert.Equal(t, "INR", opts.Currency)
	assert.Equal(t, "key_1", opts.KeyID)
	assert.Equal(t, "Fresh Cuts #42", opts.Description)
	assert.Equal(t, "Asha", opts.Prefill.Name)
	assert.Equal(t, "9800000000", opts.Prefill.Phone)
	assert.Equal(t, "#b71c1c", opts.Theme.Color)
}

func TestOpen(t *testing.T) {
	w := &fakeWidget{}
	o := NewOrchestrator(w, nil, Config{}, nil)

	require.NoError(t, o.Open(context.Background(), dompay.Options{OrderID: "o-1", AmountMinorUnits: 100}, nil, nil))
	assert.Len(t, w.opened, 1)

	err := o.Open(context.Background(), dompay.Options{OrderID: "o-1"}, nil, nil)
	assert.ErrorIs(t, err, checkout.ErrValidation)

	w.openErr = errors.New("popup blocked")
	err = o.Open(context.Background(), dompay.Options{OrderID: "o-1", AmountMinorUnits: 100}, nil, nil)
	assert.ErrorIs(t, err, checkout.ErrPaymentFailure)
}

func TestVerify(t *testing.T) {
	trusting := NewOrchestrator(&fakeWidget{}, nil, Config{}, nil)
	assert.NoError(t, trusting.Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1"}))
	assert.ErrorIs(t, trusting.Verify(context.Background(), "o-1", dompay.Response{}), checkout.ErrUnverifiedPayment)
	assert.ErrorIs(t,
		trusting.Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1", OrderID: "o-2"}),
		checkout.ErrUnverifiedPayment)

	strict := NewOrchestrator(&fakeWidget{}, rejectingVerifier{}, Config{}, nil)
	err := strict.Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1"})
	assert.ErrorIs(t, err, checkout.ErrUnverifiedPayment)
	assert.ErrorIs(t, err, dompay.ErrUnverified)
}
