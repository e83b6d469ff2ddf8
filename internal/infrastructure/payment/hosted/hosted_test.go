package hosted

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	dompay "github.com/Zhima-Mochi/freshcut/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWidgetLoad(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}))
	defer ok.Close()
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	loaded, err := NewWidget(ok.URL, nil).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)

	loaded, err = NewWidget(missing.URL, nil).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = NewWidget("", nil).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)
}

func TestWidgetLoad_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	loaded, err := NewWidget(url, nil).Load(context.Background())
	assert.Error(t, err)
	assert.False(t, loaded)
}

func TestWidgetDelivery(t *testing.T) {
	w := NewWidget("", nil)
	var successes, dismissals atomic.Int32
	var last dompay.Response

	err := w.Open(context.Background(), dompay.Options{OrderID: "o-1", AmountMinorUnits: 100},
		func(_ context.Context, r dompay.Response) { successes.Add(1); last = r },
		func(context.Context) { dismissals.Add(1) },
	)
	require.NoError(t, err)

	opts, ok := w.Options("o-1")
	require.True(t, ok)
	assert.Equal(t, int64(100), opts.AmountMinorUnits)

	require.NoError(t, w.DeliverDismiss(context.Background(), "o-1"))
	require.NoError(t, w.DeliverSuccess(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1"}))
	require.NoError(t, w.DeliverSuccess(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1"}))
	assert.Equal(t, int32(2), successes.Load())
	assert.Equal(t, int32(1), dismissals.Load())
	assert.Equal(t, "o-1", last.OrderID)

	assert.ErrorIs(t, w.DeliverSuccess(context.Background(), "o-2", dompay.Response{}), dompay.ErrSessionNotFound)

	w.Close("o-1")
	assert.ErrorIs(t, w.DeliverDismiss(context.Background(), "o-1"), dompay.ErrSessionNotFound)
}

func TestWidgetPrune(t *testing.T) {
	w := NewWidget("", nil)
	require.NoError(t, w.Open(context.Background(), dompay.Options{OrderID: "o-1"}, nil, nil))
	assert.Equal(t, 0, w.Prune(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, w.Prune(time.Now().Add(time.Second)))
	_, ok := w.Options("o-1")
	assert.False(t, ok)
}

func TestSignatureVerifier(t *testing.T) {
	v := NewSignatureVerifier("s3cret")
	sig := v.Sign("o-1", "pay_1")

	assert.NoError(t, v.Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1", Signature: sig}))
	assert.ErrorIs(t, v.Verify(context.Background(), "o-2", dompay.Response{PaymentRef: "pay_1", Signature: sig}), dompay.ErrUnverified)
	assert.ErrorIs(t, v.Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_2", Signature: sig}), dompay.ErrUnverified)
	assert.ErrorIs(t, v.Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1", Signature: "zz"}), dompay.ErrUnverified)
	assert.ErrorIs(t, v.Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1"}), dompay.ErrUnverified)
	assert.ErrorIs(t, NewSignatureVerifier("").Verify(context.Background(), "o-1", dompay.Response{PaymentRef: "pay_1", Signature: sig}), dompay.ErrUnverified)
}
