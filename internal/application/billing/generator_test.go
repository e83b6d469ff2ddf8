package billing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	apporder "github.com/Zhima-Mochi/freshcut/internal/application/order"
	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domorder "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	infrabilling "github.com/Zhima-Mochi/freshcut/internal/infrastructure/billing"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type failingStorage struct{}

func (failingStorage) Upload(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket offline")
}

type capturingSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (s *capturingSubscriber) Subscribe(name string, h domoutbox.Handler) {
	if s.handlers == nil {
		s.handlers = make(map[string]domoutbox.Handler)
	}
	s.handlers[name] = h
}

type fixture struct {
	ledger  *apporder.Ledger
	storage *infrabilling.MemoryStorage
	gen     *Generator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ledger := apporder.NewLedger(memory.NewOrderRepository(), memory.NewTransactionRepository(), &seqIDs{}, nil, apporder.LedgerConfig{}, nil)
	renderer, err := infrabilling.NewHTMLRenderer(infrabilling.Shop{Name: "Fresh Cuts", Currency: "INR"})
	require.NoError(t, err)
	storage := infrabilling.NewMemoryStorage("/receipts")
	return fixture{ledger: ledger, storage: storage, gen: NewGenerator(ledger, renderer, storage, nil)}
}

func (f fixture) order(t *testing.T, paid bool) string {
	t.Helper()
	res, err := f.ledger.CreatePending(context.Background(), apporder.CreatePendingInput{
		Lines:    []cart.Line{{ProductID: "rohu", Name: "Rohu", WeightGrams: 1000, UnitPricePerKilogram: 200, ComputedPrice: 200, Quantity: 1}},
		Customer: domorder.Customer{Name: "Kiran", Phone: "9811111111"},
	})
	require.NoError(t, err)
	if paid {
		_, err = f.ledger.ConfirmPaid(context.Background(), res.OrderID, "pay_1")
		require.NoError(t, err)
	}
	return res.OrderID
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	id := f.order(t, true)

	ref, err := f.gen.Generate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "/receipts/receipt-"+id+".html", ref)

	body, ok := f.storage.Object("receipt-" + id + ".html")
	require.True(t, ok)
	assert.Contains(t, string(body), "pay_1")

	o, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ref, o.BillingArtifactRef)

	again, err := f.gen.Generate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ref, again)
}

func TestGenerate_RequiresPaidOrder(t *testing.T) {
	f := newFixture(t)
	id := f.order(t, false)

	_, err := f.gen.Generate(context.Background(), id)
	assert.ErrorIs(t, err, checkout.ErrArtifactGeneration)
	assert.ErrorIs(t, err, ErrOrderNotPaid)
}

func TestGenerate_UploadFailureLeavesRefUnset(t *testing.T) {
	f := newFixture(t)
	renderer, err := infrabilling.NewHTMLRenderer(infrabilling.Shop{Name: "Fresh Cuts"})
	require.NoError(t, err)
	gen := NewGenerator(f.ledger, renderer, failingStorage{}, nil)
	id := f.order(t, true)

	_, err = gen.Generate(context.Background(), id)
	assert.ErrorIs(t, err, checkout.ErrArtifactGeneration)

	o, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domorder.StatusPaid, o.Status)
	assert.Empty(t, o.BillingArtifactRef)
}

func TestWorker_HandlesOrderPaid(t *testing.T) {
	f := newFixture(t)
	sub := &capturingSubscriber{}
	NewWorker(sub, f.gen, nil).Start()

	h, ok := sub.handlers["order.paid"]
	require.True(t, ok)

	id := f.order(t, true)
	o, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), domorder.NewPaidEvent(o)))

	o, err = f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	assert.NotEmpty(t, o.BillingArtifactRef)

	assert.NoError(t, h(context.Background(), domorder.PaidEvent{OrderID: "missing"}))
}
