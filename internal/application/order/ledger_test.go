package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	domain "github.com/Zhima-Mochi/freshcut/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/freshcut/internal/domain/outbox"
	"github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() string {
	return fmt.Sprintf("id-%d", s.n.Add(1))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type fixture struct {
	ledger *Ledger
	orders *memory.OrderRepository
	txs    *memory.TransactionRepository
	pub    *recordingPublisher
}

func newFixture(t *testing.T, cfg LedgerConfig) fixture {
	t.Helper()
	f := fixture{
		orders: memory.NewOrderRepository(),
		txs:    memory.NewTransactionRepository(),
		pub:    &recordingPublisher{},
	}
	f.ledger = NewLedger(f.orders, f.txs, &seqIDs{}, f.pub, cfg, nil)
	return f
}

var testLines = []cart.Line{
	{ProductID: "mutton", Name: "Mutton", WeightGrams: 500, UnitPricePerKilogram: 300, ComputedPrice: 150, Quantity: 2},
}

var testCustomer = domain.Customer{Name: "Meera", Phone: "+919822222222"}

func (f fixture) pending(t *testing.T) string {
	t.Helper()
	res, err := f.ledger.CreatePending(context.Background(), CreatePendingInput{Lines: testLines, Customer: testCustomer})
	require.NoError(t, err)
	return res.OrderID
}

func TestCreatePending(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()

	res, err := f.ledger.CreatePending(ctx, CreatePendingInput{Lines: testLines, Customer: domain.Customer{Name: " Meera ", Phone: " 98 "}})
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Total)
	assert.Equal(t, int64(1), res.Number)

	got, err := f.ledger.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.False(t, got.Fulfilled)
	assert.Equal(t, "Meera", got.Customer.Name)
}

func TestCreatePending_Validation(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()

	cases := []CreatePendingInput{
		{Lines: testLines, Customer: domain.Customer{Phone: "1"}},
		{Lines: testLines, Customer: domain.Customer{Name: "A"}},
		{Customer: testCustomer},
	}
	for _, in := range cases {
		_, err := f.ledger.CreatePending(ctx, in)
		assert.ErrorIs(t, err, checkout.ErrValidation)
	}
	all, err := f.ledger.List(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestConfirmPaid_IsIdempotent(t *testing.T) {
	f := newFixture(t, LedgerConfig{Currency: "INR"})
	ctx := context.Background()
	id := f.pending(t)

	first, err := f.ledger.ConfirmPaid(ctx, id, "pay_1")
	require.NoError(t, err)
	assert.True(t, first.Transitioned)
	require.NotNil(t, first.Transaction)
	assert.Equal(t, int64(300), first.Transaction.Amount)
	assert.Equal(t, "INR", first.Transaction.Currency)

	second, err := f.ledger.ConfirmPaid(ctx, id, "pay_1")
	require.NoError(t, err)
	assert.False(t, second.Transitioned)
	assert.True(t, second.AlreadyPaid)

	txs, err := f.ledger.ListTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	o, err := f.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status)
	assert.False(t, o.Fulfilled)
}

func TestConfirmPaid_ConcurrentDeliveriesHaveOneWinner(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	id := f.pending(t)

	var (
		wg          sync.WaitGroup
		transitions atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.ledger.ConfirmPaid(ctx, id, "pay_1")
			if assert.NoError(t, err) && out.Transitioned {
				transitions.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), transitions.Load())
	txs, _ := f.ledger.ListTransactions(ctx, 10)
	assert.Len(t, txs, 1)
}

func TestConfirmPaid_DifferentRefNeedsReconciliation(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	id := f.pending(t)
	_, err := f.ledger.ConfirmPaid(ctx, id, "pay_1")
	require.NoError(t, err)

	_, err = f.ledger.ConfirmPaid(ctx, id, "pay_2")
	assert.ErrorIs(t, err, domain.ErrPaymentRefMismatch)
	assert.ErrorIs(t, err, checkout.ErrNeedsReconciliation)
}

func TestConfirmPaid_CancelledOrder(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	id := f.pending(t)
	_, err := f.ledger.Cancel(ctx, id, "dismissed")
	require.NoError(t, err)

	_, err = f.ledger.ConfirmPaid(ctx, id, "pay_1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.ErrorIs(t, err, checkout.ErrNeedsReconciliation)

	txs, _ := f.ledger.ListTransactions(ctx, 10)
	assert.Empty(t, txs)
}

func TestConfirmPaid_Validation(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	_, err := f.ledger.ConfirmPaid(context.Background(), "", "pay")
	assert.ErrorIs(t, err, checkout.ErrValidation)
	_, err = f.ledger.ConfirmPaid(context.Background(), "x", "")
	assert.ErrorIs(t, err, checkout.ErrValidation)
}

type brokenTransactions struct{ transaction.Repository }

func (brokenTransactions) Insert(context.Context, *transaction.Transaction) error {
	return errors.New("disk full")
}

func TestConfirmPaid_TransactionFailureStillReportsTransition(t *testing.T) {
	orders := memory.NewOrderRepository()
	ledger := NewLedger(orders, brokenTransactions{memory.NewTransactionRepository()}, &seqIDs{}, nil, LedgerConfig{}, nil)
	ctx := context.Background()
	res, err := ledger.CreatePending(ctx, CreatePendingInput{Lines: testLines, Customer: testCustomer})
	require.NoError(t, err)

	out, err := ledger.ConfirmPaid(ctx, res.OrderID, "pay_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, checkout.ErrPersistence)
	assert.ErrorIs(t, err, checkout.ErrNeedsReconciliation)
	require.NotNil(t, out)
	assert.True(t, out.Transitioned)

	var rec *checkout.ReconciliationError
	require.ErrorAs(t, err, &rec)
	assert.Equal(t, "record_transaction", rec.Stage)

	o, err := ledger.Get(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, o.Status, "paid must survive a failed audit write")
}

// failOnceTransactions loses the first insert and behaves normally afterwards.
type failOnceTransactions struct {
	*memory.TransactionRepository
	failed atomic.Bool
}

func (r *failOnceTransactions) Insert(ctx context.Context, tx *transaction.Transaction) error {
	if r.failed.CompareAndSwap(false, true) {
		return errors.New("connection reset")
	}
	return r.TransactionRepository.Insert(ctx, tx)
}

func TestConfirmPaid_ReplayRepairsMissingTransaction(t *testing.T) {
	txs := &failOnceTransactions{TransactionRepository: memory.NewTransactionRepository()}
	ledger := NewLedger(memory.NewOrderRepository(), txs, &seqIDs{}, nil, LedgerConfig{Currency: "INR"}, nil)
	ctx := context.Background()
	res, err := ledger.CreatePending(ctx, CreatePendingInput{Lines: testLines, Customer: testCustomer})
	require.NoError(t, err)

	first, err := ledger.ConfirmPaid(ctx, res.OrderID, "pay_1")
	require.ErrorIs(t, err, checkout.ErrNeedsReconciliation)
	require.True(t, first.Transitioned)
	_, err = txs.GetByOrder(ctx, res.OrderID)
	require.ErrorIs(t, err, transaction.ErrNotFound)

	replay, err := ledger.ConfirmPaid(ctx, res.OrderID, "pay_1")
	require.NoError(t, err)
	assert.True(t, replay.AlreadyPaid)
	assert.False(t, replay.Transitioned)
	require.NotNil(t, replay.Transaction)
	assert.Equal(t, int64(300), replay.Transaction.Amount)

	again, err := ledger.ConfirmPaid(ctx, res.OrderID, "pay_1")
	require.NoError(t, err)
	assert.Nil(t, again.Transaction)

	list, err := ledger.ListTransactions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	id := f.pending(t)

	o, err := f.ledger.Cancel(ctx, id, "dismissed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, o.Status)

	_, err = f.ledger.Cancel(ctx, id, "again")
	require.NoError(t, err)
	assert.Equal(t, []string{"order.cancelled"}, f.pub.names())

	paid := f.pending(t)
	_, err = f.ledger.ConfirmPaid(ctx, paid, "pay")
	require.NoError(t, err)
	_, err = f.ledger.Cancel(ctx, paid, "late")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = f.ledger.Cancel(ctx, "missing", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetFulfilled(t *testing.T) {
	ctx := context.Background()

	lenient := newFixture(t, LedgerConfig{})
	id := lenient.pending(t)
	o, err := lenient.ledger.SetFulfilled(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, o.Fulfilled)
	assert.Equal(t, domain.StatusPending, o.Status)

	strict := newFixture(t, LedgerConfig{FulfillRequiresPaid: true})
	id = strict.pending(t)
	_, err = strict.ledger.SetFulfilled(ctx, id, true)
	assert.ErrorIs(t, err, domain.ErrFulfillBeforePaid)

	_, err = strict.ledger.ConfirmPaid(ctx, id, "pay")
	require.NoError(t, err)
	stored, _ := strict.ledger.Get(ctx, id)
	assert.False(t, stored.Fulfilled, "payment must not fulfil")

	o, err = strict.ledger.SetFulfilled(ctx, id, true)
	require.NoError(t, err)
	assert.True(t, o.Fulfilled)
	assert.Equal(t, domain.StatusPaid, o.Status)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	a := f.pending(t)
	f.pending(t)
	_, err := f.ledger.ConfirmPaid(ctx, a, "pay")
	require.NoError(t, err)

	pending, err := f.ledger.List(ctx, domain.Filter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.ledger.List(ctx, domain.Filter{Status: "shipped"})
	assert.ErrorIs(t, err, checkout.ErrValidation)
}

func TestAttachBillingArtifact(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	id := f.pending(t)

	require.NoError(t, f.ledger.AttachBillingArtifact(ctx, id, "http://x/r.html"))
	o, _ := f.ledger.Get(ctx, id)
	assert.Equal(t, "http://x/r.html", o.BillingArtifactRef)

	assert.ErrorIs(t, f.ledger.AttachBillingArtifact(ctx, "missing", "r"), domain.ErrNotFound)
}

func TestSweeper_CancelsOnlyStalePending(t *testing.T) {
	f := newFixture(t, LedgerConfig{})
	ctx := context.Background()
	stale := f.pending(t)
	paid := f.pending(t)
	_, err := f.ledger.ConfirmPaid(ctx, paid, "pay")
	require.NoError(t, err)

	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	s := NewSweeper(f.ledger, time.Hour, 0, later, nil)
	n, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	o, _ := f.ledger.Get(ctx, stale)
	assert.Equal(t, domain.StatusCancelled, o.Status)
	assert.Equal(t, StaleCancelReason, o.CancelReason)
	o, _ = f.ledger.Get(ctx, paid)
	assert.Equal(t, domain.StatusPaid, o.Status)

	fresh := NewSweeper(f.ledger, time.Hour, 0, time.Now, nil)
	f.pending(t)
	n, err = fresh.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
