package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/Zhima-Mochi/freshcut/internal/domain/order"
	"github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestMigrate_IsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestProducts_UpsertAndConditionalStock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Products()

	p := &catalog.Product{ID: "rohu", Name: "Rohu", Category: "fish", PricePerKilogram: 280, StockKilograms: decimal.RequireFromString("1.0")}
	require.NoError(t, repo.Upsert(ctx, p))
	assert.Equal(t, int64(1), p.Version)

	got, err := repo.Get(ctx, "rohu")
	require.NoError(t, err)
	assert.True(t, got.StockKilograms.Equal(decimal.NewFromInt(1)))

	require.NoError(t, repo.UpdateStock(ctx, "rohu", got.Version, decimal.RequireFromString("0.4")))
	assert.ErrorIs(t, repo.UpdateStock(ctx, "rohu", got.Version, decimal.Zero), catalog.ErrStockConflict)
	assert.ErrorIs(t, repo.UpdateStock(ctx, "nope", 1, decimal.Zero), catalog.ErrNotFound)

	got, err = repo.Get(ctx, "rohu")
	require.NoError(t, err)
	assert.Equal(t, "0.4", got.StockKilograms.String())
	assert.Equal(t, int64(2), got.Version)

	p.PricePerKilogram = 300
	require.NoError(t, repo.Upsert(ctx, p))
	assert.Equal(t, int64(3), p.Version)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func newOrder(t *testing.T, id string) *order.Order {
	t.Helper()
	o, err := order.New(id, []cart.Line{{ProductID: "rohu", Name: "Rohu", WeightGrams: 500, UnitPricePerKilogram: 280, ComputedPrice: 140, Quantity: 2}},
		order.Customer{Name: "Ravi", Phone: "+919811111111"})
	require.NoError(t, err)
	return o
}

func TestOrders_LifecycleAndNumbers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Orders()

	first := newOrder(t, "o-1")
	require.NoError(t, repo.Insert(ctx, first))
	second := newOrder(t, "o-2")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Insert(ctx, second))
	assert.Equal(t, int64(1), first.Number)
	assert.Equal(t, int64(2), second.Number)
	assert.ErrorIs(t, repo.Insert(ctx, newOrder(t, "o-1")), order.ErrConflict)

	got, err := repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, first.Lines, got.Lines)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, int64(280), got.Total())

	require.NoError(t, repo.MarkPaid(ctx, "o-1", "pay_1", time.Now()))
	assert.ErrorIs(t, repo.MarkPaid(ctx, "o-1", "pay_1", time.Now()), order.ErrConflict)
	assert.ErrorIs(t, repo.MarkCancelled(ctx, "o-1", "late", time.Now()), order.ErrConflict)
	assert.ErrorIs(t, repo.MarkPaid(ctx, "missing", "pay", time.Now()), order.ErrNotFound)

	require.NoError(t, repo.SetBillingArtifact(ctx, "o-1", "file:///r.html", time.Now()))
	require.NoError(t, repo.SetFulfilled(ctx, "o-2", true, time.Now()))

	got, err = repo.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	assert.Equal(t, "pay_1", got.PaymentRef)
	assert.Equal(t, "file:///r.html", got.BillingArtifactRef)
	assert.False(t, got.Fulfilled)

	all, err := repo.List(ctx, order.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "o-2", all[0].ID)

	pending, err := repo.List(ctx, order.Filter{Status: order.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "o-2", pending[0].ID)

	yes := true
	fulfilled, err := repo.List(ctx, order.Filter{Fulfilled: &yes})
	require.NoError(t, err)
	require.Len(t, fulfilled, 1)
	assert.Equal(t, "o-2", fulfilled[0].ID)

	older, err := repo.List(ctx, order.Filter{CreatedBefore: second.CreatedAt})
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "o-1", older[0].ID)
}

func TestOrders_ConcurrentMarkPaidHasOneWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Orders()
	require.NoError(t, repo.Insert(ctx, newOrder(t, "o")))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.MarkPaid(ctx, "o", "pay", time.Now()); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTransactions_UniqueOnOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	repo := s.Transactions()

	tx := &transaction.Transaction{ID: "t-1", OrderID: "o-1", PaymentRef: "pay_1", Amount: 280, Currency: "INR",
		Status: transaction.StatusCaptured, Customer: order.Customer{Name: "Ravi", Phone: "1"}, CreatedAt: time.Now()}
	require.NoError(t, repo.Insert(ctx, tx))

	dup := *tx
	dup.ID = "t-2"
	assert.ErrorIs(t, repo.Insert(ctx, &dup), transaction.ErrDuplicate)

	got, err := repo.GetByOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", got.ID)
	assert.Equal(t, "Ravi", got.Customer.Name)

	_, err = repo.GetByOrder(ctx, "o-2")
	assert.ErrorIs(t, err, transaction.ErrNotFound)

	list, err := repo.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
