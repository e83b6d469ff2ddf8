package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/freshcut/internal/application"
	domcart "github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/Zhima-Mochi/freshcut/internal/domain/checkout"
	"github.com/Zhima-Mochi/freshcut/internal/infrastructure/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	products := memory.NewProductRepository()
	ctx := context.Background()
	require.NoError(t, products.Upsert(ctx, &catalog.Product{ID: "mutton", Name: "Mutton", PricePerKilogram: 300, StockKilograms: decimal.NewFromInt(5)}))
	require.NoError(t, products.Upsert(ctx, &catalog.Product{ID: "prawn", Name: "Prawn", PricePerKilogram: 800, StockKilograms: decimal.NewFromInt(5)}))
	return NewService(memory.NewCartStore(), products, 0, application.NewProbe(nil, "test"))
}

func TestAddLine_PricesAndMerges(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	owner := Owner{SessionID: "s1"}

	c, err := svc.AddLine(ctx, owner, "mutton", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(150), c.Total())

	c, err = svc.AddLine(ctx, owner, "mutton", 500)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	c, err = svc.AddLine(ctx, owner, "prawn", 45)
	require.NoError(t, err)
	assert.Equal(t, 50, c.Lines[1].WeightGrams)

	got, err := svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, c.Total(), got.Total())
}

func TestAddLine_Errors(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.AddLine(ctx, Owner{}, "mutton", 500)
	assert.ErrorIs(t, err, checkout.ErrValidation)

	_, err = svc.AddLine(ctx, Owner{SessionID: "s"}, "", 500)
	assert.ErrorIs(t, err, checkout.ErrValidation)

	_, err = svc.AddLine(ctx, Owner{SessionID: "s"}, "unicorn", 500)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestSetQuantityAndRemove(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	owner := Owner{SessionID: "s1"}
	_, _ = svc.AddLine(ctx, owner, "mutton", 1000)

	c, err := svc.SetQuantity(ctx, owner, "mutton", 1000, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(900), c.Total())

	c, err = svc.SetQuantity(ctx, owner, "mutton", 1000, 0)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	_, err = svc.RemoveLine(ctx, owner, "mutton", 1000)
	assert.ErrorIs(t, err, domcart.ErrLineNotFound)
}

func TestCartsAreScopedPerSession(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, _ = svc.AddLine(ctx, Owner{SessionID: "a"}, "mutton", 500)

	other, err := svc.Get(ctx, Owner{SessionID: "b"})
	require.NoError(t, err)
	assert.True(t, other.IsEmpty())
}

func TestAttach_MergesSessionIntoCustomer(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, _ = svc.AddLine(ctx, Owner{CustomerID: "c1"}, "mutton", 500)
	_, _ = svc.AddLine(ctx, Owner{SessionID: "s1"}, "mutton", 500)
	_, _ = svc.AddLine(ctx, Owner{SessionID: "s1"}, "prawn", 250)

	c, err := svc.Attach(ctx, "s1", "c1")
	require.NoError(t, err)
	require.Len(t, c.Lines, 2)
	assert.Equal(t, 2, c.Lines[0].Quantity)

	session, err := svc.Get(ctx, Owner{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, session.IsEmpty())

	viaBoth, err := svc.Get(ctx, Owner{SessionID: "s1", CustomerID: "c1"})
	require.NoError(t, err)
	assert.Len(t, viaBoth.Lines, 2)
}

type failingStore struct{ domcart.Store }

func (failingStore) Load(context.Context, string) (*domcart.Cart, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Update(context.Context, string, func(*domcart.Cart) error) (*domcart.Cart, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsPersistenceError(t *testing.T) {
	products := memory.NewProductRepository()
	require.NoError(t, products.Upsert(context.Background(), &catalog.Product{ID: "mutton", Name: "Mutton", PricePerKilogram: 300}))
	svc := NewService(failingStore{}, products, 0, application.NewProbe(nil, "test"))

	_, err := svc.AddLine(context.Background(), Owner{SessionID: "s"}, "mutton", 500)
	assert.ErrorIs(t, err, checkout.ErrPersistence)
}

func TestConcurrentAddsToOneCartAreAllKept(t *testing.T) {
	products := memory.NewProductRepository()
	require.NoError(t, products.Upsert(context.Background(), &catalog.Product{ID: "mutton", Name: "Mutton", PricePerKilogram: 300}))
	svc := NewService(memory.NewCartStore(), products, 0, application.NewProbe(nil, "test"))
	owner := Owner{SessionID: "s1"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddLine(context.Background(), owner, "mutton", 500)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := svc.Get(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 10, c.Lines[0].Quantity)
	assert.Equal(t, "s1", c.SessionID)
}
