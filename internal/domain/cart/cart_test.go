package cart

import (
	"testing"

	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func product(id string, price int64) *catalog.Product {
	return &catalog.Product{ID: id, Name: id, PricePerKilogram: price}
}

func TestAddOrMerge_IncrementsIdenticalLine(t *testing.T) {
	var c Cart
	_, err := c.AddOrMerge(product("mutton", 300), 500)
	require.NoError(t, err)
	line, err := c.AddOrMerge(product("mutton", 300), 500)
	require.NoError(t, err)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, int64(150), line.ComputedPrice)
	assert.Equal(t, int64(300), c.Total())
}

func TestAddOrMerge_ClampsBeforeKeying(t *testing.T) {
	var c Cart
	_, _ = c.AddOrMerge(product("prawn", 800), 45)
	_, _ = c.AddOrMerge(product("prawn", 800), 50)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 50, c.Lines[0].WeightGrams)
	assert.Equal(t, 2, c.Lines[0].Quantity)
}

func TestAddOrMerge_DistinctWeightsAreDistinctLines(t *testing.T) {
	var c Cart
	_, _ = c.AddOrMerge(product("salmon", 1200), 250)
	_, _ = c.AddOrMerge(product("salmon", 1200), 500)
	assert.Len(t, c.Lines, 2)
}

func TestAddOrMerge_SnapshotsPrice(t *testing.T) {
	var c Cart
	p := product("chicken", 200)
	_, _ = c.AddOrMerge(p, 1000)
	p.PricePerKilogram = 999
	assert.Equal(t, int64(200), c.Lines[0].ComputedPrice)
}

func TestSetQuantity(t *testing.T) {
	var c Cart
	_, _ = c.AddOrMerge(product("crab", 600), 1000)

	require.NoError(t, c.SetQuantity("crab", 1000, 4))
	assert.Equal(t, int64(2400), c.Total())

	require.NoError(t, c.SetQuantity("crab", 1000, 0))
	assert.True(t, c.IsEmpty())

	assert.ErrorIs(t, c.SetQuantity("crab", 1000, 2), ErrLineNotFound)
}

func TestRemove(t *testing.T) {
	var c Cart
	_, _ = c.AddOrMerge(product("a", 100), 100)
	_, _ = c.AddOrMerge(product("b", 100), 100)

	require.NoError(t, c.Remove("a", 100))
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "b", c.Lines[0].ProductID)
	assert.ErrorIs(t, c.Remove("a", 100), ErrLineNotFound)
}

func TestTotal_IsSumOfLineSubtotals(t *testing.T) {
	var c Cart
	_, _ = c.AddOrMerge(product("a", 333), 777)
	_, _ = c.AddOrMerge(product("b", 1299), 1250)
	_ = c.SetQuantity("b", 1250, 3)
	_, _ = c.AddOrMerge(product("c", 90), 20000)

	var want int64
	for _, l := range c.Lines {
		want += l.ComputedPrice * int64(l.Quantity)
	}
	assert.Equal(t, want, c.Total())
}

func TestMerge(t *testing.T) {
	var session, customer Cart
	_, _ = session.AddOrMerge(product("a", 100), 500)
	_, _ = customer.AddOrMerge(product("a", 100), 500)
	_, _ = customer.AddOrMerge(product("b", 100), 500)

	customer.Merge(&session)
	require.Len(t, customer.Lines, 2)
	assert.Equal(t, 2, customer.Lines[0].Quantity)
}

func TestSnapshot_IsDetached(t *testing.T) {
	var c Cart
	_, _ = c.AddOrMerge(product("a", 100), 500)
	snap := c.Snapshot()
	_ = c.SetQuantity("a", 500, 9)
	assert.Equal(t, 1, snap[0].Quantity)
}
