package lob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOrder(t *testing.T, network, bist time.Time, msgType MsgType, side Side, price float64, qty, id uint64) Order {
	t.Helper()
	o, err := New(network, bist, msgType, "TEST", side, price, qty, id)
	require.NoError(t, err)
	return o
}

// An empty stream produces no snapshots and an empty book.
func TestBook_EmptyStream(t *testing.T) {
	book := New("TEST")
	assert.Empty(t, book.Snapshots())
	assert.Empty(t, book.Orders())
	assert.Nil(t, book.LatestSnapshot())
}

// A single add rests on the book and contributes to the price map.
func TestBook_SingleAdd(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)

	created, err := book.Process(mustOrder(t, t0, t0, Add, Buy, 10.0, 5, 1))
	require.NoError(t, err)
	assert.False(t, created, "first message never produces a snapshot")

	bids := book.SortedBids()
	require.Len(t, bids, 1)
	assert.Equal(t, PriceLevel{Price: 10.0, Quantity: 5}, bids[0])

	resting, ok := book.Orders()[1]
	require.True(t, ok)
	assert.Equal(t, uint64(5), resting.Quantity)
}

// Add then delete removes the resting order and drains the price level.
func TestBook_AddThenDelete(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)
	t1 := time.Unix(0, 2000)

	_, err := book.Process(mustOrder(t, t0, t0, Add, Buy, 10.0, 5, 1))
	require.NoError(t, err)

	// Delete arrives with a zeroed price/quantity; book must overwrite
	// both from the resting record.
	created, err := book.Process(mustOrder(t, t1, t1, Delete, Buy, 0, 0, 1))
	require.NoError(t, err)
	assert.True(t, created, "a new network instant must emit a snapshot of the prior state")

	assert.Empty(t, book.SortedBids(), "price level must be dropped once quantity reaches zero")
	_, stillResting := book.Orders()[1]
	assert.False(t, stillResting)

	snap := book.LatestSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, []PriceLevel{{Price: 10.0, Quantity: 5}}, snap.Bids, "the snapshot captures state before the delete applied")
}

// Price-level aggregate quantity equals the sum of resting
// orders at that price; no zero entries exist.
func TestBook_PriceLevelAggregation(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)

	_, err := book.Process(mustOrder(t, t0, t0, Add, Sell, 20.0, 3, 1))
	require.NoError(t, err)
	_, err = book.Process(mustOrder(t, t0, t0, Add, Sell, 20.0, 7, 2))
	require.NoError(t, err)

	asks := book.SortedAsks()
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(10), asks[0].Quantity)

	// Partially execute order 1; aggregate must drop by exactly that much.
	_, err = book.Process(mustOrder(t, t0, t0, Execute, Sell, 0, 2, 1))
	require.NoError(t, err)
	asks = book.SortedAsks()
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(8), asks[0].Quantity)

	remaining, ok := book.Orders()[1]
	require.True(t, ok)
	assert.Equal(t, uint64(1), remaining.Quantity)
}

// Sorted bids are worst-first/best-last
// (ascending); sorted asks are worst-first/best-last (descending, so
// the lowest/best ask ends up last).
func TestBook_SortOrder(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)

	for i, px := range []float64{9.0, 11.0, 10.0} {
		_, err := book.Process(mustOrder(t, t0, t0, Add, Buy, px, 1, uint64(i+1)))
		require.NoError(t, err)
	}
	for i, px := range []float64{14.0, 12.0, 13.0} {
		_, err := book.Process(mustOrder(t, t0, t0, Add, Sell, px, 1, uint64(i+10)))
		require.NoError(t, err)
	}

	bids := book.SortedBids()
	require.Len(t, bids, 3)
	assert.Equal(t, []float64{9.0, 10.0, 11.0}, []float64{bids[0].Price, bids[1].Price, bids[2].Price})

	asks := book.SortedAsks()
	require.Len(t, asks, 3)
	assert.Equal(t, []float64{14.0, 13.0, 12.0}, []float64{asks[0].Price, asks[1].Price, asks[2].Price})
}

func TestBook_UpdatePriceTable(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)

	_, err := book.Process(mustOrder(t, t0, t0, Add, Buy, 10.0, 5, 1))
	require.NoError(t, err)
	_, err = book.Process(mustOrder(t, t0, t0, Add, Sell, 12.0, 5, 2))
	require.NoError(t, err)

	book.UpdatePriceTable()
	pt := book.PriceTable()
	require.NotNil(t, pt.BestBid)
	require.NotNil(t, pt.BestAsk)
	require.NotNil(t, pt.Mid)
	assert.Equal(t, 10.0, *pt.BestBid)
	assert.Equal(t, 12.0, *pt.BestAsk)
	assert.Equal(t, 11.0, *pt.Mid)
	assert.Nil(t, pt.LastBid, "last_bid/ask are untouched by update_price_table")
}

func TestBook_ExecuteSetsLastPrice(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)

	_, err := book.Process(mustOrder(t, t0, t0, Add, Buy, 10.0, 5, 1))
	require.NoError(t, err)
	_, err = book.Process(mustOrder(t, t0, t0, Execute, Buy, 0, 2, 1))
	require.NoError(t, err)

	pt := book.PriceTable()
	require.NotNil(t, pt.LastBid)
	assert.Equal(t, 10.0, *pt.LastBid)
	assert.Nil(t, pt.LastAsk)
}

func TestBook_DeleteUnknownOrderIsFatal(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)

	_, err := book.Process(mustOrder(t, t0, t0, Delete, Buy, 0, 0, 999))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestBook_MoldPackageConcatenation(t *testing.T) {
	book := New("TEST")
	t0 := time.Unix(0, 1000)
	t1 := time.Unix(0, 2000)

	_, err := book.Process(mustOrder(t, t0, t0, Add, Buy, 10.0, 5, 1))
	require.NoError(t, err)
	_, err = book.Process(mustOrder(t, t0, t0, Add, Sell, 12.0, 3, 2))
	require.NoError(t, err)
	_, err = book.Process(mustOrder(t, t1, t1, Add, Buy, 9.0, 1, 3))
	require.NoError(t, err)

	snap := book.LatestSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "A-B-10.0-5-1;A-S-12.0-3-2", snap.MoldPackage)
}
