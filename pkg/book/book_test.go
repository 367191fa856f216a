package book

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helixmarkets/helix/pkg/order"
)

func limitOrder(id string, side order.Side, price, amount int64) *order.Order {
	return &order.Order{
		ID: id, Pair: "SOL/USDC", Type: order.Limit, Side: side,
		Price: price, Amount: amount, Status: order.Pending,
	}
}

func TestInsertAndBest(t *testing.T) {
	b := New("SOL/USDC")

	require.NoError(t, b.Insert(limitOrder("b1", order.Buy, 100_000_000, 1_000_000_000)))
	require.NoError(t, b.Insert(limitOrder("b2", order.Buy, 99_000_000, 2_000_000_000)))
	require.NoError(t, b.Insert(limitOrder("a1", order.Sell, 101_000_000, 500_000_000)))

	bid, ok := b.BestBid()
	require.True(t, ok)
	require.Equal(t, int64(100_000_000), bid)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	require.Equal(t, int64(101_000_000), ask)

	require.Error(t, b.Insert(limitOrder("b1", order.Buy, 100_000_000, 1)))
}

func TestPriceTimePriority(t *testing.T) {
	b := New("SOL/USDC")
	require.NoError(t, b.Insert(limitOrder("first", order.Sell, 101_000_000, 1_000_000_000)))
	require.NoError(t, b.Insert(limitOrder("second", order.Sell, 101_000_000, 1_000_000_000)))
	require.NoError(t, b.Insert(limitOrder("better", order.Sell, 100_000_000, 1_000_000_000)))

	// best price wins
	head, ok := b.PeekBest(order.Sell)
	require.True(t, ok)
	require.Equal(t, "better", head.ID)

	// equal price: earlier insertion first
	_, removed := b.Remove("better")
	require.True(t, removed)
	head, ok = b.PeekBest(order.Sell)
	require.True(t, ok)
	require.Equal(t, "first", head.ID)
}

func TestRemove(t *testing.T) {
	b := New("SOL/USDC")
	require.NoError(t, b.Insert(limitOrder("o1", order.Buy, 100_000_000, 1_000_000_000)))

	o, ok := b.Remove("o1")
	require.True(t, ok)
	require.Equal(t, "o1", o.ID)
	require.False(t, b.Contains("o1"))

	_, ok = b.Remove("o1")
	require.False(t, ok)

	_, ok = b.BestBid()
	require.False(t, ok)
}

func TestReduceKeepsPriority(t *testing.T) {
	b := New("SOL/USDC")
	first := limitOrder("first", order.Buy, 100_000_000, 2_000_000_000)
	require.NoError(t, b.Insert(first))
	require.NoError(t, b.Insert(limitOrder("second", order.Buy, 100_000_000, 1_000_000_000)))

	first.Filled = 500_000_000 // engine fills in place...
	require.NoError(t, b.Reduce("first", 500_000_000))

	head, ok := b.PeekBest(order.Buy)
	require.True(t, ok)
	require.Equal(t, "first", head.ID)

	snap := b.Snapshot(10, 1)
	require.Len(t, snap.Bids, 1)
	require.Equal(t, int64(2_500_000_000), snap.Bids[0].Amount)
	require.Equal(t, 2, snap.Bids[0].Count)

	require.Error(t, b.Reduce("first", 2_000_000_000)) // beyond remaining
	require.Error(t, b.Reduce("missing", 1))
}

func TestSnapshotDepthAndCumulative(t *testing.T) {
	b := New("SOL/USDC")
	require.NoError(t, b.Insert(limitOrder("a1", order.Sell, 101_000_000, 2_000_000_000)))
	require.NoError(t, b.Insert(limitOrder("a2", order.Sell, 101_500_000, 1_000_000_000)))
	require.NoError(t, b.Insert(limitOrder("a3", order.Sell, 102_000_000, 3_000_000_000)))
	require.NoError(t, b.Insert(limitOrder("b1", order.Buy, 100_000_000, 1_000_000_000)))

	snap := b.Snapshot(2, 7)
	require.Equal(t, uint64(7), snap.Sequence)
	require.Len(t, snap.Asks, 2)
	require.Equal(t, int64(101_000_000), snap.Asks[0].Price)
	require.Equal(t, int64(2_000_000_000), snap.Asks[0].Cumulative)
	require.Equal(t, int64(101_500_000), snap.Asks[1].Price)
	require.Equal(t, int64(3_000_000_000), snap.Asks[1].Cumulative)
	require.Len(t, snap.Bids, 1)
}

func TestWalkSideOrder(t *testing.T) {
	b := New("SOL/USDC")
	require.NoError(t, b.Insert(limitOrder("a2", order.Sell, 101_500_000, 1)))
	require.NoError(t, b.Insert(limitOrder("a1", order.Sell, 101_000_000, 1)))
	require.NoError(t, b.Insert(limitOrder("a1b", order.Sell, 101_000_000, 1)))

	var seen []string
	b.WalkSide(order.Sell, func(o *order.Order) bool {
		seen = append(seen, o.ID)
		return true
	})
	require.Equal(t, []string{"a1", "a1b", "a2"}, seen)

	// early stop
	seen = nil
	b.WalkSide(order.Sell, func(o *order.Order) bool {
		seen = append(seen, o.ID)
		return false
	})
	require.Equal(t, []string{"a1"}, seen)
}

func TestClear(t *testing.T) {
	b := New("SOL/USDC")
	require.NoError(t, b.Insert(limitOrder("o1", order.Buy, 100_000_000, 1)))
	require.NoError(t, b.Insert(limitOrder("o2", order.Sell, 101_000_000, 1)))

	removed := b.Clear()
	require.Len(t, removed, 2)
	bids, asks := b.Depth()
	require.Zero(t, bids)
	require.Zero(t, asks)
}
