package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/order"
)

func seedOrders(t *testing.T, m *Memory) {
	t.Helper()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		status := order.Pending
		if i%2 == 1 {
			status = order.Filled
		}
		user := "alice"
		if i >= 7 {
			user = "bob"
		}
		require.NoError(t, m.SaveOrder(&order.Order{
			ID: fmt.Sprintf("o%02d", i), UserID: user, Pair: "SOL/USDC",
			Type: order.Limit, Side: order.Buy, Price: 100_000_000, Amount: 1_000_000_000,
			Status: status, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
}

func TestListOrdersFiltersAndPaginates(t *testing.T) {
	m := NewMemory()
	seedOrders(t, m)

	page, err := m.ListOrders(OrderFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, 7, page.Total)
	require.Len(t, page.Orders, 7)
	require.Equal(t, "o06", page.Orders[0].ID, "newest first")

	page, err = m.ListOrders(OrderFilter{UserID: "alice", Status: "pending"})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)

	page, err = m.ListOrders(OrderFilter{Page: 2, PageSize: 4})
	require.NoError(t, err)
	require.Equal(t, 10, page.Total)
	require.Len(t, page.Orders, 4)
	require.Equal(t, "o05", page.Orders[0].ID)

	page, err = m.ListOrders(OrderFilter{Page: 9, PageSize: 4})
	require.NoError(t, err)
	require.Empty(t, page.Orders)
}

func TestSaveOrderUpserts(t *testing.T) {
	m := NewMemory()
	o := &order.Order{ID: "o1", UserID: "u", Pair: "SOL/USDC", Status: order.Pending}
	require.NoError(t, m.SaveOrder(o))
	o.Status = order.Filled
	o.Filled = 5
	require.NoError(t, m.SaveOrder(o))

	got, ok, err := m.Order("o1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, order.Filled, got.Status)

	page, err := m.ListOrders(OrderFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
}

func TestListEntriesFilters(t *testing.T) {
	m := NewMemory()
	for i := 1; i <= 6; i++ {
		kind := ledger.KindTrade
		if i%3 == 0 {
			kind = ledger.KindFee
		}
		require.NoError(t, m.AppendEntries([]ledger.Entry{{
			ID: int64(i), UserID: "alice", Kind: kind, Asset: "USDC", Amount: int64(i),
		}}))
	}

	page, err := m.ListEntries(EntryFilter{UserID: "alice", Kind: "fee"})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	require.Equal(t, int64(6), page.Entries[0].ID, "newest first")

	page, err = m.ListEntries(EntryFilter{Asset: "SOL"})
	require.NoError(t, err)
	require.Zero(t, page.Total)
}

func TestLoadOpenOrdersRebuildScanOrder(t *testing.T) {
	m := NewMemory()
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.SaveOrder(&order.Order{ID: "z", Pair: "SOL/USDC", Status: order.Pending, CreatedAt: ts}))
	require.NoError(t, m.SaveOrder(&order.Order{ID: "a", Pair: "SOL/USDC", Status: order.Partial, CreatedAt: ts}))
	require.NoError(t, m.SaveOrder(&order.Order{ID: "m", Pair: "ETH/USDC", Status: order.Pending, CreatedAt: ts.Add(time.Hour)}))
	require.NoError(t, m.SaveOrder(&order.Order{ID: "x", Pair: "SOL/USDC", Status: order.Cancelled, CreatedAt: ts}))

	open, err := m.LoadOpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 3)
	// pair, then createdAt, then id
	require.Equal(t, "m", open[0].ID)
	require.Equal(t, "a", open[1].ID)
	require.Equal(t, "z", open[2].ID)
}

func TestBalancesRoundTrip(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SaveBalances("alice", []ledger.Balance{
		{Asset: "USDC", Available: 100, Locked: 10},
	}))
	require.NoError(t, m.SaveBalances("alice", []ledger.Balance{
		{Asset: "USDC", Available: 90, Locked: 20},
		{Asset: "SOL", Available: 5},
	}))

	all, err := m.LoadBalances()
	require.NoError(t, err)
	require.Len(t, all["alice"], 2)
	for _, b := range all["alice"] {
		if b.Asset == "USDC" {
			require.Equal(t, int64(90), b.Available)
			require.Equal(t, int64(20), b.Locked)
		}
	}
}

func TestFillsByOrder(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SaveFills([]order.Fill{
		{ID: "f1", OrderID: "o1", Amount: 1},
		{ID: "f2", OrderID: "o1", Amount: 2},
		{ID: "f3", OrderID: "o2", Amount: 3},
	}))

	fills, err := m.Fills("o1")
	require.NoError(t, err)
	require.Len(t, fills, 2)
}
