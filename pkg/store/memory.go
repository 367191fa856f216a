package store

import (
	"sort"
	"sync"

	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/order"
)

// Memory is the in-process Store used by devnet and tests. Everything
// is copied on the way in and out; callers never share pointers with
// the store.
type Memory struct {
	mu       sync.RWMutex
	orders   map[string]order.Order
	orderSeq []string // insertion order for stable listings
	fills    map[string][]order.Fill
	entries  []ledger.Entry
	balances map[string]map[string]ledger.Balance // user -> asset -> row
}

func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[string]order.Order),
		fills:    make(map[string][]order.Fill),
		balances: make(map[string]map[string]ledger.Balance),
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) SaveOrder(o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.orders[o.ID]; !seen {
		m.orderSeq = append(m.orderSeq, o.ID)
	}
	m.orders[o.ID] = *o
	return nil
}

func (m *Memory) SaveFills(fills []order.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range fills {
		m.fills[f.OrderID] = append(m.fills[f.OrderID], f)
	}
	return nil
}

func (m *Memory) AppendEntries(entries []ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *Memory) SaveBalances(userID string, balances []ledger.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.balances[userID]
	if rows == nil {
		rows = make(map[string]ledger.Balance)
		m.balances[userID] = rows
	}
	for _, b := range balances {
		rows[b.Asset] = b
	}
	return nil
}

func (m *Memory) Order(id string) (order.Order, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok, nil
}

func (m *Memory) Fills(orderID string) ([]order.Fill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]order.Fill, len(m.fills[orderID]))
	copy(out, m.fills[orderID])
	return out, nil
}

func (m *Memory) ListOrders(f OrderFilter) (OrderPage, error) {
	page, size := normalizePage(f.Page, f.PageSize)

	m.mu.RLock()
	matched := make([]order.Order, 0, len(m.orders))
	for i := len(m.orderSeq) - 1; i >= 0; i-- { // newest first
		o := m.orders[m.orderSeq[i]]
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Pair != "" && o.Pair != f.Pair {
			continue
		}
		if f.Status != "" && o.Status.String() != f.Status {
			continue
		}
		matched = append(matched, o)
	}
	m.mu.RUnlock()

	return OrderPage{
		Orders:   slicePage(matched, page, size),
		Total:    len(matched),
		Page:     page,
		PageSize: size,
	}, nil
}

func (m *Memory) ListEntries(f EntryFilter) (EntryPage, error) {
	page, size := normalizePage(f.Page, f.PageSize)

	m.mu.RLock()
	matched := make([]ledger.Entry, 0, len(m.entries))
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Asset != "" && e.Asset != f.Asset {
			continue
		}
		if f.Kind != "" && string(e.Kind) != f.Kind {
			continue
		}
		matched = append(matched, e)
	}
	m.mu.RUnlock()

	return EntryPage{
		Entries:  slicePage(matched, page, size),
		Total:    len(matched),
		Page:     page,
		PageSize: size,
	}, nil
}

func (m *Memory) LoadOpenOrders() ([]*order.Order, error) {
	m.mu.RLock()
	var out []*order.Order
	for _, o := range m.orders {
		if o.Status == order.Pending || o.Status == order.Partial {
			cp := o
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pair != b.Pair {
			return a.Pair < b.Pair
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *Memory) LoadBalances() (map[string][]ledger.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]ledger.Balance, len(m.balances))
	for user, rows := range m.balances {
		for _, b := range rows {
			out[user] = append(out[user], b)
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func slicePage[T any](s []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(s) {
		return []T{}
	}
	end := start + size
	if end > len(s) {
		end = len(s)
	}
	out := make([]T, end-start)
	copy(out, s[start:end])
	return out
}
