// Package store persists the durable trading state: orders, fills,
// ledger entries, and balance snapshots. It backs both the engine's
// order persistence and the ledger's journal, and serves the paginated
// query surface. Two implementations: Postgres for deployments, memory
// for devnet and tests.
package store

import (
	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/order"
)

// OrderFilter narrows a paginated order listing. Zero-valued fields
// match everything.
type OrderFilter struct {
	UserID   string
	Pair     string
	Status   string
	Page     int // 1-based
	PageSize int
}

// EntryFilter narrows a paginated ledger history listing.
type EntryFilter struct {
	UserID   string
	Asset    string
	Kind     string
	Page     int
	PageSize int
}

// OrderPage is one page of an order listing, newest first.
type OrderPage struct {
	Orders   []order.Order `json:"orders"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// EntryPage is one page of ledger history, newest first.
type EntryPage struct {
	Entries  []ledger.Entry `json:"entries"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

const defaultPageSize = 50

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 500 {
		size = defaultPageSize
	}
	return page, size
}

// Store is the persistence surface the rest of the system depends on.
// SaveOrder/SaveFills satisfy the engine's order store; AppendEntries/
// SaveBalances satisfy the ledger journal.
type Store interface {
	SaveOrder(o *order.Order) error
	SaveFills(fills []order.Fill) error

	AppendEntries(entries []ledger.Entry) error
	SaveBalances(userID string, balances []ledger.Balance) error

	Order(id string) (order.Order, bool, error)
	Fills(orderID string) ([]order.Fill, error)
	ListOrders(f OrderFilter) (OrderPage, error)
	ListEntries(f EntryFilter) (EntryPage, error)

	// LoadOpenOrders returns resting orders ordered by pair, creation
	// time, id — the startup book rebuild scan.
	LoadOpenOrders() ([]*order.Order, error)
	// LoadBalances returns every persisted balance row keyed by user.
	LoadBalances() (map[string][]ledger.Balance, error)

	Close() error
}
