// Package book maintains the in-memory price-time index for one trading
// pair: a bid side and an ask side, each a set of price levels holding a
// FIFO queue of resting orders. Best-price lookup is O(1) via price
// heaps, cancellation O(1) via an id index. The book performs no
// validation and no matching; the engine owns both and is the sole
// writer, already serialized per pair. The RWMutex here only protects
// concurrent read-only snapshots against engine writes.
package book

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"github.com/helixmarkets/helix/pkg/order"
)

// level is one price level: a FIFO queue plus incremental aggregates.
type level struct {
	price  int64
	orders []*order.Order
	amount int64 // sum of remaining across the queue
}

// Level is the aggregated public view of one price level.
type Level struct {
	Price      int64 `json:"price"`
	Amount     int64 `json:"amount"`
	Count      int   `json:"count"`
	Cumulative int64 `json:"cumulative"`
}

// Snapshot is a depth-bounded view of both sides.
type Snapshot struct {
	Pair     string  `json:"pair"`
	Bids     []Level `json:"bids"`
	Asks     []Level `json:"asks"`
	Sequence uint64  `json:"sequence"`
}

// Book is the resting-order index for one pair.
type Book struct {
	mu sync.RWMutex

	pair string

	bidHeap *MaxPriceHeap
	askHeap *MinPriceHeap

	bids map[int64]*level
	asks map[int64]*level

	// orderID -> resting order, for O(1) cancel/amend
	index map[string]*order.Order
}

func New(pair string) *Book {
	bidHeap := &MaxPriceHeap{}
	askHeap := &MinPriceHeap{}
	heap.Init(bidHeap)
	heap.Init(askHeap)
	return &Book{
		pair:    pair,
		bidHeap: bidHeap,
		askHeap: askHeap,
		bids:    make(map[int64]*level),
		asks:    make(map[int64]*level),
		index:   make(map[string]*order.Order),
	}
}

func (b *Book) side(s order.Side) map[int64]*level {
	if s == order.Buy {
		return b.bids
	}
	return b.asks
}

// Insert appends the order to the tail of its price level's queue. The
// order must already be validated against tick and lot by the engine.
func (b *Book) Insert(o *order.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[o.ID]; exists {
		return fmt.Errorf("order %s already in book", o.ID)
	}
	levels := b.side(o.Side)
	lv, ok := levels[o.Price]
	if !ok {
		lv = &level{price: o.Price}
		levels[o.Price] = lv
		if o.Side == order.Buy {
			heap.Push(b.bidHeap, o.Price)
		} else {
			heap.Push(b.askHeap, o.Price)
		}
	}
	lv.orders = append(lv.orders, o)
	lv.amount += o.Remaining()
	b.index[o.ID] = o
	return nil
}

// Remove takes an order out of the book by id. Returns the order and
// whether it was resting.
func (b *Book) Remove(orderID string) (*order.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(orderID)
}

func (b *Book) removeLocked(orderID string) (*order.Order, bool) {
	o, ok := b.index[orderID]
	if !ok {
		return nil, false
	}
	levels := b.side(o.Side)
	lv := levels[o.Price]
	for i, q := range lv.orders {
		if q.ID == orderID {
			lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
			lv.amount -= q.Remaining()
			break
		}
	}
	if len(lv.orders) == 0 {
		delete(levels, o.Price)
		b.removeFromHeap(o.Side, o.Price)
	}
	delete(b.index, orderID)
	return o, true
}

// removeFromHeap drops a price level from its heap. O(P) worst case,
// only taken when a level empties.
func (b *Book) removeFromHeap(s order.Side, price int64) {
	if s == order.Buy {
		for i := 0; i < b.bidHeap.Len(); i++ {
			if (*b.bidHeap)[i] == price {
				heap.Remove(b.bidHeap, i)
				return
			}
		}
		return
	}
	for i := 0; i < b.askHeap.Len(); i++ {
		if (*b.askHeap)[i] == price {
			heap.Remove(b.askHeap, i)
			return
		}
	}
}

// Reduce shrinks a resting order's remaining by delta as the engine
// fills it in place. Time priority is unchanged. The level aggregate
// follows incrementally. 0 < delta <= remaining.
func (b *Book) Reduce(orderID string, delta int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.index[orderID]
	if !ok {
		return fmt.Errorf("order %s not in book", orderID)
	}
	if delta <= 0 || delta > o.Remaining() {
		return fmt.Errorf("order %s: reduce %d out of range (remaining %d)", orderID, delta, o.Remaining())
	}
	b.side(o.Side)[o.Price].amount -= delta
	return nil
}

// PeekBest returns the head order of the given side without mutation.
func (b *Book) PeekBest(s order.Side) (*order.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var price int64
	if s == order.Buy {
		if b.bidHeap.Len() == 0 {
			return nil, false
		}
		price = b.bidHeap.Peek()
	} else {
		if b.askHeap.Len() == 0 {
			return nil, false
		}
		price = b.askHeap.Peek()
	}
	lv := b.side(s)[price]
	if lv == nil || len(lv.orders) == 0 {
		return nil, false
	}
	return lv.orders[0], true
}

// BestBid returns the highest bid price.
func (b *Book) BestBid() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.bidHeap.Len() == 0 {
		return 0, false
	}
	return b.bidHeap.Peek(), true
}

// BestAsk returns the lowest ask price.
func (b *Book) BestAsk() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.askHeap.Len() == 0 {
		return 0, false
	}
	return b.askHeap.Peek(), true
}

// Snapshot returns the top depth levels per side with cumulative totals.
// depth <= 0 means all levels.
func (b *Book) Snapshot(depth int, seq uint64) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := Snapshot{Pair: b.pair, Sequence: seq, Bids: []Level{}, Asks: []Level{}}

	collect := func(prices []int64, levels map[int64]*level) []Level {
		out := make([]Level, 0, len(prices))
		var cum int64
		for _, p := range prices {
			if depth > 0 && len(out) >= depth {
				break
			}
			lv := levels[p]
			cum += lv.amount
			out = append(out, Level{Price: p, Amount: lv.amount, Count: len(lv.orders), Cumulative: cum})
		}
		return out
	}

	snap.Bids = collect(sortedPrices(*b.bidHeap, true), b.bids)
	snap.Asks = collect(sortedPrices(*b.askHeap, false), b.asks)
	return snap
}

// Depth returns resting order counts per side.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, lv := range b.bids {
		bids += len(lv.orders)
	}
	for _, lv := range b.asks {
		asks += len(lv.orders)
	}
	return
}

// Contains reports whether an order is resting.
func (b *Book) Contains(orderID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.index[orderID]
	return ok
}

// OrdersAt returns a copy of the queue at a price level, head first.
func (b *Book) OrdersAt(s order.Side, price int64) []*order.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lv := b.side(s)[price]
	if lv == nil {
		return nil
	}
	out := make([]*order.Order, len(lv.orders))
	copy(out, lv.orders)
	return out
}

// WalkSide visits resting orders best-price first, FIFO within a level,
// until fn returns false. Used by the engine's read-only prospective
// walk for FOK admission.
func (b *Book) WalkSide(s order.Side, fn func(o *order.Order) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var prices []int64
	if s == order.Buy {
		prices = sortedPrices(*b.bidHeap, true)
	} else {
		prices = sortedPrices(*b.askHeap, false)
	}
	for _, p := range prices {
		for _, o := range b.side(s)[p].orders {
			if !fn(o) {
				return
			}
		}
	}
}

// Clear drops every resting order and returns them. Admin only.
func (b *Book) Clear() []*order.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*order.Order, 0, len(b.index))
	for id := range b.index {
		if o, ok := b.removeLocked(id); ok {
			out = append(out, o)
		}
	}
	return out
}

func sortedPrices(prices []int64, descending bool) []int64 {
	out := make([]int64, len(prices))
	copy(out, prices)
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i] > out[j]
		}
		return out[i] < out[j]
	})
	return out
}
