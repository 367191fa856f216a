// Package engine is the matching engine: the sole writer to the order
// books and, for trade-related mutations, to the ledger. One exclusive
// lock per pair covers the book, the sequence counter, and the whole
// submission pipeline, so concurrent submissions to the same pair
// linearize and price-time priority holds. Fan-out callbacks are never
// invoked under the pair lock; events buffer locally and publish after
// release.
package engine

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/book"
	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/order"
)

// OrderStore persists orders and fills. The resting rows it holds are
// the source of truth the in-memory book is rebuilt from.
type OrderStore interface {
	SaveOrder(o *order.Order) error
	SaveFills(fills []order.Fill) error
}

// Publisher receives engine events after the pair lock is released, in
// sequence order.
type Publisher interface {
	PublishBookChange(pair string, seq uint64)
	PublishTrade(t order.Trade)
	PublishOrderUpdate(o order.Order)
}

// Options tune engine behavior.
type Options struct {
	// SkipSelfMatch makes the walk skip resting orders owned by the
	// taker instead of matching them. Off by default: the market maker
	// is allowed to cross its own quotes. Skipped orders re-enter at
	// the back of their price level, so opting out of self-matching
	// costs them their time priority.
	SkipSelfMatch bool
}

// Ticker is the rolling per-pair market summary.
type Ticker struct {
	Pair      string `json:"pair"`
	LastPrice int64  `json:"lastPrice"`
	BestBid   int64  `json:"bestBid"`
	BestAsk   int64  `json:"bestAsk"`
	Spread    int64  `json:"spread"`
	MidPrice  int64  `json:"midPrice"`
	Volume24h int64  `json:"volume24h"`
	High24h   int64  `json:"high24h"`
	Low24h    int64  `json:"low24h"`
	Sequence  uint64 `json:"sequence"`
}

// PairStats is the admin view of one pair's book.
type PairStats struct {
	Pair     string `json:"pair"`
	BestBid  int64  `json:"bestBid"`
	BestAsk  int64  `json:"bestAsk"`
	Spread   int64  `json:"spread"`
	MidPrice int64  `json:"midPrice"`
	BidCount int    `json:"bidCount"`
	AskCount int    `json:"askCount"`
	Halted   bool   `json:"halted"`
}

type tradePoint struct {
	ts     time.Time
	price  int64
	amount int64
}

// pairEngine is one pair's critical section: book, sequence, and halt
// flag, all guarded by mu. flushMu wraps mu in the submit and cancel
// paths and stays held until the pipeline's events have been published,
// so flushes leave in commit order and topic frames never go backwards
// in sequence. Lock order is flushMu before mu; fan-out callbacks may
// take mu (book snapshots) but never flushMu.
type pairEngine struct {
	mu      sync.Mutex
	flushMu sync.Mutex

	pair *asset.Pair
	book *book.Book

	seq       uint64
	halted    bool
	lastPrice int64
	window    []tradePoint // trades inside the trailing 24h
}

func (pe *pairEngine) nextSeq() uint64 {
	pe.seq++
	return pe.seq
}

// recordTrade updates last price and the 24h window. Caller holds mu.
func (pe *pairEngine) recordTrade(price, amount int64, ts time.Time) {
	pe.lastPrice = price
	pe.window = append(pe.window, tradePoint{ts: ts, price: price, amount: amount})
	cutoff := ts.Add(-24 * time.Hour)
	i := 0
	for i < len(pe.window) && pe.window[i].ts.Before(cutoff) {
		i++
	}
	pe.window = pe.window[i:]
}

// Engine owns every pairEngine plus the order indexes.
type Engine struct {
	registry *asset.Registry
	ledger   *ledger.Ledger
	store    OrderStore
	pub      Publisher
	log      *zap.SugaredLogger
	opts     Options

	mu     sync.RWMutex
	pairs  map[string]*pairEngine
	orders map[string]*order.Order
	byUser map[string][]*order.Order
}

func New(registry *asset.Registry, lgr *ledger.Ledger, store OrderStore, pub Publisher, log *zap.SugaredLogger, opts Options) *Engine {
	e := &Engine{
		registry: registry,
		ledger:   lgr,
		store:    store,
		pub:      pub,
		log:      log,
		opts:     opts,
		pairs:    make(map[string]*pairEngine),
		orders:   make(map[string]*order.Order),
		byUser:   make(map[string][]*order.Order),
	}
	for _, p := range registry.Pairs() {
		e.pairs[p.Symbol] = &pairEngine{pair: p, book: book.New(p.Symbol)}
	}
	return e
}

func (e *Engine) pairEngine(symbol string) (*pairEngine, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pe, ok := e.pairs[symbol]
	return pe, ok
}

func (e *Engine) indexOrder(o *order.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[o.ID] = o
	e.byUser[o.UserID] = append(e.byUser[o.UserID], o)
}

// Order returns a copy of an order by id.
func (e *Engine) Order(orderID string) (order.Order, bool) {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok {
		return order.Order{}, false
	}
	pe, _ := e.pairEngine(o.Pair)
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return *o, true
}

// OpenOrders returns copies of a user's resting orders, optionally
// filtered by pair. An IOC remainder is partial but never rests, so
// book membership is the test, not status alone.
func (e *Engine) OpenOrders(userID, pair string) []order.Order {
	e.mu.RLock()
	refs := make([]*order.Order, len(e.byUser[userID]))
	copy(refs, e.byUser[userID])
	e.mu.RUnlock()

	out := make([]order.Order, 0, len(refs))
	for _, o := range refs {
		pe, ok := e.pairEngine(o.Pair)
		if !ok {
			continue
		}
		pe.mu.Lock()
		if !o.Status.Terminal() && pe.book.Contains(o.ID) && (pair == "" || o.Pair == pair) {
			out = append(out, *o)
		}
		pe.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// BookSnapshot returns a depth-bounded book view stamped with the
// pair's current sequence.
func (e *Engine) BookSnapshot(pair string, depth int) (book.Snapshot, error) {
	pe, ok := e.pairEngine(pair)
	if !ok {
		return book.Snapshot{}, rejectf(CodeNotFound, "unknown pair %s", pair)
	}
	pe.mu.Lock()
	seq := pe.seq
	pe.mu.Unlock()
	return pe.book.Snapshot(depth, seq), nil
}

// Ticker returns the rolling market summary for a pair.
func (e *Engine) Ticker(pair string) (Ticker, error) {
	pe, ok := e.pairEngine(pair)
	if !ok {
		return Ticker{}, rejectf(CodeNotFound, "unknown pair %s", pair)
	}
	pe.mu.Lock()
	defer pe.mu.Unlock()

	t := Ticker{Pair: pair, LastPrice: pe.lastPrice, Sequence: pe.seq}
	bid, bidOK := pe.book.BestBid()
	ask, askOK := pe.book.BestAsk()
	if bidOK {
		t.BestBid = bid
	}
	if askOK {
		t.BestAsk = ask
	}
	if bidOK && askOK {
		t.Spread = ask - bid
		t.MidPrice = (ask + bid) / 2
	}
	for _, p := range pe.window {
		t.Volume24h += p.amount
		if t.High24h == 0 || p.price > t.High24h {
			t.High24h = p.price
		}
		if t.Low24h == 0 || p.price < t.Low24h {
			t.Low24h = p.price
		}
	}
	return t, nil
}

// Stats returns the admin view of a pair.
func (e *Engine) Stats(pair string) (PairStats, error) {
	pe, ok := e.pairEngine(pair)
	if !ok {
		return PairStats{}, rejectf(CodeNotFound, "unknown pair %s", pair)
	}
	pe.mu.Lock()
	defer pe.mu.Unlock()

	s := PairStats{Pair: pair, Halted: pe.halted}
	bid, bidOK := pe.book.BestBid()
	ask, askOK := pe.book.BestAsk()
	if bidOK {
		s.BestBid = bid
	}
	if askOK {
		s.BestAsk = ask
	}
	if bidOK && askOK {
		s.Spread = ask - bid
		s.MidPrice = (ask + bid) / 2
	}
	s.BidCount, s.AskCount = pe.book.Depth()
	return s, nil
}

// Resume clears a pair's halt flag after operator intervention.
func (e *Engine) Resume(pair string) error {
	pe, ok := e.pairEngine(pair)
	if !ok {
		return rejectf(CodeNotFound, "unknown pair %s", pair)
	}
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.halted = false
	return nil
}

// Rebuild re-inserts resting orders loaded from the store. Orders must
// arrive sorted by pair, creation time, id; balances are restored
// separately by the caller. Runs before the engine serves traffic.
func (e *Engine) Rebuild(orders []*order.Order) error {
	for _, o := range orders {
		if o.Status != order.Pending && o.Status != order.Partial {
			continue
		}
		pe, ok := e.pairEngine(o.Pair)
		if !ok {
			e.log.Warnw("rebuild_skip_unknown_pair", "pair", o.Pair, "order", o.ID)
			continue
		}
		o.RestoreQuoteVolume(pe.pair.Base.Unit())
		pe.mu.Lock()
		err := pe.book.Insert(o)
		if err == nil {
			o.Seq = pe.nextSeq()
		}
		pe.mu.Unlock()
		if err != nil {
			return err
		}
		e.indexOrder(o)
	}
	return nil
}
