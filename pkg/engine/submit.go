package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/num"
	"github.com/helixmarkets/helix/pkg/order"
)

// SubmitRequest is an order submission. Price, Amount, and QuoteBudget
// are fixed-point units (already parsed from decimal strings at the API
// boundary).
type SubmitRequest struct {
	UserID        string
	Pair          string
	Type          order.Type
	Side          order.Side
	TimeInForce   order.TimeInForce
	Price         int64
	Amount        int64
	QuoteBudget   int64
	ClientOrderID string
}

// SubmitResult carries the taker order's final state and its fills.
type SubmitResult struct {
	Order order.Order
	Fills []order.Fill
}

// event buffering: fan-out callbacks must not run under the pair lock.
type evtTrade order.Trade
type evtOrder order.Order
type evtBook struct {
	pair string
	seq  uint64
}

func (e *Engine) flush(events []any) {
	if e.pub == nil {
		return
	}
	for _, ev := range events {
		switch v := ev.(type) {
		case evtTrade:
			e.pub.PublishTrade(order.Trade(v))
		case evtOrder:
			e.pub.PublishOrderUpdate(order.Order(v))
		case evtBook:
			e.pub.PublishBookChange(v.pair, v.seq)
		}
	}
}

// Submit runs the full pipeline for one order: validate, lock funds,
// match walk, settle, resting decision, publish. Everything between
// funds lock and the resting decision runs under the pair lock.
func (e *Engine) Submit(req SubmitRequest) (SubmitResult, error) {
	pe, ok := e.pairEngine(req.Pair)
	if !ok {
		return SubmitResult{}, rejectf(CodeValidation, "unknown pair %s", req.Pair)
	}
	if err := e.validate(pe, req); err != nil {
		return SubmitResult{}, err
	}

	pe.flushMu.Lock()
	pe.mu.Lock()
	res, events, err := e.submitLocked(pe, req)
	pe.mu.Unlock()

	e.flush(events)
	pe.flushMu.Unlock()
	return res, err
}

// validate is step 1: pure checks, no state mutated on failure.
func (e *Engine) validate(pe *pairEngine, req SubmitRequest) error {
	p := pe.pair
	if req.UserID == "" {
		return rejectf(CodeValidation, "missing user")
	}
	if !p.Active {
		return rejectf(CodeValidation, "pair %s not active", p.Symbol)
	}
	if err := p.ValidateAmount(req.Amount); err != nil {
		return rejectf(CodeValidation, "%v", err)
	}
	switch req.Type {
	case order.Limit:
		if err := p.ValidatePrice(req.Price); err != nil {
			return rejectf(CodeValidation, "%v", err)
		}
	case order.Market:
		if req.Price != 0 {
			return rejectf(CodeValidation, "market order carries no price")
		}
		if req.Side == order.Buy && req.QuoteBudget <= 0 {
			return rejectf(CodeValidation, "market buy requires quoteBudget")
		}
	default:
		return rejectf(CodeValidation, "unknown order type")
	}
	return nil
}

func (e *Engine) submitLocked(pe *pairEngine, req SubmitRequest) (SubmitResult, []any, error) {
	var events []any
	p := pe.pair

	if pe.halted {
		return SubmitResult{}, nil, rejectf(CodeUnavailable, "pair %s halted pending operator intervention", p.Symbol)
	}

	// FOK admission: prospective walk before any funds move. The whole
	// amount must be fillable or nothing executes.
	if req.TimeInForce == order.FOK {
		if !e.fillable(pe, req) {
			return SubmitResult{}, nil, rejectf(CodeNoLiquidity, "FOK order not fully fillable")
		}
	}

	o := &order.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		UserID:        req.UserID,
		Pair:          p.Symbol,
		Type:          req.Type,
		Side:          req.Side,
		TimeInForce:   req.TimeInForce,
		Price:         req.Price,
		Amount:        req.Amount,
		QuoteBudget:   req.QuoteBudget,
		Status:        order.Pending,
		CreatedAt:     time.Now(),
	}

	// Step 2: reserve funds.
	switch {
	case req.Side == order.Buy && req.Type == order.Limit:
		o.LockedAsset = p.Quote.Symbol
		o.LockedAmount = p.QuoteValueCeil(req.Amount, req.Price)
	case req.Side == order.Buy && req.Type == order.Market:
		o.LockedAsset = p.Quote.Symbol
		o.LockedAmount = req.QuoteBudget
	default: // sells reserve the base
		o.LockedAsset = p.Base.Symbol
		o.LockedAmount = req.Amount
	}
	if err := e.ledger.Lock(o.UserID, o.LockedAsset, o.LockedAmount, o.ID); err != nil {
		return SubmitResult{}, nil, lockErr(err)
	}
	o.LockedRemaining = o.LockedAmount

	// Admission persists before matching; a down store refuses the
	// submit with no partial state.
	if err := e.store.SaveOrder(o); err != nil {
		if uerr := e.ledger.Unlock(o.UserID, o.LockedAsset, o.LockedAmount, o.ID); uerr != nil {
			e.log.Errorw("admission_unlock_failed", "order", o.ID, "err", uerr)
		}
		return SubmitResult{}, nil, rejectf(CodeUnavailable, "order store unavailable: %v", err)
	}
	e.indexOrder(o)

	// Step 3: the match walk.
	fills, walkEvents, walkErr := e.walk(pe, o)
	events = append(events, walkEvents...)

	if walkErr != nil {
		// Already-settled fills are committed trades; the failure is in
		// the taker's expectations, not the invariants. Release what is
		// left of the reservation and reject the remainder.
		o.Status = order.Rejected
		o.CancelledAt = time.Now()
		e.releaseRemainingLock(o)
		e.persist(o, fills)
		events = append(events, evtOrder(*o))
		return SubmitResult{Order: *o, Fills: fills}, events, walkErr
	}

	// Step 4: resting decision.
	inserted := false
	bookChanged := len(fills) > 0
	switch {
	case o.Remaining() == 0:
		o.Status = order.Filled
		o.FilledAt = time.Now()
		e.releaseRemainingLock(o)

	case o.Type == order.Market:
		if len(fills) == 0 {
			e.releaseRemainingLock(o)
			o.Status = order.Rejected
			o.CancelledAt = time.Now()
			e.persist(o, nil)
			events = append(events, evtOrder(*o))
			return SubmitResult{Order: *o}, events, rejectf(CodeNoLiquidity, "no liquidity for market %s", o.Side)
		}
		o.Status = order.Partial
		e.releaseRemainingLock(o)

	case o.TimeInForce == order.IOC:
		e.releaseRemainingLock(o)
		if len(fills) > 0 {
			o.Status = order.Partial
		} else {
			o.Status = order.Cancelled
		}
		o.CancelledAt = time.Now()

	default: // GTC limit rests
		if err := pe.book.Insert(o); err != nil {
			e.log.Errorw("book_insert_failed", "order", o.ID, "err", err)
			e.releaseRemainingLock(o)
			o.Status = order.Rejected
			return SubmitResult{Order: *o, Fills: fills}, events, rejectf(CodeUnavailable, "book insert failed")
		}
		o.Seq = pe.nextSeq()
		inserted = true
		if len(fills) > 0 {
			o.Status = order.Partial
		} else {
			o.Status = order.Pending
		}
	}

	// Step 5: sequence and publish.
	if inserted {
		events = append(events, evtBook{pair: p.Symbol, seq: o.Seq})
	} else if bookChanged {
		events = append(events, evtBook{pair: p.Symbol, seq: pe.nextSeq()})
	}
	events = append(events, evtOrder(*o))

	e.persist(o, fills)
	return SubmitResult{Order: *o, Fills: fills}, events, nil
}

// fillable is the FOK dry run: a read-only walk checking the whole
// amount can execute within the order's price bound.
func (e *Engine) fillable(pe *pairEngine, req SubmitRequest) bool {
	need := req.Amount
	budget := req.QuoteBudget
	pe.book.WalkSide(req.Side.Opposite(), func(m *order.Order) bool {
		if e.opts.SkipSelfMatch && m.UserID == req.UserID {
			return true
		}
		if req.Type == order.Limit {
			if req.Side == order.Buy && req.Price < m.Price {
				return false
			}
			if req.Side == order.Sell && req.Price > m.Price {
				return false
			}
		}
		match := min64(need, m.Remaining())
		if req.Type == order.Market && req.Side == order.Buy {
			maxByBudget := num.SnapDown(num.MulDiv(budget, pe.pair.Base.Unit(), m.Price), pe.pair.LotStep)
			if maxByBudget <= 0 {
				return false
			}
			match = min64(match, maxByBudget)
			budget -= pe.pair.QuoteValue(match, m.Price)
		}
		need -= match
		return need > 0
	})
	return need <= 0
}

// walk executes step 3 against the opposing side: maker price rule,
// min-remaining match amount, settlement per fill, in-place maker
// amendment. Returns the taker's fills. A settlement failure aborts the
// walk; already-settled fills stand.
func (e *Engine) walk(pe *pairEngine, o *order.Order) ([]order.Fill, []any, error) {
	var (
		fills      []order.Fill
		events     []any
		selfStash  []*order.Order
		p          = pe.pair
		budgetLeft = o.QuoteBudget
	)
	defer func() {
		// Skipped own orders go back at their price level. They re-queue
		// at the tail; the cost of opting out of self-matching.
		for _, s := range selfStash {
			if err := pe.book.Insert(s); err != nil {
				e.log.Errorw("self_stash_reinsert_failed", "order", s.ID, "err", err)
			}
		}
	}()

	for o.Remaining() > 0 {
		maker, ok := pe.book.PeekBest(o.Side.Opposite())
		if !ok {
			break
		}
		if e.opts.SkipSelfMatch && maker.UserID == o.UserID {
			pe.book.Remove(maker.ID)
			selfStash = append(selfStash, maker)
			continue
		}

		// No crossing beyond the limit price.
		if o.Type == order.Limit {
			if o.Side == order.Buy && o.Price < maker.Price {
				break
			}
			if o.Side == order.Sell && o.Price > maker.Price {
				break
			}
		}

		// Execution price is the maker's; improvement goes to the taker.
		price := maker.Price
		match := min64(o.Remaining(), maker.Remaining())
		if o.Type == order.Market && o.Side == order.Buy {
			maxByBudget := num.SnapDown(num.MulDiv(budgetLeft, p.Base.Unit(), price), p.LotStep)
			if maxByBudget <= 0 {
				break
			}
			match = min64(match, maxByBudget)
		}
		quoteAmt := p.QuoteValue(match, price)

		// Fees come out of the received asset: base for the buyer,
		// quote for the seller.
		takerRate, makerRate := p.TakerFeeBps, p.MakerFeeBps
		var buyerFee, sellerFee int64
		if o.Side == order.Buy {
			buyerFee = num.FeeBps(match, takerRate)
			sellerFee = num.FeeBps(quoteAmt, makerRate)
		} else {
			buyerFee = num.FeeBps(match, makerRate)
			sellerFee = num.FeeBps(quoteAmt, takerRate)
		}

		err := e.ledger.SettleTrade(ledger.TradeSettlement{
			Pair: p.Symbol, BaseAsset: p.Base.Symbol, QuoteAsset: p.Quote.Symbol,
			TakerID: o.UserID, MakerID: maker.UserID,
			TakerOrderID: o.ID, MakerOrderID: maker.ID,
			TakerSide: o.Side, BaseAmount: match, QuoteAmount: quoteAmt, Price: price,
			TakerFee: feeFor(o.Side, buyerFee, sellerFee),
			MakerFee: feeFor(o.Side.Opposite(), buyerFee, sellerFee),
		})
		if err != nil {
			if errors.Is(err, ledger.ErrInconsistent) {
				// Invariants override liveness: stop this pair until an
				// operator looks at it.
				pe.halted = true
				e.log.Errorw("ledger_inconsistent_halting_pair",
					"pair", p.Symbol, "taker", o.ID, "maker", maker.ID, "err", err)
				return fills, events, rejectf(CodeLedgerInconsistent, "settlement aborted: %v", err)
			}
			e.log.Errorw("settlement_failed", "pair", p.Symbol, "taker", o.ID, "err", err)
			return fills, events, rejectf(CodeUnavailable, "settlement unavailable: %v", err)
		}

		now := time.Now()
		takerSpend, makerSpend := quoteAmt, match
		if o.Side == order.Sell {
			takerSpend, makerSpend = match, quoteAmt
		}

		// Book mutation precedes the fill bookkeeping so level
		// aggregates stay consistent with remaining quantities.
		if maker.Remaining() == match {
			pe.book.Remove(maker.ID)
			maker.ApplyFill(match, price, p.Base.Unit())
			maker.Status = order.Filled
			maker.FilledAt = now
			maker.LockedRemaining -= makerSpend
			e.releaseRemainingLock(maker)
		} else {
			if rerr := pe.book.Reduce(maker.ID, match); rerr != nil {
				e.log.Errorw("book_reduce_failed", "order", maker.ID, "err", rerr)
			}
			maker.ApplyFill(match, price, p.Base.Unit())
			maker.Status = order.Partial
			maker.LockedRemaining -= makerSpend
		}

		o.ApplyFill(match, price, p.Base.Unit())
		o.LockedRemaining -= takerSpend
		if o.Type == order.Market && o.Side == order.Buy {
			budgetLeft -= quoteAmt
		}

		makerFee := feeFor(o.Side.Opposite(), buyerFee, sellerFee)
		takerFee := feeFor(o.Side, buyerFee, sellerFee)
		makerFeeAsset, takerFeeAsset := p.Quote.Symbol, p.Base.Symbol
		if o.Side == order.Sell {
			makerFeeAsset, takerFeeAsset = p.Base.Symbol, p.Quote.Symbol
		}

		takerFill := order.Fill{
			ID: uuid.NewString(), OrderID: o.ID, Pair: p.Symbol,
			Amount: match, Price: price, Fee: takerFee, FeeAsset: takerFeeAsset,
			IsMaker: false, Time: now,
		}
		makerFill := order.Fill{
			ID: uuid.NewString(), OrderID: maker.ID, Pair: p.Symbol,
			Amount: match, Price: price, Fee: makerFee, FeeAsset: makerFeeAsset,
			IsMaker: true, Time: now,
		}
		fills = append(fills, takerFill)
		if err := e.store.SaveFills([]order.Fill{makerFill}); err != nil {
			e.log.Errorw("fill_persist_failed", "fill", makerFill.ID, "err", err)
		}
		if err := e.store.SaveOrder(maker); err != nil {
			e.log.Errorw("order_persist_failed", "order", maker.ID, "err", err)
		}

		seq := pe.nextSeq()
		pe.recordTrade(price, match, now)
		events = append(events,
			evtTrade(order.Trade{
				ID: uuid.NewString(), Pair: p.Symbol, Price: price, Amount: match,
				TakerSide: o.Side, TakerOrderID: o.ID, MakerOrderID: maker.ID,
				Seq: seq, Time: now,
			}),
			evtOrder(*maker))
	}
	return fills, events, nil
}

// feeFor maps the buyer/seller fee pair onto a given side.
func feeFor(side order.Side, buyerFee, sellerFee int64) int64 {
	if side == order.Buy {
		return buyerFee
	}
	return sellerFee
}

// releaseRemainingLock returns whatever is left of an order's
// reservation to available. Covers both the unfilled portion and any
// surplus from price improvement.
func (e *Engine) releaseRemainingLock(o *order.Order) {
	if o.LockedRemaining <= 0 {
		o.LockedRemaining = 0
		return
	}
	if err := e.ledger.Unlock(o.UserID, o.LockedAsset, o.LockedRemaining, o.ID); err != nil {
		e.log.Errorw("reservation_release_failed", "order", o.ID, "amount", o.LockedRemaining, "err", err)
		return
	}
	o.LockedRemaining = 0
}

func (e *Engine) persist(o *order.Order, fills []order.Fill) {
	if err := e.store.SaveOrder(o); err != nil {
		e.log.Errorw("order_persist_failed", "order", o.ID, "err", err)
	}
	if len(fills) > 0 {
		if err := e.store.SaveFills(fills); err != nil {
			e.log.Errorw("fills_persist_failed", "order", o.ID, "err", err)
		}
	}
}

func lockErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientAvailable):
		return rejectf(CodeInsufficientAvailable, "%v", err)
	case errors.Is(err, ledger.ErrUnavailable):
		return rejectf(CodeUnavailable, "%v", err)
	default:
		return rejectf(CodeValidation, "%v", err)
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
