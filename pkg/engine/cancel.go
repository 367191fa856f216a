package engine

import (
	"time"

	"github.com/helixmarkets/helix/pkg/order"
)

// Cancel removes a user's resting order. Ownership is checked before
// existence leaks: a foreign order id gets the same NOT_FOUND as a
// nonexistent one. Cancelling an already-terminal order is a no-op that
// returns the final state.
func (e *Engine) Cancel(userID, orderID string) (order.Order, error) {
	e.mu.RLock()
	o, ok := e.orders[orderID]
	e.mu.RUnlock()
	if !ok || o.UserID != userID {
		return order.Order{}, rejectf(CodeNotFound, "order %s not found", orderID)
	}

	pe, ok := e.pairEngine(o.Pair)
	if !ok {
		return order.Order{}, rejectf(CodeNotFound, "order %s not found", orderID)
	}

	pe.flushMu.Lock()
	pe.mu.Lock()
	res, events, err := e.cancelLocked(pe, o)
	pe.mu.Unlock()

	e.flush(events)
	pe.flushMu.Unlock()
	return res, err
}

func (e *Engine) cancelLocked(pe *pairEngine, o *order.Order) (order.Order, []any, error) {
	if o.Status.Terminal() {
		return *o, nil, nil
	}

	if _, resting := pe.book.Remove(o.ID); !resting {
		// Indexed but not resting and not terminal should not happen;
		// fall through and release whatever is still reserved.
		e.log.Warnw("cancel_order_not_resting", "order", o.ID, "status", o.Status)
	}

	e.releaseRemainingLock(o)
	o.Status = order.Cancelled
	o.CancelledAt = time.Now()
	e.persist(o, nil)

	events := []any{
		evtBook{pair: pe.pair.Symbol, seq: pe.nextSeq()},
		evtOrder(*o),
	}
	return *o, events, nil
}

// CancelAll cancels every open order a user has on a pair. Used by the
// market maker when re-quoting and exposed to clients as a convenience.
func (e *Engine) CancelAll(userID, pair string) []order.Order {
	open := e.OpenOrders(userID, pair)
	out := make([]order.Order, 0, len(open))
	for _, o := range open {
		res, err := e.Cancel(userID, o.ID)
		if err != nil {
			continue
		}
		out = append(out, res)
	}
	return out
}
