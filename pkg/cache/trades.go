package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/helixmarkets/helix/pkg/order"
)

// keys: t:<pair>:<8-byte-seq>, ordered so iteration walks a pair's
// trades in sequence order.
func kTrade(pair string, seq uint64) []byte {
	key := append([]byte("t:"), pair...)
	key = append(key, ':')
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}

func tradePrefix(pair string) []byte {
	key := append([]byte("t:"), pair...)
	return append(key, ':')
}

// keyUpperBound returns the smallest key greater than every key with
// the given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// RecordTrade journals one trade, write-and-forget. NoSync by the same
// argument as prices: this is a convenience copy, the ledger is the
// source of truth.
func (c *PriceCache) RecordTrade(t order.Trade) error {
	val, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trade: %w", err)
	}
	if err := c.db.Set(kTrade(t.Pair, t.Seq), val, pebble.NoSync); err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades for a pair, newest first.
func (c *PriceCache) RecentTrades(pair string, limit int) ([]order.Trade, error) {
	prefix := tradePrefix(pair)
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("trade iter: %w", err)
	}
	defer iter.Close()

	var trades []order.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t order.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}
