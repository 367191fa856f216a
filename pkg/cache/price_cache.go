// Package cache holds short-lived market data that should survive a
// process restart: the latest external reference price per pair. Values
// carry a TTL; a stale read is treated as a miss so the market maker
// never quotes off a dead feed.
package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

type PriceCache struct {
	db  *pebble.DB
	ttl time.Duration
}

// pricePoint is the stored value: the fixed-point price in quote units
// and when it was observed.
type pricePoint struct {
	Price int64     `json:"price"`
	At    time.Time `json:"at"`
}

func Open(path string, ttl time.Duration) (*PriceCache, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open price cache: %w", err)
	}
	return &PriceCache{db: db, ttl: ttl}, nil
}

func (c *PriceCache) Close() error { return c.db.Close() }

// keys: p:<pair>
func kPrice(pair string) []byte { return append([]byte("p:"), pair...) }

// SetPrice records the latest reference price for a pair. NoSync: a
// lost write costs one poll interval, not correctness.
func (c *PriceCache) SetPrice(pair string, price int64) error {
	val, err := json.Marshal(pricePoint{Price: price, At: time.Now()})
	if err != nil {
		return fmt.Errorf("encode price point: %w", err)
	}
	if err := c.db.Set(kPrice(pair), val, pebble.NoSync); err != nil {
		return fmt.Errorf("save price point: %w", err)
	}
	return nil
}

// Price returns the cached reference price if it is still within the
// TTL.
func (c *PriceCache) Price(pair string) (int64, bool) {
	val, closer, err := c.db.Get(kPrice(pair))
	if err != nil {
		return 0, false
	}
	defer closer.Close()

	var p pricePoint
	if err := json.Unmarshal(val, &p); err != nil {
		return 0, false
	}
	if time.Since(p.At) > c.ttl {
		return 0, false
	}
	return p.Price, true
}

// Age reports how old the cached price is. ok is false on a miss.
func (c *PriceCache) Age(pair string) (time.Duration, bool) {
	val, closer, err := c.db.Get(kPrice(pair))
	if err != nil {
		return 0, false
	}
	defer closer.Close()

	var p pricePoint
	if err := json.Unmarshal(val, &p); err != nil {
		return 0, false
	}
	return time.Since(p.At), true
}
