package asset

import (
	"fmt"
	"sync"
)

// Registry manages assets and trading pairs in a thread-safe manner.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]*Asset
	pairs  map[string]*Pair
}

func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[string]*Asset),
		pairs:  make(map[string]*Pair),
	}
}

// RegisterAsset adds a new asset. Returns an error if the symbol is
// already taken.
func (r *Registry) RegisterAsset(a *Asset) error {
	if a == nil || a.Symbol == "" {
		return fmt.Errorf("invalid asset")
	}
	if a.Decimals < 0 || a.Decimals > 18 {
		return fmt.Errorf("asset %s: decimals %d out of range", a.Symbol, a.Decimals)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.assets[a.Symbol]; exists {
		return fmt.Errorf("asset %s already registered", a.Symbol)
	}
	r.assets[a.Symbol] = a
	return nil
}

// RegisterPair adds a trading pair. Both assets must already exist.
func (r *Registry) RegisterPair(p *Pair) error {
	if p == nil || p.Base == nil || p.Quote == nil {
		return fmt.Errorf("invalid pair")
	}
	if p.PriceTick <= 0 || p.LotStep <= 0 {
		return fmt.Errorf("pair %s: tick and lot must be positive", p.Symbol)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.assets[p.Base.Symbol]; !ok {
		return fmt.Errorf("pair %s: base asset %s not registered", p.Symbol, p.Base.Symbol)
	}
	if _, ok := r.assets[p.Quote.Symbol]; !ok {
		return fmt.Errorf("pair %s: quote asset %s not registered", p.Symbol, p.Quote.Symbol)
	}
	if _, exists := r.pairs[p.Symbol]; exists {
		return fmt.Errorf("pair %s already registered", p.Symbol)
	}
	r.pairs[p.Symbol] = p
	return nil
}

// Asset returns the asset for a symbol.
func (r *Registry) Asset(symbol string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assets[symbol]
	return a, ok
}

// Pair returns the pair for a symbol.
func (r *Registry) Pair(symbol string) (*Pair, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[symbol]
	return p, ok
}

// Pairs returns all registered pairs.
func (r *Registry) Pairs() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	return out
}

// ActivePairs returns pairs currently open for trading.
func (r *Registry) ActivePairs() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// SetPairActive flips trading on or off for a pair.
func (r *Registry) SetPairActive(symbol string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairs[symbol]
	if !ok {
		return fmt.Errorf("pair %s not found", symbol)
	}
	p.Active = active
	return nil
}
