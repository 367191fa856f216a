// Package asset defines tradable assets and trading pairs and the
// registry that holds them.
package asset

import (
	"fmt"
	"strings"

	"github.com/helixmarkets/helix/pkg/num"
)

// Asset is a tradable currency. Immutable after registration except for
// the Active flag.
type Asset struct {
	Symbol      string // e.g. "SOL"
	Chain       string // e.g. "solana"
	Decimals    int    // fixed-point scale for amounts of this asset
	MinDeposit  int64  // in asset units
	MinWithdraw int64  // in asset units
	Active      bool
}

// Unit returns 10^Decimals, the number of units in one whole asset.
func (a *Asset) Unit() int64 {
	return num.Pow10(a.Decimals)
}

// Pair is an ordered (base, quote) trading pair.
type Pair struct {
	Symbol string // "SOL/USDC"
	Base   *Asset
	Quote  *Asset

	PriceTick    int64 // minimum price increment, quote units per whole base
	LotStep      int64 // minimum size increment, base units
	MinOrderSize int64 // base units
	MaxOrderSize int64 // base units, 0 = unbounded
	MakerFeeBps  int64
	TakerFeeBps  int64
	Active       bool
}

// PairSymbol builds the canonical "BASE/QUOTE" symbol.
func PairSymbol(base, quote string) string {
	return base + "/" + quote
}

// SplitSymbol splits "BASE/QUOTE" into its parts.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// QuoteValue converts a base amount at a price into quote units,
// truncating. price is quote units per whole base.
func (p *Pair) QuoteValue(baseAmount, price int64) int64 {
	return num.MulDiv(baseAmount, price, p.Base.Unit())
}

// QuoteValueCeil rounds up; used when reserving funds so a lock always
// covers the worst-case cost.
func (p *Pair) QuoteValueCeil(baseAmount, price int64) int64 {
	return num.MulDivCeil(baseAmount, price, p.Base.Unit())
}

// ValidatePrice checks tick alignment.
func (p *Pair) ValidatePrice(price int64) error {
	if !num.Aligned(price, p.PriceTick) {
		return fmt.Errorf("price %d not a positive multiple of tick %d", price, p.PriceTick)
	}
	return nil
}

// ValidateAmount checks lot alignment and the min/max bounds.
func (p *Pair) ValidateAmount(amount int64) error {
	if !num.Aligned(amount, p.LotStep) {
		return fmt.Errorf("amount %d not a positive multiple of lot %d", amount, p.LotStep)
	}
	if amount < p.MinOrderSize {
		return fmt.Errorf("amount %d below minimum %d", amount, p.MinOrderSize)
	}
	if p.MaxOrderSize > 0 && amount > p.MaxOrderSize {
		return fmt.Errorf("amount %d above maximum %d", amount, p.MaxOrderSize)
	}
	return nil
}
