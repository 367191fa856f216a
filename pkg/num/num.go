// Package num holds the fixed-point arithmetic used everywhere inside the
// trading core. Quantities are int64 amounts in the smallest unit of their
// asset (10^-decimals), prices are quote units per whole base unit. Decimal
// strings only exist at the API boundary; parsing and formatting go through
// apd so no float ever touches a settlement path.
package num

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

const BpsDenominator = 10000

var pow10 = [...]int64{
	1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000,
	1000000000, 10000000000, 100000000000, 1000000000000, 10000000000000,
	100000000000000, 1000000000000000, 10000000000000000, 100000000000000000,
	1000000000000000000,
}

// Pow10 returns 10^n for 0 <= n <= 18.
func Pow10(n int) int64 {
	if n < 0 || n >= len(pow10) {
		panic(fmt.Sprintf("num: pow10 exponent out of range: %d", n))
	}
	return pow10[n]
}

// MulDiv computes a*b/den with a 128-bit intermediate product, truncating
// toward zero. den must be positive.
func MulDiv(a, b, den int64) int64 {
	if den <= 0 {
		panic(fmt.Sprintf("num: non-positive denominator: %d", den))
	}
	var p, d, q big.Int
	p.Mul(big.NewInt(a), big.NewInt(b))
	d.SetInt64(den)
	q.Quo(&p, &d)
	if !q.IsInt64() {
		panic("num: muldiv overflow")
	}
	return q.Int64()
}

// MulDivCeil is MulDiv rounding away from zero for positive operands.
// Used when a reservation must cover the exact cost (never under-lock).
func MulDivCeil(a, b, den int64) int64 {
	if den <= 0 {
		panic(fmt.Sprintf("num: non-positive denominator: %d", den))
	}
	var p, d, q, r big.Int
	p.Mul(big.NewInt(a), big.NewInt(b))
	d.SetInt64(den)
	q.QuoRem(&p, &d, &r)
	if r.Sign() > 0 {
		q.Add(&q, big.NewInt(1))
	}
	if !q.IsInt64() {
		panic("num: muldiv overflow")
	}
	return q.Int64()
}

// FeeBps returns the fee on amount at the given basis-point rate,
// truncated. Negative rates (maker rebates) yield a negative fee.
func FeeBps(amount, bps int64) int64 {
	return MulDiv(amount, bps, BpsDenominator)
}

// Aligned reports whether v is a positive multiple of step.
func Aligned(v, step int64) bool {
	if step <= 0 {
		return v > 0
	}
	return v > 0 && v%step == 0
}

// SnapDown rounds v down to the nearest multiple of step.
func SnapDown(v, step int64) int64 {
	if step <= 0 {
		return v
	}
	return v - v%step
}

var decCtx = apd.BaseContext.WithPrecision(38)

// Parse converts a decimal string into fixed-point units at the given
// scale. The value must be finite, fit in an int64 after scaling, and
// carry no fractional remainder below the scale.
func Parse(s string, decimals int) (int64, error) {
	d, _, err := decCtx.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return 0, fmt.Errorf("parse decimal %q: not finite", s)
	}
	var scaled apd.Decimal
	if _, err := decCtx.Mul(&scaled, d, apd.New(1, int32(decimals))); err != nil {
		return 0, fmt.Errorf("scale decimal %q: %w", s, err)
	}
	var intPart apd.Decimal
	if _, err := decCtx.RoundToIntegralExact(&intPart, &scaled); err != nil || intPart.Cmp(&scaled) != 0 {
		return 0, fmt.Errorf("decimal %q has more than %d decimal places", s, decimals)
	}
	v, err := intPart.Int64()
	if err != nil {
		return 0, fmt.Errorf("decimal %q out of range at scale %d", s, decimals)
	}
	return v, nil
}

// Format renders fixed-point units at the given scale as a plain decimal
// string (no exponent notation).
func Format(v int64, decimals int) string {
	d := apd.New(v, -int32(decimals))
	var reduced apd.Decimal
	reduced.Reduce(d)
	return reduced.Text('f')
}
