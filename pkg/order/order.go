// Package order defines the order, fill, and trade types shared by the
// book, matching engine, and fan-out layers.
package order

import (
	"time"

	"github.com/helixmarkets/helix/pkg/num"
)

type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func ParseSide(s string) (Side, bool) {
	switch s {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	}
	return 0, false
}

type Type int8

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

func ParseType(s string) (Type, bool) {
	switch s {
	case "limit":
		return Limit, true
	case "market":
		return Market, true
	}
	return 0, false
}

// TimeInForce controls what happens to the unfilled remainder of a taker
// order. GTC rests it, IOC drops it, FOK requires the whole amount to be
// fillable before anything executes.
type TimeInForce int8

const (
	GTC TimeInForce = iota
	IOC
	FOK
)

func (t TimeInForce) String() string {
	switch t {
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "GTC"
	}
}

func ParseTimeInForce(s string) (TimeInForce, bool) {
	switch s {
	case "", "GTC":
		return GTC, true
	case "IOC":
		return IOC, true
	case "FOK":
		return FOK, true
	}
	return 0, false
}

// Status is the order lifecycle state machine:
//
//	pending -> partial -> filled | cancelled
//	pending -> cancelled
//	pending -> rejected (pre-insert only)
type Status int8

const (
	Pending Status = iota
	Partial
	Filled
	Cancelled
	Rejected
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Partial:
		return "partial"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) (Status, bool) {
	switch s {
	case "pending":
		return Pending, true
	case "partial":
		return Partial, true
	case "filled":
		return Filled, true
	case "cancelled":
		return Cancelled, true
	case "rejected":
		return Rejected, true
	}
	return 0, false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Rejected
}

// Order is a single submitted order. Amounts are base-asset units, prices
// quote units per whole base unit. Filled+Remaining == Amount at all times.
type Order struct {
	ID            string
	ClientOrderID string
	UserID        string
	Pair          string
	Type          Type
	Side          Side
	TimeInForce   TimeInForce

	Price  int64 // required for limit, 0 for market
	Amount int64 // original size
	Filled int64 // monotonically non-decreasing

	// QuoteBudget caps the quote spend of a market buy. Zero elsewhere.
	QuoteBudget int64

	// AvgPrice is the volume-weighted execution price across fills.
	AvgPrice int64
	// quoteVolume accumulates price*amount for the running average.
	quoteVolume int64

	Status Status

	// What was reserved at admission and how much of that reservation is
	// still outstanding. LockedRemaining shrinks as fills consume the
	// reservation; whatever is left is released at a terminal state.
	LockedAsset     string
	LockedAmount    int64
	LockedRemaining int64

	// Seq is the pair sequence assigned when the order entered the book
	// (its time priority). Zero for orders that never rested.
	Seq uint64

	CreatedAt   time.Time
	FilledAt    time.Time
	CancelledAt time.Time
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() int64 {
	return o.Amount - o.Filled
}

// ApplyFill records a fill of amount base units at price, updating the
// running volume-weighted average. baseUnit is 10^baseDecimals.
func (o *Order) ApplyFill(amount, price, baseUnit int64) {
	o.Filled += amount
	o.quoteVolume += num.MulDiv(amount, price, baseUnit)
	if o.Filled > 0 {
		o.AvgPrice = num.MulDiv(o.quoteVolume, baseUnit, o.Filled)
	}
}

// RestoreQuoteVolume reseeds the average-price accumulator when an order
// is rebuilt from storage.
func (o *Order) RestoreQuoteVolume(baseUnit int64) {
	o.quoteVolume = num.MulDiv(o.AvgPrice, o.Filled, baseUnit)
}

// Fill is one side's record of one match. Each match writes two: taker
// and maker.
type Fill struct {
	ID       string
	OrderID  string
	Pair     string
	Amount   int64
	Price    int64
	Fee      int64
	FeeAsset string
	IsMaker  bool
	Time     time.Time
}

// Trade is the public record of one match, taker's perspective.
type Trade struct {
	ID           string
	Pair         string
	Price        int64
	Amount       int64
	TakerSide    Side
	TakerOrderID string
	MakerOrderID string
	Seq          uint64
	Time         time.Time
}
