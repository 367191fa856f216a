package ledger

import (
	"fmt"
	"time"

	"github.com/helixmarkets/helix/pkg/order"
)

// TradeSettlement describes one match for settlement. Amounts are already
// computed by the matching engine: BaseAmount in base units, QuoteAmount
// in quote units at the execution price, and each side's fee in the asset
// that side receives (base for the buyer, quote for the seller).
type TradeSettlement struct {
	Pair       string
	BaseAsset  string
	QuoteAsset string

	TakerID      string
	MakerID      string
	TakerOrderID string
	MakerOrderID string
	TakerSide    order.Side

	BaseAmount  int64
	QuoteAmount int64
	Price       int64
	TakerFee    int64
	MakerFee    int64
}

// SettleTrade commits both sides of one match in a single atomic step:
// each side's reservation is consumed, the received asset is credited net
// of its fee, and the fee lands on the fee-collector account. Any
// reservation shortfall aborts the whole settlement with ErrInconsistent;
// nothing is applied.
func (l *Ledger) SettleTrade(s TradeSettlement) error {
	buyerID, sellerID := s.TakerID, s.MakerID
	buyerOrder, sellerOrder := s.TakerOrderID, s.MakerOrderID
	buyerFee, sellerFee := s.TakerFee, s.MakerFee
	if s.TakerSide == order.Sell {
		buyerID, sellerID = s.MakerID, s.TakerID
		buyerOrder, sellerOrder = s.MakerOrderID, s.TakerOrderID
		buyerFee, sellerFee = s.MakerFee, s.TakerFee
	}

	rows, unlock := l.lockAll([][2]string{
		{buyerID, s.QuoteAsset}, {buyerID, s.BaseAsset},
		{sellerID, s.BaseAsset}, {sellerID, s.QuoteAsset},
		{l.FeeCollector, s.BaseAsset}, {l.FeeCollector, s.QuoteAsset},
	})
	defer unlock()

	buyerQuote := rows[key(buyerID, s.QuoteAsset)]
	buyerBase := rows[key(buyerID, s.BaseAsset)]
	sellerBase := rows[key(sellerID, s.BaseAsset)]
	sellerQuote := rows[key(sellerID, s.QuoteAsset)]
	feeBase := rows[key(l.FeeCollector, s.BaseAsset)]
	feeQuote := rows[key(l.FeeCollector, s.QuoteAsset)]

	// Both reservations must cover the execution before anything moves.
	if buyerQuote.locked < s.QuoteAmount {
		return fmt.Errorf("%w: buyer %s has %d locked %s, trade needs %d",
			ErrInconsistent, buyerID, buyerQuote.locked, s.QuoteAsset, s.QuoteAmount)
	}
	if sellerBase.locked < s.BaseAmount {
		return fmt.Errorf("%w: seller %s has %d locked %s, trade needs %d",
			ErrInconsistent, sellerID, sellerBase.locked, s.BaseAsset, s.BaseAmount)
	}
	if buyerFee < 0 || sellerFee < 0 || buyerFee > s.BaseAmount || sellerFee > s.QuoteAmount {
		return fmt.Errorf("%w: fee out of range (buyer %d base, seller %d quote)",
			ErrInconsistent, buyerFee, sellerFee)
	}

	now := time.Now()
	desc := fmt.Sprintf("trade %s %d @ %d", s.Pair, s.BaseAmount, s.Price)

	// Entries are written so every BalanceAfter = BalanceBefore + Amount
	// on the available column: a reservation spend is unlock (+x) then
	// trade (-x); a receipt is trade (+x) then fee (-fee).
	entries := []Entry{
		{ID: l.nextEntryID(), UserID: buyerID, OrderID: buyerOrder, Kind: KindUnlock, Asset: s.QuoteAsset,
			Amount: s.QuoteAmount, BalanceBefore: buyerQuote.available, BalanceAfter: buyerQuote.available + s.QuoteAmount,
			Description: desc, CreatedAt: now},
		{ID: l.nextEntryID(), UserID: buyerID, OrderID: buyerOrder, Kind: KindTrade, Asset: s.QuoteAsset,
			Amount: -s.QuoteAmount, BalanceBefore: buyerQuote.available + s.QuoteAmount, BalanceAfter: buyerQuote.available,
			Description: desc, CreatedAt: now},
		{ID: l.nextEntryID(), UserID: buyerID, OrderID: buyerOrder, Kind: KindTrade, Asset: s.BaseAsset,
			Amount: s.BaseAmount, BalanceBefore: buyerBase.available, BalanceAfter: buyerBase.available + s.BaseAmount,
			Description: desc, CreatedAt: now},
		{ID: l.nextEntryID(), UserID: sellerID, OrderID: sellerOrder, Kind: KindUnlock, Asset: s.BaseAsset,
			Amount: s.BaseAmount, BalanceBefore: sellerBase.available, BalanceAfter: sellerBase.available + s.BaseAmount,
			Description: desc, CreatedAt: now},
		{ID: l.nextEntryID(), UserID: sellerID, OrderID: sellerOrder, Kind: KindTrade, Asset: s.BaseAsset,
			Amount: -s.BaseAmount, BalanceBefore: sellerBase.available + s.BaseAmount, BalanceAfter: sellerBase.available,
			Description: desc, CreatedAt: now},
		{ID: l.nextEntryID(), UserID: sellerID, OrderID: sellerOrder, Kind: KindTrade, Asset: s.QuoteAsset,
			Amount: s.QuoteAmount, BalanceBefore: sellerQuote.available, BalanceAfter: sellerQuote.available + s.QuoteAmount,
			Description: desc, CreatedAt: now},
	}
	if buyerFee > 0 {
		entries = append(entries,
			Entry{ID: l.nextEntryID(), UserID: buyerID, OrderID: buyerOrder, Kind: KindFee, Asset: s.BaseAsset,
				Amount: -buyerFee, BalanceBefore: buyerBase.available + s.BaseAmount, BalanceAfter: buyerBase.available + s.BaseAmount - buyerFee,
				Description: "taker/maker fee", CreatedAt: now},
			Entry{ID: l.nextEntryID(), UserID: l.FeeCollector, OrderID: buyerOrder, Kind: KindFee, Asset: s.BaseAsset,
				Amount: buyerFee, BalanceBefore: feeBase.available, BalanceAfter: feeBase.available + buyerFee,
				Description: "fee revenue", CreatedAt: now})
	}
	if sellerFee > 0 {
		entries = append(entries,
			Entry{ID: l.nextEntryID(), UserID: sellerID, OrderID: sellerOrder, Kind: KindFee, Asset: s.QuoteAsset,
				Amount: -sellerFee, BalanceBefore: sellerQuote.available + s.QuoteAmount, BalanceAfter: sellerQuote.available + s.QuoteAmount - sellerFee,
				Description: "taker/maker fee", CreatedAt: now},
			Entry{ID: l.nextEntryID(), UserID: l.FeeCollector, OrderID: sellerOrder, Kind: KindFee, Asset: s.QuoteAsset,
				Amount: sellerFee, BalanceBefore: feeQuote.available, BalanceAfter: feeQuote.available + sellerFee,
				Description: "fee revenue", CreatedAt: now})
	}

	apply := func() {
		buyerQuote.locked -= s.QuoteAmount
		buyerBase.available += s.BaseAmount - buyerFee
		sellerBase.locked -= s.BaseAmount
		sellerQuote.available += s.QuoteAmount - sellerFee
		feeBase.available += buyerFee
		feeQuote.available += sellerFee
	}

	return l.commit(entries, apply, []balanceRef{
		{buyerID, s.QuoteAsset, buyerQuote},
		{buyerID, s.BaseAsset, buyerBase},
		{sellerID, s.BaseAsset, sellerBase},
		{sellerID, s.QuoteAsset, sellerQuote},
		{l.FeeCollector, s.BaseAsset, feeBase},
		{l.FeeCollector, s.QuoteAsset, feeQuote},
	})
}
