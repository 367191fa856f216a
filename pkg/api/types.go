package api

import (
	"github.com/helixmarkets/helix/pkg/asset"
	"github.com/helixmarkets/helix/pkg/engine"
	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/num"
	"github.com/helixmarkets/helix/pkg/order"
)

// All REST payloads carry amounts and prices as decimal strings; the
// fixed-point integers never cross the HTTP boundary. Amounts are in
// the base asset's decimals, prices and quote budgets in the quote
// asset's.

type SubmitOrderRequest struct {
	Pair          string `json:"pair"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	Amount        string `json:"amount"`
	Price         string `json:"price,omitempty"`
	QuoteBudget   string `json:"quoteBudget,omitempty"`
	TimeInForce   string `json:"timeInForce,omitempty"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
}

type SubmitOrderResponse struct {
	OrderID      string     `json:"orderId"`
	Status       string     `json:"status"`
	Filled       string     `json:"filled"`
	Remaining    string     `json:"remaining"`
	AveragePrice string     `json:"averagePrice,omitempty"`
	Fills        []FillInfo `json:"fills"`
}

type FillInfo struct {
	FillID   string `json:"fillId"`
	Amount   string `json:"amount"`
	Price    string `json:"price"`
	Fee      string `json:"fee"`
	FeeAsset string `json:"feeAsset"`
	IsMaker  bool   `json:"isMaker"`
	Time     int64  `json:"time"`
}

type CancelOrderRequest struct {
	OrderID string `json:"orderId"`
}

type CancelOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type OrderInfo struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
	Pair          string `json:"pair"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	TimeInForce   string `json:"timeInForce"`
	Price         string `json:"price,omitempty"`
	Amount        string `json:"amount"`
	Filled        string `json:"filled"`
	Remaining     string `json:"remaining"`
	AveragePrice  string `json:"averagePrice,omitempty"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
}

type OrderListResponse struct {
	Orders   []OrderInfo `json:"orders"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

type BalanceInfo struct {
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Total     string `json:"total"`
}

type LedgerEntryInfo struct {
	ID          int64  `json:"id"`
	OrderID     string `json:"orderId,omitempty"`
	Kind        string `json:"kind"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

type LedgerHistoryResponse struct {
	Entries  []LedgerEntryInfo `json:"entries"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

type PairInfo struct {
	Symbol       string `json:"symbol"`
	BaseAsset    string `json:"baseAsset"`
	QuoteAsset   string `json:"quoteAsset"`
	PriceTick    string `json:"priceTick"`
	LotStep      string `json:"lotStep"`
	MinOrderSize string `json:"minOrderSize"`
	MaxOrderSize string `json:"maxOrderSize"`
	MakerFeeBps  int64  `json:"makerFeeBps"`
	TakerFeeBps  int64  `json:"takerFeeBps"`
	Active       bool   `json:"active"`
}

type TickerInfo struct {
	Pair      string `json:"pair"`
	LastPrice string `json:"lastPrice"`
	BestBid   string `json:"bestBid"`
	BestAsk   string `json:"bestAsk"`
	Spread    string `json:"spread"`
	MidPrice  string `json:"midPrice"`
	Volume24h string `json:"volume24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Sequence  uint64 `json:"sequence"`
}

type TradeInfo struct {
	TradeID   string `json:"tradeId"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	TakerSide string `json:"takerSide"`
	Sequence  uint64 `json:"sequence"`
	Time      int64  `json:"time"`
}

type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type WithdrawRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// WSRequest is the client-to-server stream frame.
type WSRequest struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// conversion helpers

func orderInfo(o order.Order, p *asset.Pair) OrderInfo {
	info := OrderInfo{
		OrderID: o.ID, ClientOrderID: o.ClientOrderID, Pair: o.Pair,
		Type: o.Type.String(), Side: o.Side.String(), TimeInForce: o.TimeInForce.String(),
		Amount:    num.Format(o.Amount, p.Base.Decimals),
		Filled:    num.Format(o.Filled, p.Base.Decimals),
		Remaining: num.Format(o.Remaining(), p.Base.Decimals),
		Status:    o.Status.String(),
		CreatedAt: o.CreatedAt.UnixMilli(),
	}
	if o.Price != 0 {
		info.Price = num.Format(o.Price, p.Quote.Decimals)
	}
	if o.AvgPrice != 0 {
		info.AveragePrice = num.Format(o.AvgPrice, p.Quote.Decimals)
	}
	return info
}

func fillInfo(f order.Fill, p *asset.Pair, reg *asset.Registry) FillInfo {
	feeDecimals := p.Quote.Decimals
	if a, ok := reg.Asset(f.FeeAsset); ok {
		feeDecimals = a.Decimals
	}
	return FillInfo{
		FillID:   f.ID,
		Amount:   num.Format(f.Amount, p.Base.Decimals),
		Price:    num.Format(f.Price, p.Quote.Decimals),
		Fee:      num.Format(f.Fee, feeDecimals),
		FeeAsset: f.FeeAsset,
		IsMaker:  f.IsMaker,
		Time:     f.Time.UnixMilli(),
	}
}

func balanceInfo(b ledger.Balance, decimals int) BalanceInfo {
	return BalanceInfo{
		Asset:     b.Asset,
		Available: num.Format(b.Available, decimals),
		Locked:    num.Format(b.Locked, decimals),
		Total:     num.Format(b.Total(), decimals),
	}
}

func pairInfo(p *asset.Pair) PairInfo {
	return PairInfo{
		Symbol:       p.Symbol,
		BaseAsset:    p.Base.Symbol,
		QuoteAsset:   p.Quote.Symbol,
		PriceTick:    num.Format(p.PriceTick, p.Quote.Decimals),
		LotStep:      num.Format(p.LotStep, p.Base.Decimals),
		MinOrderSize: num.Format(p.MinOrderSize, p.Base.Decimals),
		MaxOrderSize: num.Format(p.MaxOrderSize, p.Base.Decimals),
		MakerFeeBps:  p.MakerFeeBps,
		TakerFeeBps:  p.TakerFeeBps,
		Active:       p.Active,
	}
}

func tickerInfo(t engine.Ticker, p *asset.Pair) TickerInfo {
	qd := p.Quote.Decimals
	return TickerInfo{
		Pair:      t.Pair,
		LastPrice: num.Format(t.LastPrice, qd),
		BestBid:   num.Format(t.BestBid, qd),
		BestAsk:   num.Format(t.BestAsk, qd),
		Spread:    num.Format(t.Spread, qd),
		MidPrice:  num.Format(t.MidPrice, qd),
		Volume24h: num.Format(t.Volume24h, p.Base.Decimals),
		High24h:   num.Format(t.High24h, qd),
		Low24h:    num.Format(t.Low24h, qd),
		Sequence:  t.Sequence,
	}
}

func tradeInfo(t order.Trade, p *asset.Pair) TradeInfo {
	return TradeInfo{
		TradeID:   t.ID,
		Price:     num.Format(t.Price, p.Quote.Decimals),
		Amount:    num.Format(t.Amount, p.Base.Decimals),
		TakerSide: t.TakerSide.String(),
		Sequence:  t.Seq,
		Time:      t.Time.UnixMilli(),
	}
}

func entryInfo(e ledger.Entry, reg *asset.Registry) LedgerEntryInfo {
	decimals := 0
	if a, ok := reg.Asset(e.Asset); ok {
		decimals = a.Decimals
	}
	return LedgerEntryInfo{
		ID:          e.ID,
		OrderID:     e.OrderID,
		Kind:        string(e.Kind),
		Asset:       e.Asset,
		Amount:      num.Format(e.Amount, decimals),
		Description: e.Description,
		CreatedAt:   e.CreatedAt.UnixMilli(),
	}
}
