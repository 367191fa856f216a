package bus

import (
	"time"

	"github.com/helixmarkets/helix/pkg/order"
)

// Frame is one server-to-client stream message.
type Frame struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func frame(typ, channel string, data any) Frame {
	return Frame{Type: typ, Channel: channel, Data: data, Timestamp: time.Now().UnixMilli()}
}

// TradeMsg is the public wire form of one match.
type TradeMsg struct {
	TradeID      string `json:"tradeId"`
	Pair         string `json:"pair"`
	Price        int64  `json:"price"`
	Amount       int64  `json:"amount"`
	TakerSide    string `json:"takerSide"`
	TakerOrderID string `json:"takerOrderId"`
	MakerOrderID string `json:"makerOrderId"`
	Sequence     uint64 `json:"sequence"`
	Time         int64  `json:"time"`
}

func tradeMsg(t order.Trade) TradeMsg {
	return TradeMsg{
		TradeID: t.ID, Pair: t.Pair, Price: t.Price, Amount: t.Amount,
		TakerSide: t.TakerSide.String(), TakerOrderID: t.TakerOrderID,
		MakerOrderID: t.MakerOrderID, Sequence: t.Seq, Time: t.Time.UnixMilli(),
	}
}

// OrderMsg is the private wire form of an order state transition.
type OrderMsg struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId,omitempty"`
	Pair          string `json:"pair"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	TimeInForce   string `json:"timeInForce"`
	Price         int64  `json:"price,omitempty"`
	Amount        int64  `json:"amount"`
	Filled        int64  `json:"filled"`
	Remaining     int64  `json:"remaining"`
	AvgPrice      int64  `json:"averagePrice,omitempty"`
	Status        string `json:"status"`
	Sequence      uint64 `json:"sequence,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

func orderMsg(o order.Order) OrderMsg {
	return OrderMsg{
		OrderID: o.ID, ClientOrderID: o.ClientOrderID, Pair: o.Pair,
		Type: o.Type.String(), Side: o.Side.String(), TimeInForce: o.TimeInForce.String(),
		Price: o.Price, Amount: o.Amount, Filled: o.Filled, Remaining: o.Remaining(),
		AvgPrice: o.AvgPrice, Status: o.Status.String(), Sequence: o.Seq,
		CreatedAt: o.CreatedAt.UnixMilli(),
	}
}
