package service

import (
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
)

// timeFormat is used for every timestamp leaving the service.
const timeFormat = "2006-01-02T15:04:05.000Z"

// TradeEvent is the JSON shape of a trade on the feed and in webhooks.
type TradeEvent struct {
	Sequence        uint64  `json:"sequence"`
	Symbol          string  `json:"symbol"`
	Price           float64 `json:"price"`
	Quantity        int64   `json:"quantity"`
	BuyOrderID      string  `json:"buy_order_id"`
	SellOrderID     string  `json:"sell_order_id"`
	BuyParticipant  string  `json:"buy_participant"`
	SellParticipant string  `json:"sell_participant"`
	AggressorSide   string  `json:"aggressor_side"`
	ExecutedAt      string  `json:"executed_at"`
}

// NewTradeEvent converts a trade for publication.
func NewTradeEvent(t domain.Trade) TradeEvent {
	return TradeEvent{
		Sequence:        t.Sequence,
		Symbol:          t.Symbol,
		Price:           domain.TicksToFloat(t.Price),
		Quantity:        t.Quantity,
		BuyOrderID:      t.BuyOrderID.String(),
		SellOrderID:     t.SellOrderID.String(),
		BuyParticipant:  t.BuyParticipant,
		SellParticipant: t.SellParticipant,
		AggressorSide:   string(t.AggressorSide),
		ExecutedAt:      FormatTime(t.ExecutedAt),
	}
}

// OrderEvent is the JSON shape of an order state change.
type OrderEvent struct {
	OrderID           string  `json:"order_id"`
	Participant       string  `json:"participant"`
	Symbol            string  `json:"symbol"`
	Side              string  `json:"side"`
	Price             float64 `json:"price"`
	Quantity          int64   `json:"quantity"`
	FilledQuantity    int64   `json:"filled_quantity"`
	CancelledQuantity int64   `json:"cancelled_quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	Status            string  `json:"status"`
}

// NewOrderEvent converts an order for publication.
func NewOrderEvent(o domain.Order) OrderEvent {
	return OrderEvent{
		OrderID:           o.ID.String(),
		Participant:       o.Participant,
		Symbol:            o.Symbol,
		Side:              string(o.Side),
		Price:             domain.TicksToFloat(o.Price),
		Quantity:          o.OriginalQuantity,
		FilledQuantity:    o.FilledQuantity(),
		CancelledQuantity: o.CancelledQuantity(),
		RemainingQuantity: o.RemainingQuantity,
		Status:            string(o.Status),
	}
}

// FormatTime renders t in UTC with millisecond precision.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
