package domain

import "time"

// Trade is an immutable execution between one buy order and one sell
// order. Price is always the resting order's price.
type Trade struct {
	Sequence        uint64 // global ledger order, strictly increasing
	Symbol          string
	Price           int64 // ticks
	Quantity        int64
	BuyParticipant  string
	SellParticipant string
	BuyOrderID      OrderID
	SellOrderID     OrderID
	AggressorSide   Side
	ExecutedAt      time.Time // informational only
}

// Involves reports whether participant was on either side of the trade.
func (t Trade) Involves(participant string) bool {
	return t.BuyParticipant == participant || t.SellParticipant == participant
}

// Notional returns price × quantity in ticks. Order bounds keep it
// below MaxPriceTicks × MaxQuantity.
func (t Trade) Notional() int64 {
	return t.Price * t.Quantity
}
