package domain

import (
	"fmt"
	"time"
)

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order on s trades against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide converts a request value into a Side. It returns
// ErrInvalidSide for anything other than "buy" or "sell".
func ParseSide(v string) (Side, error) {
	s := Side(v)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q, must be one of: buy, sell", ErrInvalidSide, v)
	}
	return s, nil
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether no further fills can happen in this state.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// OrderID identifies an order. IDs are allocated by the engine and
// never reused.
type OrderID uint64

func (id OrderID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// Order is a buy or sell intent for one symbol. Everything except
// RemainingQuantity and Status is fixed at admission.
type Order struct {
	ID                OrderID
	Participant       string
	Symbol            string
	Side              Side
	Price             int64 // ticks; always concrete once admitted
	Market            bool  // price was resolved from the oracle at admission
	OriginalQuantity  int64
	RemainingQuantity int64
	Sequence          uint64 // admission order, the time-priority tie-break
	Status            OrderStatus
	CreatedAt         time.Time // informational only
	CancelledAt       *time.Time
}

// FilledQuantity returns how much of the order has traded.
func (o *Order) FilledQuantity() int64 {
	return o.OriginalQuantity - o.RemainingQuantity
}

// Open reports whether the order may still rest on the book.
func (o *Order) Open() bool {
	return !o.Status.Terminal() && o.RemainingQuantity > 0
}

// Fill records a match of qty against the order, moving the status
// forward. Overfilling is a programming error.
func (o *Order) Fill(qty int64) {
	if qty <= 0 || qty > o.RemainingQuantity {
		panic(fmt.Sprintf("order %d: fill of %d exceeds remaining %d", o.ID, qty, o.RemainingQuantity))
	}
	o.RemainingQuantity -= qty
	if o.RemainingQuantity == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}

// Cancel marks the order cancelled at the given time. The remaining
// quantity is left untouched so the unfilled amount stays visible.
func (o *Order) Cancel(at time.Time) {
	o.Status = OrderStatusCancelled
	o.CancelledAt = &at
}

// CancelledQuantity is the part of the order that will never trade
// because it was cancelled.
func (o *Order) CancelledQuantity() int64 {
	if o.Status != OrderStatusCancelled {
		return 0
	}
	return o.RemainingQuantity
}

// AveragePrice computes the volume-weighted average execution price
// over the given trades of this order using integer arithmetic.
// Returns (0, false) when nothing has traded.
func (o *Order) AveragePrice(trades []Trade) (int64, bool) {
	var total, qty int64
	for _, t := range trades {
		if t.BuyOrderID != o.ID && t.SellOrderID != o.ID {
			continue
		}
		total += t.Price * t.Quantity
		qty += t.Quantity
	}
	if qty == 0 {
		return 0, false
	}
	return total / qty, true
}
