package engine

import (
	"fmt"
	"sync"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/google/btree"
)

// OrderBookEntry represents a single order resting on the book.
type OrderBookEntry struct {
	Price    int64
	Sequence uint64
	Order    *domain.Order
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// BookSnapshot is a point-in-time copy of both sides of a book. The
// orders are values, so callers cannot reach back into the book.
type BookSnapshot struct {
	Symbol string
	Bids   []domain.Order // best first
	Asks   []domain.Order // best first
}

// bidLess orders the bid side by price descending, then sequence
// ascending, so Min() is the best bid.
func bidLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Sequence < b.Sequence
}

// askLess orders the ask side by price ascending, then sequence
// ascending, so Min() is the best ask.
func askLess(a, b OrderBookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Sequence < b.Sequence
}

// OrderBook maintains the bid and ask sides for a single symbol using
// B-trees keyed by (price, sequence), with a secondary index for
// O(log n) removal by order ID.
//
// Mutating methods do not lock; the Matcher holds mu for the whole
// admission. Snapshot takes the read lock itself.
type OrderBook struct {
	symbol string
	mu     sync.RWMutex
	bids   *btree.BTreeG[OrderBookEntry]
	asks   *btree.BTreeG[OrderBookEntry]
	index  map[domain.OrderID]OrderBookEntry
}

// NewOrderBook creates an order book for the given symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol: symbol,
		bids:   btree.NewG[OrderBookEntry](degree, bidLess),
		asks:   btree.NewG[OrderBookEntry](degree, askLess),
		index:  make(map[domain.OrderID]OrderBookEntry),
	}
}

// Symbol returns the instrument this book holds.
func (ob *OrderBook) Symbol() string {
	return ob.symbol
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[OrderBookEntry] {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Insert adds an open order to its side of the book. It fails with
// domain.ErrInvalidOrder if the order has nothing left to trade, has a
// non-positive price, belongs to another symbol, or is already present.
func (ob *OrderBook) Insert(o *domain.Order) error {
	switch {
	case o.RemainingQuantity <= 0:
		return fmt.Errorf("%w: remaining quantity %d", domain.ErrInvalidOrder, o.RemainingQuantity)
	case o.Price <= 0:
		return fmt.Errorf("%w: price %d", domain.ErrInvalidOrder, o.Price)
	case !o.Side.Valid():
		return fmt.Errorf("%w: side %q", domain.ErrInvalidOrder, o.Side)
	case o.Symbol != ob.symbol:
		return fmt.Errorf("%w: symbol %q on book %q", domain.ErrInvalidOrder, o.Symbol, ob.symbol)
	}
	if _, exists := ob.index[o.ID]; exists {
		return fmt.Errorf("%w: order %d already on book", domain.ErrInvalidOrder, o.ID)
	}

	entry := OrderBookEntry{Price: o.Price, Sequence: o.Sequence, Order: o}
	ob.side(o.Side).ReplaceOrInsert(entry)
	ob.index[o.ID] = entry
	return nil
}

// Remove deletes an order by ID regardless of its position. It is a
// no-op returning false if the order is not on the book.
func (ob *OrderBook) Remove(id domain.OrderID) bool {
	entry, ok := ob.index[id]
	if !ok {
		return false
	}
	delete(ob.index, id)
	ob.side(entry.Order.Side).Delete(entry)
	return true
}

// Contains reports whether the order is resting on the book.
func (ob *OrderBook) Contains(id domain.OrderID) bool {
	_, ok := ob.index[id]
	return ok
}

// PeekBest returns the highest-priority entry on the given side: best
// price, then lowest sequence.
func (ob *OrderBook) PeekBest(s domain.Side) (OrderBookEntry, bool) {
	return ob.side(s).Min()
}

// BestBid returns the highest-priority bid.
func (ob *OrderBook) BestBid() (OrderBookEntry, bool) {
	return ob.bids.Min()
}

// BestAsk returns the highest-priority ask.
func (ob *OrderBook) BestAsk() (OrderBookEntry, bool) {
	return ob.asks.Min()
}

// Walk iterates one side in priority order. The callback returns true
// to continue, false to stop.
func (ob *OrderBook) Walk(s domain.Side, fn func(OrderBookEntry) bool) {
	ob.side(s).Ascend(fn)
}

// Len returns the number of individual orders on one side.
func (ob *OrderBook) Len(s domain.Side) int {
	return ob.side(s).Len()
}

// Snapshot copies both sides under the read lock, each truncated to
// depth orders. A depth of zero or less means no limit.
func (ob *OrderBook) Snapshot(depth int) BookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return BookSnapshot{
		Symbol: ob.symbol,
		Bids:   copySide(ob.bids, depth),
		Asks:   copySide(ob.asks, depth),
	}
}

func copySide(tree *btree.BTreeG[OrderBookEntry], depth int) []domain.Order {
	n := tree.Len()
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]domain.Order, 0, n)
	tree.Ascend(func(entry OrderBookEntry) bool {
		if len(out) >= n {
			return false
		}
		o := *entry.Order
		if o.CancelledAt != nil {
			at := *o.CancelledAt
			o.CancelledAt = &at
		}
		out = append(out, o)
		return true
	})
	return out
}

// AggregateLevels folds orders (already in priority order) into at most
// n price levels. n <= 0 means no limit.
func AggregateLevels(orders []domain.Order, n int) []PriceLevel {
	levels := make([]PriceLevel, 0)
	for _, o := range orders {
		if len(levels) > 0 && levels[len(levels)-1].Price == o.Price {
			levels[len(levels)-1].TotalQuantity += o.RemainingQuantity
			levels[len(levels)-1].OrderCount++
			continue
		}
		if n > 0 && len(levels) >= n {
			break
		}
		levels = append(levels, PriceLevel{
			Price:         o.Price,
			TotalQuantity: o.RemainingQuantity,
			OrderCount:    1,
		})
	}
	return levels
}

// BookManager is a thread-safe map of symbol → OrderBook.
type BookManager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[string]*OrderBook),
	}
}

// Get returns the book for symbol if one has been created.
func (bm *BookManager) Get(symbol string) (*OrderBook, bool) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	book, ok := bm.books[symbol]
	return book, ok
}

// GetOrCreate returns the order book for the given symbol, creating
// one if it doesn't already exist.
func (bm *BookManager) GetOrCreate(symbol string) *OrderBook {
	bm.mu.RLock()
	book, ok := bm.books[symbol]
	bm.mu.RUnlock()
	if ok {
		return book
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()
	// Double-check after acquiring write lock.
	if book, ok = bm.books[symbol]; ok {
		return book
	}
	book = NewOrderBook(symbol)
	bm.books[symbol] = book
	return book
}
