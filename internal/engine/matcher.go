package engine

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/store"
)

// PriceOracle supplies a reference price for orders submitted without
// one. The matcher calls it at most once per admission and never while
// holding a book lock.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, symbol string) (int64, bool)
}

// SubmitRequest is an order as handed to the matcher. A nil Price makes
// it a market order, resolved through the PriceOracle.
type SubmitRequest struct {
	Participant string
	Symbol      string
	Side        domain.Side
	Quantity    int64
	Price       *int64
}

// AdmissionReport is everything a single Submit call did: the order's
// final state, the trades it produced and any resting orders removed by
// self-trade prevention.
type AdmissionReport struct {
	Order            domain.Order
	Trades           []domain.Trade
	CancelledResting []domain.Order
}

// QuotePriceLevel represents a single price level in a quote simulation.
type QuotePriceLevel struct {
	Price    int64
	Quantity int64
}

// QuoteResult holds the result of a market order simulation.
type QuoteResult struct {
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []QuotePriceLevel
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithSelfTradePolicy sets how same-participant matches are handled.
// The default is domain.SelfTradeAllow.
func WithSelfTradePolicy(p domain.SelfTradePolicy) Option {
	return func(m *Matcher) {
		m.selfTrade = p
	}
}

// WithClock replaces time.Now for CreatedAt/ExecutedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		m.now = now
	}
}

// Matcher is the matching engine. It is the only component that mutates
// an OrderBook or appends to the trade ledger.
type Matcher struct {
	books     *BookManager
	orders    *store.OrderStore
	ledger    *store.TradeLedger
	symbols   *domain.SymbolRegistry
	oracle    PriceOracle
	selfTrade domain.SelfTradePolicy
	now       func() time.Time

	lastID  atomic.Uint64
	lastSeq atomic.Uint64
}

// NewMatcher creates a new Matcher with the given dependencies. oracle
// may be nil, in which case market orders fail with
// domain.ErrPriceUnavailable.
func NewMatcher(
	books *BookManager,
	orders *store.OrderStore,
	ledger *store.TradeLedger,
	symbols *domain.SymbolRegistry,
	oracle PriceOracle,
	opts ...Option,
) *Matcher {
	m := &Matcher{
		books:     books,
		orders:    orders,
		ledger:    ledger,
		symbols:   symbols,
		oracle:    oracle,
		selfTrade: domain.SelfTradeAllow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SelfTradePolicy returns the policy the matcher was built with.
func (m *Matcher) SelfTradePolicy() domain.SelfTradePolicy {
	return m.selfTrade
}

// Submit validates and admits an order, matches it against the
// opposite side of its symbol's book using price-time priority and
// rests any residual.
//
// Validation and the oracle lookup happen before the per-symbol write
// lock is taken, so a rejected order leaves no trace. Once matching has
// started it always runs to completion; ctx only bounds the oracle call.
func (m *Matcher) Submit(ctx context.Context, req SubmitRequest) (*AdmissionReport, error) {
	if !req.Side.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSide, req.Side)
	}
	if req.Quantity <= 0 || req.Quantity > domain.MaxQuantity {
		return nil, fmt.Errorf("%w: %d, must be between 1 and %d", domain.ErrInvalidQuantity, req.Quantity, domain.MaxQuantity)
	}

	var price int64
	market := req.Price == nil
	if market {
		p, ok := m.resolvePrice(ctx, req.Symbol)
		if !ok {
			return nil, fmt.Errorf("%w for %s", domain.ErrPriceUnavailable, req.Symbol)
		}
		price = p
	} else {
		price = *req.Price
	}
	if price <= 0 || price > domain.MaxPriceTicks {
		return nil, fmt.Errorf("%w: %d ticks, must be between 1 and %d", domain.ErrInvalidPrice, price, domain.MaxPriceTicks)
	}

	book := m.books.GetOrCreate(req.Symbol)

	book.mu.Lock()
	defer book.mu.Unlock()

	m.symbols.Register(req.Symbol)

	order := &domain.Order{
		ID:                domain.OrderID(m.lastID.Add(1)),
		Participant:       req.Participant,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Price:             price,
		Market:            market,
		OriginalQuantity:  req.Quantity,
		RemainingQuantity: req.Quantity,
		Sequence:          m.lastSeq.Add(1),
		Status:            domain.OrderStatusOpen,
		CreatedAt:         m.now(),
	}
	m.orders.Create(order)

	report := &AdmissionReport{Trades: []domain.Trade{}}
	opposite := req.Side.Opposite()

	for order.RemainingQuantity > 0 {
		best, found := book.PeekBest(opposite)
		if !found || !crosses(order, best.Price) {
			break
		}
		resting := best.Order

		if resting.Participant == order.Participant && m.selfTrade != domain.SelfTradeAllow {
			if m.selfTrade.CancelsResting() {
				book.Remove(resting.ID)
				resting.Cancel(m.now())
				report.CancelledResting = append(report.CancelledResting, *resting)
			}
			if m.selfTrade.CancelsAggressor() {
				order.Cancel(m.now())
				break
			}
			continue
		}

		fillQty := min(order.RemainingQuantity, resting.RemainingQuantity)

		order.Fill(fillQty)
		resting.Fill(fillQty)

		t := domain.Trade{
			Symbol:        order.Symbol,
			Price:         resting.Price,
			Quantity:      fillQty,
			AggressorSide: order.Side,
			ExecutedAt:    m.now(),
		}
		if order.Side == domain.SideBuy {
			t.BuyParticipant, t.BuyOrderID = order.Participant, order.ID
			t.SellParticipant, t.SellOrderID = resting.Participant, resting.ID
		} else {
			t.BuyParticipant, t.BuyOrderID = resting.Participant, resting.ID
			t.SellParticipant, t.SellOrderID = order.Participant, order.ID
		}
		report.Trades = append(report.Trades, m.ledger.Append(t))

		if resting.RemainingQuantity == 0 {
			book.Remove(resting.ID)
		}
	}

	if order.Open() {
		if err := book.Insert(order); err != nil {
			panic(fmt.Sprintf("resting residual of order %d: %v", order.ID, err))
		}
	}

	report.Order = *order
	return report, nil
}

func (m *Matcher) resolvePrice(ctx context.Context, symbol string) (int64, bool) {
	if m.oracle == nil {
		return 0, false
	}
	return m.oracle.CurrentPrice(ctx, symbol)
}

// crosses reports whether the aggressor can trade at the resting price.
func crosses(aggressor *domain.Order, restingPrice int64) bool {
	if aggressor.Side == domain.SideBuy {
		return aggressor.Price >= restingPrice
	}
	return aggressor.Price <= restingPrice
}

// Cancel removes an open order from its book. It returns
// domain.ErrOrderNotFound if the order is unknown or no longer resting
// (filled, or already cancelled).
func (m *Matcher) Cancel(id domain.OrderID) (domain.Order, error) {
	order, err := m.orders.Get(id)
	if err != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	book, ok := m.books.Get(order.Symbol)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	book.mu.Lock()
	defer book.mu.Unlock()

	if !book.Remove(id) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Cancel(m.now())
	return *order, nil
}

// Order returns a consistent copy of an order's current state.
func (m *Matcher) Order(id domain.OrderID) (domain.Order, error) {
	order, err := m.orders.Get(id)
	if err != nil {
		return domain.Order{}, err
	}
	return m.copyOrder(order), nil
}

// ListOrders returns copies of a participant's orders, newest first,
// with optional status filtering and 1-based pagination, plus the total
// number of matching orders.
func (m *Matcher) ListOrders(participant string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int) {
	orders := m.orders.ListByParticipant(participant)

	if page < 1 || limit < 1 {
		return []domain.Order{}, 0
	}
	filtered := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		c := m.copyOrder(o)
		if status != nil && c.Status != *status {
			continue
		}
		filtered = append(filtered, c)
	}

	total := len(filtered)
	// Compare before multiplying; a huge page would wrap the offset.
	if page-1 >= (total+limit-1)/limit {
		return []domain.Order{}, total
	}
	start := (page - 1) * limit
	end := min(start+limit, total)
	return filtered[start:end], total
}

// copyOrder reads an order under its book's read lock so it never
// observes a half-applied fill.
func (m *Matcher) copyOrder(o *domain.Order) domain.Order {
	book, ok := m.books.Get(o.Symbol)
	if !ok {
		return *o
	}
	book.mu.RLock()
	defer book.mu.RUnlock()
	return *o
}

// BookSnapshot returns an ordered copy of both sides of a symbol's book.
// Unknown symbols yield an empty snapshot.
func (m *Matcher) BookSnapshot(symbol string, depth int) BookSnapshot {
	book, ok := m.books.Get(symbol)
	if !ok {
		return BookSnapshot{Symbol: symbol, Bids: []domain.Order{}, Asks: []domain.Order{}}
	}
	return book.Snapshot(depth)
}

// TradeHistory returns the ledger filtered by participant and/or symbol
// (empty means any), oldest first.
func (m *Matcher) TradeHistory(participant, symbol string) iter.Seq[domain.Trade] {
	return m.ledger.Query(store.TradeFilter{Participant: participant, Symbol: symbol})
}

// SimulateMarketOrder performs a read-only walk of the opposite side of
// the book to estimate the result of an order on side that takes all
// available liquidity, without placing it.
func (m *Matcher) SimulateMarketOrder(symbol string, side domain.Side, quantity int64) *QuoteResult {
	result := &QuoteResult{
		PriceLevels: make([]QuotePriceLevel, 0),
	}

	book, ok := m.books.Get(symbol)
	if !ok {
		return result
	}

	book.mu.RLock()
	defer book.mu.RUnlock()

	remaining := quantity
	var totalCost int64

	book.Walk(side.Opposite(), func(entry OrderBookEntry) bool {
		if remaining <= 0 {
			return false
		}
		fillQty := min(entry.Order.RemainingQuantity, remaining)
		totalCost += entry.Price * fillQty
		result.QuantityAvailable += fillQty
		remaining -= fillQty

		if n := len(result.PriceLevels); n > 0 && result.PriceLevels[n-1].Price == entry.Price {
			result.PriceLevels[n-1].Quantity += fillQty
		} else {
			result.PriceLevels = append(result.PriceLevels, QuotePriceLevel{
				Price:    entry.Price,
				Quantity: fillQty,
			})
		}
		return true
	})

	if result.QuantityAvailable > 0 {
		avgPrice := totalCost / result.QuantityAvailable
		result.EstimatedAvgPrice = &avgPrice
		result.EstimatedTotal = &totalCost
	}
	result.FullyFillable = result.QuantityAvailable >= quantity

	return result
}
