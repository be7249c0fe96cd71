package service

import (
	"fmt"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/engine"
	"github.com/efreitasn/tradedesk/internal/store"
	"github.com/shopspring/decimal"
)

// BookView selects how a book snapshot is presented.
type BookView string

const (
	BookViewLevels BookView = "levels"
	BookViewOrders BookView = "orders"
)

// PriceResponse represents the response for GET /symbols/{symbol}/price.
type PriceResponse struct {
	Symbol         string
	CurrentPrice   *int64 // nil when no trades ever
	Window         string // e.g. "5m"
	TradesInWindow int
	LastTradeAt    *time.Time // nil when no trades ever
}

// BookResponse represents the response for GET /symbols/{symbol}/book.
// Exactly one of Levels or Orders is populated, per the requested view.
type BookResponse struct {
	Symbol     string
	View       BookView
	BidLevels  []engine.PriceLevel
	AskLevels  []engine.PriceLevel
	BidOrders  []domain.Order
	AskOrders  []domain.Order
	Spread     *int64 // nil if either side empty
	SnapshotAt time.Time
}

// QuoteResponse represents the response for GET /symbols/{symbol}/quote.
type QuoteResponse struct {
	Symbol            string
	Side              domain.Side
	QuantityRequested int64
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []engine.QuotePriceLevel
	QuotedAt          time.Time
}

// MarketService handles price, book, quote and symbol queries.
type MarketService struct {
	ledger     *store.TradeLedger
	matcher    *engine.Matcher
	symbols    *domain.SymbolRegistry
	vwapWindow time.Duration
	now        func() time.Time
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(
	ledger *store.TradeLedger,
	matcher *engine.Matcher,
	symbols *domain.SymbolRegistry,
	vwapWindow time.Duration,
) *MarketService {
	return &MarketService{
		ledger:     ledger,
		matcher:    matcher,
		symbols:    symbols,
		vwapWindow: vwapWindow,
		now:        time.Now,
	}
}

// Symbols returns every symbol that has seen an order, sorted.
func (s *MarketService) Symbols() []string {
	return s.symbols.List()
}

// GetPrice returns the current reference price for a symbol, computed as
// VWAP over the configured time window. Falls back to the last trade's
// price if no trades exist in the window. Returns null price if no trades
// have ever occurred.
func (s *MarketService) GetPrice(symbol string) (*PriceResponse, error) {
	if !symbolRegex.MatchString(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z][A-Z0-9.]{0,9}$"}
	}

	resp := &PriceResponse{
		Symbol: symbol,
		Window: formatDuration(s.vwapWindow),
	}

	last, ok := s.ledger.Last(symbol)
	if !ok {
		return resp, nil
	}
	resp.LastTradeAt = &last.ExecutedAt

	// Walk back from the tail until executed_at falls outside the window.
	windowStart := s.now().Add(-s.vwapWindow)
	// The window may hold many trades, so sum in decimal.
	sumPriceQty, sumQty := decimal.Zero, decimal.Zero
	for t := range s.ledger.Backward(store.TradeFilter{Symbol: symbol}) {
		if t.ExecutedAt.Before(windowStart) {
			break
		}
		sumPriceQty = sumPriceQty.Add(decimal.NewFromInt(t.Notional()))
		sumQty = sumQty.Add(decimal.NewFromInt(t.Quantity))
		resp.TradesInWindow++
	}

	if sumQty.IsPositive() {
		vwap := sumPriceQty.Div(sumQty).IntPart()
		resp.CurrentPrice = &vwap
	} else {
		resp.CurrentPrice = &last.Price
	}
	return resp, nil
}

// GetBook returns the top of a symbol's book, either as individual orders
// or aggregated into depth price levels. Unknown symbols have an empty book.
func (s *MarketService) GetBook(symbol string, depth int, view BookView) (*BookResponse, error) {
	if !symbolRegex.MatchString(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z][A-Z0-9.]{0,9}$"}
	}
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}

	resp := &BookResponse{Symbol: symbol, View: view}

	switch view {
	case BookViewOrders:
		snap := s.matcher.BookSnapshot(symbol, depth)
		resp.BidOrders, resp.AskOrders = snap.Bids, snap.Asks
		resp.Spread = spread(snap)
	case BookViewLevels:
		// Levels need every order at the top prices, so snapshot in full.
		snap := s.matcher.BookSnapshot(symbol, 0)
		resp.BidLevels = engine.AggregateLevels(snap.Bids, depth)
		resp.AskLevels = engine.AggregateLevels(snap.Asks, depth)
		resp.Spread = spread(snap)
	default:
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid view: '%s'. Must be one of: levels, orders", view),
		}
	}

	resp.SnapshotAt = s.now()
	return resp, nil
}

func spread(snap engine.BookSnapshot) *int64 {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return nil
	}
	v := snap.Asks[0].Price - snap.Bids[0].Price
	return &v
}

// GetQuote simulates a market order against the current book and returns
// the estimated result without placing an order.
func (s *MarketService) GetQuote(symbol, side string, quantity int64) (*QuoteResponse, error) {
	if !symbolRegex.MatchString(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z][A-Z0-9.]{0,9}$"}
	}
	sd, err := domain.ParseSide(side)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 || quantity > domain.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidQuantity, domain.MaxQuantity)
	}

	result := s.matcher.SimulateMarketOrder(symbol, sd, quantity)

	return &QuoteResponse{
		Symbol:            symbol,
		Side:              sd,
		QuantityRequested: quantity,
		QuantityAvailable: result.QuantityAvailable,
		FullyFillable:     result.FullyFillable,
		EstimatedAvgPrice: result.EstimatedAvgPrice,
		EstimatedTotal:    result.EstimatedTotal,
		PriceLevels:       result.PriceLevels,
		QuotedAt:          s.now(),
	}, nil
}

// formatDuration converts a time.Duration to a human-readable string
// like "5m" for the window field.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
