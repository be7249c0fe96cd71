// Package oracle provides reference prices for market orders.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/store"
	"github.com/shopspring/decimal"
)

// Source is anything that can quote a current price in ticks.
type Source interface {
	CurrentPrice(ctx context.Context, symbol string) (int64, bool)
}

// HTTP asks an external market agent for prices.
type HTTP struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTP creates an HTTP oracle that queries GET {baseURL}/price?symbol=X.
func NewHTTP(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// priceResponse is the market agent's reply. Price may be a JSON number
// or a string.
type priceResponse struct {
	Status string          `json:"status"`
	Price  decimal.Decimal `json:"price"`
}

// CurrentPrice returns false on any transport, status or decoding
// failure; the reason is logged, never surfaced.
func (o *HTTP) CurrentPrice(ctx context.Context, symbol string) (int64, bool) {
	price, err := o.fetch(ctx, symbol)
	if err != nil {
		o.logger.Warn("market agent price lookup failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	return price, true
}

func (o *HTTP) fetch(ctx context.Context, symbol string) (int64, error) {
	u := o.baseURL + "/price?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	if body.Status != "success" {
		return 0, fmt.Errorf("market agent status %q", body.Status)
	}

	// Agents may quote finer than a tick.
	ticks, err := domain.TicksFromDecimal(body.Price.Round(domain.PriceScale))
	if err != nil {
		return 0, err
	}
	if ticks <= 0 {
		return 0, fmt.Errorf("non-positive price %s", body.Price)
	}
	return ticks, nil
}

// Static serves prices from an in-memory table.
type Static struct {
	mu     sync.RWMutex
	prices map[string]int64
}

// NewStatic creates a Static oracle seeded with prices (may be nil).
func NewStatic(prices map[string]int64) *Static {
	s := &Static{prices: make(map[string]int64, len(prices))}
	for k, v := range prices {
		s.prices[k] = v
	}
	return s
}

// Set updates the price for symbol.
func (s *Static) Set(symbol string, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// CurrentPrice implements Source.
func (s *Static) CurrentPrice(_ context.Context, symbol string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[symbol]
	return p, ok && p > 0
}

// LastTrade quotes the price of the most recent trade in a symbol.
type LastTrade struct {
	ledger *store.TradeLedger
}

// NewLastTrade creates a LastTrade oracle over ledger.
func NewLastTrade(ledger *store.TradeLedger) *LastTrade {
	return &LastTrade{ledger: ledger}
}

// CurrentPrice implements Source.
func (o *LastTrade) CurrentPrice(_ context.Context, symbol string) (int64, bool) {
	t, ok := o.ledger.Last(symbol)
	if !ok {
		return 0, false
	}
	return t.Price, true
}

// Chain asks each source in turn and returns the first price found.
type Chain []Source

// CurrentPrice implements Source. It stops early if ctx is done.
func (c Chain) CurrentPrice(ctx context.Context, symbol string) (int64, bool) {
	for _, s := range c {
		if ctx.Err() != nil {
			return 0, false
		}
		if p, ok := s.CurrentPrice(ctx, symbol); ok {
			return p, true
		}
	}
	return 0, false
}
