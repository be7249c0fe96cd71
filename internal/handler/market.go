package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/engine"
	"github.com/efreitasn/tradedesk/internal/service"
	"github.com/go-chi/chi/v5"
)

// MarketHandler handles HTTP requests for symbol market data.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// symbolsResponse is the JSON response for GET /symbols.
type symbolsResponse struct {
	Symbols []string `json:"symbols"`
}

// priceResponse is the JSON response for GET /symbols/{symbol}/price.
type priceResponse struct {
	Symbol       string   `json:"symbol"`
	CurrentPrice *float64 `json:"current_price"`
	Window       string   `json:"window"`
	TradesInWin  int      `json:"trades_in_window"`
	LastTradeAt  *string  `json:"last_trade_at"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price         float64 `json:"price"`
	TotalQuantity int64   `json:"total_quantity"`
	OrderCount    int     `json:"order_count"`
}

// bookResponse is the JSON response for GET /symbols/{symbol}/book. Bids
// and asks hold price levels or individual orders depending on view.
type bookResponse struct {
	Symbol     string   `json:"symbol"`
	View       string   `json:"view"`
	Bids       any      `json:"bids"`
	Asks       any      `json:"asks"`
	Spread     *float64 `json:"spread"`
	SnapshotAt string   `json:"snapshot_at"`
}

// quoteLevelResponse is a single price level in the quote response.
type quoteLevelResponse struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// quoteResponse is the JSON response for GET /symbols/{symbol}/quote.
type quoteResponse struct {
	Symbol            string               `json:"symbol"`
	Side              string               `json:"side"`
	QuantityRequested int64                `json:"quantity_requested"`
	QuantityAvailable int64                `json:"quantity_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *float64             `json:"estimated_average_price"`
	EstimatedTotal    *float64             `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

// ListSymbols handles GET /symbols.
func (h *MarketHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, symbolsResponse{Symbols: h.marketSvc.Symbols()})
}

// GetPrice handles GET /symbols/{symbol}/price.
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	price, err := h.marketSvc.GetPrice(symbol)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := priceResponse{
		Symbol:      price.Symbol,
		Window:      price.Window,
		TradesInWin: price.TradesInWindow,
	}

	if price.CurrentPrice != nil {
		v := domain.TicksToFloat(*price.CurrentPrice)
		resp.CurrentPrice = &v
	}
	if price.LastTradeAt != nil {
		s := service.FormatTime(*price.LastTradeAt)
		resp.LastTradeAt = &s
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetBook handles GET /symbols/{symbol}/book.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	// Parse depth query param (default 10, max 50).
	depth := 10
	if d := r.URL.Query().Get("depth"); d != "" {
		var err error
		depth, err = strconv.Atoi(d)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "depth must be a valid integer")
			return
		}
	}

	view := service.BookViewLevels
	if v := r.URL.Query().Get("view"); v != "" {
		view = service.BookView(v)
	}

	book, err := h.marketSvc.GetBook(symbol, depth, view)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := bookResponse{
		Symbol:     book.Symbol,
		View:       string(book.View),
		SnapshotAt: service.FormatTime(book.SnapshotAt),
	}
	if book.View == service.BookViewOrders {
		resp.Bids = buildOrderResponses(book.BidOrders)
		resp.Asks = buildOrderResponses(book.AskOrders)
	} else {
		resp.Bids = buildLevelResponses(book.BidLevels)
		resp.Asks = buildLevelResponses(book.AskLevels)
	}

	if book.Spread != nil {
		v := domain.TicksToFloat(*book.Spread)
		resp.Spread = &v
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetQuote handles GET /symbols/{symbol}/quote.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	side := r.URL.Query().Get("side")
	quantityStr := r.URL.Query().Get("quantity")

	// Parse quantity.
	quantity, err := strconv.ParseInt(quantityStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity must be a positive integer")
		return
	}

	quote, err := h.marketSvc.GetQuote(symbol, side, quantity)
	if err != nil {
		mapError(w, err)
		return
	}

	priceLevels := make([]quoteLevelResponse, len(quote.PriceLevels))
	for i, pl := range quote.PriceLevels {
		priceLevels[i] = quoteLevelResponse{
			Price:    domain.TicksToFloat(pl.Price),
			Quantity: pl.Quantity,
		}
	}

	resp := quoteResponse{
		Symbol:            quote.Symbol,
		Side:              string(quote.Side),
		QuantityRequested: quote.QuantityRequested,
		QuantityAvailable: quote.QuantityAvailable,
		FullyFillable:     quote.FullyFillable,
		PriceLevels:       priceLevels,
		QuotedAt:          service.FormatTime(quote.QuotedAt),
	}

	if quote.EstimatedAvgPrice != nil {
		v := domain.TicksToFloat(*quote.EstimatedAvgPrice)
		resp.EstimatedAvgPrice = &v
	}
	if quote.EstimatedTotal != nil {
		v := domain.TicksToFloat(*quote.EstimatedTotal)
		resp.EstimatedTotal = &v
	}

	WriteJSON(w, http.StatusOK, resp)
}

func buildLevelResponses(levels []engine.PriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = bookLevelResponse{
			Price:         domain.TicksToFloat(l.Price),
			TotalQuantity: l.TotalQuantity,
			OrderCount:    l.OrderCount,
		}
	}
	return out
}

func buildOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = buildOrderResponse(o)
	}
	return out
}
