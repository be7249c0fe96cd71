package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/tradedesk/internal/service"
)

// TradeHandler serves the trade ledger.
type TradeHandler struct {
	tradeSvc *service.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

type tradeListResponse struct {
	Trades []service.TradeEvent `json:"trades"`
}

// List handles GET /trades?participant=&symbol=&limit=.
func (h *TradeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if l := q.Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	trades, err := h.tradeSvc.History(q.Get("participant"), q.Get("symbol"), limit)
	if err != nil {
		mapError(w, err)
		return
	}

	events := make([]service.TradeEvent, len(trades))
	for i, t := range trades {
		events[i] = service.NewTradeEvent(t)
	}
	WriteJSON(w, http.StatusOK, tradeListResponse{Trades: events})
}
