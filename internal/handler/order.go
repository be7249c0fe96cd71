package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// submitOrderRequest is the JSON request body for POST /orders. Price
// accepts a JSON number or string; omitting it submits a market order.
// Side and quantity are checked by the engine so their rejections keep
// their own error codes.
type submitOrderRequest struct {
	Participant string           `json:"participant" validate:"required,max=64"`
	Symbol      string           `json:"symbol" validate:"required,max=10"`
	Side        string           `json:"side"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    int64            `json:"quantity"`
}

// orderResponse is the JSON shape of an order's state.
type orderResponse struct {
	OrderID           string  `json:"order_id"`
	Participant       string  `json:"participant"`
	Symbol            string  `json:"symbol"`
	Side              string  `json:"side"`
	Market            bool    `json:"market"`
	Price             float64 `json:"price"`
	Quantity          int64   `json:"quantity"`
	FilledQuantity    int64   `json:"filled_quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	CancelledQuantity int64   `json:"cancelled_quantity"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at"`
	CancelledAt       *string `json:"cancelled_at"`
}

// orderDetailResponse adds the order's executions.
type orderDetailResponse struct {
	orderResponse
	AveragePrice *float64             `json:"average_price"`
	Trades       []service.TradeEvent `json:"trades"`
}

// submitOrderResponse is the JSON response for POST /orders.
type submitOrderResponse struct {
	orderDetailResponse
	CancelledRestingOrderIDs []string `json:"cancelled_resting_order_ids"`
}

// orderListResponse is the JSON response for the participant order list.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		writeParseError(w, err)
		return
	}

	result, err := h.orderSvc.SubmitOrder(r.Context(), service.SubmitOrderRequest{
		Participant: req.Participant,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Price:       req.Price,
		Quantity:    req.Quantity,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	cancelled := make([]string, len(result.CancelledResting))
	for i, o := range result.CancelledResting {
		cancelled[i] = o.ID.String()
	}

	WriteJSON(w, http.StatusCreated, submitOrderResponse{
		orderDetailResponse:      buildOrderDetail(result.Order, result.Trades),
		CancelledRestingOrderIDs: cancelled,
	})
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	detail, err := h.orderSvc.GetOrder(id)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderDetail(detail.Order, detail.Trades))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orderSvc.CancelOrder(id)
	if err != nil {
		mapError(w, err)
		return
	}

	var trades []domain.Trade
	if detail, err := h.orderSvc.GetOrder(id); err == nil {
		trades = detail.Trades
	}
	WriteJSON(w, http.StatusOK, buildOrderDetail(order, trades))
}

// ListOrders handles GET /participants/{participant}/orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")

	// Parse query params.
	var statusFilter *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.OrderStatus(s)
		statusFilter = &status
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	orders, total, err := h.orderSvc.ListOrders(participant, statusFilter, page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	summaries := make([]orderResponse, len(orders))
	for i, o := range orders {
		summaries[i] = buildOrderResponse(o)
	}

	WriteJSON(w, http.StatusOK, orderListResponse{
		Orders: summaries,
		Total:  total,
		Page:   page,
		Limit:  limit,
	})
}

// parseOrderID reads the order_id path parameter. IDs that are not
// unsigned integers can never exist, so they answer 404.
func parseOrderID(w http.ResponseWriter, r *http.Request) (domain.OrderID, bool) {
	raw := chi.URLParam(r, "order_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		WriteError(w, http.StatusNotFound, "order_not_found", "Order not found")
		return 0, false
	}
	return domain.OrderID(id), true
}

func buildOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           o.ID.String(),
		Participant:       o.Participant,
		Symbol:            o.Symbol,
		Side:              string(o.Side),
		Market:            o.Market,
		Price:             domain.TicksToFloat(o.Price),
		Quantity:          o.OriginalQuantity,
		FilledQuantity:    o.FilledQuantity(),
		RemainingQuantity: o.RemainingQuantity,
		CancelledQuantity: o.CancelledQuantity(),
		Status:            string(o.Status),
		CreatedAt:         service.FormatTime(o.CreatedAt),
	}
	if o.CancelledAt != nil {
		s := service.FormatTime(*o.CancelledAt)
		resp.CancelledAt = &s
	}
	return resp
}

// buildOrderDetail attaches trades and the average execution price.
// average_price is null until the order has traded.
func buildOrderDetail(o domain.Order, trades []domain.Trade) orderDetailResponse {
	events := make([]service.TradeEvent, len(trades))
	for i, t := range trades {
		events[i] = service.NewTradeEvent(t)
	}

	var avgPrice *float64
	if avg, ok := o.AveragePrice(trades); ok {
		v := domain.TicksToFloat(avg)
		avgPrice = &v
	}

	return orderDetailResponse{
		orderResponse: buildOrderResponse(o),
		AveragePrice:  avgPrice,
		Trades:        events,
	}
}
