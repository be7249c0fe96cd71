package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/engine"
	"github.com/efreitasn/tradedesk/internal/metrics"
	"github.com/shopspring/decimal"
)

var (
	participantRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	symbolRegex      = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)
)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusOpen:            true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
}

// Publisher receives events for the live feed.
type Publisher interface {
	Publish(msgType, symbol string, data any)
}

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	Participant string
	Symbol      string
	Side        string
	Price       *decimal.Decimal // nil for a market order
	Quantity    int64
}

// SubmitResult is the outcome of one admission.
type SubmitResult struct {
	Order            domain.Order
	Trades           []domain.Trade
	CancelledResting []domain.Order
}

// OrderDetail is an order with the trades it took part in.
type OrderDetail struct {
	Order  domain.Order
	Trades []domain.Trade
}

// OrderService handles order submission, retrieval, cancellation, and listing.
type OrderService struct {
	matcher    *engine.Matcher
	webhookSvc *WebhookService
	feed       Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewOrderService creates a new OrderService. webhookSvc, feed and m may
// be nil.
func NewOrderService(
	matcher *engine.Matcher,
	webhookSvc *WebhookService,
	feed Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		matcher:    matcher,
		webhookSvc: webhookSvc,
		feed:       feed,
		metrics:    m,
		logger:     logger,
	}
}

// SubmitOrder validates the request, runs it through the matching engine
// and fans out notifications for whatever happened.
func (s *OrderService) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*SubmitResult, error) {
	sub, err := s.buildRequest(req)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	start := time.Now()
	report, err := s.matcher.Submit(ctx, sub)
	if s.metrics != nil {
		s.metrics.MatchDuration.Observe(time.Since(start).Seconds())
	}
	if sub.Price == nil && s.metrics != nil {
		result := "ok"
		if errors.Is(err, domain.ErrPriceUnavailable) {
			result = "unavailable"
		}
		s.metrics.OracleLookups.WithLabelValues(result).Inc()
	}
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	s.afterSubmit(report)

	return &SubmitResult{
		Order:            report.Order,
		Trades:           report.Trades,
		CancelledResting: report.CancelledResting,
	}, nil
}

func (s *OrderService) buildRequest(req SubmitOrderRequest) (engine.SubmitRequest, error) {
	if !participantRegex.MatchString(req.Participant) {
		return engine.SubmitRequest{}, &domain.ValidationError{
			Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if !symbolRegex.MatchString(req.Symbol) {
		return engine.SubmitRequest{}, &domain.ValidationError{
			Message: "symbol must match ^[A-Z][A-Z0-9.]{0,9}$",
		}
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return engine.SubmitRequest{}, err
	}

	sub := engine.SubmitRequest{
		Participant: req.Participant,
		Symbol:      req.Symbol,
		Side:        side,
		Quantity:    req.Quantity,
	}
	if req.Price != nil {
		ticks, err := domain.TicksFromDecimal(*req.Price)
		if err != nil {
			return engine.SubmitRequest{}, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, err.Error())
		}
		sub.Price = &ticks
	}
	return sub, nil
}

func (s *OrderService) countRejection(err error) {
	if s.metrics == nil {
		return
	}
	reason := "validation_error"
	for _, sentinel := range []error{
		domain.ErrInvalidSide,
		domain.ErrInvalidQuantity,
		domain.ErrInvalidPrice,
		domain.ErrPriceUnavailable,
	} {
		if errors.Is(err, sentinel) {
			reason = sentinel.Error()
			break
		}
	}
	s.metrics.OrdersRejected.WithLabelValues(reason).Inc()
}

// afterSubmit runs outside the book lock: metrics, logs, webhooks and the
// feed only ever see copies.
func (s *OrderService) afterSubmit(report *engine.AdmissionReport) {
	o := report.Order

	if s.metrics != nil {
		orderType := "limit"
		if o.Market {
			orderType = "market"
		}
		s.metrics.OrdersSubmitted.WithLabelValues(o.Symbol, string(o.Side), orderType).Inc()
		for _, t := range report.Trades {
			s.metrics.TradesExecuted.WithLabelValues(t.Symbol).Inc()
			s.metrics.TradedVolume.WithLabelValues(t.Symbol).Add(float64(t.Quantity))
		}
		for range report.CancelledResting {
			s.metrics.OrdersCancelled.WithLabelValues(o.Symbol, "self_trade").Inc()
		}
		if o.Status == domain.OrderStatusCancelled {
			s.metrics.OrdersCancelled.WithLabelValues(o.Symbol, "self_trade").Inc()
		}
	}

	if len(report.Trades) > 0 || len(report.CancelledResting) > 0 {
		s.logger.Debug("order admitted",
			slog.String("order_id", o.ID.String()),
			slog.String("participant", o.Participant),
			slog.String("symbol", o.Symbol),
			slog.String("side", string(o.Side)),
			slog.String("status", string(o.Status)),
			slog.Int("trades", len(report.Trades)),
			slog.Int("cancelled_resting", len(report.CancelledResting)),
		)
	}

	for _, t := range report.Trades {
		if s.feed != nil {
			s.feed.Publish("trade", t.Symbol, NewTradeEvent(t))
		}
		if s.webhookSvc != nil {
			s.webhookSvc.DispatchTradeExecuted(t)
		}
	}

	if s.webhookSvc == nil {
		return
	}
	for i := range report.CancelledResting {
		s.webhookSvc.DispatchOrderCancelled(report.CancelledResting[i])
	}
	if o.Status == domain.OrderStatusCancelled {
		s.webhookSvc.DispatchOrderCancelled(o)
	}
}

// GetOrder returns an order and the trades it took part in.
func (s *OrderService) GetOrder(id domain.OrderID) (*OrderDetail, error) {
	o, err := s.matcher.Order(id)
	if err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0)
	for t := range s.matcher.TradeHistory(o.Participant, o.Symbol) {
		if t.BuyOrderID == o.ID || t.SellOrderID == o.ID {
			trades = append(trades, t)
		}
	}
	return &OrderDetail{Order: o, Trades: trades}, nil
}

// CancelOrder removes a resting order from its book.
func (s *OrderService) CancelOrder(id domain.OrderID) (domain.Order, error) {
	o, err := s.matcher.Cancel(id)
	if err != nil {
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCancelled.WithLabelValues(o.Symbol, "request").Inc()
	}
	if s.webhookSvc != nil {
		s.webhookSvc.DispatchOrderCancelled(o)
	}
	if s.feed != nil {
		s.feed.Publish("order.cancelled", o.Symbol, NewOrderEvent(o))
	}
	return o, nil
}

// ListOrders returns a paginated list of a participant's orders with
// optional status filtering.
func (s *OrderService) ListOrders(participant string, status *domain.OrderStatus, page, limit int) ([]domain.Order, int, error) {
	if !participantRegex.MatchString(participant) {
		return nil, 0, &domain.ValidationError{
			Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if status != nil && !ValidOrderStatuses[*status] {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: open, partially_filled, filled, cancelled", *status),
		}
	}
	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}

	orders, total := s.matcher.ListOrders(participant, status, page, limit)
	return orders, total, nil
}
