package service

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/metrics"
	"github.com/efreitasn/tradedesk/internal/store"
	"github.com/google/uuid"
)

// Valid webhook event types.
var validWebhookEvents = map[string]bool{
	domain.EventTradeExecuted:  true,
	domain.EventOrderCancelled: true,
}

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	Participant string
	URL         string
	Events      []string
}

// WebhookService handles webhook CRUD and event dispatch.
type WebhookService struct {
	store   *store.WebhookStore
	client  *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger

	inflight sync.WaitGroup
}

// NewWebhookService creates a new WebhookService. m may be nil.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	webhookTimeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		store: webhookStore,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		metrics: m,
		logger:  logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if !participantRegex.MatchString(req.Participant) {
		return nil, false, &domain.ValidationError{Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$"}
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	// Deduplicate events while preserving order and validating.
	seen := make(map[string]bool, len(req.Events))
	dedupedEvents := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: " +
					strings.Join([]string{domain.EventTradeExecuted, domain.EventOrderCancelled}, ", "),
			}
		}
		if !seen[event] {
			seen[event] = true
			dedupedEvents = append(dedupedEvents, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(dedupedEvents))

	for _, event := range dedupedEvents {
		w := &domain.Webhook{
			WebhookID:   uuid.New().String(),
			Participant: req.Participant,
			Event:       event,
			URL:         req.URL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if s.store.Upsert(w) {
			anyCreated = true
		}
		if current := s.store.GetByParticipantEvent(req.Participant, event); current != nil {
			webhooks = append(webhooks, current)
		}
	}

	return webhooks, anyCreated, nil
}

// List returns all webhook subscriptions of a participant.
func (s *WebhookService) List(participant string) ([]*domain.Webhook, error) {
	if !participantRegex.MatchString(participant) {
		return nil, &domain.ValidationError{Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return s.store.ListByParticipant(participant), nil
}

// Delete removes a webhook subscription by ID.
func (s *WebhookService) Delete(webhookID string) error {
	return s.store.Delete(webhookID)
}

// webhookPayload is the JSON body of every delivery.
type webhookPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// tradeExecutedData is a trade from one participant's point of view.
type tradeExecutedData struct {
	TradeEvent
	Participant string `json:"participant"`
	OrderID     string `json:"order_id"`
	Side        string `json:"side"`
}

// DispatchTradeExecuted notifies both counterparties of a trade, each
// with their own order id and side. Fire-and-forget.
func (s *WebhookService) DispatchTradeExecuted(t domain.Trade) {
	ev := NewTradeEvent(t)
	s.dispatch(t.BuyParticipant, domain.EventTradeExecuted, t.ExecutedAt, tradeExecutedData{
		TradeEvent:  ev,
		Participant: t.BuyParticipant,
		OrderID:     t.BuyOrderID.String(),
		Side:        string(domain.SideBuy),
	})
	s.dispatch(t.SellParticipant, domain.EventTradeExecuted, t.ExecutedAt, tradeExecutedData{
		TradeEvent:  ev,
		Participant: t.SellParticipant,
		OrderID:     t.SellOrderID.String(),
		Side:        string(domain.SideSell),
	})
}

// DispatchOrderCancelled notifies the order's participant. Fire-and-forget.
func (s *WebhookService) DispatchOrderCancelled(o domain.Order) {
	at := time.Now()
	if o.CancelledAt != nil {
		at = *o.CancelledAt
	}
	s.dispatch(o.Participant, domain.EventOrderCancelled, at, NewOrderEvent(o))
}

func (s *WebhookService) dispatch(participant, event string, at time.Time, data any) {
	wh := s.store.GetByParticipantEvent(participant, event)
	if wh == nil {
		return
	}
	payload := webhookPayload{
		Event:     event,
		Timestamp: FormatTime(at),
		Data:      data,
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.deliver(wh, payload)
	}()
}

// Wait blocks until every delivery started so far has finished.
func (s *WebhookService) Wait() {
	s.inflight.Wait()
}

// deliver sends the webhook payload via HTTP POST with the required
// headers. Failures are logged and counted, never retried.
func (s *WebhookService) deliver(wh *domain.Webhook, payload webhookPayload) {
	result := "error"
	defer func() {
		if s.metrics != nil {
			s.metrics.WebhookDeliveries.WithLabelValues(payload.Event, result).Inc()
		}
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("webhook marshal failed", slog.String("webhook_id", wh.WebhookID), slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("webhook request invalid", slog.String("webhook_id", wh.WebhookID), slog.String("error", err.Error()))
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", payload.Event)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("event", payload.Event),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("webhook rejected",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("event", payload.Event),
			slog.Int("status", resp.StatusCode),
		)
		return
	}
	result = "ok"
}
