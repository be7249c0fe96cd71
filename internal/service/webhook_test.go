package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestWebhookService() *WebhookService {
	return NewWebhookService(store.NewWebhookStore(), 5*time.Second, nil, discardLogger)
}

// captureServer records every delivery it receives.
type captureServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []map[string]any
	headers  []http.Header
}

func newCaptureServer(t *testing.T, status int) *captureServer {
	t.Helper()
	cs := &captureServer{}
	cs.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		cs.mu.Lock()
		cs.payloads = append(cs.payloads, payload)
		cs.headers = append(cs.headers, r.Header.Clone())
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

// --- Upsert tests ---

func TestUpsert_Success_NewSubscriptions(t *testing.T) {
	svc := newTestWebhookService()

	webhooks, created, err := svc.Upsert(UpsertWebhookRequest{
		Participant: "trader-1",
		URL:         "https://example.com/hooks",
		Events:      []string{"trade.executed", "order.cancelled"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true for new subscriptions")
	}
	if len(webhooks) != 2 {
		t.Fatalf("got %d webhooks, want 2", len(webhooks))
	}
	if webhooks[0].Event != "trade.executed" || webhooks[1].Event != "order.cancelled" {
		t.Errorf("unexpected event order: %s, %s", webhooks[0].Event, webhooks[1].Event)
	}
	if webhooks[0].WebhookID == "" || webhooks[0].WebhookID == webhooks[1].WebhookID {
		t.Error("expected distinct webhook ids")
	}
}

func TestUpsert_Success_UpdateExistingURL(t *testing.T) {
	svc := newTestWebhookService()

	first, _, _ := svc.Upsert(UpsertWebhookRequest{
		Participant: "trader-1",
		URL:         "https://example.com/old",
		Events:      []string{"trade.executed"},
	})
	second, created, err := svc.Upsert(UpsertWebhookRequest{
		Participant: "trader-1",
		URL:         "https://example.com/new",
		Events:      []string{"trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected created=false for URL update")
	}
	if second[0].WebhookID != first[0].WebhookID {
		t.Errorf("webhook_id changed: %s -> %s", first[0].WebhookID, second[0].WebhookID)
	}
	if second[0].URL != "https://example.com/new" {
		t.Errorf("got URL %q, want updated URL", second[0].URL)
	}
}

func TestUpsert_Success_DeduplicateEvents(t *testing.T) {
	svc := newTestWebhookService()

	webhooks, _, err := svc.Upsert(UpsertWebhookRequest{
		Participant: "trader-1",
		URL:         "https://example.com/hooks",
		Events:      []string{"trade.executed", "trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(webhooks) != 1 {
		t.Fatalf("got %d webhooks, want 1", len(webhooks))
	}
}

func TestUpsert_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  UpsertWebhookRequest
		msg  string
	}{
		{"bad participant", UpsertWebhookRequest{Participant: "", URL: "https://x.com", Events: []string{"trade.executed"}}, "participant"},
		{"empty url", UpsertWebhookRequest{Participant: "t", URL: "", Events: []string{"trade.executed"}}, "url is required"},
		{"http scheme", UpsertWebhookRequest{Participant: "t", URL: "http://x.com", Events: []string{"trade.executed"}}, "https"},
		{"too long", UpsertWebhookRequest{Participant: "t", URL: "https://x.com/" + strings.Repeat("a", 2048), Events: []string{"trade.executed"}}, "2048"},
		{"relative", UpsertWebhookRequest{Participant: "t", URL: "/hooks", Events: []string{"trade.executed"}}, "absolute"},
		{"no events", UpsertWebhookRequest{Participant: "t", URL: "https://x.com", Events: nil}, "non-empty"},
		{"unknown event", UpsertWebhookRequest{Participant: "t", URL: "https://x.com", Events: []string{"order.expired"}}, "Unknown event type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestWebhookService()
			_, _, err := svc.Upsert(tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(ve.Message, tt.msg) {
				t.Errorf("message %q does not mention %q", ve.Message, tt.msg)
			}
		})
	}
}

func TestList_And_Delete(t *testing.T) {
	svc := newTestWebhookService()
	webhooks, _, _ := svc.Upsert(UpsertWebhookRequest{
		Participant: "trader-1",
		URL:         "https://example.com/hooks",
		Events:      []string{"trade.executed", "order.cancelled"},
	})

	list, err := svc.List("trader-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d webhooks, want 2", len(list))
	}

	if err := svc.Delete(webhooks[0].WebhookID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(webhooks[0].WebhookID); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}

	list, _ = svc.List("trader-1")
	if len(list) != 1 {
		t.Fatalf("got %d webhooks after delete, want 1", len(list))
	}

	empty, err := svc.List("trader-2")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v, %v", empty, err)
	}
}

// --- Dispatch tests ---

func TestDispatchTradeExecuted_NotifiesBothSides(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	env := newTestEnv()
	env.webhooks.client = srv.Client()

	for _, p := range []string{"alice", "bob"} {
		env.webhooks.store.Upsert(&domain.Webhook{
			WebhookID:   "wh-" + p,
			Participant: p,
			Event:       domain.EventTradeExecuted,
			URL:         srv.URL + "/hooks/" + p,
		})
	}

	env.webhooks.DispatchTradeExecuted(domain.Trade{
		Sequence:        7,
		Symbol:          "AAPL",
		Price:           14800,
		Quantity:        500,
		BuyParticipant:  "alice",
		SellParticipant: "bob",
		BuyOrderID:      3,
		SellOrderID:     1,
		AggressorSide:   domain.SideBuy,
		ExecutedAt:      time.Date(2026, 2, 16, 16, 29, 0, 0, time.UTC),
	})
	env.webhooks.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.payloads) != 2 {
		t.Fatalf("got %d requests, want 2", len(srv.payloads))
	}

	bySide := map[string]map[string]any{}
	for i, p := range srv.payloads {
		if p["event"] != "trade.executed" {
			t.Errorf("got event %v, want trade.executed", p["event"])
		}
		if p["timestamp"] != "2026-02-16T16:29:00.000Z" {
			t.Errorf("got timestamp %v", p["timestamp"])
		}
		data := p["data"].(map[string]any)
		bySide[data["side"].(string)] = data

		h := srv.headers[i]
		if h.Get("X-Event-Type") != "trade.executed" || h.Get("X-Delivery-Id") == "" {
			t.Errorf("missing delivery headers: %v", h)
		}
		if h.Get("Content-Type") != "application/json" {
			t.Errorf("got Content-Type %q", h.Get("Content-Type"))
		}
	}

	buy, sell := bySide["buy"], bySide["sell"]
	if buy["participant"] != "alice" || buy["order_id"] != "3" {
		t.Errorf("unexpected buy payload: %v", buy)
	}
	if sell["participant"] != "bob" || sell["order_id"] != "1" {
		t.Errorf("unexpected sell payload: %v", sell)
	}
	if buy["price"] != 148.0 || buy["quantity"] != float64(500) || buy["sequence"] != float64(7) {
		t.Errorf("unexpected trade fields: %v", buy)
	}
	if got := testutil.ToFloat64(env.metrics.WebhookDeliveries.WithLabelValues("trade.executed", "ok")); got != 2 {
		t.Errorf("expected 2 successful deliveries counted, got %v", got)
	}
}

func TestDispatchOrderCancelled_SendsOrderState(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	svc := newTestWebhookService()
	svc.client = srv.Client()
	svc.store.Upsert(&domain.Webhook{
		WebhookID:   "wh-1",
		Participant: "alice",
		Event:       domain.EventOrderCancelled,
		URL:         srv.URL,
	})

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.DispatchOrderCancelled(domain.Order{
		ID:                9,
		Participant:       "alice",
		Symbol:            "AAPL",
		Side:              domain.SideSell,
		Price:             10050,
		OriginalQuantity:  10,
		RemainingQuantity: 4,
		Status:            domain.OrderStatusCancelled,
		CancelledAt:       &at,
	})
	svc.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.payloads) != 1 {
		t.Fatalf("got %d requests, want 1", len(srv.payloads))
	}
	p := srv.payloads[0]
	if p["timestamp"] != "2026-01-02T03:04:05.000Z" {
		t.Errorf("got timestamp %v", p["timestamp"])
	}
	data := p["data"].(map[string]any)
	if data["order_id"] != "9" || data["status"] != "cancelled" {
		t.Errorf("unexpected payload: %v", data)
	}
	if data["filled_quantity"] != float64(6) || data["cancelled_quantity"] != float64(4) {
		t.Errorf("unexpected quantities: %v", data)
	}
	if data["price"] != 100.5 {
		t.Errorf("got price %v, want 100.5", data["price"])
	}
}

func TestDispatch_NoSubscription_NoRequest(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	svc := newTestWebhookService()
	svc.client = srv.Client()

	svc.DispatchTradeExecuted(domain.Trade{BuyParticipant: "alice", SellParticipant: "bob"})
	svc.DispatchOrderCancelled(domain.Order{Participant: "alice"})
	svc.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.payloads) != 0 {
		t.Errorf("got %d requests, want 0 (no subscriptions)", len(srv.payloads))
	}
}

func TestDispatch_ServerError_Counted(t *testing.T) {
	srv := newCaptureServer(t, http.StatusInternalServerError)
	env := newTestEnv()
	env.webhooks.client = srv.Client()
	env.webhooks.store.Upsert(&domain.Webhook{
		WebhookID:   "wh-err",
		Participant: "alice",
		Event:       domain.EventOrderCancelled,
		URL:         srv.URL,
	})

	// Fire-and-forget: no panic, no error, just a failed delivery.
	env.webhooks.DispatchOrderCancelled(domain.Order{Participant: "alice", Status: domain.OrderStatusCancelled})
	env.webhooks.Wait()

	if got := testutil.ToFloat64(env.metrics.WebhookDeliveries.WithLabelValues("order.cancelled", "error")); got != 1 {
		t.Errorf("expected 1 failed delivery counted, got %v", got)
	}
}

func TestSubmitOrder_DispatchesTradeWebhooks(t *testing.T) {
	srv := newCaptureServer(t, http.StatusOK)
	env := newTestEnv()
	env.webhooks.client = srv.Client()
	env.webhooks.Upsert(UpsertWebhookRequest{
		Participant: "bob",
		URL:         srv.URL + "/bob",
		Events:      []string{"trade.executed"},
	})

	seedTrade(t, env, "100", 2)
	env.webhooks.Wait()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if len(srv.payloads) != 1 {
		t.Fatalf("expected only bob to be notified, got %d deliveries", len(srv.payloads))
	}
	data := srv.payloads[0]["data"].(map[string]any)
	if data["participant"] != "bob" || data["side"] != "sell" {
		t.Errorf("unexpected payload: %v", data)
	}
}
