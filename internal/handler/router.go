package handler

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/efreitasn/tradedesk/internal/feed"
	"github.com/efreitasn/tradedesk/internal/metrics"
	"github.com/efreitasn/tradedesk/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Services bundles the application services the router dispatches to.
type Services struct {
	Orders   *service.OrderService
	Market   *service.MarketService
	Trades   *service.TradeService
	Webhooks *service.WebhookService
}

// NewRouter creates a chi router with all routes registered, CORS, request
// logging, metrics and Content-Type validation middleware. m and hub may
// be nil, in which case /metrics and /ws are not mounted.
func NewRouter(
	svc Services,
	hub *feed.Hub,
	m *metrics.Metrics,
	allowedOrigins []string,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(requestLogging(logger))
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(contentTypeJSON)

	// Create handlers.
	orderH := NewOrderHandler(svc.Orders)
	marketH := NewMarketHandler(svc.Market)
	tradeH := NewTradeHandler(svc.Trades)
	webhookH := NewWebhookHandler(svc.Webhooks)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	if hub != nil {
		r.Get("/ws", hub.ServeWS)
	}

	// Order routes.
	r.Post("/orders", orderH.SubmitOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)
	r.Get("/participants/{participant}/orders", orderH.ListOrders)

	// Market data routes.
	r.Get("/symbols", marketH.ListSymbols)
	r.Get("/symbols/{symbol}/price", marketH.GetPrice)
	r.Get("/symbols/{symbol}/book", marketH.GetBook)
	r.Get("/symbols/{symbol}/quote", marketH.GetQuote)

	r.Get("/trades", tradeH.List)

	// Webhook routes.
	r.Post("/webhooks", webhookH.Upsert)
	r.Get("/webhooks", webhookH.List)
	r.Delete("/webhooks/{webhook_id}", webhookH.Delete)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the /ws upgrade take over the connection through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	if !w.wroteHeader {
		w.status = http.StatusSwitchingProtocols
		w.wroteHeader = true
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
