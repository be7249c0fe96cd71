// Package metrics exposes Prometheus instruments for the exchange.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	TradesExecuted  *prometheus.CounterVec
	TradedVolume    *prometheus.CounterVec
	MatchDuration   prometheus.Histogram

	OracleLookups     *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
	FeedSubscribers   prometheus.Gauge
}

// New creates and registers all instruments.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests in flight",
			},
		),

		OrdersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_submitted_total",
				Help: "Orders admitted by the matching engine",
			},
			[]string{"symbol", "side", "type"},
		),
		OrdersRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_rejected_total",
				Help: "Orders rejected before admission",
			},
			[]string{"reason"},
		),
		OrdersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Orders cancelled by request or self-trade prevention",
			},
			[]string{"symbol", "cause"},
		),
		TradesExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_executed_total",
				Help: "Trades appended to the ledger",
			},
			[]string{"symbol"},
		),
		TradedVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traded_quantity_total",
				Help: "Units traded",
			},
			[]string{"symbol"},
		),
		MatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "match_duration_seconds",
				Help:    "Time spent admitting and matching one order",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),

		OracleLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_lookups_total",
				Help: "Market order price lookups",
			},
			[]string{"result"},
		),
		WebhookDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Webhook delivery attempts",
			},
			[]string{"event", "result"},
		),
		FeedSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "feed_subscribers",
				Help: "Connected websocket feed clients",
			},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.OrdersSubmitted,
		m.OrdersRejected,
		m.OrdersCancelled,
		m.TradesExecuted,
		m.TradedVolume,
		m.MatchDuration,
		m.OracleLookups,
		m.WebhookDeliveries,
		m.FeedSubscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. The path label is the
// chi route pattern, so /orders/1 and /orders/2 share a series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer for websocket upgrades.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.wroteHeader = true
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
