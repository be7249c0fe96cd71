package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/tradedesk/internal/config"
	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/engine"
	"github.com/efreitasn/tradedesk/internal/feed"
	"github.com/efreitasn/tradedesk/internal/handler"
	"github.com/efreitasn/tradedesk/internal/metrics"
	"github.com/efreitasn/tradedesk/internal/oracle"
	"github.com/efreitasn/tradedesk/internal/service"
	"github.com/efreitasn/tradedesk/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Instantiate stores.
	orderStore := store.NewOrderStore()
	ledger := store.NewTradeLedger()
	webhookStore := store.NewWebhookStore()

	// Domain.
	symbols := domain.NewSymbolRegistry()

	// Price sources for market orders, consulted in order.
	var prices oracle.Chain
	if cfg.MarketAgentURL != "" {
		prices = append(prices, oracle.NewHTTP(cfg.MarketAgentURL, cfg.OracleTimeout, logger))
	}
	if cfg.OracleLastTradeFallback {
		prices = append(prices, oracle.NewLastTrade(ledger))
	}

	// Engine.
	books := engine.NewBookManager()
	matcher := engine.NewMatcher(books, orderStore, ledger, symbols, prices,
		engine.WithSelfTradePolicy(cfg.SelfTradePolicy),
	)

	// Observability and live feed.
	m := metrics.New()
	hub := feed.NewHub(logger, m.FeedSubscribers)

	// Services.
	webhookSvc := service.NewWebhookService(webhookStore, cfg.WebhookTimeout, m, logger)
	svc := handler.Services{
		Orders:   service.NewOrderService(matcher, webhookSvc, hub, m, logger),
		Market:   service.NewMarketService(ledger, matcher, symbols, cfg.VWAPWindow),
		Trades:   service.NewTradeService(matcher),
		Webhooks: webhookSvc,
	}

	// Router.
	router := handler.NewRouter(svc, hub, m, cfg.CORSAllowedOrigins, logger)

	// The feed hub lives until shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("self_trade_policy", string(cfg.SelfTradePolicy)),
			slog.Int("price_sources", len(prices)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, close feed connections (they are
	// hijacked, so Shutdown does not track them), then drain webhooks.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	webhookSvc.Wait()

	logger.Info("server stopped")
}
