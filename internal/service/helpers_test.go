package service

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/efreitasn/tradedesk/internal/engine"
	"github.com/efreitasn/tradedesk/internal/metrics"
	"github.com/efreitasn/tradedesk/internal/oracle"
	"github.com/efreitasn/tradedesk/internal/store"
	"github.com/shopspring/decimal"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingPublisher captures feed messages.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	Type   string
	Symbol string
	Data   any
}

func (p *recordingPublisher) Publish(msgType, symbol string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{msgType, symbol, data})
}

func (p *recordingPublisher) ofType(msgType string) []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedMessage
	for _, m := range p.messages {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type testEnv struct {
	ledger   *store.TradeLedger
	matcher  *engine.Matcher
	symbols  *domain.SymbolRegistry
	oracle   *oracle.Static
	metrics  *metrics.Metrics
	feed     *recordingPublisher
	webhooks *WebhookService
	orders   *OrderService
	market   *MarketService
	trades   *TradeService
}

func newTestEnv(opts ...engine.Option) *testEnv {
	env := &testEnv{
		ledger:  store.NewTradeLedger(),
		symbols: domain.NewSymbolRegistry(),
		oracle:  oracle.NewStatic(nil),
		metrics: metrics.New(),
		feed:    &recordingPublisher{},
	}
	env.matcher = engine.NewMatcher(engine.NewBookManager(), store.NewOrderStore(), env.ledger, env.symbols, env.oracle, opts...)
	env.webhooks = NewWebhookService(store.NewWebhookStore(), 5*time.Second, env.metrics, discardLogger)
	env.orders = NewOrderService(env.matcher, env.webhooks, env.feed, env.metrics, discardLogger)
	env.market = NewMarketService(env.ledger, env.matcher, env.symbols, 5*time.Minute)
	env.trades = NewTradeService(env.matcher)
	return env
}

func newTestEnvWithPolicy(p domain.SelfTradePolicy) *testEnv {
	return newTestEnv(engine.WithSelfTradePolicy(p))
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func limitReq(participant, side, symbol, px string, qty int64) SubmitOrderRequest {
	return SubmitOrderRequest{
		Participant: participant,
		Symbol:      symbol,
		Side:        side,
		Price:       price(px),
		Quantity:    qty,
	}
}
