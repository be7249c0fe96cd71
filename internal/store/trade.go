package store

import (
	"fmt"
	"iter"
	"sync"

	"github.com/efreitasn/tradedesk/internal/domain"
)

// TradeFilter selects trades in a ledger query. Empty fields match
// everything.
type TradeFilter struct {
	Participant string
	Symbol      string
}

func (f TradeFilter) match(t domain.Trade) bool {
	if f.Participant != "" && !t.Involves(f.Participant) {
		return false
	}
	if f.Symbol != "" && t.Symbol != f.Symbol {
		return false
	}
	return true
}

// TradeLedger is an append-only, totally ordered record of trades.
// Stored trades are values and are never modified, so a prefix of the
// log can be read without holding the lock.
type TradeLedger struct {
	mu      sync.RWMutex
	trades  []domain.Trade
	lastSeq uint64
}

// NewTradeLedger creates an empty TradeLedger.
func NewTradeLedger() *TradeLedger {
	return &TradeLedger{}
}

// Append stamps the trade with the next ledger sequence and records it.
// A caller-supplied sequence is honoured only if it is strictly greater
// than the last one; anything else is a programming error.
func (l *TradeLedger) Append(t domain.Trade) domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case t.Sequence == 0:
		t.Sequence = l.lastSeq + 1
	case t.Sequence <= l.lastSeq:
		panic(fmt.Sprintf("trade ledger: sequence %d not after %d", t.Sequence, l.lastSeq))
	}
	l.lastSeq = t.Sequence
	l.trades = append(l.trades, t)
	return t
}

// Len returns the number of recorded trades.
func (l *TradeLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.trades)
}

// view returns the current prefix of the log.
func (l *TradeLedger) view() []domain.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.trades[:len(l.trades):len(l.trades)]
}

// Query returns a lazy sequence of the trades matching f, oldest first.
// Each range over the result rescans from the start of the ledger as it
// stands at that moment; nothing is retained between iterations.
func (l *TradeLedger) Query(f TradeFilter) iter.Seq[domain.Trade] {
	return func(yield func(domain.Trade) bool) {
		for _, t := range l.view() {
			if !f.match(t) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Backward yields trades matching f newest first. Used by price
// computations that only need the tail of the log.
func (l *TradeLedger) Backward(f TradeFilter) iter.Seq[domain.Trade] {
	return func(yield func(domain.Trade) bool) {
		trades := l.view()
		for i := len(trades) - 1; i >= 0; i-- {
			if !f.match(trades[i]) {
				continue
			}
			if !yield(trades[i]) {
				return
			}
		}
	}
}

// Last returns the most recent trade for a symbol.
func (l *TradeLedger) Last(symbol string) (domain.Trade, bool) {
	for t := range l.Backward(TradeFilter{Symbol: symbol}) {
		return t, true
	}
	return domain.Trade{}, false
}
