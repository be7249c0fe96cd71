package store

import (
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/efreitasn/tradedesk/internal/domain"
)

func newTestTrade(symbol, buyer, seller string, price, qty int64) domain.Trade {
	return domain.Trade{
		Symbol:          symbol,
		Price:           price,
		Quantity:        qty,
		BuyParticipant:  buyer,
		SellParticipant: seller,
	}
}

func TestTradeLedger_AppendStampsIncreasingSequence(t *testing.T) {
	l := NewTradeLedger()

	t1 := l.Append(newTestTrade("AAPL", "alice", "bob", 10000, 5))
	t2 := l.Append(newTestTrade("TSLA", "carol", "alice", 25000, 1))

	if t1.Sequence != 1 || t2.Sequence != 2 {
		t.Fatalf("expected sequences 1, 2, got %d, %d", t1.Sequence, t2.Sequence)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 trades, got %d", l.Len())
	}
}

func TestTradeLedger_AppendRejectsNonIncreasingSequence(t *testing.T) {
	l := NewTradeLedger()
	tr := newTestTrade("AAPL", "alice", "bob", 10000, 5)
	tr.Sequence = 10
	l.Append(tr)

	stale := newTestTrade("AAPL", "alice", "bob", 10000, 5)
	stale.Sequence = 10
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic on non-increasing sequence")
			}
		}()
		l.Append(stale)
	}()

	next := l.Append(newTestTrade("AAPL", "alice", "bob", 10000, 5))
	if next.Sequence != 11 {
		t.Fatalf("expected sequence 11, got %d", next.Sequence)
	}
}

func TestTradeLedger_QueryFilters(t *testing.T) {
	l := NewTradeLedger()
	l.Append(newTestTrade("AAPL", "alice", "bob", 10000, 5))
	l.Append(newTestTrade("TSLA", "carol", "alice", 25000, 1))
	l.Append(newTestTrade("AAPL", "bob", "carol", 10100, 2))

	tests := []struct {
		name   string
		filter TradeFilter
		want   []uint64
	}{
		{"all", TradeFilter{}, []uint64{1, 2, 3}},
		{"participant on either side", TradeFilter{Participant: "alice"}, []uint64{1, 2}},
		{"symbol", TradeFilter{Symbol: "AAPL"}, []uint64{1, 3}},
		{"both", TradeFilter{Participant: "carol", Symbol: "AAPL"}, []uint64{3}},
		{"no match", TradeFilter{Participant: "dave"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []uint64
			for tr := range l.Query(tt.filter) {
				got = append(got, tr.Sequence)
			}
			if !slices.Equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTradeLedger_QueryIsRestartable(t *testing.T) {
	l := NewTradeLedger()
	l.Append(newTestTrade("AAPL", "alice", "bob", 10000, 5))
	l.Append(newTestTrade("AAPL", "alice", "bob", 10000, 6))

	seq := l.Query(TradeFilter{Symbol: "AAPL"})

	// Stop the first pass early; the second must start over.
	for range seq {
		break
	}
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if len(first) != 2 || !slices.Equal(first, second) {
		t.Fatalf("expected two identical passes of 2 trades, got %v and %v", first, second)
	}

	// Trades appended later show up on the next pass.
	l.Append(newTestTrade("AAPL", "alice", "bob", 10000, 7))
	if n := len(slices.Collect(seq)); n != 3 {
		t.Fatalf("expected 3 trades after append, got %d", n)
	}
}

func TestTradeLedger_Last(t *testing.T) {
	l := NewTradeLedger()

	if _, ok := l.Last("AAPL"); ok {
		t.Fatal("expected no last trade on empty ledger")
	}

	l.Append(newTestTrade("AAPL", "alice", "bob", 10000, 5))
	l.Append(newTestTrade("TSLA", "alice", "bob", 25000, 1))
	l.Append(newTestTrade("AAPL", "alice", "bob", 10200, 1))

	last, ok := l.Last("AAPL")
	if !ok || last.Price != 10200 || last.Sequence != 3 {
		t.Fatalf("expected last AAPL trade 10200 at seq 3, got %+v (ok=%v)", last, ok)
	}
}

func TestTradeLedger_BackwardNewestFirst(t *testing.T) {
	l := NewTradeLedger()
	for i := 1; i <= 3; i++ {
		l.Append(newTestTrade("AAPL", "alice", "bob", int64(i*100), 1))
	}

	var got []int64
	for tr := range l.Backward(TradeFilter{}) {
		got = append(got, tr.Price)
	}
	if want := []int64{300, 200, 100}; !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTradeLedger_ConcurrentAppendKeepsTotalOrder(t *testing.T) {
	l := NewTradeLedger()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := fmt.Sprintf("SYM%d", i%5)
			for j := 0; j < 20; j++ {
				l.Append(newTestTrade(symbol, "a", "b", 100, 1))
				for range l.Query(TradeFilter{Symbol: symbol}) {
				}
			}
		}(i)
	}
	wg.Wait()

	if l.Len() != 1000 {
		t.Fatalf("expected 1000 trades, got %d", l.Len())
	}
	var prev uint64
	for tr := range l.Query(TradeFilter{}) {
		if tr.Sequence <= prev {
			t.Fatalf("sequence %d not after %d", tr.Sequence, prev)
		}
		prev = tr.Sequence
	}
}
