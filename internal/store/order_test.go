package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/efreitasn/tradedesk/internal/domain"
)

func newTestOrder(id domain.OrderID, participant string) *domain.Order {
	return &domain.Order{
		ID:                id,
		Participant:       participant,
		Side:              domain.SideBuy,
		Symbol:            "AAPL",
		Price:             15000,
		OriginalQuantity:  10,
		RemainingQuantity: 10,
		Sequence:          uint64(id),
		Status:            domain.OrderStatusOpen,
	}
}

func TestOrderStore_Create_and_Get(t *testing.T) {
	s := NewOrderStore()
	s.Create(newTestOrder(1, "alice"))

	got, err := s.Get(1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("expected order 1, got %d", got.ID)
	}
	if got.Participant != "alice" {
		t.Fatalf("expected alice, got %s", got.Participant)
	}
}

func TestOrderStore_Get_NotFound(t *testing.T) {
	s := NewOrderStore()

	_, err := s.Get(42)
	if err != domain.ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_Get_ReturnsSamePointer(t *testing.T) {
	s := NewOrderStore()
	o := newTestOrder(1, "alice")
	s.Create(o)

	o.Fill(3)

	got, _ := s.Get(1)
	if got.RemainingQuantity != 7 {
		t.Fatalf("expected remaining 7 after fill, got %d", got.RemainingQuantity)
	}
}

func TestOrderStore_ListByParticipant_NewestFirst(t *testing.T) {
	s := NewOrderStore()
	s.Create(newTestOrder(1, "alice"))
	s.Create(newTestOrder(2, "bob"))
	s.Create(newTestOrder(3, "alice"))

	list := s.ListByParticipant("alice")
	if len(list) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(list))
	}
	if list[0].ID != 3 || list[1].ID != 1 {
		t.Fatalf("expected [3 1], got [%d %d]", list[0].ID, list[1].ID)
	}
}

func TestOrderStore_ListByParticipant_Empty(t *testing.T) {
	s := NewOrderStore()

	list := s.ListByParticipant("nobody")
	if list == nil {
		t.Fatal("expected non-nil empty slice, got nil")
	}
	if len(list) != 0 {
		t.Fatalf("expected 0 orders, got %d", len(list))
	}
}

func TestOrderStore_ConcurrentAccess(t *testing.T) {
	s := NewOrderStore()
	var wg sync.WaitGroup

	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Create(newTestOrder(domain.OrderID(i), fmt.Sprintf("trader-%d", i%10)))
		}(i)
	}
	wg.Wait()

	for i := 1; i <= 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Get(domain.OrderID(i)); err != nil {
				t.Errorf("Get(%d): %v", i, err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			s.ListByParticipant(fmt.Sprintf("trader-%d", i%10))
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 10; i++ {
		total += len(s.ListByParticipant(fmt.Sprintf("trader-%d", i)))
	}
	if total != 100 {
		t.Fatalf("expected 100 orders across participants, got %d", total)
	}
}
