package store

import (
	"sync"

	"github.com/efreitasn/tradedesk/internal/domain"
)

// OrderStore is a thread-safe in-memory index of every admitted order,
// by ID and by participant. It only stores pointers; the fields of an
// order are guarded by its book's lock, not by the store.
type OrderStore struct {
	mu                sync.RWMutex
	orders            map[domain.OrderID]*domain.Order
	participantOrders map[string][]*domain.Order // participant → orders (append-only)
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:            make(map[domain.OrderID]*domain.Order),
		participantOrders: make(map[string][]*domain.Order),
	}
}

// Create adds an order to the store and appends it to the
// participant's secondary index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.ID] = o
	s.participantOrders[o.Participant] = append(s.participantOrders[o.Participant], o)
}

// Get retrieves an order by ID. It returns
// domain.ErrOrderNotFound if the order does not exist.
func (s *OrderStore) Get(id domain.OrderID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByParticipant returns a participant's orders newest first.
func (s *OrderStore) ListByParticipant(participant string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.participantOrders[participant]
	out := make([]*domain.Order, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	return out
}
