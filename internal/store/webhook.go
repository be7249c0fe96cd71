package store

import (
	"slices"
	"strings"
	"sync"

	"github.com/efreitasn/tradedesk/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for webhooks.
// Primary index: webhook_id → webhook.
// Secondary index: participant → event → webhook.
type WebhookStore struct {
	mu            sync.RWMutex
	webhooks      map[string]*domain.Webhook
	byParticipant map[string]map[string]*domain.Webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks:      make(map[string]*domain.Webhook),
		byParticipant: make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert inserts or updates a subscription keyed by (participant, event).
// An existing subscription keeps its webhook_id and only has its URL and
// UpdatedAt refreshed when the URL changed. Returns true if a new
// subscription was created.
func (s *WebhookStore) Upsert(w *domain.Webhook) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if events, ok := s.byParticipant[w.Participant]; ok {
		if existing, ok := events[w.Event]; ok {
			if existing.URL != w.URL {
				existing.URL = w.URL
				existing.UpdatedAt = w.UpdatedAt
			}
			return false
		}
	}

	s.webhooks[w.WebhookID] = w

	if s.byParticipant[w.Participant] == nil {
		s.byParticipant[w.Participant] = make(map[string]*domain.Webhook)
	}
	s.byParticipant[w.Participant][w.Event] = w

	return true
}

// Get retrieves a webhook by ID. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	cp := *w
	return &cp, nil
}

// ListByParticipant returns copies of all webhooks for a participant.
// Returns an empty slice if there are no subscriptions.
func (s *WebhookStore) ListByParticipant(participant string) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byParticipant[participant]
	result := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		cp := *w
		result = append(result, &cp)
	}
	slices.SortFunc(result, func(a, b *domain.Webhook) int {
		return strings.Compare(a.Event, b.Event)
	})
	return result
}

// Delete removes a webhook by ID from both indexes. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}

	delete(s.webhooks, id)

	if events, ok := s.byParticipant[w.Participant]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byParticipant, w.Participant)
		}
	}

	return nil
}

// GetByParticipantEvent returns a copy of the webhook for a
// participant+event pair, or nil if no subscription exists.
func (s *WebhookStore) GetByParticipantEvent(participant, event string) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byParticipant[participant][event]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}
