package memory

import (
	"context"
	"sort"
	"time"

	"github.com/full-stack-biz/mailboxer/store"
)

// =============================================================================
// Opt-Out Operations
// =============================================================================

// CreateOptOut records an opt-out. Idempotent.
func (s *Store) CreateOptOut(_ context.Context, conversationID string, unsubscriber store.Identity) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if conversationID == "" {
		return store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return store.ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return store.ErrNotFound
	}

	m, ok := s.optOuts[conversationID]
	if !ok {
		m = make(map[string]store.OptOut)
		s.optOuts[conversationID] = m
	}
	key := unsubscriber.String()
	if _, exists := m[key]; exists {
		return nil
	}
	m[key] = store.OptOut{
		ConversationID: conversationID,
		Unsubscriber:   unsubscriber,
		CreatedAt:      time.Now().UTC(),
	}
	return nil
}

// DeleteOptOut removes an opt-out. Idempotent.
func (s *Store) DeleteOptOut(_ context.Context, conversationID string, unsubscriber store.Identity) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if conversationID == "" {
		return store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return store.ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.optOuts[conversationID]; ok {
		delete(m, unsubscriber.String())
	}
	return nil
}

// HasOptOut reports whether the identity has opted out of the conversation.
func (s *Store) HasOptOut(_ context.Context, conversationID string, unsubscriber store.Identity) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if conversationID == "" {
		return false, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.optOuts[conversationID]
	if !ok {
		return false, nil
	}
	_, exists := m[unsubscriber.String()]
	return exists, nil
}

// ListOptOuts returns the identities opted out of the conversation.
func (s *Store) ListOptOuts(_ context.Context, conversationID string) ([]store.Identity, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.optOuts[conversationID]
	out := make([]store.Identity, 0, len(m))
	for _, o := range m {
		out = append(out, o.Unsubscriber)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type == out[j].Type {
			return out[i].ID < out[j].ID
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}
