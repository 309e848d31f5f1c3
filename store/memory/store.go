// Package memory provides an in-memory Store implementation for testing.
// This store is not suitable for production use - data is not persisted.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/full-stack-biz/mailboxer/store"
)

// Store implements store.Store with in-memory storage.
// Thread-safe for concurrent use. Not suitable for production.
//
// A single RWMutex guards all tables: a delivery or a reap spans payloads,
// receipts, conversations, and opt-outs, and must observe them atomically.
type Store struct {
	mu            sync.RWMutex
	payloads      map[string]*store.Payload
	receipts      map[string]*store.Receipt
	conversations map[string]*store.Conversation
	optOuts       map[string]map[string]store.OptOut // conversationID -> identity key
	connected     int32
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		payloads:      make(map[string]*store.Payload),
		receipts:      make(map[string]*store.Receipt),
		conversations: make(map[string]*store.Conversation),
		optOuts:       make(map[string]map[string]store.OptOut),
	}
}

// Connect marks the store as connected.
func (s *Store) Connect(_ context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close(_ context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

func clonePayload(p *store.Payload) *store.Payload {
	c := *p
	if p.Sender != nil {
		sender := *p.Sender
		c.Sender = &sender
	}
	if p.ExpiresAt != nil {
		exp := *p.ExpiresAt
		c.ExpiresAt = &exp
	}
	if p.Attachments != nil {
		c.Attachments = make([]store.Attachment, len(p.Attachments))
		copy(c.Attachments, p.Attachments)
	}
	return &c
}

func cloneReceipt(r *store.Receipt) *store.Receipt {
	c := *r
	return &c
}

func cloneConversation(c *store.Conversation) *store.Conversation {
	cc := *c
	return &cc
}

// =============================================================================
// Payload Operations
// =============================================================================

// GetPayload retrieves a payload by ID.
func (s *Store) GetPayload(_ context.Context, id string) (*store.Payload, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payloads[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePayload(p), nil
}

// GetPayloads retrieves a batch of payloads. Missing IDs are skipped.
func (s *Store) GetPayloads(_ context.Context, ids []string) ([]*store.Payload, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*store.Payload, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.payloads[id]; ok {
			out = append(out, clonePayload(p))
		}
	}
	return out, nil
}

// CreateDelivery persists one payload and all of its receipts atomically.
func (s *Store) CreateDelivery(_ context.Context, data store.DeliveryData) (*store.Delivery, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if len(data.Receipts) == 0 {
		return nil, store.ErrEmptyReceipts
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	result := &store.Delivery{}

	conversationID := data.Payload.ConversationID
	if data.Conversation != nil {
		conv := &store.Conversation{
			ID:        uuid.New().String(),
			Subject:   data.Conversation.Subject,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.conversations[conv.ID] = conv
		conversationID = conv.ID
		result.Conversation = cloneConversation(conv)
	} else if data.TouchConversation && conversationID != "" {
		conv, ok := s.conversations[conversationID]
		if !ok {
			return nil, store.ErrNotFound
		}
		conv.UpdatedAt = now
	}

	payload := &store.Payload{
		ID:                 uuid.New().String(),
		Kind:               data.Payload.Kind,
		Subject:            data.Payload.Subject,
		Body:               data.Payload.Body,
		Sender:             data.Payload.Sender,
		ConversationID:     conversationID,
		NotifiedObjectType: data.Payload.NotifiedObjectType,
		NotifiedObjectID:   data.Payload.NotifiedObjectID,
		NotificationCode:   data.Payload.NotificationCode,
		Global:             data.Payload.Global,
		ExpiresAt:          data.Payload.ExpiresAt,
		Attachments:        data.Payload.Attachments,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.payloads[payload.ID] = payload
	result.Payload = clonePayload(payload)

	result.Receipts = make([]*store.Receipt, 0, len(data.Receipts))
	for _, rd := range data.Receipts {
		r := &store.Receipt{
			ID:             uuid.New().String(),
			PayloadID:      payload.ID,
			Receiver:       rd.Receiver,
			ConversationID: conversationID,
			IsRead:         rd.IsRead,
			MailboxType:    rd.MailboxType,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.receipts[r.ID] = r
		result.Receipts = append(result.Receipts, cloneReceipt(r))
	}

	return result, nil
}

// =============================================================================
// Maintenance Operations
// =============================================================================

// DeleteExpiredPayloads deletes payloads expired before cutoff, with their
// receipts.
func (s *Store) DeleteExpiredPayloads(_ context.Context, cutoff time.Time) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	expired := make(map[string]bool)
	for id, p := range s.payloads {
		if p.ExpiresAt != nil && p.ExpiresAt.Before(cutoff) {
			expired[id] = true
			delete(s.payloads, id)
			deleted++
		}
	}
	if deleted == 0 {
		return 0, nil
	}
	for id, r := range s.receipts {
		if expired[r.PayloadID] {
			delete(s.receipts, id)
		}
	}
	return deleted, nil
}
