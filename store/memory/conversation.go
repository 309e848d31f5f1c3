package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/full-stack-biz/mailboxer/store"
)

// =============================================================================
// Conversation Operations
// =============================================================================

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneConversation(c), nil
}

// TouchConversation bumps the conversation's UpdatedAt.
func (s *Store) TouchConversation(_ context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if id == "" {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// scopeMatch reports whether one of the participant's receipts satisfies the
// scope predicate (plus the optional read filter).
func scopeMatch(receipts []*store.Receipt, scope store.ConversationScope, read *bool) bool {
	for _, r := range receipts {
		if read != nil && r.IsRead != *read {
			continue
		}
		switch scope {
		case store.ScopeParticipant, "":
			return true
		case store.ScopeInbox:
			if r.MailboxType == store.MailboxInbox && !r.Trashed && !r.Deleted {
				return true
			}
		case store.ScopeSentbox:
			if r.MailboxType == store.MailboxSentbox && !r.Trashed && !r.Deleted {
				return true
			}
		case store.ScopeTrash:
			if r.Trashed && !r.Deleted {
				return true
			}
		case store.ScopeNotTrash:
			if !r.Trashed && !r.Deleted {
				return true
			}
		case store.ScopeDeleted:
			if r.Deleted {
				return true
			}
		case store.ScopeNotDeleted:
			if !r.Deleted {
				return true
			}
		case store.ScopeUnread:
			if !r.IsRead && !r.Deleted {
				return true
			}
		}
	}
	return false
}

// FindConversations runs a participant-scoped conversation listing.
func (s *Store) FindConversations(_ context.Context, q store.ConversationQuery) (*store.ConversationList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if q.Participant.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	s.mu.RLock()

	// Group receipts by conversation, split by holder.
	mine := make(map[string][]*store.Receipt)
	holders := make(map[string]map[store.Identity]bool)
	for _, r := range s.receipts {
		if r.ConversationID == "" {
			continue
		}
		if r.Receiver == q.Participant {
			mine[r.ConversationID] = append(mine[r.ConversationID], r)
		}
		h, ok := holders[r.ConversationID]
		if !ok {
			h = make(map[store.Identity]bool)
			holders[r.ConversationID] = h
		}
		h[r.Receiver] = true
	}

	matched := make([]*store.Conversation, 0)
	for id, receipts := range mine {
		conv, ok := s.conversations[id]
		if !ok {
			continue
		}
		if !scopeMatch(receipts, q.Scope, q.Read) {
			continue
		}
		if q.Between != nil {
			h := holders[id]
			if !h[*q.Between] {
				continue
			}
			if q.OnlyBetween {
				expected := 2
				if *q.Between == q.Participant {
					expected = 1
				}
				if len(h) != expected {
					continue
				}
			}
		}
		matched = append(matched, cloneConversation(conv))
	}
	s.mu.RUnlock()

	// Most recently updated first, ID descending on ties.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	total := int64(len(matched))
	matched = paginate(matched, q.Options)

	return &store.ConversationList{
		Conversations: matched,
		Total:         total,
		HasMore:       q.Options.Limit > 0 && int64(q.Options.Offset+len(matched)) < total,
	}, nil
}

// ConversationParticipants returns identities holding non-deleted receipts.
func (s *Store) ConversationParticipants(_ context.Context, conversationID string) ([]store.Identity, error) {
	return s.conversationIdentities(conversationID, false)
}

// ConversationMembers returns identities holding any receipt, deleted ones
// included.
func (s *Store) ConversationMembers(_ context.Context, conversationID string) ([]store.Identity, error) {
	return s.conversationIdentities(conversationID, true)
}

func (s *Store) conversationIdentities(conversationID string, includeDeleted bool) ([]store.Identity, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, store.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, store.ErrNotFound
	}

	seen := make(map[store.Identity]bool)
	participants := make([]store.Identity, 0)
	for _, r := range s.receipts {
		if r.ConversationID != conversationID || seen[r.Receiver] {
			continue
		}
		if r.Deleted && !includeDeleted {
			continue
		}
		seen[r.Receiver] = true
		participants = append(participants, r.Receiver)
	}

	// Deterministic order for tests and pagination-free callers.
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Type == participants[j].Type {
			return participants[i].ID < participants[j].ID
		}
		return participants[i].Type < participants[j].Type
	})
	return participants, nil
}

// ConversationMessages returns payloads the viewer holds non-deleted
// receipts for, newest first unless opts asks for ascending order.
func (s *Store) ConversationMessages(_ context.Context, conversationID string, viewer store.Identity, opts store.ListOptions) (*store.PayloadList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, store.ErrInvalidID
	}
	if viewer.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	s.mu.RLock()
	visible := make(map[string]bool)
	for _, r := range s.receipts {
		if r.ConversationID == conversationID && r.Receiver == viewer && !r.Deleted {
			visible[r.PayloadID] = true
		}
	}
	matched := make([]*store.Payload, 0, len(visible))
	for id := range visible {
		if p, ok := s.payloads[id]; ok {
			matched = append(matched, clonePayload(p))
		}
	}
	s.mu.RUnlock()

	asc := opts.SortOrder == store.SortAsc
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			if asc {
				return matched[i].ID < matched[j].ID
			}
			return matched[i].ID > matched[j].ID
		}
		if asc {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	matched = paginate(matched, opts)

	return &store.PayloadList{
		Payloads: matched,
		Total:    total,
		HasMore:  opts.Limit > 0 && int64(opts.Offset+len(matched)) < total,
	}, nil
}

// AddConversationParticipant creates unread inbox receipts for every payload
// the participant does not already hold one for.
func (s *Store) AddConversationParticipant(_ context.Context, conversationID string, p store.Identity) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if conversationID == "" {
		return 0, store.ErrInvalidID
	}
	if p.IsZero() {
		return 0, store.ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return 0, store.ErrNotFound
	}

	held := make(map[string]bool)
	for _, r := range s.receipts {
		if r.ConversationID == conversationID && r.Receiver == p {
			held[r.PayloadID] = true
		}
	}

	now := time.Now().UTC()
	var created int64
	for _, payload := range s.payloads {
		if payload.ConversationID != conversationID || held[payload.ID] {
			continue
		}
		r := &store.Receipt{
			ID:             uuid.New().String(),
			PayloadID:      payload.ID,
			Receiver:       p,
			ConversationID: conversationID,
			MailboxType:    store.MailboxInbox,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		s.receipts[r.ID] = r
		created++
	}
	return created, nil
}

// MarkConversationDeleted marks the participant's receipts deleted and reaps
// the conversation if every receipt in it is now deleted.
func (s *Store) MarkConversationDeleted(_ context.Context, conversationID string, p store.Identity) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if conversationID == "" {
		return false, store.ErrInvalidID
	}
	if p.IsZero() {
		return false, store.ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		// Racing reap already destroyed it. Idempotent.
		return false, nil
	}

	now := time.Now().UTC()
	var all, deleted int
	for _, r := range s.receipts {
		if r.ConversationID != conversationID {
			continue
		}
		if r.Receiver == p && !r.Deleted {
			r.Deleted = true
			r.UpdatedAt = now
		}
		all++
		if r.Deleted {
			deleted++
		}
	}

	if all == 0 || deleted < all {
		return false, nil
	}

	// Orphaned: every participant deleted every receipt. Destroy the thread.
	for id, r := range s.receipts {
		if r.ConversationID == conversationID {
			delete(s.receipts, id)
		}
	}
	for id, payload := range s.payloads {
		if payload.ConversationID == conversationID {
			delete(s.payloads, id)
		}
	}
	delete(s.optOuts, conversationID)
	delete(s.conversations, conversationID)
	return true, nil
}
