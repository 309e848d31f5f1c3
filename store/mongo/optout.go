package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/full-stack-biz/mailboxer/store"
)

// CreateOptOut records an opt-out. The unique index on (conversation,
// unsubscriber) makes the duplicate insert a no-op instead of a lock.
func (s *Store) CreateOptOut(ctx context.Context, conversationID string, unsubscriber store.Identity) error {
	if !s.isConnected() {
		return store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.optOuts.InsertOne(ctx, optOutDoc{
		ID:               uuid.New().String(),
		ConversationID:   conversationID,
		UnsubscriberType: unsubscriber.Type,
		UnsubscriberID:   unsubscriber.ID,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert opt-out: %w", err)
	}
	return nil
}

// DeleteOptOut removes an opt-out. Removing one that doesn't exist is a
// successful no-op.
func (s *Store) DeleteOptOut(ctx context.Context, conversationID string, unsubscriber store.Identity) error {
	if !s.isConnected() {
		return store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := s.optOuts.DeleteOne(ctx, bson.M{
		"conversation_id":   conversationID,
		"unsubscriber_type": unsubscriber.Type,
		"unsubscriber_id":   unsubscriber.ID,
	})
	if err != nil {
		return fmt.Errorf("delete opt-out: %w", err)
	}
	return nil
}

// HasOptOut reports whether the identity has opted out of the conversation.
func (s *Store) HasOptOut(ctx context.Context, conversationID string, unsubscriber store.Identity) (bool, error) {
	if !s.isConnected() {
		return false, store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return false, store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return false, store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.optOuts.FindOne(ctx, bson.M{
		"conversation_id":   conversationID,
		"unsubscriber_type": unsubscriber.Type,
		"unsubscriber_id":   unsubscriber.ID,
	}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("find opt-out: %w", err)
	}
	return true, nil
}

// ListOptOuts returns the identities opted out of the conversation.
func (s *Store) ListOptOuts(ctx context.Context, conversationID string) ([]store.Identity, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	cursor, err := s.optOuts.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, fmt.Errorf("find opt-outs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []optOutDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode opt-outs: %w", err)
	}

	identities := make([]store.Identity, 0, len(docs))
	for _, d := range docs {
		identities = append(identities, store.Identity{Type: d.UnsubscriberType, ID: d.UnsubscriberID})
	}
	sort.Slice(identities, func(i, j int) bool {
		if identities[i].Type != identities[j].Type {
			return identities[i].Type < identities[j].Type
		}
		return identities[i].ID < identities[j].ID
	})
	return identities, nil
}
