package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/full-stack-biz/mailboxer/store"
)

// GetPayload retrieves a payload by ID.
func (s *Store) GetPayload(ctx context.Context, id string) (*store.Payload, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var doc payloadDoc
	err := s.payloads.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find payload: %w", err)
	}
	return docToPayload(&doc), nil
}

// GetPayloads retrieves a batch of payloads by ID. Missing IDs are skipped.
func (s *Store) GetPayloads(ctx context.Context, ids []string) ([]*store.Payload, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if len(ids) == 0 {
		return []*store.Payload{}, nil
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	cursor, err := s.payloads.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find payloads: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []payloadDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode payloads: %w", err)
	}

	// Preserve the requested order so hydration paths stay deterministic.
	byID := make(map[string]*store.Payload, len(docs))
	for i := range docs {
		byID[docs[i].ID] = docToPayload(&docs[i])
	}
	payloads := make([]*store.Payload, 0, len(docs))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			payloads = append(payloads, p)
		}
	}
	return payloads, nil
}

// CreateDelivery persists one payload and all of its receipts atomically.
// On deployments without transaction support the writes run sequentially;
// a partial failure is then reported but not rolled back.
func (s *Store) CreateDelivery(ctx context.Context, data store.DeliveryData) (*store.Delivery, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if len(data.Receipts) == 0 {
		return nil, store.ErrEmptyReceipts
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	payload := data.Payload

	var conv *conversationDoc
	if data.Conversation != nil {
		conv = &conversationDoc{
			ID:        uuid.New().String(),
			Subject:   data.Conversation.Subject,
			CreatedAt: now,
			UpdatedAt: now,
		}
		payload.ConversationID = conv.ID
	}

	pdoc := payloadToDoc(uuid.New().String(), &payload, now)

	rdocs := make([]receiptDoc, len(data.Receipts))
	for i, r := range data.Receipts {
		rdocs[i] = receiptDoc{
			ID:             uuid.New().String(),
			PayloadID:      pdoc.ID,
			ReceiverType:   r.Receiver.Type,
			ReceiverID:     r.Receiver.ID,
			ConversationID: pdoc.ConversationID,
			IsRead:         r.IsRead,
			MailboxType:    string(r.MailboxType),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	err := s.withTransaction(ctx, func(ctx context.Context) error {
		if conv != nil {
			if _, err := s.conversations.InsertOne(ctx, conv); err != nil {
				return fmt.Errorf("insert conversation: %w", err)
			}
		} else if data.TouchConversation {
			res, err := s.conversations.UpdateOne(ctx,
				bson.M{"_id": pdoc.ConversationID},
				bson.M{"$set": bson.M{"updated_at": now}})
			if err != nil {
				return fmt.Errorf("touch conversation: %w", err)
			}
			if res.MatchedCount == 0 {
				return store.ErrNotFound
			}
		}

		if _, err := s.payloads.InsertOne(ctx, pdoc); err != nil {
			return fmt.Errorf("insert payload: %w", err)
		}

		docs := make([]any, len(rdocs))
		for i := range rdocs {
			docs[i] = rdocs[i]
		}
		if _, err := s.receipts.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert receipts: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}

	delivery := &store.Delivery{
		Payload:  docToPayload(pdoc),
		Receipts: make([]*store.Receipt, len(rdocs)),
	}
	for i := range rdocs {
		delivery.Receipts[i] = docToReceipt(&rdocs[i])
	}
	if conv != nil {
		delivery.Conversation = docToConversation(conv)
	}
	return delivery, nil
}
