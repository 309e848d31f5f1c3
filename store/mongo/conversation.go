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
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/full-stack-biz/mailboxer/store"
)

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var doc conversationDoc
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return docToConversation(&doc), nil
}

// TouchConversation bumps the conversation's UpdatedAt.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	if !s.isConnected() {
		return store.ErrNotConnected
	}
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrInvalidID
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scopeQuery returns the receipt conditions a conversation scope implies.
func scopeQuery(scope store.ConversationScope) (bson.M, error) {
	switch scope {
	case store.ScopeParticipant, "":
		return bson.M{}, nil
	case store.ScopeInbox:
		return bson.M{"mailbox_type": "inbox", "trashed": false, "deleted": false}, nil
	case store.ScopeSentbox:
		return bson.M{"mailbox_type": "sentbox", "trashed": false, "deleted": false}, nil
	case store.ScopeTrash:
		return bson.M{"trashed": true, "deleted": false}, nil
	case store.ScopeNotTrash:
		return bson.M{"trashed": false, "deleted": false}, nil
	case store.ScopeDeleted:
		return bson.M{"deleted": true}, nil
	case store.ScopeNotDeleted:
		return bson.M{"deleted": false}, nil
	case store.ScopeUnread:
		return bson.M{"is_read": false, "deleted": false}, nil
	default:
		return nil, fmt.Errorf("%w: unknown conversation scope: %s", store.ErrFilterInvalid, scope)
	}
}

// conversationIDs returns the distinct non-empty conversation IDs of
// receipts matching the query.
func (s *Store) conversationIDs(ctx context.Context, query bson.M) (map[string]bool, error) {
	query["conversation_id"] = bson.M{"$ne": ""}
	var ids []string
	if err := s.receipts.Distinct(ctx, "conversation_id", query).Decode(&ids); err != nil {
		return nil, fmt.Errorf("distinct conversations: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// FindConversations runs a participant-scoped conversation listing.
func (s *Store) FindConversations(ctx context.Context, q store.ConversationQuery) (*store.ConversationList, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if q.Participant.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query, err := scopeQuery(q.Scope)
	if err != nil {
		return nil, err
	}
	query["receiver_type"] = q.Participant.Type
	query["receiver_id"] = q.Participant.ID
	if q.Read != nil {
		query["is_read"] = *q.Read
	}

	ids, err := s.conversationIDs(ctx, query)
	if err != nil {
		return nil, err
	}

	if q.Between != nil && len(ids) > 0 {
		other, err := s.conversationIDs(ctx, bson.M{
			"receiver_type": q.Between.Type,
			"receiver_id":   q.Between.ID,
		})
		if err != nil {
			return nil, err
		}
		for id := range ids {
			if !other[id] {
				delete(ids, id)
			}
		}

		if q.OnlyBetween && len(ids) > 0 {
			// Drop conversations where any third party holds a receipt.
			idList := make([]string, 0, len(ids))
			for id := range ids {
				idList = append(idList, id)
			}
			outsiders, err := s.conversationIDs(ctx, bson.M{
				"conversation_id": bson.M{"$in": idList},
				"$nor": []bson.M{
					{"receiver_type": q.Participant.Type, "receiver_id": q.Participant.ID},
					{"receiver_type": q.Between.Type, "receiver_id": q.Between.ID},
				},
			})
			if err != nil {
				return nil, err
			}
			for id := range outsiders {
				delete(ids, id)
			}
		}
	}

	if len(ids) == 0 {
		return &store.ConversationList{Conversations: []*store.Conversation{}}, nil
	}

	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	limit := q.Options.Limit
	if limit <= 0 {
		limit = 20
	}
	findOpts := mongoopts.Find().
		SetSort(bson.D{
			bson.E{Key: "updated_at", Value: -1},
			bson.E{Key: "_id", Value: -1},
		}).
		SetSkip(int64(q.Options.Offset)).
		SetLimit(int64(limit) + 1)

	cursor, err := s.conversations.Find(ctx, bson.M{"_id": bson.M{"$in": idList}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}
	convs := make([]*store.Conversation, len(docs))
	for i := range docs {
		convs[i] = docToConversation(&docs[i])
	}
	return &store.ConversationList{
		Conversations: convs,
		Total:         int64(len(idList)),
		HasMore:       hasMore,
	}, nil
}

// ConversationParticipants returns the distinct identities holding at
// least one non-deleted receipt in the conversation.
func (s *Store) ConversationParticipants(ctx context.Context, conversationID string) ([]store.Identity, error) {
	return s.conversationIdentities(ctx, conversationID, false)
}

// ConversationMembers returns the distinct identities holding any receipt
// in the conversation, deleted ones included.
func (s *Store) ConversationMembers(ctx context.Context, conversationID string) ([]store.Identity, error) {
	return s.conversationIdentities(ctx, conversationID, true)
}

func (s *Store) conversationIdentities(ctx context.Context, conversationID string, includeDeleted bool) ([]store.Identity, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.conversationExists(ctx, conversationID); err != nil {
		return nil, err
	}

	match := bson.M{"conversation_id": conversationID}
	if !includeDeleted {
		match["deleted"] = false
	}
	pipeline := mongo.Pipeline{
		bson.D{bson.E{Key: "$match", Value: match}},
		bson.D{bson.E{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"type": "$receiver_type",
				"id":   "$receiver_id",
			},
		}}},
	}
	cursor, err := s.receipts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate participants: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID struct {
			Type string `bson:"type"`
			ID   string `bson:"id"`
		} `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}

	participants := make([]store.Identity, len(rows))
	for i, r := range rows {
		participants[i] = store.Identity{Type: r.ID.Type, ID: r.ID.ID}
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Type != participants[j].Type {
			return participants[i].Type < participants[j].Type
		}
		return participants[i].ID < participants[j].ID
	})
	return participants, nil
}

// ConversationMessages returns the payloads in the conversation the viewer
// holds a non-deleted receipt for, newest first unless opts asks for
// ascending order.
func (s *Store) ConversationMessages(ctx context.Context, conversationID string, viewer store.Identity, opts store.ListOptions) (*store.PayloadList, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, store.ErrInvalidID
	}
	if viewer.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var payloadIDs []string
	err := s.receipts.Distinct(ctx, "notification_id", bson.M{
		"conversation_id": conversationID,
		"receiver_type":   viewer.Type,
		"receiver_id":     viewer.ID,
		"deleted":         false,
	}).Decode(&payloadIDs)
	if err != nil {
		return nil, fmt.Errorf("distinct messages: %w", err)
	}
	if len(payloadIDs) == 0 {
		return &store.PayloadList{Payloads: []*store.Payload{}}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	dir := -1
	if opts.SortOrder == store.SortAsc {
		dir = 1
	}
	findOpts := mongoopts.Find().
		SetSort(bson.D{
			bson.E{Key: "created_at", Value: dir},
			bson.E{Key: "_id", Value: dir},
		}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(limit) + 1)

	cursor, err := s.payloads.Find(ctx, bson.M{"_id": bson.M{"$in": payloadIDs}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []payloadDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}
	payloads := make([]*store.Payload, len(docs))
	for i := range docs {
		payloads[i] = docToPayload(&docs[i])
	}
	return &store.PayloadList{
		Payloads: payloads,
		Total:    int64(len(payloadIDs)),
		HasMore:  hasMore,
	}, nil
}

// AddConversationParticipant creates an unread inbox receipt for every
// payload in the conversation the participant does not already hold one for.
func (s *Store) AddConversationParticipant(ctx context.Context, conversationID string, p store.Identity) (int64, error) {
	if !s.isConnected() {
		return 0, store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return 0, store.ErrInvalidID
	}
	if p.IsZero() {
		return 0, store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.conversationExists(ctx, conversationID); err != nil {
		return 0, err
	}

	var created int64
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		created = 0

		var allIDs []string
		if err := s.payloads.Distinct(ctx, "_id", bson.M{
			"conversation_id": conversationID,
		}).Decode(&allIDs); err != nil {
			return fmt.Errorf("distinct payloads: %w", err)
		}

		var heldIDs []string
		if err := s.receipts.Distinct(ctx, "notification_id", bson.M{
			"conversation_id": conversationID,
			"receiver_type":   p.Type,
			"receiver_id":     p.ID,
		}).Decode(&heldIDs); err != nil {
			return fmt.Errorf("distinct held receipts: %w", err)
		}
		held := make(map[string]bool, len(heldIDs))
		for _, id := range heldIDs {
			held[id] = true
		}

		now := time.Now().UTC()
		var docs []any
		for _, id := range allIDs {
			if held[id] {
				continue
			}
			docs = append(docs, receiptDoc{
				ID:             uuid.New().String(),
				PayloadID:      id,
				ReceiverType:   p.Type,
				ReceiverID:     p.ID,
				ConversationID: conversationID,
				MailboxType:    "inbox",
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		if len(docs) == 0 {
			return nil
		}
		if _, err := s.receipts.InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("insert receipts: %w", err)
		}
		created = int64(len(docs))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return created, nil
}

// MarkConversationDeleted marks the participant's receipts deleted and
// destroys the conversation when no live receipts remain. Racing reaps are
// idempotent: the loser observes the conversation already gone.
func (s *Store) MarkConversationDeleted(ctx context.Context, conversationID string, p store.Identity) (bool, error) {
	if !s.isConnected() {
		return false, store.ErrNotConnected
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return false, store.ErrInvalidID
	}
	if p.IsZero() {
		return false, store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var reaped bool
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		reaped = false

		err := s.conversations.FindOne(ctx, bson.M{"_id": conversationID}).Err()
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				// Already reaped by a racing participant.
				return nil
			}
			return fmt.Errorf("find conversation: %w", err)
		}

		if _, err := s.receipts.UpdateMany(ctx,
			bson.M{
				"conversation_id": conversationID,
				"receiver_type":   p.Type,
				"receiver_id":     p.ID,
				"deleted":         false,
			},
			bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}},
		); err != nil {
			return fmt.Errorf("mark receipts deleted: %w", err)
		}

		total, err := s.receipts.CountDocuments(ctx, bson.M{"conversation_id": conversationID})
		if err != nil {
			return fmt.Errorf("count receipts: %w", err)
		}
		live, err := s.receipts.CountDocuments(ctx, bson.M{
			"conversation_id": conversationID,
			"deleted":         false,
		})
		if err != nil {
			return fmt.Errorf("count live receipts: %w", err)
		}
		if total == 0 || live > 0 {
			return nil
		}

		if _, err := s.receipts.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
			return fmt.Errorf("delete receipts: %w", err)
		}
		if _, err := s.payloads.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
			return fmt.Errorf("delete payloads: %w", err)
		}
		if _, err := s.optOuts.DeleteMany(ctx, bson.M{"conversation_id": conversationID}); err != nil {
			return fmt.Errorf("delete opt-outs: %w", err)
		}
		if _, err := s.conversations.DeleteOne(ctx, bson.M{"_id": conversationID}); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		reaped = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return reaped, nil
}

func (s *Store) conversationExists(ctx context.Context, id string) error {
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.ErrNotFound
		}
		return fmt.Errorf("find conversation: %w", err)
	}
	return nil
}
