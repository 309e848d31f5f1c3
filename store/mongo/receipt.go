package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/full-stack-biz/mailboxer/store"
)

// GetReceipt retrieves a receipt by ID.
func (s *Store) GetReceipt(ctx context.Context, id string) (*store.Receipt, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var doc receiptDoc
	err := s.receipts.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	return docToReceipt(&doc), nil
}

// FindReceipts retrieves receipts matching the filters.
func (s *Store) FindReceipts(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.ReceiptList, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query, err := buildFilter(filters)
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	total, err := s.receipts.CountDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count receipts: %w", err)
	}

	sortField, sortDir := receiptSort(opts)
	findOpts := mongoopts.Find().
		SetSort(bson.D{
			bson.E{Key: sortField, Value: sortDir},
			bson.E{Key: "_id", Value: sortDir},
		}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(limit) + 1)

	cursor, err := s.receipts.Find(ctx, query, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find receipts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []receiptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode receipts: %w", err)
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	receipts := make([]*store.Receipt, len(docs))
	for i := range docs {
		receipts[i] = docToReceipt(&docs[i])
	}
	return &store.ReceiptList{Receipts: receipts, Total: total, HasMore: hasMore}, nil
}

// CountReceipts returns the count of receipts matching the filters.
func (s *Store) CountReceipts(ctx context.Context, filters []store.Filter) (int64, error) {
	if !s.isConnected() {
		return 0, store.ErrNotConnected
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}
	n, err := s.receipts.CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return n, nil
}

// UpdateReceipts applies the update to every matching receipt. Matching
// zero receipts is a successful no-op.
func (s *Store) UpdateReceipts(ctx context.Context, filters []store.Filter, update store.ReceiptUpdate) (int64, error) {
	if !s.isConnected() {
		return 0, store.ErrNotConnected
	}
	if update.IsZero() {
		return 0, store.ErrEmptyUpdate
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if update.IsRead != nil {
		set["is_read"] = *update.IsRead
	}
	if update.Trashed != nil {
		set["trashed"] = *update.Trashed
	}
	if update.Deleted != nil {
		set["deleted"] = *update.Deleted
	}
	if update.MailboxType != nil {
		set["mailbox_type"] = string(*update.MailboxType)
	}

	res, err := s.receipts.UpdateMany(ctx, query, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("update receipts: %w", err)
	}
	return res.ModifiedCount, nil
}

// DeleteReceipts permanently removes every matching receipt.
func (s *Store) DeleteReceipts(ctx context.Context, filters []store.Filter) (int64, error) {
	if !s.isConnected() {
		return 0, store.ErrNotConnected
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	query, err := buildFilter(filters)
	if err != nil {
		return 0, err
	}
	res, err := s.receipts.DeleteMany(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete receipts: %w", err)
	}
	return res.DeletedCount, nil
}

// buildFilter translates store filters into a MongoDB query document.
func buildFilter(filters []store.Filter) (bson.M, error) {
	query := bson.M{}
	var and []bson.M
	for _, f := range filters {
		cond, err := filterToCondition(f)
		if err != nil {
			return nil, err
		}
		and = append(and, cond)
	}
	if len(and) > 0 {
		query["$and"] = and
	}
	return query, nil
}

func filterToCondition(f store.Filter) (bson.M, error) {
	key := f.Key()

	// The composite receiver key matches on both identity columns.
	if key == "receiver" {
		id, ok := f.Value().(store.Identity)
		if !ok {
			return nil, fmt.Errorf("%w: receiver filter requires an Identity value", store.ErrFilterInvalid)
		}
		match := bson.M{"receiver_type": id.Type, "receiver_id": id.ID}
		switch f.Operator() {
		case "eq":
			return match, nil
		case "ne":
			return bson.M{"$nor": []bson.M{match}}, nil
		default:
			return nil, fmt.Errorf("%w: receiver filter supports eq and ne only", store.ErrFilterInvalid)
		}
	}

	field := key
	if field == "id" {
		field = "_id"
	}

	switch f.Operator() {
	case "eq":
		return bson.M{field: f.Value()}, nil
	case "ne":
		return bson.M{field: bson.M{"$ne": f.Value()}}, nil
	case "gt":
		return bson.M{field: bson.M{"$gt": f.Value()}}, nil
	case "gte":
		return bson.M{field: bson.M{"$gte": f.Value()}}, nil
	case "lt":
		return bson.M{field: bson.M{"$lt": f.Value()}}, nil
	case "lte":
		return bson.M{field: bson.M{"$lte": f.Value()}}, nil
	case "in":
		return bson.M{field: bson.M{"$in": filterValues(f.Value())}}, nil
	case "nin":
		return bson.M{field: bson.M{"$nin": filterValues(f.Value())}}, nil
	case "exists":
		want, _ := f.Value().(bool)
		if want {
			return bson.M{field: bson.M{"$exists": true, "$ne": ""}}, nil
		}
		return bson.M{"$or": []bson.M{
			{field: bson.M{"$exists": false}},
			{field: ""},
		}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported operator: %s", store.ErrFilterInvalid, f.Operator())
	}
}

func filterValues(v any) []any {
	if vs, ok := v.([]any); ok {
		return vs
	}
	return []any{v}
}

func receiptSort(opts store.ListOptions) (string, int) {
	field := "created_at"
	if opts.SortBy != "" {
		if key, ok := store.ReceiptOrderingKey(opts.SortBy); ok {
			field = key
		}
	}
	if field == "id" {
		field = "_id"
	}
	dir := -1
	if opts.SortOrder == store.SortAsc {
		dir = 1
	}
	return field, dir
}
