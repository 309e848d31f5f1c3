package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/full-stack-biz/mailboxer/store"
)

// DeleteExpiredPayloads deletes payloads whose expiry is before the cutoff,
// along with their receipts. Safe to call concurrently from multiple
// instances; each payload is deleted exactly once.
func (s *Store) DeleteExpiredPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	if !s.isConnected() {
		return 0, store.ErrNotConnected
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	expired := bson.M{"expires_at": bson.M{"$ne": nil, "$lt": cutoff}}

	var deleted int64
	err := s.withTransaction(ctx, func(ctx context.Context) error {
		deleted = 0

		var ids []string
		if err := s.payloads.Distinct(ctx, "_id", expired).Decode(&ids); err != nil {
			return fmt.Errorf("distinct expired payloads: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := s.receipts.DeleteMany(ctx, bson.M{"notification_id": bson.M{"$in": ids}}); err != nil {
			return fmt.Errorf("delete receipts: %w", err)
		}
		res, err := s.payloads.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return fmt.Errorf("delete payloads: %w", err)
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return deleted, nil
}
