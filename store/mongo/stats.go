package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/full-stack-biz/mailboxer/store"
)

// countIf builds a conditional $sum expression over the receipt fields.
func countIf(cond bson.M) bson.M {
	return bson.M{"$sum": bson.M{"$cond": bson.A{cond, 1, 0}}}
}

// MailboxStats computes all mailbox counters for a participant in a single
// aggregation pass over their receipts.
func (s *Store) MailboxStats(ctx context.Context, p store.Identity) (*store.MailboxStats, error) {
	if !s.isConnected() {
		return nil, store.ErrNotConnected
	}
	if p.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	live := bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{"$trashed", false}},
		bson.M{"$eq": bson.A{"$deleted", false}},
	}}
	pipeline := mongo.Pipeline{
		bson.D{bson.E{Key: "$match", Value: bson.M{
			"receiver_type": p.Type,
			"receiver_id":   p.ID,
		}}},
		bson.D{bson.E{Key: "$group", Value: bson.M{
			"_id": nil,
			"inbox": countIf(bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$mailbox_type", "inbox"}},
				live,
			}}),
			"inbox_unread": countIf(bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$mailbox_type", "inbox"}},
				bson.M{"$eq": bson.A{"$is_read", false}},
				live,
			}}),
			"sentbox": countIf(bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$mailbox_type", "sentbox"}},
				live,
			}}),
			"trash": countIf(bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$trashed", true}},
				bson.M{"$eq": bson.A{"$deleted", false}},
			}}),
			"notifications": countIf(bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$conversation_id", ""}},
				live,
			}}),
		}}},
	}

	cursor, err := s.receipts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Inbox         int64 `bson:"inbox"`
		InboxUnread   int64 `bson:"inbox_unread"`
		Sentbox       int64 `bson:"sentbox"`
		Trash         int64 `bson:"trash"`
		Notifications int64 `bson:"notifications"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	stats := &store.MailboxStats{}
	if len(rows) > 0 {
		stats.Inbox = rows[0].Inbox
		stats.InboxUnread = rows[0].InboxUnread
		stats.Sentbox = rows[0].Sentbox
		stats.Trash = rows[0].Trash
		stats.Notifications = rows[0].Notifications
	}
	return stats, nil
}
