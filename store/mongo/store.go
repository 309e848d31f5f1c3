// Package mongo provides a MongoDB-backed messaging store.
//
// Documents live in four collections sharing a configurable name prefix:
// conversations, notifications, receipts and opt-outs. Multi-document
// writes run inside a session transaction when the deployment supports
// them (replica sets, sharded clusters) and fall back to sequential
// writes on standalone servers.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/full-stack-biz/mailboxer/retry"
	"github.com/full-stack-biz/mailboxer/store"
)

// Compile-time interface checks.
var (
	_ store.Store      = (*Store)(nil)
	_ store.StatsStore = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	client        *mongo.Client
	db            *mongo.Database
	conversations *mongo.Collection
	payloads      *mongo.Collection
	receipts      *mongo.Collection
	optOuts       *mongo.Collection
	opts          *options
	connected     int32
}

// New creates a MongoDB store from an existing client.
// The client must already be constructed; Connect verifies connectivity
// and creates the indexes.
func New(client *mongo.Client, opts ...Option) *Store {
	return &Store{
		client: client,
		opts:   newOptions(opts...),
	}
}

// Connect verifies connectivity and prepares collections and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}
	if s.client == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("%w: nil client", store.ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := retry.Do(ctx, s.opts.connectRetry, func(ctx context.Context) error {
		return s.client.Ping(ctx, nil)
	}); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ping mongodb: %w", err)
	}

	s.db = s.client.Database(s.opts.database)
	prefix := s.opts.collectionPrefix
	s.conversations = s.db.Collection(prefix + "_conversations")
	s.payloads = s.db.Collection(prefix + "_notifications")
	s.receipts = s.db.Collection(prefix + "_receipts")
	s.optOuts = s.db.Collection(prefix + "_opt_outs")

	if err := s.ensureIndexes(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("create indexes: %w", err)
	}

	s.opts.logger.Info("connected to MongoDB",
		"database", s.opts.database,
		"collection_prefix", s.opts.collectionPrefix)
	return nil
}

// Close marks the store as disconnected. The client itself is owned by
// the caller and is not closed here.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

func (s *Store) isConnected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

// opContext applies the configured operation timeout.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.timeout)
}

// ensureIndexes creates the indexes used by receipt and conversation
// queries. Index creation is idempotent.
func (s *Store) ensureIndexes(ctx context.Context) error {
	receiptIndexes := []mongo.IndexModel{
		{Keys: bson.D{
			bson.E{Key: "receiver_type", Value: 1},
			bson.E{Key: "receiver_id", Value: 1},
		}},
		{Keys: bson.D{bson.E{Key: "notification_id", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "conversation_id", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "created_at", Value: -1}}},
		// Mailbox listing index: owner plus the flags every scope checks
		{Keys: bson.D{
			bson.E{Key: "receiver_type", Value: 1},
			bson.E{Key: "receiver_id", Value: 1},
			bson.E{Key: "mailbox_type", Value: 1},
			bson.E{Key: "trashed", Value: 1},
			bson.E{Key: "deleted", Value: 1},
		}},
	}
	if _, err := s.receipts.Indexes().CreateMany(ctx, receiptIndexes); err != nil {
		return fmt.Errorf("receipt indexes: %w", err)
	}

	payloadIndexes := []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "conversation_id", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "expires_at", Value: 1}}},
	}
	if _, err := s.payloads.Indexes().CreateMany(ctx, payloadIndexes); err != nil {
		return fmt.Errorf("payload indexes: %w", err)
	}

	optOutIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				bson.E{Key: "conversation_id", Value: 1},
				bson.E{Key: "unsubscriber_type", Value: 1},
				bson.E{Key: "unsubscriber_id", Value: 1},
			},
			Options: mongoopts.Index().SetUnique(true),
		},
	}
	if _, err := s.optOuts.Indexes().CreateMany(ctx, optOutIndexes); err != nil {
		return fmt.Errorf("opt-out indexes: %w", err)
	}

	return nil
}

// withTransaction runs fn inside a session transaction. Standalone
// deployments do not support transactions; when the session cannot be
// started or the server rejects the transaction, fn runs directly on
// the original context without transactional guarantees.
func (s *Store) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		s.opts.logger.Debug("sessions unavailable, running without transaction", "error", err)
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx context.Context) (any, error) {
		return nil, fn(sessCtx)
	})
	if err != nil && isTransactionNotSupported(err) {
		s.opts.logger.Debug("transactions not supported, running without transaction", "error", err)
		return fn(ctx)
	}
	return err
}

// isTransactionNotSupported reports whether the error indicates the
// deployment cannot run transactions (standalone servers).
func isTransactionNotSupported(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		// 20: IllegalOperation, 263: OperationNotSupportedInTransaction
		return cmdErr.Code == 20 || cmdErr.Code == 263
	}
	return false
}
