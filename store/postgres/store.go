// Package postgres provides a PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"github.com/full-stack-biz/mailboxer/retry"
	"github.com/full-stack-biz/mailboxer/store"
)

// Compile-time checks
var (
	_ store.Store      = (*Store)(nil)
	_ store.StatsStore = (*Store)(nil)
)

// Store implements store.Store using PostgreSQL.
//
// Four tables back the model: conversations, notifications (the payload
// table, named after the single-table-inheritance record it stores),
// receipts, and conversation opt-outs. All atomic composites (delivery
// fan-out, orphan reap) run in a single transaction.
type Store struct {
	db        *sqlx.DB
	opts      *options
	connected int32
	logger    *slog.Logger
}

// New creates a new PostgreSQL store with the provided database connection.
// Call Connect() to initialize the schema and indexes.
func New(db *sqlx.DB, opts ...Option) *Store {
	o := newOptions(opts...)
	return &Store{
		db:     db,
		opts:   o,
		logger: o.logger,
	}
}

// NewFromDB creates a new PostgreSQL store from a standard sql.DB connection.
// This wraps the sql.DB with sqlx for enhanced functionality.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	return New(sqlx.NewDb(db, "postgres"), opts...)
}

// Connect pings the database (with backoff for transient startup failures)
// and initializes the schema and indexes.
func (s *Store) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.connected, 0, 1) {
		return store.ErrAlreadyConnected
	}

	if s.db == nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres: db is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	err := retry.Do(ctx, s.opts.connectRetry, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
	if err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := s.ensureSchema(ctx); err != nil {
		atomic.StoreInt32(&s.connected, 0)
		return fmt.Errorf("ensure schema: %w", err)
	}

	s.logger.Info("connected to PostgreSQL", "table_prefix", s.opts.tablePrefix)
	return nil
}

// Close marks the store as disconnected.
// The caller is responsible for closing the database connection.
func (s *Store) Close(ctx context.Context) error {
	atomic.StoreInt32(&s.connected, 0)
	return nil
}

// checkConnected returns error if not connected.
func (s *Store) checkConnected() error {
	if atomic.LoadInt32(&s.connected) == 0 {
		return store.ErrNotConnected
	}
	return nil
}

// Table name helpers.

func (s *Store) conversationsTable() string { return s.opts.tablePrefix + "_conversations" }
func (s *Store) payloadsTable() string      { return s.opts.tablePrefix + "_notifications" }
func (s *Store) receiptsTable() string      { return s.opts.tablePrefix + "_receipts" }
func (s *Store) optOutsTable() string       { return s.opts.tablePrefix + "_conversation_opt_outs" }

// ensureSchema creates the required tables and indexes.
func (s *Store) ensureSchema(ctx context.Context) error {
	tables := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				subject TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, s.conversationsTable()),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				kind VARCHAR(32) NOT NULL,
				subject TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				sender_type VARCHAR(255) NOT NULL DEFAULT '',
				sender_id VARCHAR(255) NOT NULL DEFAULT '',
				conversation_id TEXT NOT NULL DEFAULT '',
				notified_object_type VARCHAR(255) NOT NULL DEFAULT '',
				notified_object_id VARCHAR(255) NOT NULL DEFAULT '',
				notification_code VARCHAR(255) NOT NULL DEFAULT '',
				global BOOLEAN NOT NULL DEFAULT FALSE,
				expires_at TIMESTAMPTZ,
				attachments JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, s.payloadsTable()),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				notification_id UUID NOT NULL,
				receiver_type VARCHAR(255) NOT NULL,
				receiver_id VARCHAR(255) NOT NULL,
				conversation_id TEXT NOT NULL DEFAULT '',
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				trashed BOOLEAN NOT NULL DEFAULT FALSE,
				deleted BOOLEAN NOT NULL DEFAULT FALSE,
				mailbox_type VARCHAR(32) NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, s.receiptsTable()),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				unsubscriber_type VARCHAR(255) NOT NULL,
				unsubscriber_id VARCHAR(255) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (conversation_id, unsubscriber_type, unsubscriber_id)
			)
		`, s.optOutsTable()),
	}

	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, t); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	rt := s.receiptsTable()
	pt := s.payloadsTable()
	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_receiver ON %s(receiver_type, receiver_id)`, rt, rt),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_payload ON %s(notification_id)`, rt, rt),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_conversation ON %s(conversation_id)`, rt, rt),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at DESC)`, rt, rt),
		// Compound index for mailbox listings
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_mailbox ON %s(receiver_type, receiver_id, mailbox_type, trashed, deleted, created_at DESC)`, rt, rt),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_conversation ON %s(conversation_id)`, pt, pt),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at) WHERE expires_at IS NOT NULL`, pt, pt),
	}

	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			s.logger.Warn("failed to create index", "error", err, "sql", idx)
		}
	}

	return nil
}
