package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/full-stack-biz/mailboxer/store"
)

// CreateOptOut records an opt-out. The unique constraint makes creating an
// existing one a successful no-op.
func (s *Store) CreateOptOut(ctx context.Context, conversationID string, unsubscriber store.Identity) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, unsubscriber_type, unsubscriber_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, unsubscriber_type, unsubscriber_id) DO NOTHING
	`, s.optOutsTable())

	if _, err := s.db.ExecContext(ctx, query, uuid.New().String(), conversationID, unsubscriber.Type, unsubscriber.ID); err != nil {
		return fmt.Errorf("create opt-out: %w", err)
	}
	return nil
}

// DeleteOptOut removes an opt-out. Removing a missing one is a no-op.
func (s *Store) DeleteOptOut(ctx context.Context, conversationID string, unsubscriber store.Identity) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE conversation_id = $1 AND unsubscriber_type = $2 AND unsubscriber_id = $3
	`, s.optOutsTable())

	if _, err := s.db.ExecContext(ctx, query, conversationID, unsubscriber.Type, unsubscriber.ID); err != nil {
		return fmt.Errorf("delete opt-out: %w", err)
	}
	return nil
}

// HasOptOut reports whether the identity has opted out of the conversation.
func (s *Store) HasOptOut(ctx context.Context, conversationID string, unsubscriber store.Identity) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return false, store.ErrInvalidID
	}
	if unsubscriber.IsZero() {
		return false, store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE conversation_id = $1 AND unsubscriber_type = $2 AND unsubscriber_id = $3
		)
	`, s.optOutsTable())

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, conversationID, unsubscriber.Type, unsubscriber.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check opt-out: %w", err)
	}
	return exists, nil
}

// ListOptOuts returns the identities opted out of the conversation.
func (s *Store) ListOptOuts(ctx context.Context, conversationID string) ([]store.Identity, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT unsubscriber_type, unsubscriber_id
		FROM %s
		WHERE conversation_id = $1
		ORDER BY unsubscriber_type, unsubscriber_id
	`, s.optOutsTable())

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query opt-outs: %w", err)
	}
	defer rows.Close()

	optOuts := make([]store.Identity, 0)
	for rows.Next() {
		var p store.Identity
		if err := rows.Scan(&p.Type, &p.ID); err != nil {
			return nil, fmt.Errorf("scan opt-out: %w", err)
		}
		optOuts = append(optOuts, p)
	}
	return optOuts, rows.Err()
}
