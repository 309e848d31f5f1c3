package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/full-stack-biz/mailboxer/store"
)

// GetConversation retrieves a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT id, subject, created_at, updated_at FROM %s WHERE id = $1`, s.conversationsTable())

	var c store.Conversation
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Subject, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// TouchConversation bumps the conversation's UpdatedAt.
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	if err := s.checkConnected(); err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET updated_at = $1 WHERE id = $2`, s.conversationsTable())
	res, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// scopeCondition returns the SQL predicate (on receipt alias r) for a
// conversation scope. Mirrors the in-memory scope matching exactly.
func scopeCondition(scope store.ConversationScope) (string, error) {
	switch scope {
	case store.ScopeParticipant, "":
		return "TRUE", nil
	case store.ScopeInbox:
		return "r.mailbox_type = 'inbox' AND r.trashed = FALSE AND r.deleted = FALSE", nil
	case store.ScopeSentbox:
		return "r.mailbox_type = 'sentbox' AND r.trashed = FALSE AND r.deleted = FALSE", nil
	case store.ScopeTrash:
		return "r.trashed = TRUE AND r.deleted = FALSE", nil
	case store.ScopeNotTrash:
		return "r.trashed = FALSE AND r.deleted = FALSE", nil
	case store.ScopeDeleted:
		return "r.deleted = TRUE", nil
	case store.ScopeNotDeleted:
		return "r.deleted = FALSE", nil
	case store.ScopeUnread:
		return "r.is_read = FALSE AND r.deleted = FALSE", nil
	default:
		return "", fmt.Errorf("%w: unknown conversation scope: %s", store.ErrFilterInvalid, scope)
	}
}

// FindConversations runs a participant-scoped conversation listing.
func (s *Store) FindConversations(ctx context.Context, q store.ConversationQuery) (*store.ConversationList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if q.Participant.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	scopeCond, err := scopeCondition(q.Scope)
	if err != nil {
		return nil, err
	}

	if q.Options.Limit <= 0 {
		q.Options.Limit = 20
	}

	args := []any{q.Participant.Type, q.Participant.ID}
	readCond := ""
	if q.Read != nil {
		args = append(args, *q.Read)
		readCond = fmt.Sprintf(" AND r.is_read = $%d", len(args))
	}

	rt := s.receiptsTable()
	where := fmt.Sprintf(`EXISTS (
		SELECT 1 FROM %s r
		WHERE r.conversation_id = c.id::text
		  AND r.receiver_type = $1 AND r.receiver_id = $2
		  AND (%s)%s
	)`, rt, scopeCond, readCond)

	if q.Between != nil {
		args = append(args, q.Between.Type, q.Between.ID)
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM %s r
			WHERE r.conversation_id = c.id::text
			  AND r.receiver_type = $%d AND r.receiver_id = $%d
		)`, rt, len(args)-1, len(args))
		if q.OnlyBetween {
			// No third holder may appear on any receipt of the thread.
			where += fmt.Sprintf(` AND NOT EXISTS (
				SELECT 1 FROM %s r
				WHERE r.conversation_id = c.id::text
				  AND NOT (r.receiver_type = $1 AND r.receiver_id = $2)
				  AND NOT (r.receiver_type = $%d AND r.receiver_id = $%d)
			)`, rt, len(args)-1, len(args))
		}
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s c WHERE %s`, s.conversationsTable(), where)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT c.id, c.subject, c.created_at, c.updated_at
		FROM %s c
		WHERE %s
		ORDER BY c.updated_at DESC, c.id DESC
		LIMIT $%d OFFSET $%d
	`, s.conversationsTable(), where, len(args)+1, len(args)+2)
	args = append(args, q.Options.Limit+1, q.Options.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*store.Conversation
	for rows.Next() {
		var c store.Conversation
		if err := rows.Scan(&c.ID, &c.Subject, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	hasMore := len(conversations) > q.Options.Limit
	if hasMore {
		conversations = conversations[:q.Options.Limit]
	}

	return &store.ConversationList{
		Conversations: conversations,
		Total:         total,
		HasMore:       hasMore,
	}, nil
}

// ConversationParticipants returns identities holding non-deleted receipts.
func (s *Store) ConversationParticipants(ctx context.Context, conversationID string) ([]store.Identity, error) {
	return s.conversationIdentities(ctx, conversationID, false)
}

// ConversationMembers returns identities holding any receipt, deleted ones
// included.
func (s *Store) ConversationMembers(ctx context.Context, conversationID string) ([]store.Identity, error) {
	return s.conversationIdentities(ctx, conversationID, true)
}

func (s *Store) conversationIdentities(ctx context.Context, conversationID string, includeDeleted bool) ([]store.Identity, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.conversationExists(ctx, conversationID); err != nil {
		return nil, err
	}

	deletedClause := "AND deleted = FALSE"
	if includeDeleted {
		deletedClause = ""
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT receiver_type, receiver_id
		FROM %s
		WHERE conversation_id = $1 %s
		ORDER BY receiver_type, receiver_id
	`, s.receiptsTable(), deletedClause)

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := make([]store.Identity, 0)
	for rows.Next() {
		var p store.Identity
		if err := rows.Scan(&p.Type, &p.ID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// ConversationMessages returns payloads the viewer holds non-deleted
// receipts for, newest first unless opts asks for ascending order.
func (s *Store) ConversationMessages(ctx context.Context, conversationID string, viewer store.Identity, opts store.ListOptions) (*store.PayloadList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, store.ErrInvalidID
	}
	if viewer.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	visible := fmt.Sprintf(`n.conversation_id = $1 AND EXISTS (
		SELECT 1 FROM %s r
		WHERE r.notification_id = n.id
		  AND r.receiver_type = $2 AND r.receiver_id = $3
		  AND r.deleted = FALSE
	)`, s.receiptsTable())
	args := []any{conversationID, viewer.Type, viewer.ID}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s n WHERE %s`, s.payloadsTable(), visible)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	sortOrder := "DESC"
	if opts.SortOrder == store.SortAsc {
		sortOrder = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT n.id, n.kind, n.subject, n.body, n.sender_type, n.sender_id, n.conversation_id,
		       n.notified_object_type, n.notified_object_id, n.notification_code, n.global, n.expires_at,
		       n.attachments, n.created_at, n.updated_at
		FROM %s n
		WHERE %s
		ORDER BY n.created_at %s, n.id %s
		LIMIT $4 OFFSET $5
	`, s.payloadsTable(), visible, sortOrder, sortOrder)
	args = append(args, opts.Limit+1, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var payloads []*store.Payload
	for rows.Next() {
		p, err := scanPayload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		payloads = append(payloads, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	hasMore := len(payloads) > opts.Limit
	if hasMore {
		payloads = payloads[:opts.Limit]
	}

	return &store.PayloadList{
		Payloads: payloads,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

// AddConversationParticipant creates unread inbox receipts for every payload
// the participant does not already hold one for, atomically.
func (s *Store) AddConversationParticipant(ctx context.Context, conversationID string, p store.Identity) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return 0, store.ErrInvalidID
	}
	if p.IsZero() {
		return 0, store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if err := s.conversationExists(ctx, conversationID); err != nil {
		return 0, err
	}

	// One INSERT ... SELECT keeps the gap check and the insert atomic.
	query := fmt.Sprintf(`
		INSERT INTO %s (id, notification_id, receiver_type, receiver_id, conversation_id,
		                is_read, trashed, deleted, mailbox_type, created_at, updated_at)
		SELECT gen_random_uuid(), n.id, $2, $3, n.conversation_id,
		       FALSE, FALSE, FALSE, 'inbox', $4, $4
		FROM %s n
		WHERE n.conversation_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM %s r
			WHERE r.notification_id = n.id
			  AND r.receiver_type = $2 AND r.receiver_id = $3
		  )
	`, s.receiptsTable(), s.payloadsTable(), s.receiptsTable())

	res, err := s.db.ExecContext(ctx, query, conversationID, p.Type, p.ID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("add participant: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return created, nil
}

// MarkConversationDeleted marks the participant's receipts deleted and, in
// the same transaction, destroys the conversation if every receipt in it is
// now deleted.
func (s *Store) MarkConversationDeleted(ctx context.Context, conversationID string, p store.Identity) (bool, error) {
	if err := s.checkConnected(); err != nil {
		return false, err
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return false, store.ErrInvalidID
	}
	if p.IsZero() {
		return false, store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Lock the conversation row so racing deletes serialize on the reap
	// decision. A conversation already reaped by a racer is a no-op.
	lock := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1 FOR UPDATE`, s.conversationsTable())
	var one int
	if err := tx.QueryRowContext(ctx, lock, conversationID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, tx.Commit()
		}
		return false, fmt.Errorf("lock conversation: %w", err)
	}

	mark := fmt.Sprintf(`
		UPDATE %s SET deleted = TRUE, updated_at = $1
		WHERE conversation_id = $2 AND receiver_type = $3 AND receiver_id = $4 AND deleted = FALSE
	`, s.receiptsTable())
	if _, err := tx.ExecContext(ctx, mark, time.Now().UTC(), conversationID, p.Type, p.ID); err != nil {
		return false, fmt.Errorf("mark deleted: %w", err)
	}

	counts := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(*) FILTER (WHERE deleted = FALSE)
		FROM %s WHERE conversation_id = $1
	`, s.receiptsTable())
	var total, live int64
	if err := tx.QueryRowContext(ctx, counts, conversationID).Scan(&total, &live); err != nil {
		return false, fmt.Errorf("count receipts: %w", err)
	}

	reaped := total > 0 && live == 0
	if reaped {
		cleanup := []string{
			fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, s.receiptsTable()),
			fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, s.payloadsTable()),
			fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, s.optOutsTable()),
			fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.conversationsTable()),
		}
		for _, q := range cleanup {
			if _, err := tx.ExecContext(ctx, q, conversationID); err != nil {
				return false, fmt.Errorf("reap conversation: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit delete: %v", store.ErrTransactionFailed, err)
	}
	return reaped, nil
}

func (s *Store) conversationExists(ctx context.Context, id string) error {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = $1`, s.conversationsTable())
	var one int
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("check conversation: %w", err)
	}
	return nil
}
