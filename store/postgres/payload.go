package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/full-stack-biz/mailboxer/store"
)

// payloadColumns is the canonical SELECT column list for scanning payloads.
// It must match the field order expected by scanPayload.
const payloadColumns = `id, kind, subject, body, sender_type, sender_id, conversation_id,
       notified_object_type, notified_object_id, notification_code, global, expires_at,
       attachments, created_at, updated_at`

// GetPayload retrieves a payload by ID.
func (s *Store) GetPayload(ctx context.Context, id string) (*store.Payload, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, payloadColumns, s.payloadsTable())

	p, err := scanPayload(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}
	return p, nil
}

// GetPayloads retrieves a batch of payloads. Missing IDs are skipped.
func (s *Store) GetPayloads(ctx context.Context, ids []string) ([]*store.Payload, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1)`, payloadColumns, s.payloadsTable())

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query payloads: %w", err)
	}
	defer rows.Close()

	var payloads []*store.Payload
	for rows.Next() {
		p, err := scanPayload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		payloads = append(payloads, p)
	}
	return payloads, rows.Err()
}

// CreateDelivery persists one payload and all of its receipts in a single
// transaction, creating or touching the conversation as requested.
func (s *Store) CreateDelivery(ctx context.Context, data store.DeliveryData) (*store.Delivery, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if len(data.Receipts) == 0 {
		return nil, store.ErrEmptyReceipts
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC()
	result := &store.Delivery{}

	conversationID := data.Payload.ConversationID
	if data.Conversation != nil {
		conv := &store.Conversation{
			ID:        uuid.New().String(),
			Subject:   data.Conversation.Subject,
			CreatedAt: now,
			UpdatedAt: now,
		}
		insertConv := fmt.Sprintf(`
			INSERT INTO %s (id, subject, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
		`, s.conversationsTable())
		if _, err := tx.ExecContext(ctx, insertConv, conv.ID, conv.Subject, conv.CreatedAt, conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
		conversationID = conv.ID
		result.Conversation = conv
	} else if data.TouchConversation && conversationID != "" {
		touch := fmt.Sprintf(`UPDATE %s SET updated_at = $1 WHERE id = $2`, s.conversationsTable())
		res, err := tx.ExecContext(ctx, touch, now, conversationID)
		if err != nil {
			return nil, fmt.Errorf("touch conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, store.ErrNotFound
		}
	}

	payload := &store.Payload{
		ID:                 uuid.New().String(),
		Kind:               data.Payload.Kind,
		Subject:            data.Payload.Subject,
		Body:               data.Payload.Body,
		Sender:             data.Payload.Sender,
		ConversationID:     conversationID,
		NotifiedObjectType: data.Payload.NotifiedObjectType,
		NotifiedObjectID:   data.Payload.NotifiedObjectID,
		NotificationCode:   data.Payload.NotificationCode,
		Global:             data.Payload.Global,
		ExpiresAt:          data.Payload.ExpiresAt,
		Attachments:        data.Payload.Attachments,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	attachmentsJSON, err := marshalAttachments(payload.Attachments)
	if err != nil {
		return nil, fmt.Errorf("marshal attachments: %w", err)
	}

	var senderType, senderID string
	if payload.Sender != nil {
		senderType = payload.Sender.Type
		senderID = payload.Sender.ID
	}

	insertPayload := fmt.Sprintf(`
		INSERT INTO %s (id, kind, subject, body, sender_type, sender_id, conversation_id,
		                notified_object_type, notified_object_id, notification_code, global,
		                expires_at, attachments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, s.payloadsTable())

	_, err = tx.ExecContext(ctx, insertPayload,
		payload.ID, string(payload.Kind), payload.Subject, payload.Body,
		senderType, senderID, conversationID,
		payload.NotifiedObjectType, payload.NotifiedObjectID, payload.NotificationCode,
		payload.Global, payload.ExpiresAt, attachmentsJSON, payload.CreatedAt, payload.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert payload: %w", err)
	}
	result.Payload = payload

	// Multi-row receipt insert, preserving input order.
	var (
		values []string
		args   []any
	)
	result.Receipts = make([]*store.Receipt, 0, len(data.Receipts))
	for i, rd := range data.Receipts {
		r := &store.Receipt{
			ID:             uuid.New().String(),
			PayloadID:      payload.ID,
			Receiver:       rd.Receiver,
			ConversationID: conversationID,
			IsRead:         rd.IsRead,
			MailboxType:    rd.MailboxType,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		base := i * 11
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11))
		args = append(args,
			r.ID, r.PayloadID, r.Receiver.Type, r.Receiver.ID, r.ConversationID,
			r.IsRead, r.Trashed, r.Deleted, string(r.MailboxType), r.CreatedAt, r.UpdatedAt,
		)
		result.Receipts = append(result.Receipts, r)
	}

	insertReceipts := fmt.Sprintf(`
		INSERT INTO %s (id, notification_id, receiver_type, receiver_id, conversation_id,
		                is_read, trashed, deleted, mailbox_type, created_at, updated_at)
		VALUES %s
	`, s.receiptsTable(), strings.Join(values, ", "))

	if _, err := tx.ExecContext(ctx, insertReceipts, args...); err != nil {
		return nil, fmt.Errorf("insert receipts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit delivery: %v", store.ErrTransactionFailed, err)
	}
	return result, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayload(row rowScanner) (*store.Payload, error) {
	var (
		p               store.Payload
		kind            string
		senderType      string
		senderID        string
		expiresAt       sql.NullTime
		attachmentsJSON []byte
	)
	err := row.Scan(
		&p.ID, &kind, &p.Subject, &p.Body, &senderType, &senderID, &p.ConversationID,
		&p.NotifiedObjectType, &p.NotifiedObjectID, &p.NotificationCode, &p.Global, &expiresAt,
		&attachmentsJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Kind = store.Kind(kind)
	if senderType != "" || senderID != "" {
		p.Sender = &store.Identity{Type: senderType, ID: senderID}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ExpiresAt = &t
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &p.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return &p, nil
}

func marshalAttachments(attachments []store.Attachment) ([]byte, error) {
	if attachments == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(attachments)
}
