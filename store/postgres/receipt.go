package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/full-stack-biz/mailboxer/store"
)

// receiptColumns is the canonical SELECT column list for scanning receipts.
const receiptColumns = `id, notification_id, receiver_type, receiver_id, conversation_id,
       is_read, trashed, deleted, mailbox_type, created_at, updated_at`

// GetReceipt retrieves a receipt by ID.
func (s *Store) GetReceipt(ctx context.Context, id string) (*store.Receipt, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrInvalidID
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, receiptColumns, s.receiptsTable())

	r, err := scanReceipt(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

// FindReceipts retrieves receipts matching the filters.
func (s *Store) FindReceipts(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.ReceiptList, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.SortBy == "" {
		opts.SortBy = "created_at"
		opts.SortOrder = store.SortDesc
	}

	where, args, err := buildWhereClause(filters)
	if err != nil {
		return nil, err
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.receiptsTable(), where)
	var total int64
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count receipts: %w", err)
	}

	sortOrder := "DESC"
	if opts.SortOrder == store.SortAsc {
		sortOrder = "ASC"
	}
	sortField := mapSortField(opts.SortBy)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY %s %s, id %s
		LIMIT $%d OFFSET $%d
	`, receiptColumns, s.receiptsTable(), where, sortField, sortOrder, sortOrder, len(args)+1, len(args)+2)
	args = append(args, opts.Limit+1, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*store.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}

	hasMore := len(receipts) > opts.Limit
	if hasMore {
		receipts = receipts[:opts.Limit]
	}

	return &store.ReceiptList{
		Receipts: receipts,
		Total:    total,
		HasMore:  hasMore,
	}, nil
}

// CountReceipts returns the count of receipts matching the filters.
func (s *Store) CountReceipts(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args, err := buildWhereClause(filters)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, s.receiptsTable(), where)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return count, nil
}

// UpdateReceipts applies the update to every matching receipt. Matching zero
// receipts is a successful no-op returning 0.
func (s *Store) UpdateReceipts(ctx context.Context, filters []store.Filter, update store.ReceiptUpdate) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}
	if update.IsZero() {
		return 0, store.ErrEmptyUpdate
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	var (
		sets []string
		args []any
	)
	if update.IsRead != nil {
		args = append(args, *update.IsRead)
		sets = append(sets, fmt.Sprintf("is_read = $%d", len(args)))
	}
	if update.Trashed != nil {
		args = append(args, *update.Trashed)
		sets = append(sets, fmt.Sprintf("trashed = $%d", len(args)))
	}
	if update.Deleted != nil {
		args = append(args, *update.Deleted)
		sets = append(sets, fmt.Sprintf("deleted = $%d", len(args)))
	}
	if update.MailboxType != nil {
		args = append(args, string(*update.MailboxType))
		sets = append(sets, fmt.Sprintf("mailbox_type = $%d", len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	where, whereArgs, err := buildWhereClauseFrom(filters, len(args))
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`, s.receiptsTable(), strings.Join(sets, ", "), where)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update receipts: %w", err)
	}
	modified, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return modified, nil
}

// DeleteReceipts permanently removes every matching receipt.
func (s *Store) DeleteReceipts(ctx context.Context, filters []store.Filter) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	where, args, err := buildWhereClause(filters)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE %s`, s.receiptsTable(), where)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete receipts: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

func scanReceipt(row rowScanner) (*store.Receipt, error) {
	var (
		r           store.Receipt
		mailboxType string
	)
	err := row.Scan(
		&r.ID, &r.PayloadID, &r.Receiver.Type, &r.Receiver.ID, &r.ConversationID,
		&r.IsRead, &r.Trashed, &r.Deleted, &mailboxType, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.MailboxType = store.MailboxType(mailboxType)
	return &r, nil
}

// buildWhereClause translates filters to a WHERE clause with $1-based args.
func buildWhereClause(filters []store.Filter) (string, []any, error) {
	return buildWhereClauseFrom(filters, 0)
}

// buildWhereClauseFrom translates filters to a WHERE clause whose first
// placeholder is $offset+1.
func buildWhereClauseFrom(filters []store.Filter, offset int) (string, []any, error) {
	if len(filters) == 0 {
		return "1=1", nil, nil
	}

	var (
		conditions []string
		args       []any
	)
	argIdx := offset

	for _, f := range filters {
		cond, condArgs, err := filterToCondition(f, &argIdx)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, cond)
		args = append(args, condArgs...)
	}

	return strings.Join(conditions, " AND "), args, nil
}

func filterToCondition(f store.Filter, argIdx *int) (string, []any, error) {
	key := f.Key()
	op := f.Operator()
	val := f.Value()

	// The composite receiver key matches on both identity columns.
	if key == "receiver" {
		p, ok := val.(store.Identity)
		if !ok {
			return "", nil, fmt.Errorf("%w: receiver filter requires an Identity value", store.ErrFilterInvalid)
		}
		switch op {
		case "eq", "":
			cond := fmt.Sprintf("(receiver_type = $%d AND receiver_id = $%d)", *argIdx+1, *argIdx+2)
			*argIdx += 2
			return cond, []any{p.Type, p.ID}, nil
		case "ne":
			cond := fmt.Sprintf("NOT (receiver_type = $%d AND receiver_id = $%d)", *argIdx+1, *argIdx+2)
			*argIdx += 2
			return cond, []any{p.Type, p.ID}, nil
		default:
			return "", nil, fmt.Errorf("%w: unsupported receiver operator: %s", store.ErrFilterInvalid, op)
		}
	}

	switch op {
	case "eq", "":
		*argIdx++
		return fmt.Sprintf("%s = $%d", key, *argIdx), []any{val}, nil
	case "ne":
		*argIdx++
		return fmt.Sprintf("%s != $%d", key, *argIdx), []any{val}, nil
	case "gt":
		*argIdx++
		return fmt.Sprintf("%s > $%d", key, *argIdx), []any{val}, nil
	case "gte":
		*argIdx++
		return fmt.Sprintf("%s >= $%d", key, *argIdx), []any{val}, nil
	case "lt":
		*argIdx++
		return fmt.Sprintf("%s < $%d", key, *argIdx), []any{val}, nil
	case "lte":
		*argIdx++
		return fmt.Sprintf("%s <= $%d", key, *argIdx), []any{val}, nil
	case "in":
		*argIdx++
		return fmt.Sprintf("%s = ANY($%d)", key, *argIdx), []any{pq.Array(val)}, nil
	case "nin":
		*argIdx++
		return fmt.Sprintf("NOT (%s = ANY($%d))", key, *argIdx), []any{pq.Array(val)}, nil
	case "exists":
		if val == true {
			return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", key, key), nil, nil
		}
		return fmt.Sprintf("(%s IS NULL OR %s = '')", key, key), nil, nil
	default:
		return "", nil, fmt.Errorf("%w: unsupported operator: %s", store.ErrFilterInvalid, op)
	}
}

func mapSortField(field string) string {
	if key, ok := store.ReceiptOrderingKey(field); ok {
		return key
	}
	return "created_at"
}
