package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/full-stack-biz/mailboxer/store"
)

// DeleteExpiredPayloads deletes payloads expired before cutoff, with their
// receipts, in a single transaction.
func (s *Store) DeleteExpiredPayloads(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.checkConnected(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", store.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	deleteReceipts := fmt.Sprintf(`
		DELETE FROM %s WHERE notification_id IN (
			SELECT id FROM %s WHERE expires_at IS NOT NULL AND expires_at < $1
		)
	`, s.receiptsTable(), s.payloadsTable())
	if _, err := tx.ExecContext(ctx, deleteReceipts, cutoff); err != nil {
		return 0, fmt.Errorf("delete expired receipts: %w", err)
	}

	deletePayloads := fmt.Sprintf(`
		DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at < $1
	`, s.payloadsTable())
	res, err := tx.ExecContext(ctx, deletePayloads, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired payloads: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit cleanup: %v", store.ErrTransactionFailed, err)
	}
	return deleted, nil
}
