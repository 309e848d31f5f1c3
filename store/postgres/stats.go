package postgres

import (
	"context"
	"fmt"

	"github.com/full-stack-biz/mailboxer/store"
)

// MailboxStats returns aggregate receipt counts for a participant using a
// single conditional-aggregation query instead of one COUNT per box.
func (s *Store) MailboxStats(ctx context.Context, p store.Identity) (*store.MailboxStats, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if p.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE mailbox_type = 'inbox' AND trashed = FALSE AND deleted = FALSE) AS inbox,
			COUNT(*) FILTER (WHERE mailbox_type = 'inbox' AND is_read = FALSE AND trashed = FALSE AND deleted = FALSE) AS inbox_unread,
			COUNT(*) FILTER (WHERE mailbox_type = 'sentbox' AND trashed = FALSE AND deleted = FALSE) AS sentbox,
			COUNT(*) FILTER (WHERE trashed = TRUE AND deleted = FALSE) AS trash,
			COUNT(*) FILTER (WHERE conversation_id = '' AND trashed = FALSE AND deleted = FALSE) AS notifications
		FROM %s
		WHERE receiver_type = $1 AND receiver_id = $2
	`, s.receiptsTable())

	stats := &store.MailboxStats{}
	err := s.db.QueryRowContext(ctx, query, p.Type, p.ID).Scan(
		&stats.Inbox, &stats.InboxUnread, &stats.Sentbox, &stats.Trash, &stats.Notifications,
	)
	if err != nil {
		return nil, fmt.Errorf("mailbox stats: %w", err)
	}
	return stats, nil
}
