package store

import (
	"context"
)

// MailboxStats holds aggregate receipt counts for one participant.
// All counts exclude deleted receipts.
type MailboxStats struct {
	// Inbox is the number of non-trashed inbox receipts.
	Inbox int64
	// InboxUnread is the number of unread, non-trashed inbox receipts.
	InboxUnread int64
	// Sentbox is the number of non-trashed sentbox receipts.
	Sentbox int64
	// Trash is the number of trashed receipts across all boxes.
	Trash int64
	// Notifications is the number of standalone notification receipts.
	Notifications int64
}

// Clone returns a copy of the stats.
func (s *MailboxStats) Clone() *MailboxStats {
	c := *s
	return &c
}

// StatsStore is an optional interface that Store implementations can
// implement to compute MailboxStats in a single query (e.g. PostgreSQL
// conditional aggregation, MongoDB $facet) instead of one Count per box.
type StatsStore interface {
	// MailboxStats returns aggregate receipt counts for a participant.
	MailboxStats(ctx context.Context, p Identity) (*MailboxStats, error)
}
