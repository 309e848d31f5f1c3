package memory

import (
	"context"

	"github.com/full-stack-biz/mailboxer/store"
)

// MailboxStats returns aggregate receipt counts for a participant in one pass.
func (s *Store) MailboxStats(_ context.Context, p store.Identity) (*store.MailboxStats, error) {
	if err := s.checkConnected(); err != nil {
		return nil, err
	}
	if p.IsZero() {
		return nil, store.ErrInvalidIdentity
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.MailboxStats{}
	for _, r := range s.receipts {
		if r.Receiver != p || r.Deleted {
			continue
		}
		if r.Trashed {
			stats.Trash++
			continue
		}
		switch r.MailboxType {
		case store.MailboxInbox:
			stats.Inbox++
			if !r.IsRead {
				stats.InboxUnread++
			}
		case store.MailboxSentbox:
			stats.Sentbox++
		}
		if r.ConversationID == "" {
			stats.Notifications++
		}
	}
	return stats, nil
}
