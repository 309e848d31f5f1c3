package mailboxer

import (
	"context"
	"fmt"
	"time"

	"github.com/full-stack-biz/mailboxer/store"
)

// Conversation is a handle over one thread. It aggregates receipt state
// across participants: participant discovery, subscriber checks, per-viewer
// message listings, and viewer-scoped thread transitions.
type Conversation struct {
	store.Conversation
	service *service
}

func newConversation(conv *store.Conversation, s *service) *Conversation {
	return &Conversation{Conversation: *conv, service: s}
}

// Participants returns the distinct identities holding at least one
// non-deleted receipt in the conversation.
func (c *Conversation) Participants(ctx context.Context) ([]Identity, error) {
	participants, err := c.service.store.ConversationParticipants(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation participants: %w", err)
	}
	return participants, nil
}

// Members returns the distinct identities holding at least one receipt in
// the conversation, deleted ones included. This is the reply fan-out set
// before opt-out filtering.
func (c *Conversation) Members(ctx context.Context) ([]Identity, error) {
	members, err := c.service.store.ConversationMembers(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation members: %w", err)
	}
	return members, nil
}

// IsParticipant reports whether p holds a non-deleted receipt in the
// conversation.
func (c *Conversation) IsParticipant(ctx context.Context, p Identity) (bool, error) {
	count, err := c.service.store.CountReceipts(ctx, []store.Filter{
		store.ReceiverIs(p),
		store.InConversation(c.ID),
		store.NotDeleted(),
	})
	if err != nil {
		return false, fmt.Errorf("count receipts: %w", err)
	}
	return count > 0, nil
}

// HasSubscriber reports whether future replies materialize a receipt for
// p: true unless an active opt-out exists. Deleting one's receipts does
// not unsubscribe; only an opt-out does.
func (c *Conversation) HasSubscriber(ctx context.Context, p Identity) (bool, error) {
	optedOut, err := c.service.store.HasOptOut(ctx, c.ID, p)
	if err != nil {
		return false, fmt.Errorf("check opt-out: %w", err)
	}
	return !optedOut, nil
}

// OptOut unsubscribes p from the conversation. Future replies no longer
// materialize receipts for p; existing receipts are untouched. Opting out
// twice is a no-op.
func (c *Conversation) OptOut(ctx context.Context, p Identity) error {
	if !isValidIdentity(p) {
		return fmt.Errorf("%w: %q", ErrInvalidParticipant, p.String())
	}
	if err := c.service.store.CreateOptOut(ctx, c.ID, p); err != nil {
		return fmt.Errorf("create opt-out: %w", err)
	}
	return nil
}

// OptIn re-subscribes p to the conversation. Opting in a participant who
// never opted out is a no-op.
func (c *Conversation) OptIn(ctx context.Context, p Identity) error {
	if !isValidIdentity(p) {
		return fmt.Errorf("%w: %q", ErrInvalidParticipant, p.String())
	}
	if err := c.service.store.DeleteOptOut(ctx, c.ID, p); err != nil {
		return fmt.Errorf("delete opt-out: %w", err)
	}
	return nil
}

// Messages returns the payloads in the conversation for which the viewer
// holds a non-deleted receipt, newest first. Two viewers of the same
// conversation can see different message sets.
func (c *Conversation) Messages(ctx context.Context, viewer Identity, opts ListOptions) (*store.PayloadList, error) {
	if opts.Limit == 0 {
		opts.Limit = c.service.opts.defaultQueryLimit
	}
	if opts.Limit > c.service.opts.maxQueryLimit {
		opts.Limit = c.service.opts.maxQueryLimit
	}

	list, err := c.service.store.ConversationMessages(ctx, c.ID, viewer, opts)
	if err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}
	return list, nil
}

// OriginalMessage returns the viewer's oldest visible message in the
// conversation.
func (c *Conversation) OriginalMessage(ctx context.Context, viewer Identity) (*store.Payload, error) {
	return c.edgeMessage(ctx, viewer, store.SortAsc)
}

// LastMessage returns the viewer's newest visible message in the
// conversation.
func (c *Conversation) LastMessage(ctx context.Context, viewer Identity) (*store.Payload, error) {
	return c.edgeMessage(ctx, viewer, store.SortDesc)
}

func (c *Conversation) edgeMessage(ctx context.Context, viewer Identity, order SortOrder) (*store.Payload, error) {
	list, err := c.service.store.ConversationMessages(ctx, c.ID, viewer, store.ListOptions{
		Limit:     1,
		SortBy:    "created_at",
		SortOrder: order,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}
	if len(list.Payloads) == 0 {
		return nil, ErrNotFound
	}
	return list.Payloads[0], nil
}

// AddParticipant joins p to the conversation by materializing an unread
// inbox receipt for every message p does not already hold a receipt for.
// Returns the number of receipts created.
func (c *Conversation) AddParticipant(ctx context.Context, p Identity) (int64, error) {
	if !isValidIdentity(p) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidParticipant, p.String())
	}
	created, err := c.service.store.AddConversationParticipant(ctx, c.ID, p)
	if err != nil {
		return 0, fmt.Errorf("add participant: %w", err)
	}
	return created, nil
}

// ReceiptsFor returns all of p's receipts in the conversation, including
// trashed and deleted ones.
func (c *Conversation) ReceiptsFor(ctx context.Context, p Identity) ([]*store.Receipt, error) {
	list, err := c.service.store.FindReceipts(ctx, []store.Filter{
		store.ReceiverIs(p),
		store.InConversation(c.ID),
	}, store.ListOptions{SortBy: "created_at", SortOrder: store.SortAsc})
	if err != nil {
		return nil, fmt.Errorf("find receipts: %w", err)
	}
	return list.Receipts, nil
}

// IsUnread reports whether p holds at least one unread, non-deleted receipt
// in the conversation.
func (c *Conversation) IsUnread(ctx context.Context, p Identity) (bool, error) {
	count, err := c.service.store.CountReceipts(ctx, []store.Filter{
		store.ReceiverIs(p),
		store.InConversation(c.ID),
		store.NotDeleted(),
		store.IsReadFilter(false),
	})
	if err != nil {
		return false, fmt.Errorf("count receipts: %w", err)
	}
	return count > 0, nil
}

// IsRead reports whether p has read every non-deleted receipt in the
// conversation.
func (c *Conversation) IsRead(ctx context.Context, p Identity) (bool, error) {
	unread, err := c.IsUnread(ctx, p)
	if err != nil {
		return false, err
	}
	return !unread, nil
}

// IsCompletelyTrashed reports whether p holds at least one receipt in the
// conversation and every non-deleted one is trashed. A participant with no
// receipts at all is not "completely trashed".
func (c *Conversation) IsCompletelyTrashed(ctx context.Context, p Identity) (bool, error) {
	return c.allReceiptsMatch(ctx, p, store.NotTrashed())
}

// IsDeletedFor reports whether p holds at least one receipt in the
// conversation and every one is deleted.
func (c *Conversation) IsDeletedFor(ctx context.Context, p Identity) (bool, error) {
	return c.allReceiptsMatch(ctx, p, store.NotDeleted())
}

// allReceiptsMatch reports whether p has receipts and none survive the
// exclusion filter.
func (c *Conversation) allReceiptsMatch(ctx context.Context, p Identity, exclude store.Filter) (bool, error) {
	total, err := c.service.store.CountReceipts(ctx, []store.Filter{
		store.ReceiverIs(p),
		store.InConversation(c.ID),
	})
	if err != nil {
		return false, fmt.Errorf("count receipts: %w", err)
	}
	if total == 0 {
		return false, nil
	}
	surviving, err := c.service.store.CountReceipts(ctx, []store.Filter{
		store.ReceiverIs(p),
		store.InConversation(c.ID),
		exclude,
	})
	if err != nil {
		return false, fmt.Errorf("count receipts: %w", err)
	}
	return surviving == 0, nil
}

// MarkReadFor marks all of p's receipts in the conversation as read.
// Receipts held by other participants are never touched.
func (c *Conversation) MarkReadFor(ctx context.Context, p Identity) error {
	return c.updateFor(ctx, p, "conversation_mark_read", FlagsMarkRead)
}

// MarkUnreadFor marks all of p's receipts in the conversation as unread.
func (c *Conversation) MarkUnreadFor(ctx context.Context, p Identity) error {
	return c.updateFor(ctx, p, "conversation_mark_unread", FlagsMarkUnread)
}

// TrashFor moves all of p's receipts in the conversation to trash.
func (c *Conversation) TrashFor(ctx context.Context, p Identity) error {
	return c.updateFor(ctx, p, "conversation_trash", FlagsTrash)
}

// UntrashFor restores all of p's receipts in the conversation from trash.
func (c *Conversation) UntrashFor(ctx context.Context, p Identity) error {
	return c.updateFor(ctx, p, "conversation_untrash", FlagsUntrash)
}

// UndeleteFor restores all of p's soft-deleted receipts in the
// conversation. Once the last holder deletes and the reap runs, the
// conversation is gone and there is nothing left to restore.
func (c *Conversation) UndeleteFor(ctx context.Context, p Identity) error {
	return c.updateFor(ctx, p, "conversation_undelete", FlagsUndelete)
}

// updateFor applies a bulk owner-scoped update to p's receipts in the
// conversation. Matching zero receipts is a successful no-op, which is how
// a foreign participant's "transition" silently does nothing.
func (c *Conversation) updateFor(ctx context.Context, p Identity, op string, flags Flags) error {
	start := time.Now()
	_, err := c.service.store.UpdateReceipts(ctx, []store.Filter{
		store.ReceiverIs(p),
		store.InConversation(c.ID),
	}, flags.update())
	c.service.otel.recordUpdate(ctx, time.Since(start), op, err)
	if err != nil {
		return fmt.Errorf("update receipts: %w", err)
	}
	return nil
}

// DeleteFor marks all of p's receipts in the conversation deleted and, if
// afterwards every receipt in the conversation is deleted, destroys the
// conversation in the same transaction. Returns whether the conversation
// was destroyed.
func (c *Conversation) DeleteFor(ctx context.Context, p Identity) (bool, error) {
	reaped, err := c.service.store.MarkConversationDeleted(ctx, c.ID, p)
	if err != nil {
		return false, fmt.Errorf("mark conversation deleted: %w", err)
	}
	if !reaped {
		return false, nil
	}

	c.service.otel.recordReap(ctx)
	if c.service.opts.searchIndex != nil {
		if ids, err := c.messagePayloadIDs(ctx, p); err == nil && len(ids) > 0 {
			if err := c.service.opts.searchIndex.Remove(ctx, ids); err != nil {
				c.service.logger.Warn("search index cleanup failed",
					"error", err, "conversation_id", c.ID)
			}
		}
	}
	if err := c.service.events.ConversationDestroyed.Publish(ctx, ConversationDestroyedEvent{
		ConversationID: c.ID,
		Participant:    p,
		DestroyedAt:    time.Now().UTC(),
	}); err != nil {
		if c.service.opts.eventErrorsFatal {
			return true, &EventPublishError{
				Event:     "ConversationDestroyed",
				PayloadID: c.ID,
				Err:       err,
			}
		}
		c.service.opts.safeEventPublishFailure("ConversationDestroyed", err)
	}
	return true, nil
}

// messagePayloadIDs collects payload IDs from p's receipts. Best effort:
// after a reap the receipts are gone, so this may return nothing.
func (c *Conversation) messagePayloadIDs(ctx context.Context, p Identity) ([]string, error) {
	receipts, err := c.ReceiptsFor(ctx, p)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(receipts))
	for _, r := range receipts {
		ids = append(ids, r.PayloadID)
	}
	return ids, nil
}
