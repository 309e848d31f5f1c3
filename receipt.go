package mailboxer

import (
	"context"
	"fmt"

	"github.com/full-stack-biz/mailboxer/store"
)

// Receipt is a participant's handle on a delivered payload. It embeds the
// stored state as of retrieval and binds mutation methods to the owning
// mailbox, so every transition stays scoped to the receipt's owner.
type Receipt struct {
	store.Receipt
	mailbox *participantMailbox
}

func newReceipt(r *store.Receipt, m *participantMailbox) *Receipt {
	return &Receipt{Receipt: *r, mailbox: m}
}

// IsNotification reports whether the receipt belongs to a standalone
// notification rather than a conversation message.
func (r *Receipt) IsNotification() bool {
	return r.ConversationID == ""
}

// Payload loads the message or notification content behind the receipt.
func (r *Receipt) Payload(ctx context.Context) (*store.Payload, error) {
	if !r.mailbox.isConnected() {
		return nil, ErrNotConnected
	}
	payload, err := r.mailbox.service.store.GetPayload(ctx, r.PayloadID)
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}
	return payload, nil
}

// Conversation loads the conversation the receipt's message belongs to.
// Returns ErrNotAMessage for notification receipts.
func (r *Receipt) Conversation(ctx context.Context) (*Conversation, error) {
	if r.ConversationID == "" {
		return nil, ErrNotAMessage
	}
	return r.mailbox.service.Conversation(ctx, r.ConversationID)
}

// MarkRead marks the receipt as read. The local copy is updated on success.
func (r *Receipt) MarkRead(ctx context.Context) error {
	return r.apply(ctx, "mark_read", FlagsMarkRead)
}

// MarkUnread marks the receipt as unread.
func (r *Receipt) MarkUnread(ctx context.Context) error {
	return r.apply(ctx, "mark_unread", FlagsMarkUnread)
}

// Trash moves the receipt to trash.
func (r *Receipt) Trash(ctx context.Context) error {
	return r.apply(ctx, "trash", FlagsTrash)
}

// Untrash restores the receipt from trash.
func (r *Receipt) Untrash(ctx context.Context) error {
	return r.apply(ctx, "untrash", FlagsUntrash)
}

// Delete soft-deletes the receipt. The payload and every other
// participant's receipt survive.
func (r *Receipt) Delete(ctx context.Context) error {
	return r.apply(ctx, "delete", FlagsDelete)
}

// Undelete restores the soft-deleted receipt.
func (r *Receipt) Undelete(ctx context.Context) error {
	return r.apply(ctx, "undelete", FlagsUndelete)
}

// MoveToInbox moves the receipt to the inbox, restoring it from trash.
func (r *Receipt) MoveToInbox(ctx context.Context) error {
	return r.apply(ctx, "move_to_inbox", FlagsMoveToInbox)
}

// MoveToSentbox moves the receipt to the sentbox, restoring it from trash.
func (r *Receipt) MoveToSentbox(ctx context.Context) error {
	return r.apply(ctx, "move_to_sentbox", FlagsMoveToSentbox)
}

// Update applies arbitrary flag changes to the receipt.
func (r *Receipt) Update(ctx context.Context, flags Flags) error {
	return r.apply(ctx, "update_flags", flags)
}

func (r *Receipt) apply(ctx context.Context, op string, flags Flags) error {
	if err := r.mailbox.updateByID(ctx, r.ID, op, flags); err != nil {
		return err
	}
	// Keep the handle consistent with the durable state.
	if flags.Read != nil {
		r.IsRead = *flags.Read
	}
	if flags.Trashed != nil {
		r.Trashed = *flags.Trashed
	}
	if flags.Deleted != nil {
		r.Deleted = *flags.Deleted
	}
	if flags.Mailbox != nil {
		r.MailboxType = *flags.Mailbox
	}
	return nil
}

// ReceiptPage is one page of a participant's receipt listing, with bulk
// transitions over the page's receipts.
type ReceiptPage struct {
	Receipts []*Receipt
	Total    int64
	HasMore  bool

	mailbox *participantMailbox
}

func newReceiptPage(list *store.ReceiptList, m *participantMailbox) *ReceiptPage {
	receipts := make([]*Receipt, len(list.Receipts))
	for i, r := range list.Receipts {
		receipts[i] = newReceipt(r, m)
	}
	return &ReceiptPage{
		Receipts: receipts,
		Total:    list.Total,
		HasMore:  list.HasMore,
		mailbox:  m,
	}
}

// IDs returns the receipt IDs on this page.
func (p *ReceiptPage) IDs() []string {
	ids := make([]string, len(p.Receipts))
	for i, r := range p.Receipts {
		ids[i] = r.ID
	}
	return ids
}

// MarkAllRead marks every receipt on this page as read.
func (p *ReceiptPage) MarkAllRead(ctx context.Context) error {
	return p.bulk(ctx, "mark_read", FlagsMarkRead)
}

// TrashAll moves every receipt on this page to trash.
func (p *ReceiptPage) TrashAll(ctx context.Context) error {
	return p.bulk(ctx, "trash", FlagsTrash)
}

// DeleteAll soft-deletes every receipt on this page.
func (p *ReceiptPage) DeleteAll(ctx context.Context) error {
	return p.bulk(ctx, "delete", FlagsDelete)
}

func (p *ReceiptPage) bulk(ctx context.Context, op string, flags Flags) error {
	if len(p.Receipts) == 0 {
		return nil
	}
	ids := make([]any, len(p.Receipts))
	for i, r := range p.Receipts {
		ids[i] = r.ID
	}
	idFilter, err := store.ReceiptFilter("ID").In(ids...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFilterInvalid, err)
	}
	if err := p.mailbox.checkAccess(); err != nil {
		return err
	}
	_, err = p.mailbox.service.store.UpdateReceipts(ctx, []store.Filter{
		p.mailbox.ownerFilter(),
		idFilter,
	}, flags.update())
	if err != nil {
		return fmt.Errorf("update receipts (%s): %w", op, err)
	}
	return nil
}
