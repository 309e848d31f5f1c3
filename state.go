package mailboxer

import "github.com/full-stack-biz/mailboxer/store"

// Pre-allocated boolean pointers for efficient Flags creation.
// These avoid allocations when using MarkRead(), MarkUnread(), etc.
var (
	ptrTrue  = ptr(true)
	ptrFalse = ptr(false)
)

func ptr(b bool) *bool { return &b }

func ptrMailbox(m store.MailboxType) *store.MailboxType { return &m }

// Flags represents receipt state changes that can be applied atomically.
// Use nil values to indicate no change. All fields are owner-scoped:
// applying flags to a receipt held by another participant is a no-op.
type Flags struct {
	Read    *bool // nil = no change, true = mark read, false = mark unread
	Trashed *bool // nil = no change, true = move to trash, false = restore
	Deleted *bool // nil = no change, true = soft-delete, false = undelete

	// Mailbox moves the receipt to another mailbox (inbox or sentbox).
	Mailbox *store.MailboxType
}

// Pre-allocated flag values for common operations.
// These are more efficient than calling MarkRead(), etc. in hot paths.
var (
	// FlagsMarkRead marks a receipt as read.
	FlagsMarkRead = Flags{Read: ptrTrue}
	// FlagsMarkUnread marks a receipt as unread.
	FlagsMarkUnread = Flags{Read: ptrFalse}
	// FlagsTrash moves a receipt to trash.
	FlagsTrash = Flags{Trashed: ptrTrue}
	// FlagsUntrash restores a receipt from trash.
	FlagsUntrash = Flags{Trashed: ptrFalse}
	// FlagsDelete soft-deletes a receipt.
	FlagsDelete = Flags{Deleted: ptrTrue}
	// FlagsUndelete restores a soft-deleted receipt.
	FlagsUndelete = Flags{Deleted: ptrFalse}
	// FlagsMoveToInbox moves a receipt to the inbox, restoring it from
	// trash.
	FlagsMoveToInbox = Flags{Mailbox: ptrMailbox(store.MailboxInbox), Trashed: ptrFalse}
	// FlagsMoveToSentbox moves a receipt to the sentbox, restoring it from
	// trash.
	FlagsMoveToSentbox = Flags{Mailbox: ptrMailbox(store.MailboxSentbox), Trashed: ptrFalse}
)

// NewFlags creates empty flags (no changes).
func NewFlags() Flags {
	return Flags{}
}

// WithRead returns flags with read status set.
func (f Flags) WithRead(read bool) Flags {
	if read {
		f.Read = ptrTrue
	} else {
		f.Read = ptrFalse
	}
	return f
}

// WithTrashed returns flags with trash status set.
func (f Flags) WithTrashed(trashed bool) Flags {
	if trashed {
		f.Trashed = ptrTrue
	} else {
		f.Trashed = ptrFalse
	}
	return f
}

// WithDeleted returns flags with deletion status set.
func (f Flags) WithDeleted(deleted bool) Flags {
	if deleted {
		f.Deleted = ptrTrue
	} else {
		f.Deleted = ptrFalse
	}
	return f
}

// WithMailbox returns flags that move the receipt to the given mailbox.
func (f Flags) WithMailbox(m store.MailboxType) Flags {
	f.Mailbox = &m
	return f
}

// IsZero reports whether the flags request no change at all.
func (f Flags) IsZero() bool {
	return f.Read == nil && f.Trashed == nil && f.Deleted == nil && f.Mailbox == nil
}

// MarkRead returns flags to mark a receipt as read.
func MarkRead() Flags {
	return FlagsMarkRead
}

// MarkUnread returns flags to mark a receipt as unread.
func MarkUnread() Flags {
	return FlagsMarkUnread
}

// MoveToTrash returns flags to move a receipt to trash.
func MoveToTrash() Flags {
	return FlagsTrash
}

// RestoreFromTrash returns flags to restore a receipt from trash.
func RestoreFromTrash() Flags {
	return FlagsUntrash
}

// MarkDeleted returns flags to soft-delete a receipt.
func MarkDeleted() Flags {
	return FlagsDelete
}

// MarkNotDeleted returns flags to restore a soft-deleted receipt.
func MarkNotDeleted() Flags {
	return FlagsUndelete
}

// MoveToInbox returns flags to move a receipt to the inbox and restore it
// from trash.
func MoveToInbox() Flags {
	return FlagsMoveToInbox
}

// MoveToSentbox returns flags to move a receipt to the sentbox and restore
// it from trash.
func MoveToSentbox() Flags {
	return FlagsMoveToSentbox
}

// update converts the flags to a store-level receipt update.
func (f Flags) update() store.ReceiptUpdate {
	return store.ReceiptUpdate{
		IsRead:      f.Read,
		Trashed:     f.Trashed,
		Deleted:     f.Deleted,
		MailboxType: f.Mailbox,
	}
}
