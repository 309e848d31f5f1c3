package mailboxer

import (
	"testing"

	"github.com/full-stack-biz/mailboxer/store"
)

func TestFlags(t *testing.T) {
	t.Run("zero value requests no change", func(t *testing.T) {
		if !NewFlags().IsZero() {
			t.Error("NewFlags() should be zero")
		}
		if FlagsMarkRead.IsZero() {
			t.Error("FlagsMarkRead should not be zero")
		}
	})

	t.Run("builders compose", func(t *testing.T) {
		f := NewFlags().WithRead(true).WithTrashed(false)
		if f.Read == nil || !*f.Read {
			t.Error("expected Read = true")
		}
		if f.Trashed == nil || *f.Trashed {
			t.Error("expected Trashed = false")
		}
		if f.Deleted != nil {
			t.Error("Deleted should be untouched")
		}
		if f.IsZero() {
			t.Error("composed flags should not be zero")
		}
	})

	t.Run("builders do not mutate the receiver", func(t *testing.T) {
		base := NewFlags()
		_ = base.WithDeleted(true)
		if !base.IsZero() {
			t.Error("WithDeleted must return a copy")
		}
	})

	t.Run("mailbox moves restore from trash", func(t *testing.T) {
		f := MoveToInbox()
		if f.Mailbox == nil || *f.Mailbox != store.MailboxInbox {
			t.Error("expected mailbox = inbox")
		}
		if f.Trashed == nil || *f.Trashed {
			t.Error("moving to the inbox must untrash")
		}
		f = MoveToSentbox()
		if f.Mailbox == nil || *f.Mailbox != store.MailboxSentbox {
			t.Error("expected mailbox = sentbox")
		}
		if f.Trashed == nil || *f.Trashed {
			t.Error("moving to the sentbox must untrash")
		}
	})

	t.Run("constructor helpers match the preallocated values", func(t *testing.T) {
		cases := []struct {
			name string
			got  Flags
			want Flags
		}{
			{"MarkRead", MarkRead(), FlagsMarkRead},
			{"MarkUnread", MarkUnread(), FlagsMarkUnread},
			{"MoveToTrash", MoveToTrash(), FlagsTrash},
			{"RestoreFromTrash", RestoreFromTrash(), FlagsUntrash},
			{"MarkDeleted", MarkDeleted(), FlagsDelete},
			{"MarkNotDeleted", MarkNotDeleted(), FlagsUndelete},
			{"MoveToInbox", MoveToInbox(), FlagsMoveToInbox},
			{"MoveToSentbox", MoveToSentbox(), FlagsMoveToSentbox},
		}
		for _, tc := range cases {
			if tc.got != tc.want {
				t.Errorf("%s() = %+v, want %+v", tc.name, tc.got, tc.want)
			}
		}
	})

	t.Run("update carries every field", func(t *testing.T) {
		f := NewFlags().WithRead(true).WithTrashed(true).WithDeleted(true).WithMailbox(store.MailboxSentbox)
		u := f.update()
		if u.IsRead == nil || !*u.IsRead {
			t.Error("expected IsRead = true")
		}
		if u.Trashed == nil || !*u.Trashed {
			t.Error("expected Trashed = true")
		}
		if u.Deleted == nil || !*u.Deleted {
			t.Error("expected Deleted = true")
		}
		if u.MailboxType == nil || *u.MailboxType != store.MailboxSentbox {
			t.Error("expected MailboxType = sentbox")
		}
	})
}
