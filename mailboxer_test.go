package mailboxer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/full-stack-biz/mailboxer/store"
	"github.com/full-stack-biz/mailboxer/store/memory"
)

func setupTestService(t *testing.T) Service {
	t.Helper()

	svc, err := NewService(
		WithStore(memory.New()),
	)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	ctx := context.Background()
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	return svc
}

// mustSend is a test helper that fails the test if SendMessage fails.
func mustSend(t *testing.T, mb Mailbox, req SendRequest) *Receipt {
	t.Helper()
	r, err := mb.SendMessage(context.Background(), req)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	return r
}

func TestNewService(t *testing.T) {
	t.Run("requires store", func(t *testing.T) {
		_, err := NewService()
		if !errors.Is(err, ErrStoreRequired) {
			t.Errorf("expected ErrStoreRequired, got %v", err)
		}
	})

	t.Run("creates service with store", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc == nil {
			t.Fatal("expected non-nil service")
		}
	})
}

func TestServiceLifecycle(t *testing.T) {
	t.Run("connect and close", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx := context.Background()

		if err := svc.Connect(ctx); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		if err := svc.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("expected ErrAlreadyConnected, got %v", err)
		}

		if err := svc.Close(ctx); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if err := svc.Close(ctx); err != nil {
			t.Errorf("second close should not error, got %v", err)
		}
	})

	t.Run("operations before connect fail", func(t *testing.T) {
		svc, err := NewService(WithStore(memory.New()))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		mb := svc.Mailbox(NewIdentity("user", "alice"))
		_, err = mb.Inbox(context.Background(), ListOptions{})
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("expected ErrNotConnected, got %v", err)
		}
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	carol := NewIdentity("duck", "7")

	t.Run("creates conversation and receipts", func(t *testing.T) {
		sent := mustSend(t, svc.Mailbox(alice), SendRequest{
			Recipients: []Identity{bob, carol},
			Subject:    "hello",
			Body:       "first message",
		})

		if sent.Receiver != alice {
			t.Errorf("sender receipt belongs to %v, want %v", sent.Receiver, alice)
		}
		if sent.MailboxType != MailboxSentbox {
			t.Errorf("sender receipt mailbox = %q, want sentbox", sent.MailboxType)
		}
		if !sent.IsRead {
			t.Error("sender receipt should be pre-marked read")
		}
		if sent.ConversationID == "" {
			t.Fatal("expected a conversation to be created")
		}

		conv, err := svc.Conversation(ctx, sent.ConversationID)
		if err != nil {
			t.Fatalf("get conversation: %v", err)
		}
		if conv.Subject != "hello" {
			t.Errorf("conversation subject = %q, want %q", conv.Subject, "hello")
		}

		participants, err := conv.Participants(ctx)
		if err != nil {
			t.Fatalf("participants: %v", err)
		}
		if len(participants) != 3 {
			t.Errorf("expected 3 participants, got %d", len(participants))
		}
	})

	t.Run("duplicate recipients get one receipt", func(t *testing.T) {
		sender := NewIdentity("user", "dup-sender")
		recipient := NewIdentity("user", "dup-recipient")

		mustSend(t, svc.Mailbox(sender), SendRequest{
			Recipients: []Identity{recipient, recipient, recipient},
			Subject:    "dedupe",
			Body:       "once only",
		})

		inbox, err := svc.Mailbox(recipient).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 1 {
			t.Errorf("expected 1 inbox receipt, got %d", len(inbox.Receipts))
		}
	})

	t.Run("sender in recipient list gets only the sentbox receipt", func(t *testing.T) {
		sender := NewIdentity("user", "self-sender")
		other := NewIdentity("user", "self-other")

		mustSend(t, svc.Mailbox(sender), SendRequest{
			Recipients: []Identity{sender, other},
			Subject:    "self",
			Body:       "no self-inbox",
		})

		inbox, err := svc.Mailbox(sender).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 0 {
			t.Errorf("sender should have no inbox receipt, got %d", len(inbox.Receipts))
		}
	})

	t.Run("recipient receipts are unread inbox", func(t *testing.T) {
		sender := NewIdentity("user", "unread-sender")
		recipient := NewIdentity("user", "unread-recipient")

		mustSend(t, svc.Mailbox(sender), SendRequest{
			Recipients: []Identity{recipient},
			Subject:    "unread",
			Body:       "check state",
		})

		count, err := svc.Mailbox(recipient).UnreadInboxCount(ctx)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if count != 1 {
			t.Errorf("unread count = %d, want 1", count)
		}
	})

	t.Run("no recipients fails", func(t *testing.T) {
		_, err := svc.Mailbox(alice).SendMessage(ctx, SendRequest{
			Subject: "void",
			Body:    "nobody home",
		})
		if !errors.Is(err, ErrEmptyRecipients) {
			t.Errorf("expected ErrEmptyRecipients, got %v", err)
		}
	})

	t.Run("blank subject fails and leaves nothing behind", func(t *testing.T) {
		recipient := NewIdentity("user", "blank-subject-recipient")
		_, err := svc.Mailbox(alice).SendMessage(ctx, SendRequest{
			Recipients: []Identity{recipient},
			Subject:    "   ",
			Body:       "body",
		})
		if !errors.Is(err, ErrEmptySubject) {
			t.Errorf("expected ErrEmptySubject, got %v", err)
		}

		inbox, err := svc.Mailbox(recipient).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 0 {
			t.Errorf("failed delivery must not materialize receipts, got %d", len(inbox.Receipts))
		}
	})

	t.Run("blank body fails", func(t *testing.T) {
		_, err := svc.Mailbox(alice).SendMessage(ctx, SendRequest{
			Recipients: []Identity{bob},
			Subject:    "subject",
			Body:       "\n\t ",
		})
		if !errors.Is(err, ErrEmptyBody) {
			t.Errorf("expected ErrEmptyBody, got %v", err)
		}
	})

	t.Run("invalid sender identity fails", func(t *testing.T) {
		mb := svc.Mailbox(NewIdentity("user", "has:colon"))
		_, err := mb.SendMessage(ctx, SendRequest{
			Recipients: []Identity{bob},
			Subject:    "s",
			Body:       "b",
		})
		if !errors.Is(err, ErrInvalidParticipant) {
			t.Errorf("expected ErrInvalidParticipant, got %v", err)
		}
	})
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	bob := NewIdentity("user", "bob")

	t.Run("notification receipts belong to no mailbox", func(t *testing.T) {
		payload, err := svc.Notify(ctx, []Identity{bob}, NotifyRequest{
			Subject: "system notice",
			Body:    "maintenance window",
			Code:    "system.maintenance",
		})
		if err != nil {
			t.Fatalf("notify: %v", err)
		}
		if payload.Kind != store.KindNotification {
			t.Errorf("payload kind = %q, want notification", payload.Kind)
		}
		if payload.ConversationID != "" {
			t.Error("notifications must not create conversations")
		}

		mb := svc.Mailbox(bob)
		notifications, err := mb.Notifications(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("notifications: %v", err)
		}
		if len(notifications.Receipts) != 1 {
			t.Fatalf("expected 1 notification receipt, got %d", len(notifications.Receipts))
		}
		r := notifications.Receipts[0]
		if r.MailboxType != store.MailboxNone {
			t.Errorf("notification receipt mailbox = %q, want none", r.MailboxType)
		}
		if r.IsRead {
			t.Error("notification receipt should start unread")
		}

		// Notifications never land in the inbox.
		inbox, err := mb.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 0 {
			t.Errorf("expected empty inbox, got %d receipts", len(inbox.Receipts))
		}
	})

	t.Run("system notification has nil sender", func(t *testing.T) {
		payload, err := svc.Notify(ctx, []Identity{bob}, NotifyRequest{
			Body: "no sender here",
		})
		if err != nil {
			t.Fatalf("notify: %v", err)
		}
		if payload.Sender != nil {
			t.Errorf("expected nil sender, got %v", payload.Sender)
		}
	})

	t.Run("notification receipt is not a message", func(t *testing.T) {
		if _, err := svc.Notify(ctx, []Identity{bob}, NotifyRequest{Body: "standalone"}); err != nil {
			t.Fatalf("notify: %v", err)
		}
		notifications, err := svc.Mailbox(bob).Notifications(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("notifications: %v", err)
		}
		r := notifications.Receipts[0]
		if !r.IsNotification() {
			t.Error("expected IsNotification() = true")
		}
		if _, err := r.Conversation(ctx); !errors.Is(err, ErrNotAMessage) {
			t.Errorf("expected ErrNotAMessage, got %v", err)
		}
	})
}

func TestReceiptAccess(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	mallory := NewIdentity("user", "mallory")

	sent := mustSend(t, svc.Mailbox(alice), SendRequest{
		Recipients: []Identity{bob},
		Subject:    "private",
		Body:       "for bob only",
	})

	inbox, err := svc.Mailbox(bob).Inbox(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	bobReceiptID := inbox.Receipts[0].ID

	t.Run("owner reads own receipt", func(t *testing.T) {
		r, err := svc.Mailbox(bob).Receipt(ctx, bobReceiptID)
		if err != nil {
			t.Fatalf("receipt: %v", err)
		}
		if r.PayloadID != sent.PayloadID {
			t.Errorf("payload ID = %q, want %q", r.PayloadID, sent.PayloadID)
		}
	})

	t.Run("foreign receipt is unauthorized", func(t *testing.T) {
		_, err := svc.Mailbox(mallory).Receipt(ctx, bobReceiptID)
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("foreign state change silently does nothing", func(t *testing.T) {
		if err := svc.Mailbox(mallory).TrashReceipt(ctx, bobReceiptID); err != nil {
			t.Fatalf("foreign trash should be a silent no-op, got %v", err)
		}

		r, err := svc.Mailbox(bob).Receipt(ctx, bobReceiptID)
		if err != nil {
			t.Fatalf("receipt: %v", err)
		}
		if r.Trashed {
			t.Error("foreign participant must not be able to trash the receipt")
		}
	})
}

func TestReceiptTransitions(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	mb := svc.Mailbox(bob)

	mustSend(t, svc.Mailbox(alice), SendRequest{
		Recipients: []Identity{bob},
		Subject:    "transitions",
		Body:       "state machine",
	})

	inbox, err := mb.Inbox(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	receiptID := inbox.Receipts[0].ID

	t.Run("mark read and unread", func(t *testing.T) {
		if err := mb.MarkReceiptRead(ctx, receiptID); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		count, err := mb.UnreadInboxCount(ctx)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if count != 0 {
			t.Errorf("unread count = %d, want 0", count)
		}

		if err := mb.MarkReceiptUnread(ctx, receiptID); err != nil {
			t.Fatalf("mark unread: %v", err)
		}
		count, err = mb.UnreadInboxCount(ctx)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if count != 1 {
			t.Errorf("unread count = %d, want 1", count)
		}
	})

	t.Run("idempotent transitions", func(t *testing.T) {
		if err := mb.MarkReceiptRead(ctx, receiptID); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		if err := mb.MarkReceiptRead(ctx, receiptID); err != nil {
			t.Fatalf("second mark read should be a no-op, got %v", err)
		}
	})

	t.Run("trash and restore", func(t *testing.T) {
		if err := mb.TrashReceipt(ctx, receiptID); err != nil {
			t.Fatalf("trash: %v", err)
		}
		trash, err := mb.Trash(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("trash listing: %v", err)
		}
		if len(trash.Receipts) != 1 {
			t.Errorf("expected 1 trashed receipt, got %d", len(trash.Receipts))
		}
		inbox, err := mb.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 0 {
			t.Errorf("trashed receipt must leave the inbox, got %d", len(inbox.Receipts))
		}

		if err := mb.UntrashReceipt(ctx, receiptID); err != nil {
			t.Fatalf("untrash: %v", err)
		}
		inbox, err = mb.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 1 {
			t.Errorf("restored receipt should be back in the inbox, got %d", len(inbox.Receipts))
		}
	})

	t.Run("soft delete hides everywhere", func(t *testing.T) {
		if err := mb.DeleteReceipt(ctx, receiptID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		inbox, err := mb.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 0 {
			t.Errorf("deleted receipt must not appear in inbox, got %d", len(inbox.Receipts))
		}
		trash, err := mb.Trash(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("trash: %v", err)
		}
		if len(trash.Receipts) != 0 {
			t.Errorf("deleted receipt must not appear in trash, got %d", len(trash.Receipts))
		}
	})

	t.Run("undelete restores visibility", func(t *testing.T) {
		if err := mb.UndeleteReceipt(ctx, receiptID); err != nil {
			t.Fatalf("undelete: %v", err)
		}
		inbox, err := mb.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 1 {
			t.Errorf("undeleted receipt should be back in the inbox, got %d", len(inbox.Receipts))
		}
	})

	t.Run("moving to inbox restores from trash", func(t *testing.T) {
		if err := mb.TrashReceipt(ctx, receiptID); err != nil {
			t.Fatalf("trash: %v", err)
		}
		if err := mb.MoveReceiptToInbox(ctx, receiptID); err != nil {
			t.Fatalf("move to inbox: %v", err)
		}
		inbox, err := mb.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 1 {
			t.Errorf("moved receipt should be live in the inbox, got %d", len(inbox.Receipts))
		}
		trash, err := mb.Trash(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("trash: %v", err)
		}
		if len(trash.Receipts) != 0 {
			t.Errorf("moving to a mailbox must untrash, got %d trashed", len(trash.Receipts))
		}
	})

	t.Run("empty flags is a no-op", func(t *testing.T) {
		if err := mb.UpdateFlags(ctx, receiptID, NewFlags()); err != nil {
			t.Errorf("empty flags should succeed without change, got %v", err)
		}
	})
}

func TestReceiptsListing(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	mustSend(t, svc.Mailbox(alice), SendRequest{
		Recipients: []Identity{bob},
		Subject:    "filtered",
		Body:       "custom listing",
	})

	t.Run("filters apply on top of the owner scope", func(t *testing.T) {
		page, err := svc.Mailbox(bob).Receipts(ctx, []store.Filter{
			store.IsReadFilter(false),
		}, ListOptions{})
		if err != nil {
			t.Fatalf("receipts: %v", err)
		}
		if len(page.Receipts) != 1 {
			t.Errorf("expected 1 unread receipt, got %d", len(page.Receipts))
		}
		for _, r := range page.Receipts {
			if r.Receiver != bob {
				t.Errorf("listing leaked a receipt for %v", r.Receiver)
			}
		}
	})

	t.Run("owner scope cannot be widened", func(t *testing.T) {
		// A receiver filter for another participant intersects with the
		// owner filter and matches nothing.
		page, err := svc.Mailbox(bob).Receipts(ctx, []store.Filter{
			store.ReceiverIs(alice),
		}, ListOptions{})
		if err != nil {
			t.Fatalf("receipts: %v", err)
		}
		if len(page.Receipts) != 0 {
			t.Errorf("expected no receipts, got %d", len(page.Receipts))
		}
	})
}

func TestMarkAllRead(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	for i := 0; i < 3; i++ {
		mustSend(t, svc.Mailbox(alice), SendRequest{
			Recipients: []Identity{bob},
			Subject:    "bulk",
			Body:       "one of several",
		})
	}

	mb := svc.Mailbox(bob)
	count, err := mb.UnreadInboxCount(ctx)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 3 {
		t.Fatalf("unread count = %d, want 3", count)
	}

	if err := mb.MarkAllRead(ctx); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	count, err = mb.UnreadInboxCount(ctx)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Errorf("unread count after mark all read = %d, want 0", count)
	}

	// Alice's receipts are untouched.
	sentbox, err := svc.Mailbox(alice).Sentbox(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("sentbox: %v", err)
	}
	if len(sentbox.Receipts) != 3 {
		t.Errorf("alice sentbox = %d receipts, want 3", len(sentbox.Receipts))
	}
}

func TestEmptyTrash(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	sent := mustSend(t, svc.Mailbox(alice), SendRequest{
		Recipients: []Identity{bob},
		Subject:    "trash me",
		Body:       "gone soon",
	})
	convID := sent.ConversationID

	mb := svc.Mailbox(bob)
	inbox, err := mb.Inbox(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if err := mb.TrashReceipt(ctx, inbox.Receipts[0].ID); err != nil {
		t.Fatalf("trash: %v", err)
	}

	deleted, err := mb.EmptyTrash(ctx)
	if err != nil {
		t.Fatalf("empty trash: %v", err)
	}
	if deleted != 1 {
		t.Errorf("emptied %d receipts, want 1", deleted)
	}

	// The purge is permanent and owner-scoped: the conversation and the
	// other participant's receipts survive.
	if _, err := svc.Conversation(ctx, convID); err != nil {
		t.Errorf("conversation must survive trash purge, got %v", err)
	}
	sentbox, err := svc.Mailbox(alice).Sentbox(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("sentbox: %v", err)
	}
	if len(sentbox.Receipts) != 1 {
		t.Errorf("alice sentbox = %d receipts, want 1", len(sentbox.Receipts))
	}
}

func TestMailboxStats(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	// Two messages to bob, one from bob, one notification.
	mustSend(t, svc.Mailbox(alice), SendRequest{
		Recipients: []Identity{bob}, Subject: "one", Body: "b",
	})
	mustSend(t, svc.Mailbox(alice), SendRequest{
		Recipients: []Identity{bob}, Subject: "two", Body: "b",
	})
	mustSend(t, svc.Mailbox(bob), SendRequest{
		Recipients: []Identity{alice}, Subject: "back", Body: "b",
	})
	if _, err := svc.Notify(ctx, []Identity{bob}, NotifyRequest{Body: "notice"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	mb := svc.Mailbox(bob)
	if err := mb.MarkReceiptRead(ctx, firstInboxReceiptID(t, mb)); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	stats, err := mb.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Inbox != 2 {
		t.Errorf("inbox = %d, want 2", stats.Inbox)
	}
	if stats.InboxUnread != 1 {
		t.Errorf("inbox unread = %d, want 1", stats.InboxUnread)
	}
	if stats.Sentbox != 1 {
		t.Errorf("sentbox = %d, want 1", stats.Sentbox)
	}
	if stats.Trash != 0 {
		t.Errorf("trash = %d, want 0", stats.Trash)
	}
	if stats.Notifications != 1 {
		t.Errorf("notifications = %d, want 1", stats.Notifications)
	}
}

func firstInboxReceiptID(t *testing.T, mb Mailbox) string {
	t.Helper()
	inbox, err := mb.Inbox(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox.Receipts) == 0 {
		t.Fatal("expected at least one inbox receipt")
	}
	return inbox.Receipts[0].ID
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	bob := NewIdentity("user", "bob")

	past := time.Now().Add(-time.Hour).UTC()
	if _, err := svc.Notify(ctx, []Identity{bob}, NotifyRequest{
		Body:      "stale",
		ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if _, err := svc.Notify(ctx, []Identity{bob}, NotifyRequest{
		Body: "fresh",
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	result, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Errorf("deleted %d payloads, want 1", result.DeletedCount)
	}

	notifications, err := svc.Mailbox(bob).Notifications(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notifications.Receipts) != 1 {
		t.Errorf("expected 1 surviving notification receipt, got %d", len(notifications.Receipts))
	}
}
