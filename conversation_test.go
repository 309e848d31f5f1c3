package mailboxer

import (
	"context"
	"errors"
	"testing"

	"github.com/full-stack-biz/mailboxer/store"
)

// startConversation creates a thread and returns its handle.
func startConversation(t *testing.T, svc Service, sender Identity, recipients ...Identity) *Conversation {
	t.Helper()
	sent := mustSend(t, svc.Mailbox(sender), SendRequest{
		Recipients: recipients,
		Subject:    "thread",
		Body:       "opening message",
	})
	conv, err := svc.Conversation(context.Background(), sent.ConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	return conv
}

func TestReply(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	mallory := NewIdentity("user", "mallory")

	conv := startConversation(t, svc, alice, bob)

	t.Run("reply reaches the original sender", func(t *testing.T) {
		reply, err := svc.Mailbox(bob).ReplyToConversation(ctx, conv.ID, ReplyRequest{
			Body: "replying",
		})
		if err != nil {
			t.Fatalf("reply: %v", err)
		}
		if reply.ConversationID != conv.ID {
			t.Errorf("reply conversation = %q, want %q", reply.ConversationID, conv.ID)
		}
		if reply.MailboxType != MailboxSentbox {
			t.Errorf("reply receipt mailbox = %q, want sentbox", reply.MailboxType)
		}

		inbox, err := svc.Mailbox(alice).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) != 1 {
			t.Errorf("alice inbox = %d receipts, want 1", len(inbox.Receipts))
		}
	})

	t.Run("reply inherits the conversation subject", func(t *testing.T) {
		reply, err := svc.Mailbox(alice).ReplyToConversation(ctx, conv.ID, ReplyRequest{
			Body: "and again",
		})
		if err != nil {
			t.Fatalf("reply: %v", err)
		}
		r, err := svc.Mailbox(alice).Receipt(ctx, reply.ID)
		if err != nil {
			t.Fatalf("receipt: %v", err)
		}
		p, err := r.Payload(ctx)
		if err != nil {
			t.Fatalf("payload: %v", err)
		}
		if p.Subject != conv.Subject {
			t.Errorf("reply subject = %q, want %q", p.Subject, conv.Subject)
		}
	})

	t.Run("non-participant cannot reply", func(t *testing.T) {
		_, err := svc.Mailbox(mallory).ReplyToConversation(ctx, conv.ID, ReplyRequest{
			Body: "let me in",
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("reply to own receipt", func(t *testing.T) {
		inbox, err := svc.Mailbox(bob).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(inbox.Receipts) == 0 {
			t.Fatal("expected bob to hold an inbox receipt")
		}
		if _, err := svc.Mailbox(bob).ReplyToReceipt(ctx, inbox.Receipts[0].ID, ReplyRequest{
			Body: "via receipt",
		}); err != nil {
			t.Fatalf("reply to receipt: %v", err)
		}
	})

	t.Run("reply to foreign receipt is unauthorized", func(t *testing.T) {
		inbox, err := svc.Mailbox(bob).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		_, err = svc.Mailbox(mallory).ReplyToReceipt(ctx, inbox.Receipts[0].ID, ReplyRequest{
			Body: "not mine",
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("reply to notification receipt fails", func(t *testing.T) {
		if _, err := svc.Notify(ctx, []Identity{bob}, NotifyRequest{Body: "fyi"}); err != nil {
			t.Fatalf("notify: %v", err)
		}
		notifications, err := svc.Mailbox(bob).Notifications(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("notifications: %v", err)
		}
		_, err = svc.Mailbox(bob).ReplyToReceipt(ctx, notifications.Receipts[0].ID, ReplyRequest{
			Body: "replying to a notification",
		})
		if !errors.Is(err, ErrNotAMessage) {
			t.Errorf("expected ErrNotAMessage, got %v", err)
		}
	})
}

func TestReplyAfterDelete(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	conv := startConversation(t, svc, alice, bob)
	if _, err := svc.Mailbox(bob).DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete conversation: %v", err)
	}

	t.Run("deleting keeps membership and subscription", func(t *testing.T) {
		participants, err := conv.Participants(ctx)
		if err != nil {
			t.Fatalf("participants: %v", err)
		}
		if len(participants) != 1 {
			t.Errorf("participants = %d, want 1 (only alice holds live receipts)", len(participants))
		}

		members, err := conv.Members(ctx)
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		if len(members) != 2 {
			t.Fatalf("members = %d, want 2 (bob's deleted receipts still count)", len(members))
		}

		subscribed, err := conv.HasSubscriber(ctx, bob)
		if err != nil {
			t.Fatalf("has subscriber: %v", err)
		}
		if !subscribed {
			t.Error("deleting receipts must not unsubscribe; only an opt-out does")
		}
	})

	t.Run("reply reaches the participant who deleted the thread", func(t *testing.T) {
		if _, err := svc.Mailbox(alice).ReplyToConversation(ctx, conv.ID, ReplyRequest{
			Body: "still there?",
		}); err != nil {
			t.Fatalf("reply: %v", err)
		}

		bobView, err := conv.Messages(ctx, bob, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(bobView.Payloads) != 1 {
			t.Fatalf("bob sees %d messages, want exactly the new reply", len(bobView.Payloads))
		}
		if bobView.Payloads[0].Body != "still there?" {
			t.Errorf("bob sees %q, want the reply body", bobView.Payloads[0].Body)
		}

		count, err := svc.Mailbox(bob).UnreadInboxCount(ctx)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if count != 1 {
			t.Errorf("bob unread inbox = %d, want 1", count)
		}
	})

	t.Run("a participant who deleted the thread can still reply", func(t *testing.T) {
		pair := startConversation(t, svc, alice, bob)
		if _, err := svc.Mailbox(bob).DeleteConversation(ctx, pair.ID); err != nil {
			t.Fatalf("delete conversation: %v", err)
		}

		if _, err := svc.Mailbox(bob).ReplyToConversation(ctx, pair.ID, ReplyRequest{
			Body: "changed my mind",
		}); err != nil {
			t.Fatalf("reply after delete: %v", err)
		}
		aliceView, err := pair.Messages(ctx, alice, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(aliceView.Payloads) != 2 {
			t.Errorf("alice sees %d messages, want 2", len(aliceView.Payloads))
		}
	})

	t.Run("undelete restores the thread history", func(t *testing.T) {
		pair := startConversation(t, svc, alice, bob)
		if _, err := svc.Mailbox(bob).DeleteConversation(ctx, pair.ID); err != nil {
			t.Fatalf("delete conversation: %v", err)
		}
		hidden, err := pair.Messages(ctx, bob, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(hidden.Payloads) != 0 {
			t.Fatalf("bob sees %d messages after delete, want 0", len(hidden.Payloads))
		}

		if err := svc.Mailbox(bob).UndeleteConversation(ctx, pair.ID); err != nil {
			t.Fatalf("undelete conversation: %v", err)
		}
		restored, err := pair.Messages(ctx, bob, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(restored.Payloads) != 1 {
			t.Errorf("bob sees %d messages after undelete, want 1", len(restored.Payloads))
		}
	})
}

func TestOptOut(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	carol := NewIdentity("user", "carol")

	conv := startConversation(t, svc, alice, bob, carol)

	t.Run("opted-out participant stops receiving replies", func(t *testing.T) {
		if err := conv.OptOut(ctx, bob); err != nil {
			t.Fatalf("opt out: %v", err)
		}
		// Opting out twice is a no-op.
		if err := conv.OptOut(ctx, bob); err != nil {
			t.Fatalf("second opt out: %v", err)
		}

		subscribed, err := conv.HasSubscriber(ctx, bob)
		if err != nil {
			t.Fatalf("has subscriber: %v", err)
		}
		if subscribed {
			t.Error("bob should no longer be a subscriber")
		}
		isParticipant, err := conv.IsParticipant(ctx, bob)
		if err != nil {
			t.Fatalf("is participant: %v", err)
		}
		if !isParticipant {
			t.Error("opting out must not remove participation")
		}

		if _, err := svc.Mailbox(alice).ReplyToConversation(ctx, conv.ID, ReplyRequest{
			Body: "without bob",
		}); err != nil {
			t.Fatalf("reply: %v", err)
		}

		bobInbox, err := svc.Mailbox(bob).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(bobInbox.Receipts) != 1 {
			t.Errorf("bob inbox = %d receipts, want 1 (only the original)", len(bobInbox.Receipts))
		}
		carolInbox, err := svc.Mailbox(carol).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(carolInbox.Receipts) != 2 {
			t.Errorf("carol inbox = %d receipts, want 2", len(carolInbox.Receipts))
		}
	})

	t.Run("opt in restores delivery", func(t *testing.T) {
		if err := conv.OptIn(ctx, bob); err != nil {
			t.Fatalf("opt in: %v", err)
		}
		subscribed, err := conv.HasSubscriber(ctx, bob)
		if err != nil {
			t.Fatalf("has subscriber: %v", err)
		}
		if !subscribed {
			t.Error("bob should be a subscriber again")
		}

		if _, err := svc.Mailbox(alice).ReplyToConversation(ctx, conv.ID, ReplyRequest{
			Body: "welcome back",
		}); err != nil {
			t.Fatalf("reply: %v", err)
		}
		bobInbox, err := svc.Mailbox(bob).Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if len(bobInbox.Receipts) != 2 {
			t.Errorf("bob inbox = %d receipts, want 2", len(bobInbox.Receipts))
		}
	})

	t.Run("reply succeeds when every other subscriber opted out", func(t *testing.T) {
		pair := startConversation(t, svc, alice, bob)
		if err := pair.OptOut(ctx, bob); err != nil {
			t.Fatalf("opt out: %v", err)
		}

		reply, err := svc.Mailbox(alice).ReplyToConversation(ctx, pair.ID, ReplyRequest{
			Body: "talking to myself",
		})
		if err != nil {
			t.Fatalf("reply: %v", err)
		}
		if reply.MailboxType != MailboxSentbox {
			t.Errorf("reply receipt mailbox = %q, want sentbox", reply.MailboxType)
		}
	})
}

func TestConversationMessages(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	conv := startConversation(t, svc, alice, bob)
	if _, err := svc.Mailbox(bob).ReplyToConversation(ctx, conv.ID, ReplyRequest{
		Body: "second message",
	}); err != nil {
		t.Fatalf("reply: %v", err)
	}

	t.Run("lists the viewer's visible payloads", func(t *testing.T) {
		list, err := conv.Messages(ctx, alice, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(list.Payloads) != 2 {
			t.Fatalf("alice sees %d messages, want 2", len(list.Payloads))
		}
	})

	t.Run("original and last message", func(t *testing.T) {
		first, err := conv.OriginalMessage(ctx, alice)
		if err != nil {
			t.Fatalf("original message: %v", err)
		}
		if first.Body != "opening message" {
			t.Errorf("original body = %q, want %q", first.Body, "opening message")
		}
		last, err := conv.LastMessage(ctx, alice)
		if err != nil {
			t.Fatalf("last message: %v", err)
		}
		if last.Body != "second message" {
			t.Errorf("last body = %q, want %q", last.Body, "second message")
		}
	})

	t.Run("viewers diverge after a deletion", func(t *testing.T) {
		receipts, err := conv.ReceiptsFor(ctx, bob)
		if err != nil {
			t.Fatalf("receipts for: %v", err)
		}
		// Bob deletes his receipt for the opening message.
		if err := svc.Mailbox(bob).DeleteReceipt(ctx, receipts[0].ID); err != nil {
			t.Fatalf("delete receipt: %v", err)
		}

		bobView, err := conv.Messages(ctx, bob, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(bobView.Payloads) != 1 {
			t.Errorf("bob sees %d messages, want 1", len(bobView.Payloads))
		}
		aliceView, err := conv.Messages(ctx, alice, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(aliceView.Payloads) != 2 {
			t.Errorf("alice sees %d messages, want 2", len(aliceView.Payloads))
		}
	})

	t.Run("stranger sees nothing", func(t *testing.T) {
		stranger := NewIdentity("user", "stranger")
		list, err := conv.Messages(ctx, stranger, ListOptions{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(list.Payloads) != 0 {
			t.Errorf("stranger sees %d messages, want 0", len(list.Payloads))
		}
		if _, err := conv.LastMessage(ctx, stranger); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAddParticipant(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	dave := NewIdentity("user", "dave")

	conv := startConversation(t, svc, alice, bob)
	if _, err := svc.Mailbox(bob).ReplyToConversation(ctx, conv.ID, ReplyRequest{
		Body: "before dave",
	}); err != nil {
		t.Fatalf("reply: %v", err)
	}

	created, err := conv.AddParticipant(ctx, dave)
	if err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if created != 2 {
		t.Errorf("created %d receipts, want 2 (full history backfill)", created)
	}

	list, err := conv.Messages(ctx, dave, ListOptions{})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(list.Payloads) != 2 {
		t.Errorf("dave sees %d messages, want 2", len(list.Payloads))
	}

	// Joining twice backfills nothing new.
	created, err = conv.AddParticipant(ctx, dave)
	if err != nil {
		t.Fatalf("add participant again: %v", err)
	}
	if created != 0 {
		t.Errorf("second join created %d receipts, want 0", created)
	}
}

func TestConversationState(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	conv := startConversation(t, svc, alice, bob)

	t.Run("unread until marked read", func(t *testing.T) {
		unread, err := conv.IsUnread(ctx, bob)
		if err != nil {
			t.Fatalf("is unread: %v", err)
		}
		if !unread {
			t.Error("new conversation should be unread for the recipient")
		}

		if err := conv.MarkReadFor(ctx, bob); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		read, err := conv.IsRead(ctx, bob)
		if err != nil {
			t.Fatalf("is read: %v", err)
		}
		if !read {
			t.Error("conversation should be read after MarkReadFor")
		}

		if err := conv.MarkUnreadFor(ctx, bob); err != nil {
			t.Fatalf("mark unread: %v", err)
		}
		unread, err = conv.IsUnread(ctx, bob)
		if err != nil {
			t.Fatalf("is unread: %v", err)
		}
		if !unread {
			t.Error("conversation should be unread after MarkUnreadFor")
		}
	})

	t.Run("trash is per participant", func(t *testing.T) {
		if err := conv.TrashFor(ctx, bob); err != nil {
			t.Fatalf("trash for: %v", err)
		}
		trashed, err := conv.IsCompletelyTrashed(ctx, bob)
		if err != nil {
			t.Fatalf("is completely trashed: %v", err)
		}
		if !trashed {
			t.Error("conversation should be completely trashed for bob")
		}
		trashed, err = conv.IsCompletelyTrashed(ctx, alice)
		if err != nil {
			t.Fatalf("is completely trashed: %v", err)
		}
		if trashed {
			t.Error("alice's receipts must be untouched")
		}

		if err := conv.UntrashFor(ctx, bob); err != nil {
			t.Fatalf("untrash for: %v", err)
		}
		trashed, err = conv.IsCompletelyTrashed(ctx, bob)
		if err != nil {
			t.Fatalf("is completely trashed: %v", err)
		}
		if trashed {
			t.Error("conversation should be restored for bob")
		}
	})

	t.Run("transitions for a stranger are silent no-ops", func(t *testing.T) {
		stranger := NewIdentity("user", "stranger")
		if err := conv.TrashFor(ctx, stranger); err != nil {
			t.Errorf("stranger trash should be a no-op, got %v", err)
		}
		trashed, err := conv.IsCompletelyTrashed(ctx, stranger)
		if err != nil {
			t.Fatalf("is completely trashed: %v", err)
		}
		if trashed {
			t.Error("a participant with no receipts is never completely trashed")
		}
	})
}

func TestConversationReap(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	t.Run("conversation survives until the last participant deletes", func(t *testing.T) {
		conv := startConversation(t, svc, alice, bob)

		reaped, err := svc.Mailbox(alice).DeleteConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("delete conversation: %v", err)
		}
		if reaped {
			t.Error("first deletion must not reap, bob still holds live receipts")
		}
		if _, err := svc.Conversation(ctx, conv.ID); err != nil {
			t.Fatalf("conversation should still exist: %v", err)
		}

		reaped, err = svc.Mailbox(bob).DeleteConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("delete conversation: %v", err)
		}
		if !reaped {
			t.Error("last deletion should reap the conversation")
		}
		if _, err := svc.Conversation(ctx, conv.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound after reap, got %v", err)
		}
	})

	t.Run("deleting again after the reap is a no-op", func(t *testing.T) {
		conv := startConversation(t, svc, alice, bob)
		if _, err := svc.Mailbox(alice).DeleteConversation(ctx, conv.ID); err != nil {
			t.Fatalf("delete conversation: %v", err)
		}
		if _, err := svc.Mailbox(bob).DeleteConversation(ctx, conv.ID); err != nil {
			t.Fatalf("delete conversation: %v", err)
		}

		reaped, err := conv.DeleteFor(ctx, alice)
		if err != nil {
			t.Fatalf("delete after reap: %v", err)
		}
		if reaped {
			t.Error("a second reap must report false")
		}
	})

	t.Run("reap removes opt-outs with the conversation", func(t *testing.T) {
		conv := startConversation(t, svc, alice, bob)
		if err := conv.OptOut(ctx, bob); err != nil {
			t.Fatalf("opt out: %v", err)
		}
		if _, err := svc.Mailbox(alice).DeleteConversation(ctx, conv.ID); err != nil {
			t.Fatalf("delete conversation: %v", err)
		}
		if _, err := svc.Mailbox(bob).DeleteConversation(ctx, conv.ID); err != nil {
			t.Fatalf("delete conversation: %v", err)
		}
		if _, err := svc.Conversation(ctx, conv.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound after reap, got %v", err)
		}
	})
}

func TestConversationListings(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	carol := NewIdentity("user", "carol")

	pair := startConversation(t, svc, alice, bob)
	startConversation(t, svc, alice, bob, carol)

	bobMB := svc.Mailbox(bob)

	t.Run("inbox conversations", func(t *testing.T) {
		page, err := bobMB.InboxConversations(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox conversations: %v", err)
		}
		if len(page.Conversations) != 2 {
			t.Errorf("bob inbox conversations = %d, want 2", len(page.Conversations))
		}
	})

	t.Run("sentbox conversations", func(t *testing.T) {
		page, err := svc.Mailbox(alice).SentboxConversations(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("sentbox conversations: %v", err)
		}
		if len(page.Conversations) != 2 {
			t.Errorf("alice sentbox conversations = %d, want 2", len(page.Conversations))
		}
		page, err = bobMB.SentboxConversations(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("sentbox conversations: %v", err)
		}
		if len(page.Conversations) != 0 {
			t.Errorf("bob sentbox conversations = %d, want 0", len(page.Conversations))
		}
	})

	t.Run("unread conversations shrink as threads are read", func(t *testing.T) {
		page, err := bobMB.UnreadConversations(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("unread conversations: %v", err)
		}
		if len(page.Conversations) != 2 {
			t.Fatalf("bob unread conversations = %d, want 2", len(page.Conversations))
		}

		if err := bobMB.MarkConversationRead(ctx, pair.ID); err != nil {
			t.Fatalf("mark conversation read: %v", err)
		}
		page, err = bobMB.UnreadConversations(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("unread conversations: %v", err)
		}
		if len(page.Conversations) != 1 {
			t.Errorf("bob unread conversations = %d, want 1", len(page.Conversations))
		}
	})

	t.Run("trash conversations", func(t *testing.T) {
		if err := bobMB.TrashConversation(ctx, pair.ID); err != nil {
			t.Fatalf("trash conversation: %v", err)
		}
		page, err := bobMB.TrashConversations(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("trash conversations: %v", err)
		}
		if len(page.Conversations) != 1 {
			t.Errorf("bob trash conversations = %d, want 1", len(page.Conversations))
		}
		page, err = bobMB.InboxConversations(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox conversations: %v", err)
		}
		if len(page.Conversations) != 1 {
			t.Errorf("bob inbox conversations after trash = %d, want 1", len(page.Conversations))
		}
		if err := bobMB.UntrashConversation(ctx, pair.ID); err != nil {
			t.Fatalf("untrash conversation: %v", err)
		}
	})

	t.Run("conversations with another participant", func(t *testing.T) {
		page, err := bobMB.ConversationsWith(ctx, alice, ListOptions{})
		if err != nil {
			t.Fatalf("conversations with: %v", err)
		}
		if len(page.Conversations) != 2 {
			t.Errorf("conversations with alice = %d, want 2", len(page.Conversations))
		}
	})

	t.Run("only-with excludes group threads", func(t *testing.T) {
		page, err := bobMB.ConversationsOnlyWith(ctx, alice, ListOptions{})
		if err != nil {
			t.Fatalf("conversations only with: %v", err)
		}
		if len(page.Conversations) != 1 {
			t.Fatalf("conversations only with alice = %d, want 1", len(page.Conversations))
		}
		if page.Conversations[0].ID != pair.ID {
			t.Errorf("only-with returned %q, want the two-party thread %q", page.Conversations[0].ID, pair.ID)
		}
	})

	t.Run("scoped listings narrow by read state", func(t *testing.T) {
		// At this point bob has read the two-party thread and not the group.
		read, unread := true, false

		page, err := bobMB.ScopedConversations(ctx, store.ScopeInbox, &read, ListOptions{})
		if err != nil {
			t.Fatalf("scoped conversations: %v", err)
		}
		if len(page.Conversations) != 1 || page.Conversations[0].ID != pair.ID {
			t.Errorf("read inbox threads = %d, want just the two-party thread", len(page.Conversations))
		}

		page, err = bobMB.ScopedConversations(ctx, store.ScopeInbox, &unread, ListOptions{})
		if err != nil {
			t.Fatalf("scoped conversations: %v", err)
		}
		if len(page.Conversations) != 1 || page.Conversations[0].ID == pair.ID {
			t.Errorf("unread inbox threads = %d, want just the group thread", len(page.Conversations))
		}

		page, err = bobMB.ScopedConversations(ctx, store.ScopeInbox, nil, ListOptions{})
		if err != nil {
			t.Fatalf("scoped conversations: %v", err)
		}
		if len(page.Conversations) != 2 {
			t.Errorf("unfiltered inbox threads = %d, want 2", len(page.Conversations))
		}
	})
}
