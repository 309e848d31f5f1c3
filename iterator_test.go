package mailboxer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/full-stack-biz/mailboxer/store"
)

func TestStream(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	for i := 0; i < 5; i++ {
		mustSend(t, svc.Mailbox(alice), SendRequest{
			Recipients: []Identity{bob},
			Subject:    fmt.Sprintf("message %d", i),
			Body:       "streamed",
		})
	}

	mb := svc.Mailbox(bob)

	t.Run("visits every receipt across batches", func(t *testing.T) {
		it, err := mb.Stream(ctx, nil, StreamOptions{BatchSize: 2})
		if err != nil {
			t.Fatalf("stream: %v", err)
		}

		var count int
		for {
			ok, err := it.Next(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !ok {
				break
			}
			r, err := it.Receipt()
			if err != nil {
				t.Fatalf("receipt: %v", err)
			}
			if r.Receiver != bob {
				t.Errorf("streamed a foreign receipt for %v", r.Receiver)
			}
			count++
		}
		if count != 5 {
			t.Errorf("streamed %d receipts, want 5", count)
		}

		// Exhausted iterators stay exhausted.
		ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if ok {
			t.Error("exhausted iterator must not advance")
		}
	})

	t.Run("receipt before next is out of bounds", func(t *testing.T) {
		it, err := mb.Stream(ctx, nil, StreamOptions{})
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		if _, err := it.Receipt(); !errors.Is(err, ErrIteratorOutOfBounds) {
			t.Errorf("expected ErrIteratorOutOfBounds, got %v", err)
		}
	})

	t.Run("filters narrow the stream", func(t *testing.T) {
		it, err := mb.Stream(ctx, []store.Filter{
			store.InMailbox(store.MailboxSentbox),
		}, StreamOptions{})
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		ok, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if ok {
			t.Error("bob has no sentbox receipts, stream should be empty")
		}
	})

	t.Run("deleted receipts are skipped", func(t *testing.T) {
		inbox, err := mb.Inbox(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("inbox: %v", err)
		}
		if err := mb.DeleteReceipt(ctx, inbox.Receipts[0].ID); err != nil {
			t.Fatalf("delete receipt: %v", err)
		}

		it, err := mb.Stream(ctx, nil, StreamOptions{})
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		var count int
		for {
			ok, err := it.Next(ctx)
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !ok {
				break
			}
			count++
		}
		if count != 4 {
			t.Errorf("streamed %d receipts, want 4", count)
		}
	})
}
