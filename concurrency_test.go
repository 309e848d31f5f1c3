package mailboxer

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestConcurrentSenders(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	recipient := NewIdentity("user", "recipient")

	const numSenders = 10
	const messagesPerSender = 5

	var wg sync.WaitGroup
	sendErrs := make(chan error, numSenders*messagesPerSender)

	for i := 0; i < numSenders; i++ {
		wg.Add(1)
		go func(senderNum int) {
			defer wg.Done()
			mb := svc.Mailbox(NewIdentity("user", fmt.Sprintf("sender%d", senderNum)))
			for j := 0; j < messagesPerSender; j++ {
				_, err := mb.SendMessage(ctx, SendRequest{
					Recipients: []Identity{recipient},
					Subject:    "concurrent",
					Body:       "sent in parallel",
				})
				if err != nil {
					sendErrs <- err
				}
			}
		}(i)
	}

	wg.Wait()
	close(sendErrs)

	for err := range sendErrs {
		t.Errorf("send error: %v", err)
	}

	count, err := svc.Mailbox(recipient).UnreadInboxCount(ctx)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != numSenders*messagesPerSender {
		t.Errorf("unread count = %d, want %d", count, numSenders*messagesPerSender)
	}
}

func TestConcurrentStateTransitions(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	mustSend(t, svc.Mailbox(alice), SendRequest{
		Recipients: []Identity{bob},
		Subject:    "contended",
		Body:       "many writers",
	})

	mb := svc.Mailbox(bob)
	receiptID := firstInboxReceiptID(t, mb)

	// Concurrent idempotent transitions on one receipt must all succeed.
	var wg sync.WaitGroup
	transitionErrs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var err error
			if n%2 == 0 {
				err = mb.MarkReceiptRead(ctx, receiptID)
			} else {
				err = mb.MarkReceiptUnread(ctx, receiptID)
			}
			if err != nil {
				transitionErrs <- err
			}
		}(i)
	}
	wg.Wait()
	close(transitionErrs)

	for err := range transitionErrs {
		t.Errorf("transition error: %v", err)
	}
}

func TestConcurrentReap(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	defer svc.Close(ctx)

	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")

	conv := startConversation(t, svc, alice, bob)

	// Both participants delete concurrently. Exactly one reap must win;
	// the other call is an idempotent no-op either way.
	var wg sync.WaitGroup
	results := make(chan bool, 2)
	reapErrs := make(chan error, 2)
	for _, p := range []Identity{alice, bob} {
		wg.Add(1)
		go func(p Identity) {
			defer wg.Done()
			reaped, err := svc.Mailbox(p).DeleteConversation(ctx, conv.ID)
			if err != nil {
				reapErrs <- err
				return
			}
			results <- reaped
		}(p)
	}
	wg.Wait()
	close(results)
	close(reapErrs)

	for err := range reapErrs {
		t.Errorf("delete conversation error: %v", err)
	}

	var reapCount int
	for reaped := range results {
		if reaped {
			reapCount++
		}
	}
	if reapCount != 1 {
		t.Errorf("reap reported %d times, want exactly 1", reapCount)
	}
}
