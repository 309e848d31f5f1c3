package mailboxer

import (
	"context"
	"fmt"
	"testing"

	"github.com/full-stack-biz/mailboxer/store"
	"github.com/full-stack-biz/mailboxer/store/memory"
)

// addressBook is a fixed-table resolver for dispatcher tests. Identities
// absent from the table resolve to nil, like an unknown participant.
type addressBook struct {
	profiles map[Identity]*Profile
}

func (a *addressBook) Resolve(_ context.Context, id Identity) (*Profile, error) {
	p, ok := a.profiles[id]
	if !ok {
		return nil, fmt.Errorf("resolve %s/%s: %w", id.Type, id.ID, ErrNotFound)
	}
	return p, nil
}

func (a *addressBook) ResolveBatch(_ context.Context, ids []Identity) ([]*Profile, error) {
	out := make([]*Profile, len(ids))
	for i, id := range ids {
		out[i] = a.profiles[id]
	}
	return out, nil
}

func TestDispatcherAddressFiltering(t *testing.T) {
	ctx := context.Background()
	alice := NewIdentity("user", "alice")
	bob := NewIdentity("user", "bob")
	carol := NewIdentity("user", "carol")

	newCaptureDispatcher := func(captured *[]store.Receipt) Dispatcher {
		return DispatchFunc(func(_ context.Context, _ *store.Payload, receipts []store.Receipt) error {
			*captured = append(*captured, receipts...)
			return nil
		})
	}

	t.Run("recipients without an address are skipped", func(t *testing.T) {
		var captured []store.Receipt
		svc, err := NewService(
			WithStore(memory.New()),
			WithParticipantResolver(&addressBook{profiles: map[Identity]*Profile{
				bob: {Identity: bob, Name: "Bob", Email: "bob@example.com"},
			}}),
			WithDispatcher(newCaptureDispatcher(&captured)),
		)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		if err := svc.Connect(ctx); err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer svc.Close(ctx)

		mustSend(t, svc.Mailbox(alice), SendRequest{
			Recipients: []Identity{bob, carol},
			Subject:    "meeting",
			Body:       "are we still on for friday?",
		})

		if len(captured) != 1 {
			t.Fatalf("dispatched %d receipts, want 1", len(captured))
		}
		if captured[0].Receiver != bob {
			t.Errorf("dispatched to %v, want %v", captured[0].Receiver, bob)
		}
	})

	t.Run("without a resolver every recipient is dispatched", func(t *testing.T) {
		var captured []store.Receipt
		svc, err := NewService(
			WithStore(memory.New()),
			WithDispatcher(newCaptureDispatcher(&captured)),
		)
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		if err := svc.Connect(ctx); err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer svc.Close(ctx)

		mustSend(t, svc.Mailbox(alice), SendRequest{
			Recipients: []Identity{bob, carol},
			Subject:    "meeting",
			Body:       "are we still on for friday?",
		})

		if len(captured) != 2 {
			t.Fatalf("dispatched %d receipts, want 2", len(captured))
		}
		for _, r := range captured {
			if r.Receiver == alice {
				t.Error("sender must not receive an out-of-band copy")
			}
		}
	})
}
