package mailboxer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbaliyan/event/v3"

	"github.com/full-stack-biz/mailboxer/store"
)

// Event names for mailboxer events.
const (
	EventNameMessageDelivered      = "mailboxer.message.delivered"
	EventNameNotificationDelivered = "mailboxer.notification.delivered"
	EventNameReceiptRead           = "mailboxer.receipt.read"
	EventNameConversationDestroyed = "mailboxer.conversation.destroyed"
)

// MessageDeliveredEvent is published after a message delivery commits.
// This is the primary event for notifying recipients of new messages.
type MessageDeliveredEvent struct {
	PayloadID      string           `json:"payload_id"`
	ConversationID string           `json:"conversation_id"`
	Sender         store.Identity   `json:"sender"`
	Recipients     []store.Identity `json:"recipients"`
	Subject        string           `json:"subject"`
	DeliveredAt    time.Time        `json:"delivered_at"`
}

// NotificationDeliveredEvent is published after a notification delivery commits.
type NotificationDeliveredEvent struct {
	PayloadID   string           `json:"payload_id"`
	Sender      *store.Identity  `json:"sender,omitempty"`
	Recipients  []store.Identity `json:"recipients"`
	Subject     string           `json:"subject"`
	Code        string           `json:"code,omitempty"`
	DeliveredAt time.Time        `json:"delivered_at"`
}

// ReceiptReadEvent is published when a receipt is marked as read.
// Use this for read receipts and tracking engagement.
type ReceiptReadEvent struct {
	ReceiptID      string         `json:"receipt_id"`
	PayloadID      string         `json:"payload_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Receiver       store.Identity `json:"receiver"`
	ReadAt         time.Time      `json:"read_at"`
}

// ConversationDestroyedEvent is published when an orphaned conversation
// is reaped after every participant deleted every receipt in it.
type ConversationDestroyedEvent struct {
	ConversationID string         `json:"conversation_id"`
	Participant    store.Identity `json:"participant"`
	DestroyedAt    time.Time      `json:"destroyed_at"`
}

// Global event instances.
//
// Deprecated: These global events use "first registration wins" semantics,
// which makes parallel testing unreliable and prevents multiple independent
// services in the same process. Prefer using Service.Events() for per-service
// event access.
var (
	// EventMessageDelivered is published after a message delivery commits.
	// Deprecated: Use Service.Events().MessageDelivered instead.
	EventMessageDelivered = event.New[MessageDeliveredEvent](EventNameMessageDelivered)

	// EventNotificationDelivered is published after a notification delivery commits.
	// Deprecated: Use Service.Events().NotificationDelivered instead.
	EventNotificationDelivered = event.New[NotificationDeliveredEvent](EventNameNotificationDelivered)

	// EventReceiptRead is published when a receipt is marked as read.
	// Deprecated: Use Service.Events().ReceiptRead instead.
	EventReceiptRead = event.New[ReceiptReadEvent](EventNameReceiptRead)

	// EventConversationDestroyed is published when a conversation is reaped.
	// Deprecated: Use Service.Events().ConversationDestroyed instead.
	EventConversationDestroyed = event.New[ConversationDestroyedEvent](EventNameConversationDestroyed)
)

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus,
// enabling independent event routing and parallel testing.
//
// Subscribe to events:
//
//	svc.Events().MessageDelivered.Subscribe(ctx, handler)
//	svc.Events().ReceiptRead.Subscribe(ctx, handler)
type ServiceEvents struct {
	// MessageDelivered is published after a message delivery commits.
	MessageDelivered event.Event[MessageDeliveredEvent]

	// NotificationDelivered is published after a notification delivery commits.
	NotificationDelivered event.Event[NotificationDeliveredEvent]

	// ReceiptRead is published when a receipt is marked as read.
	ReceiptRead event.Event[ReceiptReadEvent]

	// ConversationDestroyed is published when a conversation is reaped.
	ConversationDestroyed event.Event[ConversationDestroyedEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		MessageDelivered:      event.New[MessageDeliveredEvent](namePrefix + "." + EventNameMessageDelivered),
		NotificationDelivered: event.New[NotificationDeliveredEvent](namePrefix + "." + EventNameNotificationDelivered),
		ReceiptRead:           event.New[ReceiptReadEvent](namePrefix + "." + EventNameReceiptRead),
		ConversationDestroyed: event.New[ConversationDestroyedEvent](namePrefix + "." + EventNameConversationDestroyed),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	if err := event.Register(ctx, bus, events.MessageDelivered); err != nil {
		return fmt.Errorf("register MessageDelivered: %w", err)
	}
	if err := event.Register(ctx, bus, events.NotificationDelivered); err != nil {
		return fmt.Errorf("register NotificationDelivered: %w", err)
	}
	if err := event.Register(ctx, bus, events.ReceiptRead); err != nil {
		return fmt.Errorf("register ReceiptRead: %w", err)
	}
	if err := event.Register(ctx, bus, events.ConversationDestroyed); err != nil {
		return fmt.Errorf("register ConversationDestroyed: %w", err)
	}
	return nil
}

// registerEvents registers global mailboxer events with the given bus.
// Global events use "first registration wins" - subsequent calls are no-ops.
//
// Deprecated: Global events are retained for backward compatibility.
// Per-service events are registered separately via registerServiceEvents.
func registerEvents(ctx context.Context, bus *event.Bus) error {
	events := []any{
		EventMessageDelivered,
		EventNotificationDelivered,
		EventReceiptRead,
		EventConversationDestroyed,
	}

	for _, ev := range events {
		if err := registerEvent(ctx, bus, ev); err != nil {
			return err
		}
	}

	return nil
}

func registerEvent(ctx context.Context, bus *event.Bus, ev any) error {
	switch v := ev.(type) {
	case event.Event[MessageDeliveredEvent]:
		return tryRegister(ctx, bus, v)
	case event.Event[NotificationDeliveredEvent]:
		return tryRegister(ctx, bus, v)
	case event.Event[ReceiptReadEvent]:
		return tryRegister(ctx, bus, v)
	case event.Event[ConversationDestroyedEvent]:
		return tryRegister(ctx, bus, v)
	default:
		return fmt.Errorf("mailboxer: unknown event type %T - update registerEvent switch", ev)
	}
}

// tryRegister attempts to register an event, ignoring "already bound" errors.
func tryRegister[T any](ctx context.Context, bus *event.Bus, ev event.Event[T]) error {
	err := event.Register(ctx, bus, ev)
	if err == nil {
		return nil
	}
	// Ignore "already bound" errors for global events that may have been
	// registered by a previous service instance.
	if errors.Is(err, event.ErrAlreadyBound) {
		return nil
	}
	return err
}
