package mailboxer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/full-stack-biz/mailboxer/store"
)

// SendRequest contains the data needed to start a new conversation.
type SendRequest struct {
	Recipients  []Identity
	Subject     string
	Body        string
	Attachments []store.Attachment
}

// ReplyRequest contains the data for a reply into an existing conversation.
// The subject is inherited from the conversation.
type ReplyRequest struct {
	Body        string
	Attachments []store.Attachment
}

// NotifyRequest contains the data for a standalone notification.
type NotifyRequest struct {
	// Sender is the originating participant, or nil for system notifications.
	Sender  *Identity
	Subject string
	Body    string
	// Code is an optional application-defined notification type.
	Code string
	// NotifiedObjectType and NotifiedObjectID optionally reference the
	// domain object the notification is about.
	NotifiedObjectType string
	NotifiedObjectID   string
	// Global marks the notification as a broadcast. The flag is stored on
	// the payload; receipts still materialize only for the recipients
	// passed to Notify.
	Global bool
	// ExpiresAt optionally schedules the notification for cleanup.
	ExpiresAt   *time.Time
	Attachments []store.Attachment
}

// delivery assembles everything the fan-out engine needs for one atomic
// delivery: the payload content, the pre-filter recipient set, and the
// threading directives.
type delivery struct {
	payload    store.PayloadData
	recipients []Identity

	// newConversation creates a thread for the payload.
	newConversation *store.ConversationData
	// touchConversation bumps the existing thread named by
	// payload.ConversationID.
	touchConversation bool
	// filterOptOuts drops recipients who opted out of the conversation.
	// Only replies filter: a new conversation has no opt-outs yet.
	filterOptOuts bool
	// allowNoRecipients permits a delivery whose recipient set filtered
	// down to nothing, materializing only the sender's receipt. Replies
	// into a conversation everyone unsubscribed from work this way.
	allowNoRecipients bool
}

// deliver runs the fan-out: dedupe, opt-out filtering, validation, receipt
// materialization in one transaction, then post-commit notification of
// collaborators. Returns the persisted delivery; for message deliveries
// Receipts[0] is the sender's sentbox receipt.
func (s *service) deliver(ctx context.Context, d delivery) (deliveredResult *store.Delivery, err error) {
	// Step 1: Deduplicate recipients before validation so the recipient
	// count check reflects the actual number of unique recipients. The
	// sender never appears in the recipient set: their sentbox receipt is
	// materialized separately.
	recipients := deduplicateRecipients(d.recipients, d.payload.Sender)

	// Step 2: Drop opted-out subscribers (replies only).
	if d.filterOptOuts && d.payload.ConversationID != "" {
		recipients, err = s.filterOptedOut(ctx, d.payload.ConversationID, recipients)
		if err != nil {
			return nil, err
		}
	}

	// Step 3: Sanitize, then validate (before acquiring the semaphore to
	// avoid wasting slots).
	if s.opts.sanitizer != nil {
		d.payload.Subject = s.opts.sanitizer.SanitizeSubject(d.payload.Subject)
		d.payload.Body = s.opts.sanitizer.SanitizeBody(d.payload.Body)
	}
	pending := payloadFromData(d.payload)
	if len(recipients) == 0 && d.allowNoRecipients {
		if err := ValidateBodyWithLimits(d.payload.Body, s.opts.getLimits()); err != nil {
			return nil, err
		}
	} else if err := validateDelivery(pending, recipients, s.opts.getLimits()); err != nil {
		return nil, err
	}

	// Setup tracing
	ctx, endSpan := s.otel.startSpan(ctx, "mailboxer.deliver",
		attribute.String("kind", string(d.payload.Kind)),
		attribute.Int("recipient_count", len(recipients)),
	)
	start := time.Now()
	defer func() {
		endSpan(err)
		s.otel.recordDeliver(ctx, time.Since(start), len(recipients), err)
	}()

	// Step 4: Acquire delivery semaphore
	if err = s.sendSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sendSem.Release(1)

	// Step 5: Plugin BeforeDeliver hook
	if err = s.plugins.beforeDeliver(ctx, pending, recipients); err != nil {
		return nil, err
	}

	// Step 6: Build the receipt set. The sender's sentbox receipt is
	// pre-read and leads the slice; recipient receipts follow in input
	// order. Notification receipts belong to no mailbox.
	receipts := make([]store.ReceiptData, 0, len(recipients)+1)
	if d.payload.Kind == store.KindMessage && d.payload.Sender != nil {
		receipts = append(receipts, store.ReceiptData{
			Receiver:    *d.payload.Sender,
			IsRead:      true,
			MailboxType: store.MailboxSentbox,
		})
	}
	recipientBox := store.MailboxInbox
	if d.payload.Kind == store.KindNotification {
		recipientBox = store.MailboxNone
	}
	for _, r := range recipients {
		receipts = append(receipts, store.ReceiptData{
			Receiver:    r,
			IsRead:      false,
			MailboxType: recipientBox,
		})
	}
	if len(receipts) == 0 {
		return nil, ErrEmptyRecipients
	}

	// Step 7: Persist atomically. Either every receipt materializes or
	// none do; the conversation create or touch rides the same transaction.
	result, err := s.store.CreateDelivery(ctx, store.DeliveryData{
		Payload:           d.payload,
		Receipts:          receipts,
		Conversation:      d.newConversation,
		TouchConversation: d.touchConversation,
	})
	if err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}

	// Step 8: Post-commit collaborators. None of these can fail the
	// delivery; the receipts are already durable.
	inboxReceipts := recipientReceipts(result)
	if eventErr := s.publishDelivered(ctx, result, recipients); eventErr != nil {
		return result, eventErr
	}
	s.notifyCollaborators(ctx, result, inboxReceipts)

	// Step 9: Plugin AfterDeliver hook
	if err = s.plugins.afterDeliver(ctx, result.Payload, receiptValues(inboxReceipts)); err != nil {
		return result, err
	}

	return result, nil
}

// deduplicateRecipients returns unique recipients by identity value,
// preserving first-seen order and excluding the sender.
func deduplicateRecipients(recipients []Identity, sender *Identity) []Identity {
	seen := make(map[Identity]bool, len(recipients))
	unique := make([]Identity, 0, len(recipients))
	for _, r := range recipients {
		if sender != nil && r == *sender {
			continue
		}
		if !seen[r] {
			seen[r] = true
			unique = append(unique, r)
		}
	}
	return unique
}

// filterOptedOut removes recipients who unsubscribed from the conversation.
func (s *service) filterOptedOut(ctx context.Context, conversationID string, recipients []Identity) ([]Identity, error) {
	optedOut, err := s.store.ListOptOuts(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list opt-outs: %w", err)
	}
	if len(optedOut) == 0 {
		return recipients, nil
	}

	excluded := make(map[Identity]bool, len(optedOut))
	for _, p := range optedOut {
		excluded[p] = true
	}
	kept := recipients[:0]
	for _, r := range recipients {
		if !excluded[r] {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// payloadFromData builds a transient payload for validation and plugin
// hooks before the store assigns IDs.
func payloadFromData(data store.PayloadData) *store.Payload {
	return &store.Payload{
		Kind:               data.Kind,
		Subject:            data.Subject,
		Body:               data.Body,
		Sender:             data.Sender,
		ConversationID:     data.ConversationID,
		NotifiedObjectType: data.NotifiedObjectType,
		NotifiedObjectID:   data.NotifiedObjectID,
		NotificationCode:   data.NotificationCode,
		Global:             data.Global,
		ExpiresAt:          data.ExpiresAt,
		Attachments:        data.Attachments,
	}
}

// recipientReceipts returns the non-sender receipts of a delivery.
func recipientReceipts(d *store.Delivery) []*store.Receipt {
	out := make([]*store.Receipt, 0, len(d.Receipts))
	for _, r := range d.Receipts {
		if d.Payload.Sender != nil && r.Receiver == *d.Payload.Sender {
			continue
		}
		out = append(out, r)
	}
	return out
}

func receiptValues(receipts []*store.Receipt) []store.Receipt {
	out := make([]store.Receipt, len(receipts))
	for i, r := range receipts {
		out[i] = *r
	}
	return out
}

// publishDelivered publishes the delivery event. With eventErrorsFatal the
// publish error is returned as an EventPublishError; the delivery itself is
// already committed.
func (s *service) publishDelivered(ctx context.Context, d *store.Delivery, recipients []Identity) error {
	now := time.Now().UTC()

	var eventName string
	var publishErr error
	if d.Payload.Kind == store.KindMessage {
		eventName = "MessageDelivered"
		var sender Identity
		if d.Payload.Sender != nil {
			sender = *d.Payload.Sender
		}
		publishErr = s.events.MessageDelivered.Publish(ctx, MessageDeliveredEvent{
			PayloadID:      d.Payload.ID,
			ConversationID: d.Payload.ConversationID,
			Sender:         sender,
			Recipients:     recipients,
			Subject:        d.Payload.Subject,
			DeliveredAt:    now,
		})
	} else {
		eventName = "NotificationDelivered"
		publishErr = s.events.NotificationDelivered.Publish(ctx, NotificationDeliveredEvent{
			PayloadID:   d.Payload.ID,
			Sender:      d.Payload.Sender,
			Recipients:  recipients,
			Subject:     d.Payload.Subject,
			Code:        d.Payload.NotificationCode,
			DeliveredAt: now,
		})
	}

	if publishErr != nil {
		if s.opts.eventErrorsFatal {
			return &EventPublishError{
				Event:     eventName,
				PayloadID: d.Payload.ID,
				Err:       publishErr,
			}
		}
		s.opts.safeEventPublishFailure(eventName, publishErr)
	}
	return nil
}

// notifyCollaborators runs the post-commit boundaries: delivery callback,
// search index, and the out-of-band dispatcher. Failures are logged only.
func (s *service) notifyCollaborators(ctx context.Context, d *store.Delivery, inboxReceipts []*store.Receipt) {
	if s.opts.onDeliver != nil {
		s.opts.onDeliver(d.Payload, receiptValues(inboxReceipts))
	}

	if s.opts.searchIndex != nil {
		if err := s.opts.searchIndex.Index(ctx, d.Payload); err != nil {
			s.logger.Warn("search index update failed",
				"error", err, "payload_id", d.Payload.ID)
		}
	}

	// The dispatcher only ever sees recipient receipts: the sender already
	// has the content and gets no out-of-band copy. With a resolver
	// configured, recipients without a reachable address are dropped from
	// the dispatch too.
	if s.opts.dispatcher != nil && len(inboxReceipts) > 0 {
		dispatchable := inboxReceipts
		if s.opts.resolver != nil {
			dispatchable = s.reachableReceipts(ctx, inboxReceipts)
		}
		if len(dispatchable) > 0 {
			if err := s.opts.dispatcher.Dispatch(ctx, d.Payload, receiptValues(dispatchable)); err != nil {
				s.logger.Warn("dispatcher delivery failed",
					"error", err, "payload_id", d.Payload.ID)
			}
		}
	}
}

// reachableReceipts keeps the receipts whose recipient resolves to a
// profile with an email address. Resolution failures fall back to
// dispatching everything; dispatch is best effort either way.
func (s *service) reachableReceipts(ctx context.Context, receipts []*store.Receipt) []*store.Receipt {
	ids := make([]Identity, len(receipts))
	for i, r := range receipts {
		ids[i] = r.Receiver
	}
	profiles, err := s.opts.resolver.ResolveBatch(ctx, ids)
	if err != nil || len(profiles) != len(receipts) {
		if err != nil {
			s.logger.Warn("participant resolution failed", "error", err)
		}
		return receipts
	}

	kept := make([]*store.Receipt, 0, len(receipts))
	for i, r := range receipts {
		if profiles[i] != nil && profiles[i].Email != "" {
			kept = append(kept, r)
		}
	}
	return kept
}

// Notify delivers a standalone notification to the given recipients.
func (s *service) Notify(ctx context.Context, recipients []Identity, req NotifyRequest) (*store.Payload, error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	if req.Sender != nil && !isValidIdentity(*req.Sender) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidParticipant, req.Sender.String())
	}

	result, err := s.deliver(ctx, delivery{
		payload: store.PayloadData{
			Kind:               store.KindNotification,
			Subject:            req.Subject,
			Body:               req.Body,
			Sender:             req.Sender,
			NotifiedObjectType: req.NotifiedObjectType,
			NotifiedObjectID:   req.NotifiedObjectID,
			NotificationCode:   req.Code,
			Global:             req.Global,
			ExpiresAt:          req.ExpiresAt,
			Attachments:        req.Attachments,
		},
		recipients: recipients,
	})
	if err != nil {
		return nil, err
	}
	return result.Payload, nil
}
