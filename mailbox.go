package mailboxer

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/full-stack-biz/mailboxer/store"
)

// ReceiptReader provides single receipt retrieval.
type ReceiptReader interface {
	Receipt(ctx context.Context, receiptID string) (*Receipt, error)
}

// ReceiptLister provides receipt listing by mailbox.
type ReceiptLister interface {
	Inbox(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error)
	Sentbox(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error)
	Trash(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error)
	Notifications(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error)
	// Receipts lists the participant's receipts matching arbitrary filters.
	// The owner filter is always prepended.
	Receipts(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*ReceiptPage, error)
	UnreadInboxCount(ctx context.Context) (int64, error)
	// Stream returns a batch-fetching iterator over the participant's
	// non-deleted receipts for memory-bounded processing.
	Stream(ctx context.Context, filters []store.Filter, opts StreamOptions) (ReceiptIterator, error)
}

// ConversationLister provides participant-scoped conversation listings.
type ConversationLister interface {
	Conversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error)
	InboxConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error)
	SentboxConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error)
	TrashConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error)
	UnreadConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error)
	ConversationsWith(ctx context.Context, other Identity, opts store.ListOptions) (*ConversationPage, error)
	ConversationsOnlyWith(ctx context.Context, other Identity, opts store.ListOptions) (*ConversationPage, error)
	// ScopedConversations lists conversations in an arbitrary scope,
	// optionally narrowed by receipt read state. A nil read matches both.
	ScopedConversations(ctx context.Context, scope store.ConversationScope, read *bool, opts store.ListOptions) (*ConversationPage, error)
}

// MessageSender provides delivery entry points.
type MessageSender interface {
	// SendMessage starts a new conversation with the given recipients.
	// Returns the sender's sentbox receipt.
	SendMessage(ctx context.Context, req SendRequest) (*Receipt, error)
	// ReplyToConversation replies to every current subscriber of the
	// conversation. Returns the sender's sentbox receipt.
	ReplyToConversation(ctx context.Context, conversationID string, req ReplyRequest) (*Receipt, error)
	// ReplyToReceipt replies into the conversation of one of the
	// participant's own receipts.
	ReplyToReceipt(ctx context.Context, receiptID string, req ReplyRequest) (*Receipt, error)
}

// ReceiptMutator provides owner-scoped receipt state transitions by ID.
// Every transition is a bulk update filtered on the acting participant:
// applying one to a receipt held by someone else silently does nothing.
type ReceiptMutator interface {
	UpdateFlags(ctx context.Context, receiptID string, flags Flags) error
	MarkReceiptRead(ctx context.Context, receiptID string) error
	MarkReceiptUnread(ctx context.Context, receiptID string) error
	TrashReceipt(ctx context.Context, receiptID string) error
	UntrashReceipt(ctx context.Context, receiptID string) error
	DeleteReceipt(ctx context.Context, receiptID string) error
	UndeleteReceipt(ctx context.Context, receiptID string) error
	MoveReceiptToInbox(ctx context.Context, receiptID string) error
	MoveReceiptToSentbox(ctx context.Context, receiptID string) error
}

// ConversationMutator provides thread-level transitions for the
// participant's receipts in a conversation.
type ConversationMutator interface {
	MarkConversationRead(ctx context.Context, conversationID string) error
	MarkConversationUnread(ctx context.Context, conversationID string) error
	TrashConversation(ctx context.Context, conversationID string) error
	UntrashConversation(ctx context.Context, conversationID string) error
	// UndeleteConversation restores the participant's soft-deleted receipts
	// in the conversation, unless the conversation was already reaped.
	UndeleteConversation(ctx context.Context, conversationID string) error
	// DeleteConversation soft-deletes the participant's receipts and reaps
	// the conversation if no receipt survives. Returns whether it reaped.
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)
}

// AttachmentClient provides attachment content access.
type AttachmentClient interface {
	UploadAttachment(ctx context.Context, filename, contentType string, size int64, content io.Reader) (store.Attachment, error)
	LoadAttachment(ctx context.Context, receiptID, attachmentID string) (io.ReadCloser, error)
}

// Mailbox provides messaging functionality for one participant.
// This is the main interface for participant-facing operations.
//
// Composed of focused interfaces:
//   - ReceiptReader / ReceiptLister: receipt retrieval and mailbox listings
//   - ConversationLister: scoped conversation listings
//   - MessageSender: delivery entry points
//   - ReceiptMutator / ConversationMutator: owner-scoped state transitions
//   - AttachmentClient: attachment content
type Mailbox interface {
	Participant() Identity
	ReceiptReader
	ReceiptLister
	ConversationLister
	MessageSender
	ReceiptMutator
	ConversationMutator
	AttachmentClient

	// MarkAllRead marks every one of the participant's receipts as read.
	MarkAllRead(ctx context.Context) error
	// EmptyTrash permanently removes the participant's trashed receipts.
	// Other participants keep theirs; conversations survive even when the
	// last receipt inside goes, since only the delete path reaps.
	EmptyTrash(ctx context.Context) (int64, error)
	// Stats returns mailbox counters for the participant.
	Stats(ctx context.Context) (*store.MailboxStats, error)
}

// participantMailbox is the default implementation of Mailbox.
type participantMailbox struct {
	participant   Identity
	service       *service
	validIdentity bool // set by Mailbox() after validation
}

// Participant returns the identity this mailbox belongs to.
func (m *participantMailbox) Participant() Identity {
	return m.participant
}

// isConnected checks if the service is connected.
func (m *participantMailbox) isConnected() bool {
	return atomic.LoadInt32(&m.service.state) == stateConnected
}

// checkAccess verifies the mailbox is ready for operations.
// Returns ErrNotConnected if service isn't connected,
// or ErrInvalidParticipant if the identity failed validation.
func (m *participantMailbox) checkAccess() error {
	if !m.isConnected() {
		return ErrNotConnected
	}
	if !m.validIdentity {
		return fmt.Errorf("%w: %q", ErrInvalidParticipant, m.participant.String())
	}
	return nil
}

// ownerFilter scopes a query to this participant's receipts.
func (m *participantMailbox) ownerFilter() store.Filter {
	return store.ReceiverIs(m.participant)
}

// --- Delivery ---

// SendMessage starts a new conversation with the given recipients.
func (m *participantMailbox) SendMessage(ctx context.Context, req SendRequest) (*Receipt, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	sender := m.participant
	result, err := m.service.deliver(ctx, delivery{
		payload: store.PayloadData{
			Kind:        store.KindMessage,
			Subject:     req.Subject,
			Body:        req.Body,
			Sender:      &sender,
			Attachments: req.Attachments,
		},
		recipients:      req.Recipients,
		newConversation: &store.ConversationData{Subject: req.Subject},
	})
	if err != nil {
		return nil, err
	}
	return m.senderReceipt(result)
}

// ReplyToConversation replies to every current subscriber of the
// conversation. Participants who opted out receive nothing; a reply into a
// conversation everyone unsubscribed from still materializes the sender's
// sentbox receipt.
func (m *participantMailbox) ReplyToConversation(ctx context.Context, conversationID string, req ReplyRequest) (*Receipt, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if conversationID == "" {
		return nil, ErrConversationRequired
	}

	conv, err := m.service.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	// Membership spans every receipt holder, deleted ones included: a
	// participant who cleared the thread from their mailbox can still
	// reply and still receives replies. Only strangers are rejected, and
	// only an active opt-out excludes a member from the fan-out.
	members, err := m.service.store.ConversationMembers(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation members: %w", err)
	}
	isMember := false
	for _, p := range members {
		if p == m.participant {
			isMember = true
			break
		}
	}
	if !isMember {
		return nil, ErrUnauthorized
	}

	sender := m.participant
	result, err := m.service.deliver(ctx, delivery{
		payload: store.PayloadData{
			Kind:           store.KindMessage,
			Subject:        conv.Subject,
			Body:           req.Body,
			Sender:         &sender,
			ConversationID: conversationID,
			Attachments:    req.Attachments,
		},
		recipients:        members,
		touchConversation: true,
		filterOptOuts:     true,
		allowNoRecipients: true,
	})
	if err != nil {
		return nil, err
	}
	return m.senderReceipt(result)
}

// ReplyToReceipt replies into the conversation behind one of the
// participant's own receipts.
func (m *participantMailbox) ReplyToReceipt(ctx context.Context, receiptID string, req ReplyRequest) (*Receipt, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	receipt, err := m.service.store.GetReceipt(ctx, receiptID)
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	if receipt.Receiver != m.participant {
		return nil, ErrUnauthorized
	}
	if receipt.ConversationID == "" {
		return nil, ErrNotAMessage
	}

	return m.ReplyToConversation(ctx, receipt.ConversationID, req)
}

// senderReceipt extracts the sender's sentbox receipt from a delivery.
func (m *participantMailbox) senderReceipt(d *store.Delivery) (*Receipt, error) {
	for _, r := range d.Receipts {
		if r.Receiver == m.participant && r.MailboxType == store.MailboxSentbox {
			return newReceipt(r, m), nil
		}
	}
	return nil, fmt.Errorf("mailboxer: delivery %s has no sender receipt", d.Payload.ID)
}

// --- Retrieval ---

// Receipt retrieves one of the participant's receipts by ID.
// Receipts held by other participants are reported as ErrUnauthorized.
func (m *participantMailbox) Receipt(ctx context.Context, receiptID string) (*Receipt, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	// OTel tracing
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailboxer.get",
		attribute.String("participant", m.participant.String()),
		attribute.String("receipt_id", receiptID),
	)
	start := time.Now()
	var getErr error
	defer func() {
		endSpan(getErr)
		m.service.otel.recordGet(ctx, time.Since(start), getErr)
	}()

	receipt, storeErr := m.service.store.GetReceipt(ctx, receiptID)
	if storeErr != nil {
		getErr = storeErr
		return nil, fmt.Errorf("get receipt: %w", storeErr)
	}

	if receipt.Receiver != m.participant {
		getErr = ErrUnauthorized
		return nil, ErrUnauthorized
	}

	return newReceipt(receipt, m), nil
}

// Inbox returns the participant's received message receipts, excluding
// trashed and deleted ones.
func (m *participantMailbox) Inbox(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error) {
	return m.listWithOTel(ctx, "inbox", opts, func() []store.Filter {
		return []store.Filter{
			m.ownerFilter(),
			store.InMailbox(store.MailboxInbox),
			store.NotTrashed(),
			store.NotDeleted(),
		}
	})
}

// Sentbox returns the participant's sent message receipts, excluding
// trashed and deleted ones.
func (m *participantMailbox) Sentbox(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error) {
	return m.listWithOTel(ctx, "sentbox", opts, func() []store.Filter {
		return []store.Filter{
			m.ownerFilter(),
			store.InMailbox(store.MailboxSentbox),
			store.NotTrashed(),
			store.NotDeleted(),
		}
	})
}

// Trash returns the participant's trashed receipts across both mailboxes,
// excluding deleted ones.
func (m *participantMailbox) Trash(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error) {
	return m.listWithOTel(ctx, "trash", opts, func() []store.Filter {
		return []store.Filter{
			m.ownerFilter(),
			store.TrashedFilter(true),
			store.NotDeleted(),
		}
	})
}

// Notifications returns the participant's standalone notification receipts,
// excluding trashed and deleted ones.
func (m *participantMailbox) Notifications(ctx context.Context, opts store.ListOptions) (*ReceiptPage, error) {
	return m.listWithOTel(ctx, "notifications", opts, func() []store.Filter {
		return []store.Filter{
			m.ownerFilter(),
			store.NotificationReceipts(),
			store.NotTrashed(),
			store.NotDeleted(),
		}
	})
}

// Receipts returns the participant's receipts matching the given filters.
// The owner filter is always prepended, so the listing never leaks another
// participant's receipts. Trashed and deleted receipts are included unless
// filtered out by the caller.
func (m *participantMailbox) Receipts(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*ReceiptPage, error) {
	return m.listWithOTel(ctx, "custom", opts, func() []store.Filter {
		return append([]store.Filter{m.ownerFilter()}, filters...)
	})
}

// UnreadInboxCount returns the number of unread inbox receipts.
func (m *participantMailbox) UnreadInboxCount(ctx context.Context) (int64, error) {
	if err := m.checkAccess(); err != nil {
		return 0, err
	}

	count, err := m.service.store.CountReceipts(ctx, []store.Filter{
		m.ownerFilter(),
		store.InMailbox(store.MailboxInbox),
		store.IsReadFilter(false),
		store.NotTrashed(),
		store.NotDeleted(),
	})
	if err != nil {
		return 0, fmt.Errorf("count receipts: %w", err)
	}
	return count, nil
}

// listWithOTel is a helper that adds OTel instrumentation to receipt listings.
func (m *participantMailbox) listWithOTel(ctx context.Context, mailbox string, opts store.ListOptions, getFilters func() []store.Filter) (*ReceiptPage, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	// OTel tracing
	ctx, endSpan := m.service.otel.startSpan(ctx, "mailboxer.list",
		attribute.String("participant", m.participant.String()),
		attribute.String("mailbox", mailbox),
	)
	start := time.Now()
	var listErr error
	var resultCount int
	defer func() {
		endSpan(listErr)
		m.service.otel.recordList(ctx, time.Since(start), mailbox, resultCount, listErr)
	}()

	list, err := m.listReceipts(ctx, getFilters(), opts)
	if err != nil {
		listErr = err
		return nil, err
	}
	resultCount = len(list.Receipts)

	return newReceiptPage(list, m), nil
}

func (m *participantMailbox) listReceipts(ctx context.Context, filters []store.Filter, opts store.ListOptions) (*store.ReceiptList, error) {
	// Apply default query limit if not specified
	if opts.Limit == 0 {
		opts.Limit = m.service.opts.defaultQueryLimit
	}
	// Enforce maximum query limit to prevent resource exhaustion
	if opts.Limit > m.service.opts.maxQueryLimit {
		opts.Limit = m.service.opts.maxQueryLimit
	}
	if opts.SortBy == "" {
		opts.SortBy = "created_at"
		opts.SortOrder = store.SortDesc
	}

	list, err := m.service.store.FindReceipts(ctx, filters, opts)
	if err != nil {
		return nil, fmt.Errorf("find receipts: %w", err)
	}
	return list, nil
}

// --- Conversation listings ---

// Conversations returns every conversation the participant holds receipts
// in, most recently updated first.
func (m *participantMailbox) Conversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error) {
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       store.ScopeNotDeleted,
		Options:     opts,
	})
}

// InboxConversations returns conversations with live inbox receipts.
func (m *participantMailbox) InboxConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error) {
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       store.ScopeInbox,
		Options:     opts,
	})
}

// SentboxConversations returns conversations with live sentbox receipts.
func (m *participantMailbox) SentboxConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error) {
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       store.ScopeSentbox,
		Options:     opts,
	})
}

// TrashConversations returns conversations whose surviving receipts are all
// in trash.
func (m *participantMailbox) TrashConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error) {
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       store.ScopeTrash,
		Options:     opts,
	})
}

// UnreadConversations returns conversations holding at least one unread
// receipt for the participant.
func (m *participantMailbox) UnreadConversations(ctx context.Context, opts store.ListOptions) (*ConversationPage, error) {
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       store.ScopeUnread,
		Options:     opts,
	})
}

// ConversationsWith returns conversations the other identity also
// participates in.
func (m *participantMailbox) ConversationsWith(ctx context.Context, other Identity, opts store.ListOptions) (*ConversationPage, error) {
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       store.ScopeNotDeleted,
		Between:     &other,
		Options:     opts,
	})
}

// ConversationsOnlyWith returns conversations whose participant set is
// exactly this participant and the other identity.
func (m *participantMailbox) ConversationsOnlyWith(ctx context.Context, other Identity, opts store.ListOptions) (*ConversationPage, error) {
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       store.ScopeNotDeleted,
		Between:     &other,
		OnlyBetween: true,
		Options:     opts,
	})
}

// ScopedConversations lists the participant's conversations in the given
// scope, optionally narrowed by read state: with read set, only receipts
// matching it count toward the scope, so a fully-read thread shows up
// under read=true and a thread with any unread receipt under read=false.
func (m *participantMailbox) ScopedConversations(ctx context.Context, scope store.ConversationScope, read *bool, opts store.ListOptions) (*ConversationPage, error) {
	if scope == "" {
		scope = store.ScopeNotDeleted
	}
	return m.listConversations(ctx, store.ConversationQuery{
		Participant: m.participant,
		Scope:       scope,
		Read:        read,
		Options:     opts,
	})
}

func (m *participantMailbox) listConversations(ctx context.Context, q store.ConversationQuery) (*ConversationPage, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	if q.Options.Limit == 0 {
		q.Options.Limit = m.service.opts.defaultQueryLimit
	}
	if q.Options.Limit > m.service.opts.maxQueryLimit {
		q.Options.Limit = m.service.opts.maxQueryLimit
	}

	list, err := m.service.store.FindConversations(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}

	conversations := make([]*Conversation, len(list.Conversations))
	for i, conv := range list.Conversations {
		conversations[i] = newConversation(conv, m.service)
	}
	return &ConversationPage{
		Conversations: conversations,
		Total:         list.Total,
		HasMore:       list.HasMore,
	}, nil
}

// ConversationPage is a page of conversation handles.
type ConversationPage struct {
	Conversations []*Conversation
	Total         int64
	HasMore       bool
}

// --- Receipt state transitions ---

// UpdateFlags applies receipt state changes by ID. The update is scoped to
// the participant's own receipts: targeting a receipt held by someone else
// changes nothing and returns nil.
func (m *participantMailbox) UpdateFlags(ctx context.Context, receiptID string, flags Flags) error {
	return m.updateByID(ctx, receiptID, "update_flags", flags)
}

// MarkReceiptRead marks one of the participant's receipts as read.
func (m *participantMailbox) MarkReceiptRead(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "mark_read", FlagsMarkRead)
}

// MarkReceiptUnread marks one of the participant's receipts as unread.
func (m *participantMailbox) MarkReceiptUnread(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "mark_unread", FlagsMarkUnread)
}

// TrashReceipt moves one of the participant's receipts to trash.
func (m *participantMailbox) TrashReceipt(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "trash", FlagsTrash)
}

// UntrashReceipt restores one of the participant's receipts from trash.
func (m *participantMailbox) UntrashReceipt(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "untrash", FlagsUntrash)
}

// DeleteReceipt soft-deletes one of the participant's receipts. The payload
// and other participants' receipts survive.
func (m *participantMailbox) DeleteReceipt(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "delete", FlagsDelete)
}

// UndeleteReceipt restores one of the participant's soft-deleted receipts.
// A receipt already purged by a conversation reap or EmptyTrash is gone
// for good.
func (m *participantMailbox) UndeleteReceipt(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "undelete", FlagsUndelete)
}

// MoveReceiptToInbox moves one of the participant's receipts to the inbox,
// restoring it from trash.
func (m *participantMailbox) MoveReceiptToInbox(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "move_to_inbox", FlagsMoveToInbox)
}

// MoveReceiptToSentbox moves one of the participant's receipts to the
// sentbox, restoring it from trash.
func (m *participantMailbox) MoveReceiptToSentbox(ctx context.Context, receiptID string) error {
	return m.updateByID(ctx, receiptID, "move_to_sentbox", FlagsMoveToSentbox)
}

// updateByID applies flags to one receipt, owner-scoped. A zero-match
// update (foreign or missing receipt) is a silent, successful no-op.
func (m *participantMailbox) updateByID(ctx context.Context, receiptID string, op string, flags Flags) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if flags.IsZero() {
		return nil
	}

	idFilter, err := store.ReceiptFilter("ID").Equal(receiptID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFilterInvalid, err)
	}

	start := time.Now()
	modified, err := m.service.store.UpdateReceipts(ctx, []store.Filter{
		m.ownerFilter(),
		idFilter,
	}, flags.update())
	m.service.otel.recordUpdate(ctx, time.Since(start), op, err)
	if err != nil {
		return fmt.Errorf("update receipts: %w", err)
	}

	// Publish read event only when a receipt actually transitioned to read.
	if modified > 0 && flags.Read != nil && *flags.Read {
		return m.publishReceiptRead(ctx, receiptID)
	}
	return nil
}

func (m *participantMailbox) publishReceiptRead(ctx context.Context, receiptID string) error {
	receipt, err := m.service.store.GetReceipt(ctx, receiptID)
	if err != nil {
		// The state change is already durable; a stale handle is not fatal.
		m.service.logger.Warn("failed to load receipt for read event",
			"error", err, "receipt_id", receiptID)
		return nil
	}

	if err := m.service.events.ReceiptRead.Publish(ctx, ReceiptReadEvent{
		ReceiptID:      receipt.ID,
		PayloadID:      receipt.PayloadID,
		ConversationID: receipt.ConversationID,
		Receiver:       receipt.Receiver,
		ReadAt:         time.Now().UTC(),
	}); err != nil {
		if m.service.opts.eventErrorsFatal {
			return &EventPublishError{
				Event:     "ReceiptRead",
				PayloadID: receipt.PayloadID,
				Err:       err,
			}
		}
		m.service.opts.safeEventPublishFailure("ReceiptRead", err)
	}
	return nil
}

// MarkAllRead marks every one of the participant's receipts as read.
func (m *participantMailbox) MarkAllRead(ctx context.Context) error {
	if err := m.checkAccess(); err != nil {
		return err
	}

	start := time.Now()
	_, err := m.service.store.UpdateReceipts(ctx, []store.Filter{
		m.ownerFilter(),
		store.IsReadFilter(false),
	}, store.ReceiptUpdate{IsRead: ptrTrue})
	m.service.otel.recordUpdate(ctx, time.Since(start), "mark_all_read", err)
	if err != nil {
		return fmt.Errorf("update receipts: %w", err)
	}
	return nil
}

// --- Conversation transitions ---

// MarkConversationRead marks the participant's receipts in the conversation
// as read.
func (m *participantMailbox) MarkConversationRead(ctx context.Context, conversationID string) error {
	return m.conversationOp(ctx, conversationID, func(c *Conversation) error {
		return c.MarkReadFor(ctx, m.participant)
	})
}

// MarkConversationUnread marks the participant's receipts in the
// conversation as unread.
func (m *participantMailbox) MarkConversationUnread(ctx context.Context, conversationID string) error {
	return m.conversationOp(ctx, conversationID, func(c *Conversation) error {
		return c.MarkUnreadFor(ctx, m.participant)
	})
}

// TrashConversation moves the participant's receipts in the conversation to
// trash.
func (m *participantMailbox) TrashConversation(ctx context.Context, conversationID string) error {
	return m.conversationOp(ctx, conversationID, func(c *Conversation) error {
		return c.TrashFor(ctx, m.participant)
	})
}

// UntrashConversation restores the participant's receipts in the
// conversation from trash.
func (m *participantMailbox) UntrashConversation(ctx context.Context, conversationID string) error {
	return m.conversationOp(ctx, conversationID, func(c *Conversation) error {
		return c.UntrashFor(ctx, m.participant)
	})
}

// UndeleteConversation restores the participant's soft-deleted receipts in
// the conversation.
func (m *participantMailbox) UndeleteConversation(ctx context.Context, conversationID string) error {
	return m.conversationOp(ctx, conversationID, func(c *Conversation) error {
		return c.UndeleteFor(ctx, m.participant)
	})
}

// DeleteConversation soft-deletes the participant's receipts in the
// conversation and reaps it if nothing survives.
func (m *participantMailbox) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	if err := m.checkAccess(); err != nil {
		return false, err
	}
	if conversationID == "" {
		return false, fmt.Errorf("%w: empty conversation ID", ErrInvalidID)
	}
	c := newConversation(&store.Conversation{ID: conversationID}, m.service)
	return c.DeleteFor(ctx, m.participant)
}

func (m *participantMailbox) conversationOp(ctx context.Context, conversationID string, op func(*Conversation) error) error {
	if err := m.checkAccess(); err != nil {
		return err
	}
	if conversationID == "" {
		return fmt.Errorf("%w: empty conversation ID", ErrInvalidID)
	}
	return op(newConversation(&store.Conversation{ID: conversationID}, m.service))
}

// --- Trash maintenance ---

// EmptyTrash permanently removes the participant's trashed receipts.
// This never destroys conversations: a conversation survives its last
// receipt being purged here, because only the soft-delete path reaps.
func (m *participantMailbox) EmptyTrash(ctx context.Context) (int64, error) {
	if err := m.checkAccess(); err != nil {
		return 0, err
	}

	deleted, err := m.service.store.DeleteReceipts(ctx, []store.Filter{
		m.ownerFilter(),
		store.TrashedFilter(true),
	})
	if err != nil {
		return 0, fmt.Errorf("delete receipts: %w", err)
	}
	if deleted > 0 {
		m.service.logger.Debug("emptied trash",
			"participant", m.participant.String(), "count", deleted)
	}
	return deleted, nil
}

// --- Stats ---

// Stats returns mailbox counters for the participant. When the store
// implements store.StatsStore the counters come from a single aggregation
// query; otherwise they are assembled from individual counts.
func (m *participantMailbox) Stats(ctx context.Context) (*store.MailboxStats, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}

	// Fast path: single aggregation query.
	if ss, ok := m.service.store.(store.StatsStore); ok {
		stats, err := ss.MailboxStats(ctx, m.participant)
		if err != nil {
			return nil, fmt.Errorf("mailbox stats: %w", err)
		}
		return stats, nil
	}

	// Slow path: individual counts.
	stats := &store.MailboxStats{}
	counts := []struct {
		dst     *int64
		filters []store.Filter
	}{
		{&stats.Inbox, []store.Filter{m.ownerFilter(), store.InMailbox(store.MailboxInbox), store.NotTrashed(), store.NotDeleted()}},
		{&stats.InboxUnread, []store.Filter{m.ownerFilter(), store.InMailbox(store.MailboxInbox), store.IsReadFilter(false), store.NotTrashed(), store.NotDeleted()}},
		{&stats.Sentbox, []store.Filter{m.ownerFilter(), store.InMailbox(store.MailboxSentbox), store.NotTrashed(), store.NotDeleted()}},
		{&stats.Trash, []store.Filter{m.ownerFilter(), store.TrashedFilter(true), store.NotDeleted()}},
		{&stats.Notifications, []store.Filter{m.ownerFilter(), store.NotificationReceipts(), store.NotTrashed(), store.NotDeleted()}},
	}
	for _, c := range counts {
		n, err := m.service.store.CountReceipts(ctx, c.filters)
		if err != nil {
			return nil, fmt.Errorf("count receipts: %w", err)
		}
		*c.dst = n
	}
	return stats, nil
}

// --- Attachments ---

// UploadAttachment stores attachment content and returns the descriptor to
// embed in a SendRequest or ReplyRequest.
func (m *participantMailbox) UploadAttachment(ctx context.Context, filename, contentType string, size int64, content io.Reader) (store.Attachment, error) {
	if err := m.checkAccess(); err != nil {
		return store.Attachment{}, err
	}
	if m.service.attachments == nil {
		return store.Attachment{}, ErrAttachmentStoreNotConfigured
	}
	if filename == "" {
		return store.Attachment{}, fmt.Errorf("%w: attachment filename is required", ErrInvalidAttachment)
	}
	if size > m.service.opts.maxAttachmentSize {
		return store.Attachment{}, fmt.Errorf("%w: attachment %q size %d exceeds max %d bytes",
			ErrAttachmentTooLarge, filename, size, m.service.opts.maxAttachmentSize)
	}
	if err := ValidateMIMEType(contentType, nil, DefaultBlockedMIMETypes()); err != nil {
		return store.Attachment{}, fmt.Errorf("%w: attachment %q: %v", ErrInvalidMIMEType, filename, err)
	}

	uri, err := m.service.attachments.Upload(ctx, filename, contentType, content)
	if err != nil {
		return store.Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}
	return store.Attachment{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		URI:         uri,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// LoadAttachment loads attachment content from one of the participant's
// receipts.
func (m *participantMailbox) LoadAttachment(ctx context.Context, receiptID, attachmentID string) (io.ReadCloser, error) {
	if err := m.checkAccess(); err != nil {
		return nil, err
	}
	if m.service.attachments == nil {
		return nil, ErrAttachmentStoreNotConfigured
	}

	receipt, err := m.Receipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	payload, err := receipt.Payload(ctx)
	if err != nil {
		return nil, err
	}

	for _, a := range payload.Attachments {
		if a.ID == attachmentID {
			return m.service.attachments.Load(ctx, a.URI)
		}
	}
	return nil, fmt.Errorf("%w: attachment %s", ErrNotFound, attachmentID)
}
