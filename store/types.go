package store

import (
	"fmt"
	"time"
)

// Kind discriminates the two payload types sharing one record.
type Kind string

const (
	// KindMessage is a conversation-bound message.
	KindMessage Kind = "message"
	// KindNotification is a standalone notification with no conversation.
	KindNotification Kind = "notification"
)

// MailboxType classifies a receipt within its owner's mailbox.
type MailboxType string

const (
	// MailboxInbox marks receipts delivered to a recipient.
	MailboxInbox MailboxType = "inbox"
	// MailboxSentbox marks the sender's own receipt.
	MailboxSentbox MailboxType = "sentbox"
	// MailboxNone is used for notification receipts, which belong to no box.
	MailboxNone MailboxType = ""
)

// Identity is a polymorphic participant reference (e.g. user:42, duck:7).
// Value equality defines participant sameness everywhere: recipient
// deduplication, receipt ownership checks, and opt-out matching.
type Identity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.Type == "" && i.ID == ""
}

func (i Identity) String() string {
	return fmt.Sprintf("%s:%s", i.Type, i.ID)
}

// Attachment is a descriptor for a stored attachment blob.
// The blob itself lives behind an AttachmentFileStore; payloads carry
// descriptors only.
type Attachment struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URI         string    `json:"uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// Payload is the single record type backing both messages and notifications,
// discriminated by Kind. Messages carry a ConversationID; notifications do not.
// Payloads are immutable after creation - all mutable per-participant state
// lives on receipts.
type Payload struct {
	ID                 string
	Kind               Kind
	Subject            string
	Body               string
	Sender             *Identity // nil = system-sent
	ConversationID     string    // "" for notifications
	NotifiedObjectType string
	NotifiedObjectID   string
	NotificationCode   string
	Global             bool
	ExpiresAt          *time.Time
	Attachments        []Attachment
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsMessage reports whether the payload is a conversation-bound message.
func (p *Payload) IsMessage() bool { return p.Kind == KindMessage }

// IsExpired reports whether the payload has an expiry in the past.
func (p *Payload) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Receipt holds one participant's state for one payload. Every delivery
// materializes one receipt per recipient plus one for the sender; state on
// one participant's receipt is never observable through another's.
type Receipt struct {
	ID             string
	PayloadID      string
	Receiver       Identity
	ConversationID string // denormalized from the payload, "" for notifications
	IsRead         bool
	Trashed        bool
	Deleted        bool
	MailboxType    MailboxType
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Conversation groups messages. UpdatedAt is bumped inside the delivery
// transaction on every reply.
type Conversation struct {
	ID        string
	Subject   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OptOut records a participant's unsubscription from a conversation.
// Unique per (conversation, unsubscriber).
type OptOut struct {
	ConversationID string
	Unsubscriber   Identity
	CreatedAt      time.Time
}

// ReceiptUpdate describes a bulk receipt state change. Nil fields are left
// untouched. Use the preallocated pointers from the root package or take the
// address of a local.
type ReceiptUpdate struct {
	IsRead      *bool
	Trashed     *bool
	Deleted     *bool
	MailboxType *MailboxType
}

// IsZero reports whether the update would change nothing.
func (u ReceiptUpdate) IsZero() bool {
	return u.IsRead == nil && u.Trashed == nil && u.Deleted == nil && u.MailboxType == nil
}

// PayloadData contains data for creating a new payload. The store assigns
// the ID and timestamps.
type PayloadData struct {
	Kind               Kind
	Subject            string
	Body               string
	Sender             *Identity
	ConversationID     string
	NotifiedObjectType string
	NotifiedObjectID   string
	NotificationCode   string
	Global             bool
	ExpiresAt          *time.Time
	Attachments        []Attachment
}

// ReceiptData contains data for materializing one receipt of a delivery.
type ReceiptData struct {
	Receiver    Identity
	IsRead      bool
	MailboxType MailboxType
}

// ConversationData contains data for creating a conversation as part of a
// delivery.
type ConversationData struct {
	Subject string
}

// DeliveryData is the unit of atomic fan-out: one payload plus all of its
// receipts, persisted in a single transaction. Exactly one of Conversation
// and TouchConversation applies to message payloads: Conversation non-nil
// creates the thread (its ID overrides Payload.ConversationID),
// TouchConversation bumps the existing thread's UpdatedAt.
type DeliveryData struct {
	Payload           PayloadData
	Receipts          []ReceiptData
	Conversation      *ConversationData
	TouchConversation bool
}

// Delivery is the persisted result of a DeliveryData. Receipts are in the
// same order as the input ReceiptData.
type Delivery struct {
	Payload      *Payload
	Receipts     []*Receipt
	Conversation *Conversation // non-nil when created by this delivery
}

// ReceiptList represents a paginated list of receipts.
type ReceiptList struct {
	Receipts []*Receipt
	Total    int64
	HasMore  bool
}

// PayloadList represents a paginated list of payloads.
type PayloadList struct {
	Payloads []*Payload
	Total    int64
	HasMore  bool
}

// ConversationList represents a paginated list of conversations.
type ConversationList struct {
	Conversations []*Conversation
	Total         int64
	HasMore       bool
}
