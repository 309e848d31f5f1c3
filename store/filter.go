package store

import (
	"fmt"
)

// SortOrder represents the sort direction.
type SortOrder int

const (
	// SortAsc sorts in ascending order.
	SortAsc SortOrder = 1
	// SortDesc sorts in descending order.
	SortDesc SortOrder = -1
)

// ListOptions configures listings.
type ListOptions struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder SortOrder
}

// Filter represents a query filter with a field key, comparison operator, and value.
type Filter struct {
	key      string
	value    any
	operator string
}

// Key returns the storage field key.
func (f Filter) Key() string { return f.key }

// Value returns the filter value.
func (f Filter) Value() any { return f.value }

// Operator returns the comparison operator (eq, ne, gt, gte, lt, lte, in, nin, exists).
func (f Filter) Operator() string { return f.operator }

// FilterBuilder builds filters for a specific receipt field.
// Use ReceiptFilter() to create one, then chain a comparison method:
//
//	filter, err := store.ReceiptFilter("CreatedAt").GreaterThan(cutoff)
type FilterBuilder struct {
	key string
	err error
}

// validOperators is the set of supported filter operators.
var validOperators = map[string]bool{
	"eq":     true,
	"ne":     true,
	"gt":     true,
	"gte":    true,
	"lt":     true,
	"lte":    true,
	"in":     true,
	"nin":    true,
	"exists": true,
}

// NewFilter creates a filter with the given key, operator, and value.
// The key must be a valid receipt field (validated via ReceiptFieldKey).
// Returns ErrFilterInvalid if the key or operator is invalid.
func NewFilter(key, operator string, value any) (Filter, error) {
	storageKey, ok := ReceiptFieldKey(key)
	if !ok {
		return Filter{}, fmt.Errorf("%w: unsupported field: %s", ErrFilterInvalid, key)
	}
	if !validOperators[operator] {
		return Filter{}, fmt.Errorf("%w: unsupported operator: %s", ErrFilterInvalid, operator)
	}
	return Filter{key: storageKey, value: value, operator: operator}, nil
}

// FilterError represents an error in filter building.
type FilterError struct {
	Key string
	Err error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %s: %v", e.Key, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

func (b *FilterBuilder) build(op string, v any) (Filter, error) {
	if b.err != nil {
		return Filter{}, &FilterError{Key: b.key, Err: b.err}
	}
	return Filter{key: b.key, value: v, operator: op}, nil
}

func (b *FilterBuilder) Equal(v any) (Filter, error)            { return b.build("eq", v) }
func (b *FilterBuilder) NotEqual(v any) (Filter, error)         { return b.build("ne", v) }
func (b *FilterBuilder) GreaterThan(v any) (Filter, error)      { return b.build("gt", v) }
func (b *FilterBuilder) GreaterThanEqual(v any) (Filter, error) { return b.build("gte", v) }
func (b *FilterBuilder) LessThan(v any) (Filter, error)         { return b.build("lt", v) }
func (b *FilterBuilder) LessThanEqual(v any) (Filter, error)    { return b.build("lte", v) }
func (b *FilterBuilder) In(v ...any) (Filter, error)            { return b.build("in", v) }
func (b *FilterBuilder) NotIn(v ...any) (Filter, error)         { return b.build("nin", v) }
func (b *FilterBuilder) Exists(v bool) (Filter, error)          { return b.build("exists", v) }

// ReceiptFilter returns a filter builder for receipt fields.
func ReceiptFilter(field string) *FilterBuilder {
	key, ok := ReceiptFieldKey(field)
	if !ok {
		return &FilterBuilder{key: field, err: fmt.Errorf("unsupported field: %s", field)}
	}
	return &FilterBuilder{key: key}
}

// ReceiptFieldKey maps field names to storage keys. The special "receiver"
// key carries an Identity value and matches on both type and id.
func ReceiptFieldKey(field string) (string, bool) {
	switch field {
	case "ID", "id":
		return "id", true
	case "PayloadID", "notification_id":
		return "notification_id", true
	case "Receiver", "receiver":
		return "receiver", true
	case "ReceiverType", "receiver_type":
		return "receiver_type", true
	case "ReceiverID", "receiver_id":
		return "receiver_id", true
	case "ConversationID", "conversation_id":
		return "conversation_id", true
	case "IsRead", "is_read":
		return "is_read", true
	case "Trashed", "trashed":
		return "trashed", true
	case "Deleted", "deleted":
		return "deleted", true
	case "MailboxType", "mailbox_type":
		return "mailbox_type", true
	case "CreatedAt", "created_at":
		return "created_at", true
	case "UpdatedAt", "updated_at":
		return "updated_at", true
	default:
		return "", false
	}
}

// ReceiptOrderingKey returns the storage key for sorting.
func ReceiptOrderingKey(field string) (string, bool) {
	return ReceiptFieldKey(field)
}

// Convenience filter functions

// ReceiverIs scopes receipts to a single owner. Every participant-facing
// operation starts from this filter: a bulk update carrying it can never
// touch another participant's receipts.
func ReceiverIs(p Identity) Filter {
	f, _ := ReceiptFilter("Receiver").Equal(p)
	return f
}

// PayloadIs returns a filter for receipts of a specific payload.
func PayloadIs(payloadID string) Filter {
	f, _ := ReceiptFilter("PayloadID").Equal(payloadID)
	return f
}

// InConversation returns a filter for receipts in a specific conversation.
func InConversation(conversationID string) Filter {
	f, _ := ReceiptFilter("ConversationID").Equal(conversationID)
	return f
}

// InMailbox returns a filter for receipts in a mailbox (inbox or sentbox).
func InMailbox(mt MailboxType) Filter {
	f, _ := ReceiptFilter("MailboxType").Equal(string(mt))
	return f
}

// IsReadFilter returns a filter for read/unread receipts.
func IsReadFilter(isRead bool) Filter {
	f, _ := ReceiptFilter("IsRead").Equal(isRead)
	return f
}

// TrashedFilter returns a filter for trashed/untrashed receipts.
func TrashedFilter(trashed bool) Filter {
	f, _ := ReceiptFilter("Trashed").Equal(trashed)
	return f
}

// NotTrashed returns a filter that excludes trashed receipts.
func NotTrashed() Filter {
	return TrashedFilter(false)
}

// DeletedFilter returns a filter for deleted/undeleted receipts.
func DeletedFilter(deleted bool) Filter {
	f, _ := ReceiptFilter("Deleted").Equal(deleted)
	return f
}

// NotDeleted returns a filter that excludes deleted receipts.
func NotDeleted() Filter {
	return DeletedFilter(false)
}

// MessageReceipts returns a filter for receipts of conversation messages.
func MessageReceipts() Filter {
	f, _ := ReceiptFilter("ConversationID").NotEqual("")
	return f
}

// NotificationReceipts returns a filter for receipts of standalone
// notifications (no conversation).
func NotificationReceipts() Filter {
	f, _ := ReceiptFilter("ConversationID").Equal("")
	return f
}

// ConversationScope selects which of a participant's conversations a
// ConversationQuery returns.
type ConversationScope string

const (
	// ScopeParticipant returns every conversation the participant holds
	// receipts in, regardless of state.
	ScopeParticipant ConversationScope = "participant"
	// ScopeInbox returns conversations with non-trashed, non-deleted inbox receipts.
	ScopeInbox ConversationScope = "inbox"
	// ScopeSentbox returns conversations with non-trashed, non-deleted sentbox receipts.
	ScopeSentbox ConversationScope = "sentbox"
	// ScopeTrash returns conversations with trashed, non-deleted receipts.
	ScopeTrash ConversationScope = "trash"
	// ScopeNotTrash returns conversations with non-trashed, non-deleted receipts.
	ScopeNotTrash ConversationScope = "not_trash"
	// ScopeDeleted returns conversations with deleted receipts.
	ScopeDeleted ConversationScope = "deleted"
	// ScopeNotDeleted returns conversations with non-deleted receipts.
	ScopeNotDeleted ConversationScope = "not_deleted"
	// ScopeUnread returns conversations with unread, non-deleted receipts.
	ScopeUnread ConversationScope = "unread"
)

// ConversationQuery is a participant-scoped conversation listing request.
// Results are ordered most-recently-updated first, with ID descending as
// the tie-breaker.
type ConversationQuery struct {
	Participant Identity
	Scope       ConversationScope

	// Between restricts to conversations the other identity also holds
	// receipts in. With OnlyBetween set, the conversation's participant
	// set must be exactly {Participant, *Between}.
	Between     *Identity
	OnlyBetween bool

	// Read additionally filters the scope's receipts on is_read.
	Read *bool

	Options ListOptions
}
