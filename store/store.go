// Package store provides interfaces and types for receipt-based messaging
// storage. Implementations are in store/memory, store/postgres, and
// store/mongo subpackages.
//
// # Architectural Principle: No Distributed Locks
//
// This package is designed to avoid distributed locks entirely. Distributed
// locks introduce complexity, single points of failure, and performance
// bottlenecks. Instead, all concurrency concerns are handled through:
//
//  1. Atomic Database Operations: database-native atomic operations like
//     PostgreSQL's INSERT ON CONFLICT or MongoDB's findOneAndUpdate with
//     upsert. These are guaranteed atomic by the database engine.
//
//  2. Idempotency via Unique Constraints: instead of locking before write,
//     use unique indexes and handle conflicts via return status. Opt-outs
//     work this way: creating one that already exists is a no-op enforced
//     by the (conversation, unsubscriber) unique constraint.
//
//  3. Owner-Scoped Bulk Updates: participant state transitions are bulk
//     updates whose filters always carry the acting participant as
//     receiver. An update matching zero rows is a successful no-op, which
//     is exactly how unauthorized mutations are silently rejected.
//
//  4. Transactional Batches: a delivery (one payload plus all of its
//     receipts, plus the conversation create or touch) commits in a single
//     transaction. Either every receipt materializes or none do.
//
// Example - Concurrent Orphan Reap:
//
//	// WRONG: Distributed lock approach (DO NOT USE)
//	lock.Acquire("reap:" + conversationID)
//	defer lock.Release()
//	if store.AllReceiptsDeleted(conversationID) { store.Destroy(conversationID) }
//
//	// CORRECT: reap inside the deleting transaction
//	reaped, err := store.MarkConversationDeleted(ctx, conversationID, participant)
//	// Two racing participants each run their own transaction; the second
//	// observes the conversation already gone and reports reaped=false.
//
// This design provides:
//   - Simpler architecture (no external lock service)
//   - Better reliability (database ACID guarantees vs lock service availability)
//   - Automatic deadlock prevention (no distributed deadlocks possible)
//   - Cleaner failure handling (database transactions auto-rollback)
package store

import (
	"context"
	"time"
)

// Store is the storage interface for receipts, payloads, conversations, and
// opt-outs.
//
// All operations must be safe for concurrent use. Implementations must use
// database-level atomicity (transactions, atomic operations) rather than
// external locking mechanisms. See package documentation for details.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	// Payload operations - payloads are immutable once delivered
	PayloadStore

	// Receipt operations - all mutable per-participant state
	ReceiptStore

	// Conversation operations - thread aggregation and scoped listing
	ConversationStore

	// Opt-out operations - per-conversation unsubscriptions
	OptOutStore

	// Maintenance operations - for background cleanup tasks
	MaintenanceStore
}

// PayloadStore provides operations for message and notification payloads.
type PayloadStore interface {
	// GetPayload retrieves a payload by ID.
	// Returns ErrNotFound if the payload doesn't exist.
	GetPayload(ctx context.Context, id string) (*Payload, error)

	// GetPayloads retrieves a batch of payloads by ID. Missing IDs are
	// skipped, not errors. Used to hydrate receipt listings without an
	// N+1 query pattern.
	GetPayloads(ctx context.Context, ids []string) ([]*Payload, error)

	// CreateDelivery persists one payload and all of its receipts
	// atomically, in input order.
	//
	// This operation MUST be all-or-nothing: a failure leaves no payload,
	// no receipts, and no conversation row behind. When
	// data.Conversation is set the conversation is created in the same
	// transaction and its ID is stamped onto the payload and receipts.
	// When data.TouchConversation is set the existing conversation's
	// UpdatedAt is bumped in the same transaction.
	CreateDelivery(ctx context.Context, data DeliveryData) (*Delivery, error)
}

// ReceiptStore provides operations for receipts. All state transitions go
// through UpdateReceipts: callers compose filters (always including
// ReceiverIs for participant-facing paths) and a ReceiptUpdate.
type ReceiptStore interface {
	// GetReceipt retrieves a receipt by ID.
	// Returns ErrNotFound if the receipt doesn't exist.
	GetReceipt(ctx context.Context, id string) (*Receipt, error)

	// FindReceipts retrieves receipts matching the filters.
	FindReceipts(ctx context.Context, filters []Filter, opts ListOptions) (*ReceiptList, error)

	// CountReceipts returns the count of receipts matching the filters.
	CountReceipts(ctx context.Context, filters []Filter) (int64, error)

	// UpdateReceipts applies the update to every receipt matching the
	// filters and returns the number of receipts modified. Matching zero
	// receipts is a successful no-op returning 0 - this is the store-level
	// mechanism behind silently ignoring unauthorized state changes.
	UpdateReceipts(ctx context.Context, filters []Filter, update ReceiptUpdate) (int64, error)

	// DeleteReceipts permanently removes every receipt matching the
	// filters and returns the number removed. Payloads and conversations
	// survive; other participants keep their receipts.
	DeleteReceipts(ctx context.Context, filters []Filter) (int64, error)
}

// ConversationStore provides thread aggregation operations.
type ConversationStore interface {
	// GetConversation retrieves a conversation by ID.
	// Returns ErrNotFound if the conversation doesn't exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// FindConversations runs a participant-scoped conversation listing.
	// Results are ordered UpdatedAt descending, ID descending on ties.
	FindConversations(ctx context.Context, q ConversationQuery) (*ConversationList, error)

	// ConversationParticipants returns the distinct identities holding at
	// least one non-deleted receipt in the conversation.
	ConversationParticipants(ctx context.Context, conversationID string) ([]Identity, error)

	// ConversationMembers returns the distinct identities holding at least
	// one receipt in the conversation, deleted ones included. Replies fan
	// out to members, so a participant who deleted the thread from their
	// mailbox still receives the next message.
	ConversationMembers(ctx context.Context, conversationID string) ([]Identity, error)

	// ConversationMessages returns the payloads in the conversation for
	// which the viewer holds a non-deleted receipt, newest first.
	ConversationMessages(ctx context.Context, conversationID string, viewer Identity, opts ListOptions) (*PayloadList, error)

	// AddConversationParticipant creates an unread inbox receipt for every
	// payload in the conversation the participant does not already hold a
	// receipt for, atomically. Returns the number of receipts created.
	AddConversationParticipant(ctx context.Context, conversationID string, p Identity) (int64, error)

	// MarkConversationDeleted marks every one of the participant's
	// receipts in the conversation deleted and, in the same transaction,
	// destroys the conversation (payloads, receipts, opt-outs included)
	// if afterwards every receipt in it is deleted. Returns whether the
	// conversation was destroyed.
	//
	// Two participants racing on the same conversation are safe: each
	// transaction observes the other's committed deletions or not, and
	// at most one observes the fully-deleted state and reaps. A reap
	// racing a reap is idempotent.
	MarkConversationDeleted(ctx context.Context, conversationID string, p Identity) (reaped bool, err error)

	// TouchConversation bumps the conversation's UpdatedAt.
	TouchConversation(ctx context.Context, id string) error
}

// OptOutStore manages per-conversation unsubscriptions. Both mutations are
// idempotent via the (conversation, unsubscriber) unique constraint.
type OptOutStore interface {
	// CreateOptOut records an opt-out. Creating one that already exists
	// is a successful no-op.
	CreateOptOut(ctx context.Context, conversationID string, unsubscriber Identity) error

	// DeleteOptOut removes an opt-out. Removing one that doesn't exist
	// is a successful no-op.
	DeleteOptOut(ctx context.Context, conversationID string, unsubscriber Identity) error

	// HasOptOut reports whether the identity has opted out of the
	// conversation.
	HasOptOut(ctx context.Context, conversationID string, unsubscriber Identity) (bool, error)

	// ListOptOuts returns the identities opted out of the conversation.
	ListOptOuts(ctx context.Context, conversationID string) ([]Identity, error)
}

// MaintenanceStore provides operations for background maintenance tasks.
// These operations are designed to be safely called concurrently from
// multiple service instances without requiring distributed coordination.
type MaintenanceStore interface {
	// DeleteExpiredPayloads atomically deletes payloads whose ExpiresAt is
	// before the cutoff, along with their receipts.
	//
	// Safe to call concurrently from multiple instances: the database
	// handles atomicity and each payload is deleted exactly once.
	//
	// Returns the number of payloads deleted.
	DeleteExpiredPayloads(ctx context.Context, cutoff time.Time) (int64, error)
}
