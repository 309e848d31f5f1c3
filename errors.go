package mailboxer

import (
	"errors"
	"fmt"

	"github.com/full-stack-biz/mailboxer/store"
)

// Sentinel errors for the mailboxer package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, mailboxer.ErrNotFound) will match both service-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message, notification, receipt or
	// conversation cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("mailboxer: %w", store.ErrNotFound)

	// ErrUnauthorized is returned when a participant doesn't have access
	// to a conversation or receipt.
	ErrUnauthorized = errors.New("mailboxer: unauthorized")

	// ErrInvalidMessage is returned for message validation failures.
	ErrInvalidMessage = errors.New("mailboxer: invalid message")

	// ErrEmptyRecipients is returned when no recipients are provided.
	// Wraps store.ErrEmptyReceipts for consistent error checking.
	ErrEmptyRecipients = fmt.Errorf("mailboxer: %w", store.ErrEmptyReceipts)

	// ErrEmptySubject is returned when a conversation subject is blank.
	ErrEmptySubject = errors.New("mailboxer: empty subject")

	// ErrEmptyBody is returned when a message body is blank.
	ErrEmptyBody = errors.New("mailboxer: empty body")

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("mailboxer: store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("mailboxer: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("mailboxer: %w", store.ErrAlreadyConnected)

	// ErrInvalidID is returned when an invalid ID is provided.
	// Wraps store.ErrInvalidID for consistent error checking.
	ErrInvalidID = fmt.Errorf("mailboxer: %w", store.ErrInvalidID)

	// ErrInvalidParticipant is returned when a participant identity is
	// missing its type or ID.
	// Wraps store.ErrInvalidIdentity for consistent error checking.
	ErrInvalidParticipant = fmt.Errorf("mailboxer: %w", store.ErrInvalidIdentity)

	// ErrDuplicateEntry is returned when a duplicate entry is detected.
	// Wraps store.ErrDuplicateEntry for consistent error checking.
	ErrDuplicateEntry = fmt.Errorf("mailboxer: %w", store.ErrDuplicateEntry)

	// ErrFilterInvalid is returned when a filter is invalid.
	// Wraps store.ErrFilterInvalid for consistent error checking.
	ErrFilterInvalid = fmt.Errorf("mailboxer: %w", store.ErrFilterInvalid)

	// ErrEventClientRequired is returned when event client is nil.
	ErrEventClientRequired = errors.New("mailboxer: event client is required")

	// ErrSubjectTooLong is returned when subject exceeds maximum length.
	ErrSubjectTooLong = errors.New("mailboxer: subject too long")

	// ErrBodyTooLarge is returned when body exceeds maximum size.
	ErrBodyTooLarge = errors.New("mailboxer: body too large")

	// ErrInvalidContent is returned when message content contains invalid characters.
	ErrInvalidContent = errors.New("mailboxer: invalid content")

	// ErrTooManyRecipients is returned when recipient count exceeds the limit.
	ErrTooManyRecipients = errors.New("mailboxer: too many recipients")

	// ErrTooManyAttachments is returned when attachment count exceeds the limit.
	ErrTooManyAttachments = errors.New("mailboxer: too many attachments")

	// ErrAttachmentTooLarge is returned when an attachment exceeds the size limit.
	ErrAttachmentTooLarge = errors.New("mailboxer: attachment too large")

	// ErrInvalidAttachment is returned when attachment data is invalid.
	ErrInvalidAttachment = errors.New("mailboxer: invalid attachment")

	// ErrInvalidMIMEType is returned when an attachment has an invalid or disallowed MIME type.
	ErrInvalidMIMEType = errors.New("mailboxer: invalid mime type")

	// ErrAttachmentStoreNotConfigured is returned when no attachment file
	// store was configured but attachment content access was requested.
	ErrAttachmentStoreNotConfigured = errors.New("mailboxer: attachment store not configured")

	// ErrNotAMessage is returned when a conversation operation is invoked
	// on a notification receipt.
	ErrNotAMessage = errors.New("mailboxer: receipt is not a message")

	// ErrConversationRequired is returned when a reply is attempted
	// without a conversation.
	ErrConversationRequired = errors.New("mailboxer: conversation is required")
)

// IsRetryableError determines if an error is retryable.
// Returns true for temporary/transient errors, false for permanent errors.
// Handles both service-level and store-level errors.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Permanent errors that should not be retried (service-level)
	permanentErrors := []error{
		ErrNotFound,
		ErrUnauthorized,
		ErrInvalidMessage,
		ErrEmptyRecipients,
		ErrEmptySubject,
		ErrEmptyBody,
		ErrInvalidID,
		ErrInvalidParticipant,
		ErrSubjectTooLong,
		ErrBodyTooLarge,
		ErrInvalidContent,
		ErrTooManyRecipients,
		ErrTooManyAttachments,
		ErrAttachmentTooLarge,
		ErrInvalidAttachment,
		ErrInvalidMIMEType,
		ErrNotAMessage,
		ErrConversationRequired,
		ErrDuplicateEntry,
	}

	for _, permErr := range permanentErrors {
		if errors.Is(err, permErr) {
			return false
		}
	}

	// Also check store-level permanent errors (in case they bubble up unwrapped)
	storePermanentErrors := []error{
		store.ErrNotFound,
		store.ErrInvalidID,
		store.ErrInvalidIdentity,
		store.ErrDuplicateEntry,
		store.ErrEmptyReceipts,
		store.ErrEmptyUpdate,
		store.ErrFilterInvalid,
	}

	for _, permErr := range storePermanentErrors {
		if errors.Is(err, permErr) {
			return false
		}
	}

	// Retryable errors
	retryableErrors := []error{
		ErrNotConnected,            // Connection can be re-established
		store.ErrNotConnected,      // Store connection can be re-established
		store.ErrTransactionFailed, // Transaction can be retried
	}

	for _, retryErr := range retryableErrors {
		if errors.Is(err, retryErr) {
			return true
		}
	}

	// For unknown errors, default to retryable (conservative approach)
	// as they might be transient network/timeout issues
	return true
}

// ValidationError provides details about a validation failure. It wraps
// ErrInvalidMessage plus the specific sentinel in Err, so errors.Is
// matches either while errors.As exposes the failing field.
type ValidationError struct {
	Field   string // The field that failed validation
	Message string // Human-readable error message
	Err     error  // The specific sentinel, e.g. ErrEmptySubject
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mailboxer: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidMessage}
	}
	return []error{ErrInvalidMessage, e.Err}
}

// EventPublishError is returned when event publishing fails but the operation succeeded.
// The delivery or state change was persisted, but the event notification failed.
// Check the PayloadID field to identify which delivery this applies to.
type EventPublishError struct {
	Event     string // The event name (e.g., "MessageDelivered")
	PayloadID string // The payload ID the event was for
	Err       error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("mailboxer: event %s publish failed for payload %s: %v", e.Event, e.PayloadID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and returns details.
// This is useful when eventErrorsFatal=true but you still want to know the delivery succeeded.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}
