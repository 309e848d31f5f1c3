package mailboxer

import (
	"context"

	"github.com/full-stack-biz/mailboxer/store"
)

// Dispatcher delivers out-of-band copies of committed deliveries, for
// example by email or push notification. It is invoked after the
// delivery transaction commits and receives only the recipient
// (non-sender) receipts. Dispatch failures are logged; they never fail
// or roll back the delivery.
//
// Implementations should be safe for concurrent use.
type Dispatcher interface {
	// Dispatch delivers the payload out-of-band for the given receipts.
	Dispatch(ctx context.Context, payload *store.Payload, receipts []store.Receipt) error
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, payload *store.Payload, receipts []store.Receipt) error

// Dispatch calls f.
func (f DispatchFunc) Dispatch(ctx context.Context, payload *store.Payload, receipts []store.Receipt) error {
	return f(ctx, payload, receipts)
}

// TextSanitizer cleans subject and body text before persistence.
// When configured, it runs before validation, so limits and content
// checks apply to the sanitized text that will actually be stored.
type TextSanitizer interface {
	// SanitizeSubject returns a cleaned subject.
	SanitizeSubject(subject string) string
	// SanitizeBody returns a cleaned body.
	SanitizeBody(body string) string
}

// SearchIndex receives committed payloads for full-text indexing.
// Index failures are logged; they never fail the delivery.
type SearchIndex interface {
	// Index adds or updates a payload in the index.
	Index(ctx context.Context, payload *store.Payload) error
	// Remove deletes payloads from the index, e.g. after a
	// conversation reap or expiry cleanup.
	Remove(ctx context.Context, payloadIDs []string) error
}
