package mailboxer

import (
	"context"

	"github.com/full-stack-biz/mailboxer/store"
)

// Identity identifies a participant by type and ID, e.g. {Type: "user", ID: "42"}.
// It is the polymorphic handle every delivery and receipt is keyed on.
type Identity = store.Identity

// NewIdentity builds an Identity from a type and an ID.
func NewIdentity(typ, id string) Identity {
	return Identity{Type: typ, ID: id}
}

// Profile contains resolved information about a participant.
type Profile struct {
	// Identity is the participant's unique identity.
	Identity Identity
	// Name is the display name of the participant.
	Name string
	// Email is the participant's email address (optional).
	Email string
}

// ParticipantResolver maps identities to participant profiles.
// Implementations should be safe for concurrent use.
//
// Example use cases:
//   - Populate "From" display names in inbox views
//   - Resolve email addresses for dispatcher delivery
//   - Validate that recipient identities refer to real participants
type ParticipantResolver interface {
	// Resolve returns profile information for a single identity.
	// Returns an error wrapping ErrNotFound if the identity is unknown.
	Resolve(ctx context.Context, id Identity) (*Profile, error)

	// ResolveBatch returns profile information for multiple identities.
	// Returns results in the same order as input. Unknown identities have nil entries.
	ResolveBatch(ctx context.Context, ids []Identity) ([]*Profile, error)
}
