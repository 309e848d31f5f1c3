// Package resolver provides ParticipantResolver implementations.
package resolver

import (
	"context"
	"fmt"

	"github.com/full-stack-biz/mailboxer"
)

// Static is a map-based ParticipantResolver for testing and simple
// deployments. It resolves identities from an in-memory map. Safe for
// concurrent use (read-only after creation).
type Static struct {
	profiles map[mailboxer.Identity]*mailboxer.Profile
}

// NewStatic creates a Static resolver from a map of identity to profile.
// The map is copied to prevent external mutation.
func NewStatic(profiles map[mailboxer.Identity]*mailboxer.Profile) *Static {
	m := make(map[mailboxer.Identity]*mailboxer.Profile, len(profiles))
	for k, v := range profiles {
		m[k] = v
	}
	return &Static{profiles: m}
}

// Resolve returns profile information for a single identity.
func (s *Static) Resolve(_ context.Context, id mailboxer.Identity) (*mailboxer.Profile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: participant %s", mailboxer.ErrNotFound, id)
	}
	return p, nil
}

// ResolveBatch returns profile information for multiple identities.
// Unknown identities have nil entries in the returned slice.
func (s *Static) ResolveBatch(_ context.Context, ids []mailboxer.Identity) ([]*mailboxer.Profile, error) {
	result := make([]*mailboxer.Profile, len(ids))
	for i, id := range ids {
		result[i] = s.profiles[id]
	}
	return result, nil
}
