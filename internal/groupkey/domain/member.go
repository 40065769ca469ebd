// Package domain defines the models of group key distribution: conversation
// members, per-member wrapped keys, distribution outcomes and the in-memory
// cache of unwrapped group keys.
//
// A conversation's key history is append-only. Every rotation creates a new key
// version and one WrappedKeyRecord per member active at that moment; older
// versions are never rewritten, so departed members keep read access to the
// history they were part of and never see anything newer.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Member is a participant of a conversation.
type Member struct {
	// UserID identifies the member.
	UserID uuid.UUID
	// JoinedAt is when the member was added to the conversation.
	JoinedAt time.Time
	// LeftAt is set once the member has left; nil while active.
	LeftAt *time.Time
}

// IsActive reports whether the member is still part of the conversation.
func (m Member) IsActive() bool {
	return m.LeftAt == nil
}

// ActiveMembers returns the active members in input order with duplicate user IDs removed.
func ActiveMembers(members []Member) []Member {
	seen := make(map[uuid.UUID]struct{}, len(members))
	active := make([]Member, 0, len(members))
	for _, m := range members {
		if !m.IsActive() {
			continue
		}
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}
		active = append(active, m)
	}
	return active
}
