// internal/domain/models/participants.go
package models

// ParticipantSet is the set of user ids joined to an activity.
//
// It is stored as a BSON array so the store can apply $addToSet and
// $pull, which commute with concurrent membership writes from other
// callers. Order carries no meaning; use the set operations, not the
// slice, when reasoning about membership.
type ParticipantSet []string

// Contains reports whether userID is a member of the set.
func (p ParticipantSet) Contains(userID string) bool {
	for _, id := range p {
		if id == userID {
			return true
		}
	}
	return false
}

// Count returns the number of members.
func (p ParticipantSet) Count() int {
	return len(p)
}

// Add returns a set with userID included. Adding an existing member is
// a no-op, matching the store's $addToSet semantics.
func (p ParticipantSet) Add(userID string) ParticipantSet {
	if p.Contains(userID) {
		return p
	}
	out := make(ParticipantSet, len(p), len(p)+1)
	copy(out, p)
	return append(out, userID)
}

// Remove returns a set with userID excluded. Removing a non-member is
// a no-op, matching the store's $pull semantics.
func (p ParticipantSet) Remove(userID string) ParticipantSet {
	out := make(ParticipantSet, 0, len(p))
	for _, id := range p {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
