package domain

import "github.com/google/uuid"

// Viewer identifies the principal a read path is serving. ActorURI is the
// viewer's own actor URI, used to match against status mentions.
type Viewer struct {
	AccountId uuid.UUID
	ActorURI  string
}

// FollowCheck reports whether follower follows followed.
type FollowCheck func(follower, followed uuid.UUID) bool

// StatusVisible decides whether a status may be shown to a viewer.
// A nil viewer is an anonymous request. Every read path that returns
// statuses must consult this predicate.
func StatusVisible(s *Status, viewer *Viewer, isFollowing FollowCheck) bool {
	switch s.Visibility {
	case VisibilityPublic, VisibilityUnlisted:
		return true
	}

	if viewer == nil {
		return false
	}

	// Authors always see their own statuses
	if viewer.AccountId == s.AccountId {
		return true
	}

	switch s.Visibility {
	case VisibilityDirect:
		for _, mention := range s.Mentions {
			if mention == viewer.ActorURI {
				return true
			}
		}
		return false
	case VisibilityPrivate:
		if isFollowing == nil {
			return false
		}
		return isFollowing(viewer.AccountId, s.AccountId)
	}

	return false
}
