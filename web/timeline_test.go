package web

import (
	"testing"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

func TestToStatusView(t *testing.T) {
	created, _ := time.Parse(time.RFC3339, "2025-08-30T10:00:00Z")
	s := &domain.Status{
		Id:           uuid.New(),
		ObjectURI:    "https://remote.example/notes/1",
		Content:      "<p>hi</p>",
		Visibility:   domain.VisibilityUnlisted,
		Language:     "en",
		InReplyToURI: "https://remote.example/notes/0",
		Mentions:     []string{"https://example.com/users/bob"},
		CreatedAt:    created,
	}

	view := toStatusView(s)

	if view.Id != s.Id.String() {
		t.Errorf("Wrong id: %s", view.Id)
	}
	if view.Uri != s.ObjectURI {
		t.Errorf("Wrong uri: %s", view.Uri)
	}
	if view.Visibility != "unlisted" {
		t.Errorf("Wrong visibility: %s", view.Visibility)
	}
	if view.CreatedAt != "2025-08-30T10:00:00Z" {
		t.Errorf("Wrong created_at: %s", view.CreatedAt)
	}
	if view.Attachments == nil {
		t.Error("Attachments should marshal as an empty array, not null")
	}
}

func TestFilterVisible(t *testing.T) {
	author := uuid.New()
	viewerId := uuid.New()

	statuses := []domain.Status{
		{Id: uuid.New(), AccountId: author, ObjectURI: "a", Visibility: domain.VisibilityPublic},
		{Id: uuid.New(), AccountId: author, ObjectURI: "b", Visibility: domain.VisibilityUnlisted},
		{Id: uuid.New(), AccountId: author, ObjectURI: "c", Visibility: domain.VisibilityPrivate},
		{Id: uuid.New(), AccountId: author, ObjectURI: "d", Visibility: domain.VisibilityDirect},
	}

	// Anonymous viewers see public and unlisted only
	views := filterVisible(&statuses, nil, nil)
	if len(views) != 2 {
		t.Errorf("Anonymous viewer should see 2 statuses, got %d", len(views))
	}

	// A follower additionally sees private
	follower := &domain.Viewer{AccountId: viewerId, ActorURI: "https://example.com/users/bob"}
	isFollowing := func(a, b uuid.UUID) bool { return a == viewerId && b == author }
	views = filterVisible(&statuses, follower, isFollowing)
	if len(views) != 3 {
		t.Errorf("Follower should see 3 statuses, got %d", len(views))
	}

	// The author sees everything
	self := &domain.Viewer{AccountId: author}
	views = filterVisible(&statuses, self, nil)
	if len(views) != 4 {
		t.Errorf("Author should see all 4 statuses, got %d", len(views))
	}

	// Nil input yields an empty slice
	if views := filterVisible(nil, nil, nil); len(views) != 0 {
		t.Errorf("Nil input should yield no views, got %d", len(views))
	}
}
