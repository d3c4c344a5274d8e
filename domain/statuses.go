package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// MediaAttachment describes one attachment of a status.
// Type is one of image, video, audio, gifv.
type MediaAttachment struct {
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	PreviewURL  string  `json:"preview_url"`
	Description string  `json:"description,omitempty"`
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
}

// Status is a post, local or federated. Remote statuses keep the remote
// object URI as their identity; local statuses get a generated one.
// The Local flag tags the origin instead of a separate record type.
type Status struct {
	Id             uuid.UUID
	AccountId      uuid.UUID // local account id or remote account id
	Local          bool
	ObjectURI      string // ActivityPub object URI, unique
	Content        string
	ContentWarning string
	Sensitive      bool
	Language       string
	Visibility     Visibility
	InReplyToURI   string
	Mentions       []string // actor URIs mentioned in the status
	Attachments    []MediaAttachment
	CreatedAt      time.Time
}

func (s *Status) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tObjectURI: %s \n\tVisibility: %s \n\tCreatedAt: %s)", s.Id, s.ObjectURI, s.Visibility, s.CreatedAt)
}
