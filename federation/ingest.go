package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

// PublicCollection is the ActivityPub public addressing URI.
const PublicCollection = "https://www.w3.org/ns/activitystreams#Public"

// Ingestor maps remote Create activities onto stored statuses.
type Ingestor struct {
	statuses StatusStore
}

func NewIngestor(statuses StatusStore) *Ingestor {
	return &Ingestor{statuses: statuses}
}

// IngestCreates ingests Create activities authored by the given remote
// actor. Items without an object id are skipped; already-known object
// URIs pass through unchanged so re-ingestion never duplicates.
func (ing *Ingestor) IngestCreates(ctx context.Context, activities []*CreateActivity, author *domain.RemoteAccount) ([]*domain.Status, error) {
	statuses := make([]*domain.Status, 0, len(activities))
	for _, activity := range activities {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}
		status, err := ing.ingestOne(activity, author)
		if err != nil {
			return statuses, err
		}
		if status != nil {
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func (ing *Ingestor) ingestOne(activity *CreateActivity, author *domain.RemoteAccount) (*domain.Status, error) {
	note := activity.Note
	if note == nil || note.Id == "" {
		// Without an object id the status has no identity to dedupe on
		return nil, nil
	}

	if err, existing := ing.statuses.ReadStatusByObjectURI(note.Id); err == nil && existing != nil {
		return existing, nil
	}

	// Addressing lives on the activity, the note, or both
	to := append(stringList{}, activity.To...)
	to = append(to, note.To...)
	cc := append(stringList{}, activity.Cc...)
	cc = append(cc, note.Cc...)

	createdAt := time.Now()
	if published, ok := activity.PublishedTime(); ok {
		createdAt = published
	}

	status := &domain.Status{
		Id:             uuid.New(),
		AccountId:      author.Id,
		Local:          false,
		ObjectURI:      note.Id,
		Content:        note.Content,
		ContentWarning: note.Summary,
		Sensitive:      note.Sensitive,
		Language:       firstMapKey(note.ContentMap),
		Visibility:     DeriveVisibility(to, cc),
		InReplyToURI:   string(note.InReplyTo),
		CreatedAt:      createdAt,
	}

	for _, tag := range note.Tag {
		if tag.Type == "Mention" && tag.Href != "" {
			status.Mentions = append(status.Mentions, tag.Href)
		}
	}

	for _, att := range note.Attachment {
		status.Attachments = append(status.Attachments, mapAttachment(att))
	}

	err, stored := ing.statuses.CreateStatusIfAbsent(status)
	if err != nil {
		return nil, fmt.Errorf("failed to store status %s: %w", note.Id, err)
	}
	return stored, nil
}

func isPublicURI(uri string) bool {
	return uri == PublicCollection || uri == "as:Public" || uri == "Public"
}

func isFollowersURI(uri string) bool {
	return strings.HasSuffix(uri, "/followers")
}

// DeriveVisibility maps combined to/cc addressing onto the Mastodon
// visibility classes. Anything that matches no rule (including the
// ambiguous public-in-both case) is unlisted.
func DeriveVisibility(to, cc []string) domain.Visibility {
	publicInTo := slices.ContainsFunc(to, isPublicURI)
	publicInCc := slices.ContainsFunc(cc, isPublicURI)
	followersInTo := slices.ContainsFunc(to, isFollowersURI)
	followersInCc := slices.ContainsFunc(cc, isFollowersURI)

	switch {
	case publicInTo && followersInCc:
		return domain.VisibilityPublic
	case !publicInTo && !publicInCc && followersInTo:
		return domain.VisibilityPrivate
	case !publicInTo && !publicInCc && !followersInTo:
		return domain.VisibilityDirect
	default:
		return domain.VisibilityUnlisted
	}
}

// firstMapKey returns the first key of a JSON object in document order,
// which plain map decoding would lose.
func firstMapKey(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return ""
	}
	tok, err = dec.Token()
	if err != nil {
		return ""
	}
	key, _ := tok.(string)
	return key
}

func mapAttachment(att NoteAttachment) domain.MediaAttachment {
	out := domain.MediaAttachment{
		Type:        attachmentType(att.MediaType),
		Description: att.Name,
	}

	primary, preview := attachmentURLs(att.URL)
	out.URL = primary
	out.PreviewURL = preview
	if att.Icon != nil && att.Icon.URL != "" {
		out.PreviewURL = att.Icon.URL
	}
	if out.PreviewURL == "" {
		out.PreviewURL = out.URL
	}

	if att.Width > 0 && att.Height > 0 {
		out.AspectRatio = float64(att.Width) / float64(att.Height)
	}
	return out
}

// attachmentType maps a MIME type onto the Mastodon attachment kinds.
// Animated gifs get their own kind.
func attachmentType(mediaType string) string {
	switch {
	case mediaType == "image/gif":
		return "gifv"
	case strings.HasPrefix(mediaType, "video/"):
		return "video"
	case strings.HasPrefix(mediaType, "audio/"):
		return "audio"
	default:
		return "image"
	}
}

// attachmentURLs handles url as a plain string or a list of Link
// objects, using an image-typed alternate as the preview when present.
func attachmentURLs(raw json.RawMessage) (primary, preview string) {
	if len(raw) == 0 {
		return "", ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}

	var links []struct {
		Href      string `json:"href"`
		MediaType string `json:"mediaType"`
	}
	if err := json.Unmarshal(raw, &links); err != nil {
		return "", ""
	}

	for _, link := range links {
		if primary == "" {
			primary = link.Href
			continue
		}
		if preview == "" && strings.HasPrefix(link.MediaType, "image/") {
			preview = link.Href
		}
	}
	return primary, preview
}
