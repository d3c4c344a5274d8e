package web

import (
	"fmt"
	"time"

	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
)

const timelineLimit = 40

// StatusView is the JSON shape of a status on the read endpoints.
type StatusView struct {
	Id           string                   `json:"id"`
	Uri          string                   `json:"uri"`
	Local        bool                     `json:"local"`
	Content      string                   `json:"content"`
	SpoilerText  string                   `json:"spoiler_text,omitempty"`
	Sensitive    bool                     `json:"sensitive"`
	Language     string                   `json:"language,omitempty"`
	Visibility   string                   `json:"visibility"`
	InReplyToUri string                   `json:"in_reply_to_uri,omitempty"`
	Mentions     []string                 `json:"mentions,omitempty"`
	Attachments  []domain.MediaAttachment `json:"media_attachments"`
	CreatedAt    string                   `json:"created_at"`
}

func toStatusView(s *domain.Status) StatusView {
	attachments := s.Attachments
	if attachments == nil {
		attachments = []domain.MediaAttachment{}
	}
	return StatusView{
		Id:           s.Id.String(),
		Uri:          s.ObjectURI,
		Local:        s.Local,
		Content:      s.Content,
		SpoilerText:  s.ContentWarning,
		Sensitive:    s.Sensitive,
		Language:     s.Language,
		Visibility:   string(s.Visibility),
		InReplyToUri: s.InReplyToURI,
		Mentions:     s.Mentions,
		Attachments:  attachments,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
}

// followCheck adapts the follows table to the visibility predicate.
func followCheck(database *db.DB) domain.FollowCheck {
	return func(follower, followed uuid.UUID) bool {
		err, following := database.IsFollowing(follower, followed)
		return err == nil && following
	}
}

// filterVisible applies the visibility predicate to a result set. Every
// endpoint that returns statuses goes through here.
func filterVisible(statuses *[]domain.Status, viewer *domain.Viewer, isFollowing domain.FollowCheck) []StatusView {
	views := []StatusView{}
	if statuses == nil {
		return views
	}
	for i := range *statuses {
		s := &(*statuses)[i]
		if domain.StatusVisible(s, viewer, isFollowing) {
			views = append(views, toStatusView(s))
		}
	}
	return views
}

// GetPublicTimeline lists recent public statuses, local and federated.
func GetPublicTimeline() (error, []StatusView) {
	err, statuses := db.GetDB().ReadPublicStatuses(timelineLimit)
	if err != nil {
		return err, nil
	}
	return nil, filterVisible(statuses, nil, nil)
}

// GetAccountStatuses lists a local account's statuses as seen by an
// anonymous viewer, so private and direct posts never appear.
func GetAccountStatuses(username string) (error, []StatusView) {
	database := db.GetDB()
	err, account := database.ReadAccByUsername(username)
	if err != nil {
		return err, nil
	}

	err, statuses := database.ReadStatusesByAccountId(account.Id, timelineLimit)
	if err != nil {
		return err, nil
	}
	return nil, filterVisible(statuses, nil, nil)
}

// GetHomeTimeline lists the home feed for a local account: own posts
// plus posts of followed actors, filtered through the visibility
// predicate with the account as viewer.
func GetHomeTimeline(username string, conf *util.AppConfig) (error, []StatusView) {
	database := db.GetDB()
	err, account := database.ReadAccByUsername(username)
	if err != nil {
		return err, nil
	}

	viewer := &domain.Viewer{
		AccountId: account.Id,
		ActorURI:  fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, account.Username),
	}

	err, statuses := database.ReadHomeStatuses(account.Id, timelineLimit)
	if err != nil {
		return err, nil
	}
	return nil, filterVisible(statuses, viewer, followCheck(database))
}
