package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
)

type action uint

const (
	id action = iota
	inbox
	outbox
	followers
	following
	sharedInbox
)

func GetActor(actor string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(actor)
	if err != nil {
		return err, "{}"
	}

	username := acc.Username
	pubKey := strings.Replace(acc.WebPublicKey, "\n", "\\n", -1)

	// Use DisplayName if available, otherwise use username
	displayName := acc.DisplayName
	if displayName == "" {
		displayName = username
	}

	// Escape any quotes in summary for JSON
	summary := strings.Replace(acc.Summary, "\"", "\\\"", -1)
	summary = strings.Replace(summary, "\n", "\\n", -1)

	return nil, fmt.Sprintf(
		`{
					"@context": [
						"https://www.w3.org/ns/activitystreams",
						"https://w3id.org/security/v1"
					],

					"id": "%s",
					"type": "Person",
					"preferredUsername": "%s",
					"name" : "%s",
					"summary": "%s",
					"inbox": "%s",
					"outbox": "%s",
					"followers": "%s",
					"following": "%s",
					"url": "%s",
  					"manuallyApprovesFollowers": false,
					"discoverable": true,
  					"endpoints": {
    					"sharedInbox": "%s"
  					},
					"publicKey": {
						"id": "%s#main-key",
						"owner": "%s",
						"publicKeyPem": "%s"
					}
				}`,
		getIRI(conf.Conf.SslDomain, username, id),
		username, displayName, summary,
		getIRI(conf.Conf.SslDomain, username, inbox),
		getIRI(conf.Conf.SslDomain, username, outbox),
		getIRI(conf.Conf.SslDomain, username, followers),
		getIRI(conf.Conf.SslDomain, username, following),
		getIRI(conf.Conf.SslDomain, username, id),
		getIRI(conf.Conf.SslDomain, username, sharedInbox),
		getIRI(conf.Conf.SslDomain, username, id),
		getIRI(conf.Conf.SslDomain, username, id), pubKey)
}

func getIRI(domain string, username string, action action) string {

	prefix := fmt.Sprintf("https://%s/users/%s", domain, username)
	switch action {
	case inbox:
		return fmt.Sprintf("%s/inbox", prefix)
	case outbox:
		return fmt.Sprintf("%s/outbox", prefix)
	case followers:
		return fmt.Sprintf("%s/followers", prefix)
	case following:
		return fmt.Sprintf("%s/following", prefix)
	case id:
		return prefix
	case sharedInbox:
		return fmt.Sprintf("https://%s/inbox", domain)
	default:
		return ""
	}
}

// GetStatusObject returns a local status as an ActivityPub Note. Only
// public and unlisted statuses are served to unauthenticated fetches.
func GetStatusObject(statusId uuid.UUID, conf *util.AppConfig) (error, string) {
	database := db.GetDB()
	err, status := database.ReadStatusById(statusId)
	if err != nil {
		return err, "{}"
	}

	if !domain.StatusVisible(status, nil, nil) {
		return fmt.Errorf("status %s is not publicly visible", statusId), "{}"
	}

	err, account := database.ReadAccById(status.AccountId)
	if err != nil {
		return err, "{}"
	}

	actorURI := fmt.Sprintf("https://%s/users/%s", conf.Conf.SslDomain, account.Username)

	noteObj := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           status.ObjectURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      status.Content,
		"published":    status.CreatedAt.Format(time.RFC3339),
		"sensitive":    status.Sensitive,
	}
	if status.ContentWarning != "" {
		noteObj["summary"] = status.ContentWarning
	}
	if status.InReplyToURI != "" {
		noteObj["inReplyTo"] = status.InReplyToURI
	}

	if status.Visibility == domain.VisibilityPublic {
		noteObj["to"] = []string{"https://www.w3.org/ns/activitystreams#Public"}
		noteObj["cc"] = []string{fmt.Sprintf("%s/followers", actorURI)}
	} else {
		noteObj["to"] = []string{fmt.Sprintf("%s/followers", actorURI)}
		noteObj["cc"] = []string{"https://www.w3.org/ns/activitystreams#Public"}
	}

	jsonBytes, err := json.Marshal(noteObj)
	if err != nil {
		return err, "{}"
	}

	return nil, string(jsonBytes)
}
