package web

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
)

// GetOutbox returns an ActivityPub OrderedCollection of a user's public
// statuses. Remote servers crawl this to backfill history, so the page
// shape matches what the crawler itself expects: a collection document
// pointing at "first", pages chained through "next".
func GetOutbox(actor string, page int, conf *util.AppConfig) (error, string) {
	err, account := db.GetDB().ReadAccByUsername(actor)
	if err != nil {
		log.Printf("GetOutbox: User %s not found: %v", actor, err)
		return err, "{}"
	}

	baseURL := fmt.Sprintf("https://%s", conf.Conf.SslDomain)
	outboxURL := fmt.Sprintf("%s/users/%s/outbox", baseURL, actor)

	// If no page parameter, return the collection metadata
	if page == 0 {
		err, totalItems := db.GetDB().CountPublicStatusesByAccountId(account.Id)
		if err != nil {
			log.Printf("GetOutbox: Failed to count statuses for %s: %v", actor, err)
			return err, "{}"
		}

		collection := map[string]interface{}{
			"@context":   "https://www.w3.org/ns/activitystreams",
			"id":         outboxURL,
			"type":       "OrderedCollection",
			"totalItems": totalItems,
			"first":      fmt.Sprintf("%s?page=1", outboxURL),
		}

		jsonData, err := json.Marshal(collection)
		if err != nil {
			log.Printf("GetOutbox: Failed to marshal collection: %v", err)
			return err, "{}"
		}
		return nil, string(jsonData)
	}

	return getOutboxPage(actor, account, page, conf)
}

func getOutboxPage(actor string, account *domain.Account, page int, conf *util.AppConfig) (error, string) {
	itemsPerPage := 20
	offset := (page - 1) * itemsPerPage

	// Fetch one extra row to know whether a next page exists
	err, statuses := db.GetDB().ReadPublicStatusesByAccountId(account.Id, itemsPerPage+1, offset)
	if err != nil {
		log.Printf("GetOutbox: Failed to fetch statuses page %d for %s: %v", page, actor, err)
		return err, "{}"
	}

	baseURL := fmt.Sprintf("https://%s", conf.Conf.SslDomain)
	outboxURL := fmt.Sprintf("%s/users/%s/outbox", baseURL, actor)
	pageURL := fmt.Sprintf("%s?page=%d", outboxURL, page)

	hasMore := false
	items := []interface{}{}

	if statuses != nil {
		if len(*statuses) > itemsPerPage {
			hasMore = true
			pageStatuses := (*statuses)[:itemsPerPage]
			items = makeCreateActivities(pageStatuses, actor, conf)
		} else {
			items = makeCreateActivities(*statuses, actor, conf)
		}
	}

	collectionPage := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           pageURL,
		"type":         "OrderedCollectionPage",
		"partOf":       outboxURL,
		"orderedItems": items,
	}

	if hasMore {
		collectionPage["next"] = fmt.Sprintf("%s?page=%d", outboxURL, page+1)
	}

	if page > 1 {
		collectionPage["prev"] = fmt.Sprintf("%s?page=%d", outboxURL, page-1)
	}

	jsonData, err := json.Marshal(collectionPage)
	if err != nil {
		log.Printf("GetOutbox: Failed to marshal collection page: %v", err)
		return err, "{}"
	}
	return nil, string(jsonData)
}

// makeCreateActivities wraps statuses in ActivityPub Create activities
func makeCreateActivities(statuses []domain.Status, actor string, conf *util.AppConfig) []interface{} {
	activities := make([]interface{}, 0, len(statuses))
	baseURL := fmt.Sprintf("https://%s", conf.Conf.SslDomain)
	actorURI := fmt.Sprintf("%s/users/%s", baseURL, actor)

	for _, status := range statuses {
		noteObj := map[string]interface{}{
			"id":           status.ObjectURI,
			"type":         "Note",
			"attributedTo": actorURI,
			"content":      status.Content,
			"published":    status.CreatedAt.Format(time.RFC3339),
			"sensitive":    status.Sensitive,
			"to": []string{
				"https://www.w3.org/ns/activitystreams#Public",
			},
			"cc": []string{
				fmt.Sprintf("%s/followers", actorURI),
			},
		}
		if status.ContentWarning != "" {
			noteObj["summary"] = status.ContentWarning
		}
		if status.InReplyToURI != "" {
			noteObj["inReplyTo"] = status.InReplyToURI
		}

		activityURI := fmt.Sprintf("%s/activities/%s", baseURL, status.Id.String())
		activity := map[string]interface{}{
			"id":        activityURI,
			"type":      "Create",
			"actor":     actorURI,
			"published": status.CreatedAt.Format(time.RFC3339),
			"to": []string{
				"https://www.w3.org/ns/activitystreams#Public",
			},
			"cc": []string{
				fmt.Sprintf("%s/followers", actorURI),
			},
			"object": noteObj,
		}

		activities = append(activities, activity)
	}

	return activities
}

// ParsePageParam extracts the page parameter from a query string
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
