package web

import (
	"encoding/json"
	"fmt"

	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
)

// GetFollowersCollection returns the followers collection of a local
// account. Only the count is exposed, not the member list.
func GetFollowersCollection(username string, conf *util.AppConfig) (error, string) {
	return followCollection(username, conf, "followers", func(accountId uuid.UUID) (error, *[]domain.Follow) {
		return db.GetDB().ReadFollowersByAccountId(accountId)
	})
}

// GetFollowingCollection returns the following collection of a local
// account.
func GetFollowingCollection(username string, conf *util.AppConfig) (error, string) {
	return followCollection(username, conf, "following", func(accountId uuid.UUID) (error, *[]domain.Follow) {
		return db.GetDB().ReadFollowingByAccountId(accountId)
	})
}

func followCollection(username string, conf *util.AppConfig, kind string, read func(uuid.UUID) (error, *[]domain.Follow)) (error, string) {
	err, account := db.GetDB().ReadAccByUsername(username)
	if err != nil {
		return err, "{}"
	}

	err, follows := read(account.Id)
	if err != nil {
		return err, "{}"
	}

	totalItems := 0
	if follows != nil {
		totalItems = len(*follows)
	}

	collection := map[string]interface{}{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         fmt.Sprintf("https://%s/users/%s/%s", conf.Conf.SslDomain, username, kind),
		"type":       "OrderedCollection",
		"totalItems": totalItems,
	}

	jsonData, err := json.Marshal(collection)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonData)
}
