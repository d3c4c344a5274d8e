package web

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
)

// GetRSS renders an RSS feed of public statuses, optionally limited to
// one local account.
func GetRSS(conf *util.AppConfig, username string) (string, error) {

	var err error
	var statuses *[]domain.Status
	var title string
	var author string

	link := fmt.Sprintf("https://%s/feed", conf.Conf.SslDomain)

	if username != "" {
		err, acc := db.GetDB().ReadAccByUsername(username)
		if err != nil {
			log.Println(fmt.Sprintf("Could not find account %s!", username), err)
			return "", errors.New("error retrieving account by username")
		}
		err, statuses = db.GetDB().ReadPublicStatusesByAccountId(acc.Id, 50, 0)
		if err != nil || statuses == nil {
			log.Println(fmt.Sprintf("Could not get statuses from %s!", username), err)
			return "", errors.New("error retrieving statuses by username")
		}
		title = fmt.Sprintf("Gomphodon Statuses - %s", username)
		author = username
		link = fmt.Sprintf("%s?username=%s", link, username)
	} else {
		err, statuses = db.GetDB().ReadPublicStatuses(50)
		if err != nil || statuses == nil {
			log.Println("Could not get statuses!", err)
			return "", errors.New("error retrieving statuses")
		}
		title = "All Gomphodon Statuses"
		author = "everyone"
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: "public statuses on this gomphodon instance",
		Author:      &feeds.Author{Name: author, Email: fmt.Sprintf("%s@gomphodon", author)},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, status := range *statuses {
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      status.Id.String(),
				Title:   status.CreatedAt.Format(util.DateTimeFormat()),
				Link:    &feeds.Link{Href: fmt.Sprintf("https://%s/feed/%s", conf.Conf.SslDomain, status.Id)},
				Content: status.Content,
				Created: status.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}

// GetRSSItem renders a single public status as a one-item feed.
func GetRSSItem(conf *util.AppConfig, id uuid.UUID) (string, error) {
	err, status := db.GetDB().ReadStatusById(id)

	if err != nil || status == nil {
		log.Println("Could not get status!", err)
		return "", errors.New("error retrieving status by id")
	}

	if !domain.StatusVisible(status, nil, nil) {
		return "", errors.New("status is not public")
	}

	url := fmt.Sprintf("https://%s/feed/%s", conf.Conf.SslDomain, status.Id)

	feed := &feeds.Feed{
		Title:       "Single Gomphodon Status",
		Link:        &feeds.Link{Href: url},
		Description: "public statuses on this gomphodon instance",
		Created:     time.Now(),
	}

	feed.Items = []*feeds.Item{
		{
			Id:      status.Id.String(),
			Title:   status.CreatedAt.Format(util.DateTimeFormat()),
			Link:    &feeds.Link{Href: url},
			Content: status.Content,
			Created: status.CreatedAt,
		},
	}

	return feed.ToRss()
}
