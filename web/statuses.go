package web

import (
	"fmt"
	"log"
	"time"

	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
)

// PublishStatus stores a new local status and, with federation enabled,
// queues Create deliveries to follower inboxes.
func PublishStatus(username, content, visibility, contentWarning string, conf *util.AppConfig, deps *Deps) (error, *StatusView) {
	database := db.GetDB()
	err, account := database.ReadAccByUsername(username)
	if err != nil {
		return err, nil
	}

	vis := domain.Visibility(visibility)
	switch vis {
	case domain.VisibilityPublic, domain.VisibilityUnlisted, domain.VisibilityPrivate, domain.VisibilityDirect:
	case "":
		vis = domain.VisibilityPublic
	default:
		return fmt.Errorf("unknown visibility %q", visibility), nil
	}

	statusId := uuid.New()
	status := &domain.Status{
		Id:             statusId,
		AccountId:      account.Id,
		Local:          true,
		ObjectURI:      fmt.Sprintf("https://%s/statuses/%s", conf.Conf.SslDomain, statusId),
		Content:        util.NormalizeInput(content),
		ContentWarning: contentWarning,
		Sensitive:      contentWarning != "",
		Visibility:     vis,
		CreatedAt:      time.Now(),
	}

	err, stored := database.CreateStatusIfAbsent(status)
	if err != nil {
		return err, nil
	}

	if conf.Conf.WithAp && vis != domain.VisibilityDirect {
		if err := deps.Outbox.SendCreate(stored, account); err != nil {
			log.Printf("PublishStatus: Failed to queue deliveries: %v", err)
		}
	}

	view := toStatusView(stored)
	return nil, &view
}
