package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
	"github.com/google/uuid"
)

type OutboxStore interface {
	ActorStore
	FollowStore
	DeliveryStore
}

// Outbox builds and sends outgoing activities. Follow/Accept go out
// directly; Create fans out to follower inboxes through the delivery
// queue.
type Outbox struct {
	store    OutboxStore
	client   *http.Client
	conf     *util.AppConfig
	backfill *Backfiller
}

func NewOutbox(store OutboxStore, client *http.Client, conf *util.AppConfig, backfill *Backfiller) *Outbox {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Outbox{store: store, client: client, conf: conf, backfill: backfill}
}

func (o *Outbox) actorURI(username string) string {
	return fmt.Sprintf("https://%s/users/%s", o.conf.Conf.SslDomain, username)
}

func (o *Outbox) newActivityId() string {
	return fmt.Sprintf("https://%s/activities/%s", o.conf.Conf.SslDomain, uuid.New().String())
}

// SendActivity signs and POSTs an activity to a remote inbox.
func (o *Outbox) SendActivity(ctx context.Context, activity interface{}, inboxURI string, localAccount *domain.Account) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", inboxURI, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "gomphodon/1.0 ActivityPub")

	privateKey, err := ParsePrivateKey(localAccount.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	keyId := o.actorURI(localAccount.Username) + "#main-key"
	if err := SignRequest(req, activityJSON, privateKey, keyId); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Printf("Outbox: Sent %T to %s (status: %d)", activity, inboxURI, resp.StatusCode)
	return nil
}

// SendAccept confirms a received Follow.
func (o *Outbox) SendAccept(ctx context.Context, localAccount *domain.Account, remoteActor *domain.RemoteAccount, followId string) error {
	actorURI := o.actorURI(localAccount.Username)

	accept := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       o.newActivityId(),
		"type":     "Accept",
		"actor":    actorURI,
		"object": map[string]interface{}{
			"id":     followId,
			"type":   "Follow",
			"actor":  remoteActor.ActorURI,
			"object": actorURI,
		},
	}

	return o.SendActivity(ctx, accept, remoteActor.InboxURI, localAccount)
}

// SendFollow follows a remote actor. The follow stays pending until an
// Accept arrives; a follow-type backfill of the actor's history is
// kicked off right away.
func (o *Outbox) SendFollow(ctx context.Context, localAccount *domain.Account, target string) error {
	actorURI := CanonicalActorURI(target)

	remoteActor, err := o.backfill.actors.GetOrFetch(ctx, actorURI)
	if err != nil {
		return fmt.Errorf("failed to fetch remote actor: %w", err)
	}

	followId := o.newActivityId()
	follow := map[string]interface{}{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       followId,
		"type":     "Follow",
		"actor":    o.actorURI(localAccount.Username),
		"object":   remoteActor.ActorURI,
	}

	followRecord := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       localAccount.Id,
		TargetAccountId: remoteActor.Id,
		URI:             followId,
		Accepted:        false,
		CreatedAt:       time.Now(),
	}

	if err := o.store.CreateFollow(followRecord); err != nil {
		return fmt.Errorf("failed to store follow: %w", err)
	}

	if err := o.SendActivity(ctx, follow, remoteActor.InboxURI, localAccount); err != nil {
		return err
	}

	o.backfill.TriggerAsync(remoteActor.ActorURI, BackfillFollow)
	return nil
}

// SendCreate queues a Create activity for a local status to every
// follower inbox.
func (o *Outbox) SendCreate(status *domain.Status, localAccount *domain.Account) error {
	actorURI := o.actorURI(localAccount.Username)
	followersURI := actorURI + "/followers"

	to, cc := addressing(status.Visibility, followersURI, status.Mentions)

	note := map[string]interface{}{
		"id":           status.ObjectURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      status.Content,
		"published":    status.CreatedAt.Format(time.RFC3339),
		"sensitive":    status.Sensitive,
		"to":           to,
		"cc":           cc,
	}
	if status.InReplyToURI != "" {
		note["inReplyTo"] = status.InReplyToURI
	}

	create := map[string]interface{}{
		"@context":  "https://www.w3.org/ns/activitystreams",
		"id":        o.newActivityId(),
		"type":      "Create",
		"actor":     actorURI,
		"published": status.CreatedAt.Format(time.RFC3339),
		"to":        to,
		"cc":        cc,
		"object":    note,
	}

	activityJSON, err := json.Marshal(create)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	err, followers := o.store.ReadFollowersByAccountId(localAccount.Id)
	if err != nil {
		log.Printf("Outbox: Failed to get followers: %v", err)
		return nil
	}

	if followers == nil || len(*followers) == 0 {
		log.Printf("Outbox: No followers to deliver to")
		return nil
	}

	queued := 0
	for _, follower := range *followers {
		err, remoteActor := o.store.ReadRemoteAccountById(follower.AccountId)
		if err != nil || remoteActor == nil {
			log.Printf("Outbox: Failed to get remote actor %s: %v", follower.AccountId, err)
			continue
		}

		item := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			InboxURI:     remoteActor.InboxURI,
			ActivityJSON: string(activityJSON),
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}

		if err := o.store.EnqueueDelivery(item); err != nil {
			log.Printf("Outbox: Failed to queue delivery to %s: %v", remoteActor.InboxURI, err)
			continue
		}
		queued++
	}

	log.Printf("Outbox: Queued Create for status %s to %d followers", status.Id, queued)
	return nil
}

// addressing derives to/cc lists for an outgoing status from its
// visibility class.
func addressing(visibility domain.Visibility, followersURI string, mentions []string) ([]string, []string) {
	switch visibility {
	case domain.VisibilityUnlisted:
		return []string{followersURI}, append([]string{PublicCollection}, mentions...)
	case domain.VisibilityPrivate:
		return []string{followersURI}, mentions
	case domain.VisibilityDirect:
		return mentions, nil
	default:
		return []string{PublicCollection}, append([]string{followersURI}, mentions...)
	}
}
