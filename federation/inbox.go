package federation

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

type InboxStore interface {
	AccountStore
	ActorStore
	StatusStore
	FollowStore
	ActivityStore
}

// inboundActivity is the envelope of any received activity.
type inboundActivity struct {
	Id     string          `json:"id"`
	Type   string          `json:"type"`
	Actor  linkRef         `json:"actor"`
	Object json.RawMessage `json:"object"`
}

// Inbox dispatches verified inbound activities. The signature check
// happens in the Verifier middleware before a request reaches Handle.
type Inbox struct {
	store    InboxStore
	actors   *ActorFetcher
	ingestor *Ingestor
	outbox   *Outbox
}

func NewInbox(store InboxStore, actors *ActorFetcher, ingestor *Ingestor, outbox *Outbox) *Inbox {
	return &Inbox{store: store, actors: actors, ingestor: ingestor, outbox: outbox}
}

// Handle processes POST /users/:username/inbox.
func (in *Inbox) Handle(c *gin.Context) {
	username := c.Param("username")

	body, err := c.GetRawData()
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	var activity inboundActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid activity"})
		return
	}

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	// The signing actor must be the activity's actor
	verifiedActor := c.GetString(ActorContextKey)
	if verifiedActor == "" || verifiedActor != string(activity.Actor) {
		log.Printf("Inbox: Signer %s does not match actor %s", verifiedActor, activity.Actor)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	remoteActor, err := in.actors.GetOrFetch(c.Request.Context(), string(activity.Actor))
	if err != nil {
		log.Printf("Inbox: Failed to fetch actor %s: %v", activity.Actor, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to resolve actor"})
		return
	}

	// Replays of an already processed activity are acknowledged as-is.
	// A stored but unprocessed activity means the first attempt failed,
	// so the retry runs the handler again.
	if err, seen := in.store.ReadActivityByURI(activity.Id); err == nil && seen != nil && seen.Processed {
		c.Status(http.StatusAccepted)
		return
	}

	record := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activity.Id,
		ActivityType: activity.Type,
		ActorURI:     string(activity.Actor),
		ObjectURI:    objectURI(activity.Object),
		RawJSON:      string(body),
		Processed:    false,
		Local:        false,
		CreatedAt:    time.Now(),
	}
	if err := in.store.CreateActivity(record); err != nil {
		log.Printf("Inbox: Failed to store activity: %v", err)
		// Not fatal, keep processing
	}

	switch activity.Type {
	case "Follow":
		err = in.handleFollow(c, &activity, username, remoteActor)
	case "Undo":
		err = in.handleUndo(&activity, remoteActor)
	case "Accept":
		err = in.handleAccept(&activity)
	case "Create":
		err = in.handleCreate(c, body, username, remoteActor)
	case "Delete":
		err = in.handleDelete(&activity, remoteActor)
	default:
		log.Printf("Inbox: Unsupported activity type: %s", activity.Type)
	}

	if err != nil {
		log.Printf("Inbox: Failed to handle %s: %v", activity.Type, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to process activity"})
		return
	}

	if err := in.store.MarkActivityProcessed(activity.Id); err != nil {
		log.Printf("Inbox: Failed to mark activity %s processed: %v", activity.Id, err)
	}

	c.Status(http.StatusAccepted)
}

func (in *Inbox) handleFollow(c *gin.Context, activity *inboundActivity, username string, remoteActor *domain.RemoteAccount) error {
	err, localAccount := in.store.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	followRecord := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       remoteActor.Id,
		TargetAccountId: localAccount.Id,
		URI:             activity.Id,
		Accepted:        true, // follows are auto-accepted
		CreatedAt:       time.Now(),
	}

	if err := in.store.CreateFollow(followRecord); err != nil {
		return fmt.Errorf("failed to create follow: %w", err)
	}

	if err := in.outbox.SendAccept(c.Request.Context(), localAccount, remoteActor, activity.Id); err != nil {
		return fmt.Errorf("failed to send Accept: %w", err)
	}

	log.Printf("Inbox: Accepted follow from %s", remoteActor.Acct())
	return nil
}

func (in *Inbox) handleUndo(activity *inboundActivity, remoteActor *domain.RemoteAccount) error {
	var obj struct {
		Type string `json:"type"`
		Id   string `json:"id"`
	}
	if err := json.Unmarshal(activity.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}

	if obj.Type == "Follow" {
		if err := in.store.DeleteFollowByURI(obj.Id); err != nil {
			return fmt.Errorf("failed to delete follow: %w", err)
		}
		log.Printf("Inbox: Removed follow from %s", remoteActor.Acct())
	}

	return nil
}

func (in *Inbox) handleAccept(activity *inboundActivity) error {
	var obj struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(activity.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Accept object: %w", err)
	}

	if err := in.store.AcceptFollowByURI(obj.Id); err != nil {
		return fmt.Errorf("failed to accept follow: %w", err)
	}

	log.Printf("Inbox: Follow %s was accepted by %s", obj.Id, activity.Actor)
	return nil
}

func (in *Inbox) handleCreate(c *gin.Context, body []byte, username string, remoteActor *domain.RemoteAccount) error {
	err, localAccount := in.store.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("failed to get local account: %w", err)
	}

	// Only followed actors may push posts into the inbox
	err, following := in.store.IsFollowing(localAccount.Id, remoteActor.Id)
	if err != nil || !following {
		return fmt.Errorf("not following %s", remoteActor.Acct())
	}

	create, ok := decodeCreateNote(body)
	if !ok {
		// Create of something that is not an embedded Note, ignore
		log.Printf("Inbox: Ignoring Create without embedded Note from %s", remoteActor.Acct())
		return nil
	}

	statuses, err := in.ingestor.IngestCreates(c.Request.Context(), []*CreateActivity{create}, remoteActor)
	if err != nil {
		return err
	}

	log.Printf("Inbox: Ingested %d status(es) from %s", len(statuses), remoteActor.Acct())
	return nil
}

func (in *Inbox) handleDelete(activity *inboundActivity, remoteActor *domain.RemoteAccount) error {
	uri := objectURI(activity.Object)
	if uri == "" {
		return fmt.Errorf("could not determine object URI from Delete activity")
	}

	if uri == string(activity.Actor) {
		// Actor deleted their account: drop follows and the cached actor
		log.Printf("Inbox: Actor %s deleted their account", activity.Actor)
		if err := in.store.DeleteFollowsByRemoteAccountId(remoteActor.Id); err != nil {
			return fmt.Errorf("failed to delete follows: %w", err)
		}
		if err := in.store.DeleteRemoteAccount(remoteActor.Id); err != nil {
			return fmt.Errorf("failed to delete remote account: %w", err)
		}
		return nil
	}

	if err := in.store.DeleteStatusByObjectURI(uri); err != nil {
		return fmt.Errorf("failed to delete status %s: %w", uri, err)
	}
	log.Printf("Inbox: Deleted status %s", uri)
	return nil
}

// objectURI extracts an object id whether the object is a bare URI
// string or an embedded document (Tombstones included).
func objectURI(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.Id
}
