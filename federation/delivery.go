package federation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/gomphodon/gomphodon/util"
)

type DeliveryWorkerStore interface {
	AccountStore
	DeliveryStore
}

// DeliveryWorker drains the delivery queue: each item is a signed POST
// of one activity to one remote inbox, retried with exponential backoff.
type DeliveryWorker struct {
	store  DeliveryWorkerStore
	client *http.Client
	conf   *util.AppConfig
}

func NewDeliveryWorker(store DeliveryWorkerStore, client *http.Client, conf *util.AppConfig) *DeliveryWorker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DeliveryWorker{store: store, client: client, conf: conf}
}

// Start begins processing the queue in the background.
func (w *DeliveryWorker) Start() {
	log.Println("Starting ActivityPub delivery worker...")

	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for range ticker.C {
			w.processQueue()
		}
	}()
}

func (w *DeliveryWorker) processQueue() {
	err, items := w.store.ReadPendingDeliveries(50)
	if err != nil {
		log.Printf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}

	if items == nil || len(*items) == 0 {
		return
	}

	log.Printf("DeliveryWorker: Processing %d pending deliveries", len(*items))

	for _, item := range *items {
		if err := w.deliver(&item); err != nil {
			item.Attempts++
			backoffMinutes := []int{1, 5, 15, 60, 240, 1440}[min(item.Attempts-1, 5)]
			item.NextRetryAt = time.Now().Add(time.Duration(backoffMinutes) * time.Minute)

			if item.Attempts >= 10 {
				log.Printf("DeliveryWorker: Giving up on delivery to %s after %d attempts", item.InboxURI, item.Attempts)
				w.store.DeleteDelivery(item.Id)
			} else {
				log.Printf("DeliveryWorker: Delivery to %s failed (attempt %d), retry in %dm: %v",
					item.InboxURI, item.Attempts, backoffMinutes, err)
				w.store.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt)
			}
		} else {
			log.Printf("DeliveryWorker: Successfully delivered to %s", item.InboxURI)
			w.store.DeleteDelivery(item.Id)
		}
	}
}

// deliver attempts a single signed delivery.
func (w *DeliveryWorker) deliver(item *domain.DeliveryQueueItem) error {
	var activity map[string]interface{}
	if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
		return fmt.Errorf("failed to parse activity JSON: %w", err)
	}

	actor, ok := activity["actor"].(string)
	if !ok {
		return fmt.Errorf("activity missing actor field")
	}

	// actor format: "https://example.com/users/alice"
	parts := strings.Split(actor, "/")
	if len(parts) < 2 {
		return fmt.Errorf("invalid actor URI: %s", actor)
	}
	username := parts[len(parts)-1]

	err, localAccount := w.store.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("failed to get local account: %w", err)
	}

	privateKey, err := ParsePrivateKey(localAccount.WebPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	body := []byte(item.ActivityJSON)
	req, err := http.NewRequest("POST", item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "gomphodon/1.0 ActivityPub")

	keyId := fmt.Sprintf("https://%s/users/%s#main-key", w.conf.Conf.SslDomain, username)
	if err := SignRequest(req, body, privateKey, keyId); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	return nil
}
