package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           interface{} `json:"@context"`
	Id                string      `json:"id"`
	Type              string      `json:"type"`
	PreferredUsername string      `json:"preferredUsername"`
	Name              string      `json:"name"`
	Summary           string      `json:"summary"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox"`
	Icon              struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		Id           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// ActorFetcher resolves remote actor documents and keeps them cached in
// the actor store.
type ActorFetcher struct {
	client *http.Client
	store  ActorStore
}

func NewActorFetcher(client *http.Client, store ActorStore) *ActorFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ActorFetcher{client: client, store: store}
}

// CanonicalActorURI turns a user@host handle into the conventional
// actor URL. Full URLs pass through unchanged.
func CanonicalActorURI(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	handle := strings.TrimPrefix(target, "@")
	user, host, found := strings.Cut(handle, "@")
	if !found || user == "" || host == "" {
		return target
	}
	return fmt.Sprintf("https://%s/users/%s", host, user)
}

// GetOrFetch returns the cached actor unless the cache entry is stale
// (24 hours), in which case the document is re-fetched.
func (f *ActorFetcher) GetOrFetch(ctx context.Context, actorURI string) (*domain.RemoteAccount, error) {
	err, cached := f.store.ReadRemoteAccountByURI(actorURI)
	if err == nil && cached != nil {
		if time.Since(cached.LastFetchedAt) < 24*time.Hour {
			return cached, nil
		}
	}

	return f.Fetch(ctx, actorURI)
}

// Fetch fetches an actor document from a remote server and upserts the
// cached record, keeping a previously assigned id stable.
func (f *ActorFetcher) Fetch(ctx context.Context, actorURI string) (*domain.RemoteAccount, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "gomphodon/1.0 ActivityPub")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.Id == "" || actor.Inbox == "" || actor.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	domainName, err := extractDomain(actor.Id)
	if err != nil {
		return nil, err
	}

	remoteAcc := &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      actor.PreferredUsername,
		Domain:        domainName,
		ActorURI:      actor.Id,
		DisplayName:   actor.Name,
		Summary:       actor.Summary,
		InboxURI:      actor.Inbox,
		OutboxURI:     actor.Outbox,
		PublicKeyPem:  actor.PublicKey.PublicKeyPem,
		AvatarURL:     actor.Icon.URL,
		LastFetchedAt: time.Now(),
	}

	// Keep the id stable across refreshes
	if err, existing := f.store.ReadRemoteAccountByURI(actor.Id); err == nil && existing != nil {
		remoteAcc.Id = existing.Id
	}

	if err := f.store.SaveRemoteAccount(remoteAcc); err != nil {
		return nil, fmt.Errorf("failed to store remote account: %w", err)
	}

	return remoteAcc, nil
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}
