package federation

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	positiveKeyTTL = 5 * time.Minute
	negativeKeyTTL = 60 * time.Second
)

type cachedKey struct {
	key       *rsa.PublicKey
	expiresAt time.Time
}

// KeyResolver resolves a signature keyId to the actor's RSA public key.
// Successful lookups live in the positive cache, failed ones in the
// negative cache so an unreachable remote is not hammered on every
// inbound request. A keyId sits in at most one of the two caches.
type KeyResolver struct {
	client *http.Client
	group  singleflight.Group
	now    func() time.Time

	mu       sync.Mutex
	positive map[string]cachedKey
	negative map[string]time.Time
}

func NewKeyResolver(client *http.Client) *KeyResolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeyResolver{
		client:   client,
		now:      time.Now,
		positive: make(map[string]cachedKey),
		negative: make(map[string]time.Time),
	}
}

// Resolve returns the public key for a keyId, or false when it cannot
// be resolved. Callers cannot tell a missing key from an unreachable
// server; both are negative-cached. Concurrent misses for the same key
// coalesce onto a single fetch.
func (r *KeyResolver) Resolve(ctx context.Context, keyId string) (*rsa.PublicKey, bool) {
	actorURI, _, _ := strings.Cut(keyId, "#")

	r.mu.Lock()
	if entry, ok := r.positive[actorURI]; ok {
		if r.now().Before(entry.expiresAt) {
			r.mu.Unlock()
			return entry.key, true
		}
		delete(r.positive, actorURI)
	}
	if until, ok := r.negative[actorURI]; ok {
		if r.now().Before(until) {
			r.mu.Unlock()
			return nil, false
		}
		delete(r.negative, actorURI)
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(actorURI, func() (interface{}, error) {
		key, err := r.fetchKey(ctx, actorURI)

		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.negative[actorURI] = r.now().Add(negativeKeyTTL)
			delete(r.positive, actorURI)
			return nil, err
		}
		r.positive[actorURI] = cachedKey{key: key, expiresAt: r.now().Add(positiveKeyTTL)}
		delete(r.negative, actorURI)
		return key, nil
	})
	if err != nil {
		return nil, false
	}
	return v.(*rsa.PublicKey), true
}

// fetchKey pulls the actor document and extracts publicKeyPem.
func (r *KeyResolver) fetchKey(ctx context.Context, actorURI string) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "gomphodon/1.0 ActivityPub")

	resp, err := r.client.Do(req)
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

	var doc struct {
		PublicKey struct {
			PublicKeyPem string `json:"publicKeyPem"`
		} `json:"publicKey"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if doc.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor document has no public key")
	}

	return ParsePublicKey(doc.PublicKey.PublicKeyPem)
}
