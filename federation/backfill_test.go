package federation

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

// newBackfillFixture seeds a cached actor whose outbox is the given
// test server, so no actor fetch goes over the network.
func newBackfillFixture(t *testing.T, server *httptest.Server, parallel int64) (*Backfiller, *fakeStatusStore) {
	t.Helper()

	actorStore := newFakeActorStore()
	actorStore.SaveRemoteAccount(&domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      "carol",
		Domain:        "remote.example",
		ActorURI:      "https://remote.example/users/carol",
		InboxURI:      "https://remote.example/users/carol/inbox",
		OutboxURI:     server.URL + "/outbox",
		LastFetchedAt: time.Now(),
	})

	statusStore := newFakeStatusStore()
	fetcher := NewActorFetcher(server.Client(), actorStore)
	crawler := NewCrawler(server.Client())
	ingestor := NewIngestor(statusStore)

	return NewBackfiller(fetcher, crawler, ingestor, parallel), statusStore
}

func recentItems(n int) []string {
	items := make([]string, n)
	published := time.Now().Add(-time.Hour)
	for i := range items {
		items[i] = createNoteItem(fmt.Sprintf("%d", i+1), published.Add(-time.Duration(i)*time.Minute).Format(time.RFC3339))
	}
	return items
}

func TestBackfillSearchItemCap(t *testing.T) {
	server, _ := newOutboxServer(t, [][]string{recentItems(160)})
	backfiller, statusStore := newBackfillFixture(t, server, 2)

	ingested, err := backfiller.RunOnce(context.Background(), "carol@remote.example", BackfillSearch)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	if ingested != 150 {
		t.Errorf("Search backfill should cap at 150 items, got %d", ingested)
	}
	if statusStore.count() != 150 {
		t.Errorf("Expected 150 stored statuses, got %d", statusStore.count())
	}
}

func TestBackfillAgeCutoff(t *testing.T) {
	now := time.Now()
	// Reverse chronological: 1 day, 10 days, 31 days old
	items := []string{
		createNoteItem("1", now.Add(-24*time.Hour).Format(time.RFC3339)),
		createNoteItem("2", now.Add(-10*24*time.Hour).Format(time.RFC3339)),
		createNoteItem("3", now.Add(-31*24*time.Hour).Format(time.RFC3339)),
	}
	server, _ := newOutboxServer(t, [][]string{items})
	backfiller, _ := newBackfillFixture(t, server, 2)

	ingested, err := backfiller.RunOnce(context.Background(), "https://remote.example/users/carol", BackfillFollow)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	if ingested != 2 {
		t.Errorf("Items past the 30 day window should be dropped, got %d ingested", ingested)
	}
}

func TestBackfillAgeCutoffStopsCrawl(t *testing.T) {
	now := time.Now()
	// The too-old item sits at the end of page 1, so page 2 must never
	// be fetched.
	page1 := []string{
		createNoteItem("1", now.Add(-24*time.Hour).Format(time.RFC3339)),
		createNoteItem("2", now.Add(-40*24*time.Hour).Format(time.RFC3339)),
	}
	page2 := []string{
		createNoteItem("3", now.Add(-41*24*time.Hour).Format(time.RFC3339)),
	}
	server, hits := newOutboxServer(t, [][]string{page1, page2})
	backfiller, _ := newBackfillFixture(t, server, 2)

	ingested, err := backfiller.RunOnce(context.Background(), "carol@remote.example", BackfillFollow)
	if err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}

	if ingested != 1 {
		t.Errorf("Expected 1 ingested item, got %d", ingested)
	}
	if atomic.LoadInt64(hits["/page/2"]) > 0 {
		t.Error("Crawl should stop at the first too-old item without fetching further pages")
	}
}

func TestBackfillCooldownSkipsRepeat(t *testing.T) {
	server, hits := newOutboxServer(t, [][]string{recentItems(3)})
	backfiller, _ := newBackfillFixture(t, server, 2)

	if _, err := backfiller.RunOnce(context.Background(), "carol@remote.example", BackfillSearch); err != nil {
		t.Fatalf("First backfill failed: %v", err)
	}

	ingested, err := backfiller.RunOnce(context.Background(), "carol@remote.example", BackfillSearch)
	if err != nil {
		t.Fatalf("Cooldown skip should not error: %v", err)
	}
	if ingested != 0 {
		t.Errorf("Backfill within cooldown should ingest nothing, got %d", ingested)
	}
	if got := atomic.LoadInt64(hits["/outbox"]); got != 1 {
		t.Errorf("Expected a single crawl, got %d outbox fetches", got)
	}
}

func TestBackfillCooldownExpires(t *testing.T) {
	server, hits := newOutboxServer(t, [][]string{recentItems(3)})
	backfiller, _ := newBackfillFixture(t, server, 2)

	current := time.Now()
	backfiller.now = func() time.Time { return current }

	backfiller.RunOnce(context.Background(), "carol@remote.example", BackfillSearch)

	current = current.Add(backfillCooldown + time.Minute)
	backfiller.RunOnce(context.Background(), "carol@remote.example", BackfillSearch)

	if got := atomic.LoadInt64(hits["/outbox"]); got != 2 {
		t.Errorf("Expected a re-crawl after the cooldown, got %d outbox fetches", got)
	}
}

func TestBackfillReleasesPermit(t *testing.T) {
	server, _ := newOutboxServer(t, [][]string{recentItems(2)})

	// Parallelism of one: a leaked permit would deadlock the second run
	backfiller, _ := newBackfillFixture(t, server, 1)

	if _, err := backfiller.RunOnce(context.Background(), "carol@remote.example", BackfillSearch); err != nil {
		t.Fatalf("First backfill failed: %v", err)
	}

	// Different actor, same outbox; the cooldown does not apply to it
	backfiller.actors.store.SaveRemoteAccount(&domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      "dave",
		Domain:        "remote.example",
		ActorURI:      "https://remote.example/users/dave",
		InboxURI:      "https://remote.example/users/dave/inbox",
		OutboxURI:     server.URL + "/outbox",
		LastFetchedAt: time.Now(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := backfiller.RunOnce(ctx, "dave@remote.example", BackfillSearch); err != nil {
		t.Fatalf("Second backfill failed, permit likely not released: %v", err)
	}
}

func TestCanonicalActorURI(t *testing.T) {
	cases := []struct {
		target string
		want   string
	}{
		{"carol@remote.example", "https://remote.example/users/carol"},
		{"@carol@remote.example", "https://remote.example/users/carol"},
		{"https://remote.example/users/carol", "https://remote.example/users/carol"},
		{"http://remote.example/users/carol", "http://remote.example/users/carol"},
		{"not-a-handle", "not-a-handle"},
	}

	for _, tc := range cases {
		if got := CanonicalActorURI(tc.target); got != tc.want {
			t.Errorf("CanonicalActorURI(%q) = %q, want %q", tc.target, got, tc.want)
		}
	}
}
