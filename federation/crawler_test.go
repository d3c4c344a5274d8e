package federation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func createNoteItem(id string, published string) string {
	return fmt.Sprintf(`{
		"id": "https://remote.example/activities/%s",
		"type": "Create",
		"actor": "https://remote.example/users/carol",
		"published": %q,
		"to": ["https://www.w3.org/ns/activitystreams#Public"],
		"object": {
			"id": "https://remote.example/notes/%s",
			"type": "Note",
			"content": "<p>note %s</p>",
			"published": %q
		}
	}`, id, published, id, id, published)
}

// newOutboxServer serves a two-level outbox: a collection document at
// /outbox pointing at page 1, pages carrying the given items.
func newOutboxServer(t *testing.T, pages [][]string) (*httptest.Server, map[string]*int64) {
	t.Helper()

	hits := map[string]*int64{"/outbox": new(int64)}
	for i := range pages {
		hits[fmt.Sprintf("/page/%d", i+1)] = new(int64)
	}

	mux := http.NewServeMux()
	var server *httptest.Server

	count := func(path string) {
		atomic.AddInt64(hits[path], 1)
	}

	mux.HandleFunc("/outbox", func(w http.ResponseWriter, r *http.Request) {
		count("/outbox")
		first := ""
		if len(pages) > 0 {
			first = fmt.Sprintf(`,"first": "%s/page/1"`, server.URL)
		}
		fmt.Fprintf(w, `{"type": "OrderedCollection", "totalItems": 0%s}`, first)
	})

	for i := range pages {
		page := i + 1
		items := pages[i]
		mux.HandleFunc(fmt.Sprintf("/page/%d", page), func(w http.ResponseWriter, r *http.Request) {
			count(fmt.Sprintf("/page/%d", page))
			next := ""
			if page < len(pages) {
				next = fmt.Sprintf(`,"next": "%s/page/%d"`, server.URL, page+1)
			}
			joined := ""
			for j, item := range items {
				if j > 0 {
					joined += ","
				}
				joined += item
			}
			fmt.Fprintf(w, `{"type": "OrderedCollectionPage", "orderedItems": [%s]%s}`, joined, next)
		})
	}

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, hits
}

func collectCreates(t *testing.T, crawler *Crawler, url string, limit int) ([]*CreateActivity, error) {
	t.Helper()
	var out []*CreateActivity
	for activity, err := range crawler.FetchCreateNotes(context.Background(), url, limit) {
		if err != nil {
			return out, err
		}
		out = append(out, activity)
	}
	return out, nil
}

func TestFetchCreateNotesPageOrder(t *testing.T) {
	server, _ := newOutboxServer(t, [][]string{
		{createNoteItem("1", "2025-08-30T10:00:00Z"), createNoteItem("2", "2025-08-29T10:00:00Z")},
		{createNoteItem("3", "2025-08-28T10:00:00Z")},
	})

	crawler := NewCrawler(server.Client())
	activities, err := collectCreates(t, crawler, server.URL+"/outbox", 0)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if len(activities) != 3 {
		t.Fatalf("Expected 3 activities, got %d", len(activities))
	}
	for i, want := range []string{"1", "2", "3"} {
		wantId := "https://remote.example/notes/" + want
		if activities[i].Note == nil || activities[i].Note.Id != wantId {
			t.Errorf("Item %d: expected note %s, got %+v", i, wantId, activities[i].Note)
		}
	}
}

func TestFetchCreateNotesSkipsNonCreates(t *testing.T) {
	like := `{"id": "https://remote.example/likes/1", "type": "Like", "object": "x"}`
	announce := `{"id": "https://remote.example/boosts/1", "type": "Announce", "object": {"id": "y", "type": "Note"}}`

	server, _ := newOutboxServer(t, [][]string{
		{like, createNoteItem("1", "2025-08-30T10:00:00Z"), announce},
	})

	crawler := NewCrawler(server.Client())
	activities, err := collectCreates(t, crawler, server.URL+"/outbox", 0)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if len(activities) != 1 {
		t.Errorf("Expected only the Create/Note item, got %d items", len(activities))
	}
}

func TestFetchCreateNotesNoFirstPage(t *testing.T) {
	server, _ := newOutboxServer(t, nil)

	crawler := NewCrawler(server.Client())
	activities, err := collectCreates(t, crawler, server.URL+"/outbox", 0)
	if err != nil {
		t.Fatalf("Expected empty sequence without error, got %v", err)
	}
	if len(activities) != 0 {
		t.Errorf("Expected no activities, got %d", len(activities))
	}
}

func TestFetchCreateNotesLimitStopsPaging(t *testing.T) {
	server, hits := newOutboxServer(t, [][]string{
		{createNoteItem("1", "2025-08-30T10:00:00Z"), createNoteItem("2", "2025-08-29T10:00:00Z")},
		{createNoteItem("3", "2025-08-28T10:00:00Z")},
	})

	crawler := NewCrawler(server.Client())
	activities, err := collectCreates(t, crawler, server.URL+"/outbox", 2)
	if err != nil {
		t.Fatalf("Crawl failed: %v", err)
	}

	if len(activities) != 2 {
		t.Errorf("Expected limit of 2, got %d", len(activities))
	}
	if counter, ok := hits["/page/2"]; ok && atomic.LoadInt64(counter) > 0 {
		t.Error("Second page should not be fetched once the limit is met")
	}
}

func TestFetchCreateNotesStopsWhenConsumerBreaks(t *testing.T) {
	server, hits := newOutboxServer(t, [][]string{
		{createNoteItem("1", "2025-08-30T10:00:00Z")},
		{createNoteItem("2", "2025-08-29T10:00:00Z")},
	})

	crawler := NewCrawler(server.Client())
	for range crawler.FetchCreateNotes(context.Background(), server.URL+"/outbox", 0) {
		break
	}

	if counter, ok := hits["/page/2"]; ok && atomic.LoadInt64(counter) > 0 {
		t.Error("Second page should not be fetched after the consumer stops")
	}
}

func TestFetchCreateNotesPageError(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/outbox", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type": "OrderedCollection", "first": "%s/page/1"}`, server.URL)
	})
	mux.HandleFunc("/page/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type": "OrderedCollectionPage", "orderedItems": [%s], "next": "%s/page/2"}`,
			createNoteItem("1", "2025-08-30T10:00:00Z"), server.URL)
	})
	mux.HandleFunc("/page/2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	crawler := NewCrawler(server.Client())
	activities, err := collectCreates(t, crawler, server.URL+"/outbox", 0)

	if err == nil {
		t.Error("Expected the page error to end the sequence with an error")
	}
	if len(activities) != 1 {
		t.Errorf("Items before the failure should stand, got %d", len(activities))
	}
}

func TestDecodeCreateNoteLenientFields(t *testing.T) {
	raw := []byte(`{
		"id": "https://remote.example/activities/1",
		"type": "Create",
		"actor": {"id": "https://remote.example/users/carol"},
		"to": "https://www.w3.org/ns/activitystreams#Public",
		"object": {
			"id": "https://remote.example/notes/1",
			"type": "Note",
			"content": "hi",
			"tag": {"type": "Mention", "href": "https://example.com/users/bob", "name": "@bob"},
			"attachment": {"type": "Document", "mediaType": "image/png", "url": "https://remote.example/media/1.png"}
		}
	}`)

	activity, ok := decodeCreateNote(raw)
	if !ok {
		t.Fatal("Expected decode to succeed")
	}

	if string(activity.Actor) != "https://remote.example/users/carol" {
		t.Errorf("Actor object id not extracted: %q", activity.Actor)
	}
	if len(activity.To) != 1 || activity.To[0] != PublicCollection {
		t.Errorf("Single-string to not normalized: %v", activity.To)
	}
	if len(activity.Note.Tag) != 1 || activity.Note.Tag[0].Href != "https://example.com/users/bob" {
		t.Errorf("Single tag object not normalized: %v", activity.Note.Tag)
	}
	if len(activity.Note.Attachment) != 1 {
		t.Errorf("Single attachment object not normalized: %v", activity.Note.Attachment)
	}
}
