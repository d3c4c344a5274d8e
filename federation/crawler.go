package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"
)

// stringList decodes a JSON value that may be a bare string or an array
// of strings/objects. ActivityPub addressing fields are loose here.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = stringList{single}
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(stringList, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case map[string]interface{}:
			if id, ok := t["id"].(string); ok {
				out = append(out, id)
			}
		}
	}
	*l = out
	return nil
}

// linkRef decodes a collection link that may be a string or an object
// carrying an id.
type linkRef string

func (l *linkRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = linkRef(s)
		return nil
	}
	var obj struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*l = linkRef(obj.Id)
	return nil
}

type NoteTag struct {
	Type string `json:"type"`
	Href string `json:"href"`
	Name string `json:"name"`
}

// tagList tolerates a single tag object where an array is expected.
type tagList []NoteTag

func (l *tagList) UnmarshalJSON(data []byte) error {
	var many []NoteTag
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one NoteTag
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = tagList{one}
	return nil
}

type NoteAttachment struct {
	Type      string          `json:"type"`
	MediaType string          `json:"mediaType"`
	URL       json.RawMessage `json:"url"` // string or list of Link objects
	Name      string          `json:"name"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Icon      *struct {
		URL string `json:"url"`
	} `json:"icon"`
}

type attachmentList []NoteAttachment

func (l *attachmentList) UnmarshalJSON(data []byte) error {
	var many []NoteAttachment
	if err := json.Unmarshal(data, &many); err == nil {
		*l = many
		return nil
	}
	var one NoteAttachment
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = attachmentList{one}
	return nil
}

// Note is the embedded object of a Create activity.
type Note struct {
	Id           string          `json:"id"`
	Type         string          `json:"type"`
	AttributedTo linkRef         `json:"attributedTo"`
	Content      string          `json:"content"`
	ContentMap   json.RawMessage `json:"contentMap"`
	Summary      string          `json:"summary"`
	Sensitive    bool            `json:"sensitive"`
	Published    string          `json:"published"`
	InReplyTo    linkRef         `json:"inReplyTo"`
	To           stringList      `json:"to"`
	Cc           stringList      `json:"cc"`
	Tag          tagList         `json:"tag"`
	Attachment   attachmentList  `json:"attachment"`
}

// CreateActivity is a Create activity with its embedded Note.
type CreateActivity struct {
	Id        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     linkRef         `json:"actor"`
	Published string          `json:"published"`
	To        stringList      `json:"to"`
	Cc        stringList      `json:"cc"`
	Object    json.RawMessage `json:"object"`

	Note *Note `json:"-"`
}

// PublishedTime parses the publication timestamp, preferring the outer
// activity over the note.
func (a *CreateActivity) PublishedTime() (time.Time, bool) {
	raw := a.Published
	if raw == "" && a.Note != nil {
		raw = a.Note.Published
	}
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Crawler walks remote outbox collections.
type Crawler struct {
	client *http.Client
}

func NewCrawler(client *http.Client) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Crawler{client: client}
}

type outboxPage struct {
	Type         string            `json:"type"`
	First        linkRef           `json:"first"`
	Next         linkRef           `json:"next"`
	OrderedItems []json.RawMessage `json:"orderedItems"`
}

// FetchCreateNotes lazily yields the Create/Note activities of a
// paginated outbox in page order. A bare collection is entered through
// its first page link; a collection without one yields nothing. Pages
// are fetched strictly one after another and only as long as the
// consumer keeps going or the limit (0 = unlimited) is unmet. A page
// fetch error ends the sequence with that error; items already yielded
// stand. Each call re-crawls from the start.
func (c *Crawler) FetchCreateNotes(ctx context.Context, outboxURL string, limit int) iter.Seq2[*CreateActivity, error] {
	return func(yield func(*CreateActivity, error) bool) {
		page, err := c.fetchPage(ctx, outboxURL)
		if err != nil {
			yield(nil, err)
			return
		}

		if page.Type == "OrderedCollection" || page.Type == "Collection" {
			if page.First == "" {
				return
			}
			page, err = c.fetchPage(ctx, string(page.First))
			if err != nil {
				yield(nil, err)
				return
			}
		}

		emitted := 0
		for {
			for _, raw := range page.OrderedItems {
				activity, ok := decodeCreateNote(raw)
				if !ok {
					continue
				}
				if !yield(activity, nil) {
					return
				}
				emitted++
				if limit > 0 && emitted >= limit {
					return
				}
			}

			if page.Next == "" {
				return
			}
			page, err = c.fetchPage(ctx, string(page.Next))
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

func (c *Crawler) fetchPage(ctx context.Context, url string) (*outboxPage, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "gomphodon/1.0 ActivityPub")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("outbox fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("outbox fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox page: %w", err)
	}

	var page outboxPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse outbox page: %w", err)
	}
	return &page, nil
}

// decodeCreateNote filters an outbox item down to a Create activity
// with an embedded Note. Anything else is dropped.
func decodeCreateNote(raw json.RawMessage) (*CreateActivity, bool) {
	var activity CreateActivity
	if err := json.Unmarshal(raw, &activity); err != nil {
		return nil, false
	}
	if activity.Type != "Create" || len(activity.Object) == 0 {
		return nil, false
	}

	var note Note
	if err := json.Unmarshal(activity.Object, &note); err != nil {
		return nil, false
	}
	if note.Type != "Note" {
		return nil, false
	}

	activity.Note = &note
	return &activity, true
}
