package federation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

type BackfillType int

const (
	BackfillFollow BackfillType = iota
	BackfillSearch
)

func (t BackfillType) String() string {
	if t == BackfillSearch {
		return "search"
	}
	return "follow"
}

type backfillPolicy struct {
	maxItems int
	maxAge   time.Duration
}

func (t BackfillType) policy() backfillPolicy {
	if t == BackfillSearch {
		return backfillPolicy{maxItems: 150, maxAge: 30 * 24 * time.Hour}
	}
	return backfillPolicy{maxItems: 500, maxAge: 30 * 24 * time.Hour}
}

const backfillCooldown = 60 * time.Minute

// Backfiller pulls a remote actor's outbox history and feeds it to the
// ingest mapper. A weighted semaphore caps concurrent backfills across
// the process; repeated requests for one actor inside the cooldown
// window are dropped without acquiring a permit.
type Backfiller struct {
	actors   *ActorFetcher
	crawler  *Crawler
	ingestor *Ingestor

	sem *semaphore.Weighted
	now func() time.Time

	mu      sync.Mutex
	lastRun map[string]time.Time
}

func NewBackfiller(actors *ActorFetcher, crawler *Crawler, ingestor *Ingestor, parallel int64) *Backfiller {
	if parallel <= 0 {
		parallel = 2
	}
	return &Backfiller{
		actors:   actors,
		crawler:  crawler,
		ingestor: ingestor,
		sem:      semaphore.NewWeighted(parallel),
		now:      time.Now,
		lastRun:  make(map[string]time.Time),
	}
}

// TriggerAsync schedules a backfill and returns immediately. Errors are
// logged and never reach the caller.
func (b *Backfiller) TriggerAsync(target string, kind BackfillType) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := b.RunOnce(ctx, target, kind); err != nil {
			log.Printf("Backfill: %s backfill for %s failed: %v", kind, target, err)
		}
	}()
}

// RunOnce performs one backfill synchronously and returns the number of
// statuses ingested. Target is a user@host handle or a full actor URL.
func (b *Backfiller) RunOnce(ctx context.Context, target string, kind BackfillType) (int, error) {
	actorURI := CanonicalActorURI(target)

	if !b.admit(actorURI) {
		log.Printf("Backfill: %s within cooldown, skipping", actorURI)
		return 0, nil
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer b.sem.Release(1)

	actor, err := b.actors.GetOrFetch(ctx, actorURI)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve actor %s: %w", actorURI, err)
	}
	if actor.OutboxURI == "" {
		log.Printf("Backfill: %s has no outbox", actor.Acct())
		return 0, nil
	}

	policy := kind.policy()
	cutoff := b.now().Add(-policy.maxAge)

	var matched []*CreateActivity
	var crawlErr error
	for activity, err := range b.crawler.FetchCreateNotes(ctx, actor.OutboxURI, policy.maxItems) {
		if err != nil {
			crawlErr = err
			break
		}
		// Outboxes are reverse chronological, so the first item past
		// the age cutoff ends the crawl.
		if published, ok := activity.PublishedTime(); ok && published.Before(cutoff) {
			break
		}
		matched = append(matched, activity)
	}

	if crawlErr != nil {
		if len(matched) == 0 {
			return 0, crawlErr
		}
		// Keep what the crawl produced before it broke
		log.Printf("Backfill: crawl of %s ended early: %v", actor.OutboxURI, crawlErr)
	}

	statuses, err := b.ingestor.IngestCreates(ctx, matched, actor)
	if err != nil {
		return len(statuses), err
	}

	log.Printf("Backfill: ingested %d statuses from %s (%s)", len(statuses), actor.Acct(), kind)
	return len(statuses), nil
}

// admit records a run start unless the actor is still cooling down.
// Recording before the crawl keeps two near-simultaneous triggers from
// both running.
func (b *Backfiller) admit(actorURI string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if last, ok := b.lastRun[actorURI]; ok && b.now().Sub(last) < backfillCooldown {
		return false
	}
	b.lastRun[actorURI] = b.now()
	return true
}
