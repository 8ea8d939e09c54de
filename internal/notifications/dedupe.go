package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type marker interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeadlineWarningKey(matchID, deadlineKind string) string
}

// Deduper limits deadline warnings to one per (match, deadline kind) per
// cooldown. With no shared store it falls back to process memory, which only
// de-duplicates within a single instance.
type Deduper struct {
	store marker
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	local map[string]time.Time
}

func NewDeduper(store marker, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		local: map[string]time.Time{},
	}
}

// ShouldSend reports whether a warning for this match and deadline may go out
// now, recording it when it may.
func (d *Deduper) ShouldSend(ctx context.Context, matchID uuid.UUID, deadlineKind string) (bool, error) {
	if d.store != nil {
		return d.store.MarkOnce(ctx, d.store.DeadlineWarningKey(matchID.String(), deadlineKind), d.ttl)
	}

	key := matchID.String() + ":" + deadlineKind
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if until, ok := d.local[key]; ok && now.Before(until) {
		return false, nil
	}
	for k, until := range d.local {
		if !now.Before(until) {
			delete(d.local, k)
		}
	}
	d.local[key] = now.Add(d.ttl)
	return true, nil
}
