// Package play counts track plays without inflating the numbers on
// seek-heavy sessions or buffering players that re-request byte offset 0.
package play

import (
	"context"
	"sync"
	"time"
)

// Debouncer decides whether a play signal for a (track, user) pair should be
// counted. Implementations are injected into the streaming handler so the
// process-local map can be swapped for a distributed backend without
// touching call sites.
type Debouncer interface {
	// ShouldCount reports whether enough time has passed since the last
	// counted play for this pair, recording the new play when it has.
	ShouldCount(ctx context.Context, trackID, userID int64) bool
}

type pairKey struct {
	trackID int64
	userID  int64
}

// MemoryDebouncer keeps last-counted timestamps in a mutex-guarded map.
// State is process-local and transient; with multiple instances each counts
// independently. Play counts are an engagement metric, not an audit-grade
// number, so that is acceptable.
type MemoryDebouncer struct {
	mu       sync.Mutex
	lastSeen map[pairKey]time.Time

	window     time.Duration // minimum gap between counted plays per pair
	maxEntries int           // prune trigger
	pruneAge   time.Duration // entries older than this are dropped on prune

	now func() time.Time // injectable for tests
}

// NewMemoryDebouncer creates the in-memory backend. Non-positive arguments
// fall back to the documented defaults (30s window, 10000 entries, 60s age).
func NewMemoryDebouncer(window time.Duration, maxEntries int, pruneAge time.Duration) *MemoryDebouncer {
	if window <= 0 {
		window = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if pruneAge <= 0 {
		pruneAge = 60 * time.Second
	}
	return &MemoryDebouncer{
		lastSeen:   make(map[pairKey]time.Time),
		window:     window,
		maxEntries: maxEntries,
		pruneAge:   pruneAge,
		now:        time.Now,
	}
}

// ShouldCount implements Debouncer.
func (d *MemoryDebouncer) ShouldCount(ctx context.Context, trackID, userID int64) bool {
	key := pairKey{trackID: trackID, userID: userID}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSeen[key]; ok && now.Sub(last) <= d.window {
		return false
	}

	d.lastSeen[key] = now

	// Opportunistic prune: a soft bound, not an LRU. Losing an entry costs
	// at most one extra counted play.
	if len(d.lastSeen) > d.maxEntries {
		for k, t := range d.lastSeen {
			if now.Sub(t) > d.pruneAge {
				delete(d.lastSeen, k)
			}
		}
	}

	return true
}

// Len reports the current number of tracked pairs.
func (d *MemoryDebouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lastSeen)
}
