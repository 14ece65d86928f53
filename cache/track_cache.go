package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"WaveFM/model"

	"github.com/go-redis/redis/v8"
)

// TrackCache caches track rows in Redis ahead of the MySQL lookup on the
// streaming path. Entries are not authoritative: they may be stale for up to
// the configured TTL, which is acceptable because rendition files are
// immutable and a re-ingest swaps paths atomically.
type TrackCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTrackCache creates a TrackCache. A nil client disables caching (every
// Get reports a miss).
func NewTrackCache(client *redis.Client, ttl time.Duration) *TrackCache {
	return &TrackCache{client: client, ttl: ttl}
}

func trackKey(trackID int64) string {
	return fmt.Sprintf("track:%d", trackID)
}

// Get returns the cached track, or (nil, nil) on a miss.
func (c *TrackCache) Get(ctx context.Context, trackID int64) (*model.Track, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, trackKey(trackID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track %d from cache: %w", trackID, err)
	}

	track := &model.Track{}
	if err := json.Unmarshal(data, track); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return nil, nil
	}
	return track, nil
}

// Set stores the track with the configured TTL.
func (c *TrackCache) Set(ctx context.Context, track *model.Track) error {
	if c == nil || c.client == nil || track == nil {
		return nil
	}

	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track %d: %w", track.ID, err)
	}

	if err := c.client.Set(ctx, trackKey(track.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache track %d: %w", track.ID, err)
	}
	return nil
}

// Invalidate drops the cached entry, used after ingest updates or deletion.
func (c *TrackCache) Invalidate(ctx context.Context, trackID int64) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Del(ctx, trackKey(trackID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate track %d: %w", trackID, err)
	}
	return nil
}
