// Package cache keeps computed availability in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tablebook/internal/models"
	"tablebook/internal/slots"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "availability"

// Entry is the cached answer for one (date, party size, area).
type Entry struct {
	Reason  slots.ClosedReason `json:"reason,omitempty"`
	Message string             `json:"message,omitempty"`
	Slots   []slots.Slot       `json:"slots,omitempty"`
}

// From drops slots starting before cutoff.
func (e Entry) From(cutoff time.Time) Entry {
	out := Entry{Reason: e.Reason, Message: e.Message}
	for _, s := range e.Slots {
		if !s.StartTime.Before(cutoff) {
			out.Slots = append(out.Slots, s)
		}
	}
	return out
}

// AvailabilityCache stores entries under versioned keys. Bumping a date's
// version, or the global generation, orphans its entries until they expire.
// A nil client or non-positive TTL turns every call into a no-op.
type AvailabilityCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{redis: client, ttl: ttl}
}

// Enabled reports whether lookups can hit Redis.
func (c *AvailabilityCache) Enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

func generationKey() string {
	return keyPrefix + ":generation"
}

func versionKey(date string) string {
	return fmt.Sprintf("%s:version:%s", keyPrefix, date)
}

// versionTTL outlives any entry written under the current version.
func (c *AvailabilityCache) versionTTL() time.Duration {
	return max(24*time.Hour, 2*c.ttl)
}

func (c *AvailabilityCache) entryKey(ctx context.Context, date time.Time, partySize int, area models.Area) (string, error) {
	day := date.Format(models.DateLayout)
	vals, err := c.redis.MGet(ctx, generationKey(), versionKey(day)).Result()
	if err != nil {
		return "", err
	}
	gen, ver := "0", "0"
	if s, ok := vals[0].(string); ok {
		gen = s
	}
	if s, ok := vals[1].(string); ok {
		ver = s
	}
	return fmt.Sprintf("%s:%s:g%s:v%s:%d:%s", keyPrefix, day, gen, ver, partySize, area), nil
}

// Get returns the cached entry, or false on a miss or any Redis error.
func (c *AvailabilityCache) Get(ctx context.Context, date time.Time, partySize int, area models.Area) (Entry, bool) {
	var e Entry
	if !c.Enabled() {
		return e, false
	}
	key, err := c.entryKey(ctx, date, partySize, area)
	if err != nil {
		return e, false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return e, false
	}
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return e, false
	}
	return e, true
}

// Set stores an entry under the current version of date.
func (c *AvailabilityCache) Set(ctx context.Context, date time.Time, partySize int, area models.Area, e Entry) error {
	if !c.Enabled() {
		return nil
	}
	key, err := c.entryKey(ctx, date, partySize, area)
	if err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, key, data, c.ttl).Err()
}

// InvalidateDate orphans every entry of date.
func (c *AvailabilityCache) InvalidateDate(ctx context.Context, date time.Time) error {
	if !c.Enabled() {
		return nil
	}
	key := versionKey(date.Format(models.DateLayout))
	pipe := c.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.versionTTL())
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateAll orphans every entry, e.g. after a configuration reload.
func (c *AvailabilityCache) InvalidateAll(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.redis.Incr(ctx, generationKey()).Err()
}

// Ping checks the connection for readiness probes.
func (c *AvailabilityCache) Ping(ctx context.Context) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}
