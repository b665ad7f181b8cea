// Package dedup drops webhook redeliveries of a message that is in flight
// or was finished within a short window.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard tracks message IDs across one processing attempt.
type Guard interface {
	// Begin claims id. It returns false when id is already claimed.
	Begin(ctx context.Context, id string) (bool, error)
	// End releases id after the retention window.
	End(ctx context.Context, id string)
}

const keyPrefix = "dedup:msg:"

// inFlightTTL bounds a claim whose End never ran (crash mid-processing).
const inFlightTTL = 2 * time.Minute

type RedisGuard struct {
	rdb    *redis.Client
	window time.Duration
}

func NewRedisGuard(rdb *redis.Client, window time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, window: window}
}

func (g *RedisGuard) Begin(ctx context.Context, id string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, keyPrefix+id, "processing", inFlightTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: claim %s: %w", id, err)
	}
	return ok, nil
}

func (g *RedisGuard) End(ctx context.Context, id string) {
	// Errors leave the in-flight TTL in place, which only lengthens the window.
	g.rdb.PExpire(context.WithoutCancel(ctx), keyPrefix+id, g.window)
}

// MemoryGuard is the single-process fallback when Redis is unavailable.
type MemoryGuard struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time // zero value means in flight
	now     func() time.Time
}

func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{
		window:  window,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (g *MemoryGuard) Begin(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.evictLocked(now)
	if _, exists := g.entries[id]; exists {
		return false, nil
	}
	g.entries[id] = time.Time{}
	return true, nil
}

func (g *MemoryGuard) End(_ context.Context, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[id] = g.now().Add(g.window)
}

// Len reports tracked IDs, including in-flight ones.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *MemoryGuard) evictLocked(now time.Time) {
	for id, expires := range g.entries {
		if !expires.IsZero() && !now.Before(expires) {
			delete(g.entries, id)
		}
	}
}
