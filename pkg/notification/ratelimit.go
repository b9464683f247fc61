package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// RateLimiter decides whether another delivery through a channel is allowed
// right now. Limits are fixed windows per minute and per hour.
type RateLimiter interface {
	Allow(ctx context.Context, channelID string, limit models.RateLimit) (bool, error)
}

type window struct {
	start time.Time
	count int
}

// MemoryRateLimiter is the in-process default.
type MemoryRateLimiter struct {
	clock clockwork.Clock

	mu      sync.Mutex
	minutes map[string]*window
	hours   map[string]*window
}

func NewMemoryRateLimiter(clock clockwork.Clock) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		clock:   clock,
		minutes: make(map[string]*window),
		hours:   make(map[string]*window),
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, channelID string, limit models.RateLimit) (bool, error) {
	if limit.PerMinute <= 0 && limit.PerHour <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	if limit.PerMinute > 0 && !allowWindow(l.minutes, channelID, now, time.Minute, limit.PerMinute, limit.Burst) {
		return false, nil
	}

	if limit.PerHour > 0 && !allowWindow(l.hours, channelID, now, time.Hour, limit.PerHour, 0) {
		return false, nil
	}

	return true, nil
}

func allowWindow(windows map[string]*window, key string, now time.Time, size time.Duration, limit, burst int) bool {
	w, ok := windows[key]
	if !ok || now.Sub(w.start) >= size {
		w = &window{start: now}
		windows[key] = w
	}

	max := limit + burst
	if w.count >= max {
		return false
	}

	w.count++

	return true
}

// RedisRateLimiter shares windows across processes via INCR + EXPIRE keys.
type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, channelID string, limit models.RateLimit) (bool, error) {
	if limit.PerMinute > 0 {
		ok, err := l.allowKey(ctx, "vigil:rl:m:"+channelID, time.Minute, limit.PerMinute+limit.Burst)
		if err != nil || !ok {
			return ok, err
		}
	}

	if limit.PerHour > 0 {
		ok, err := l.allowKey(ctx, "vigil:rl:h:"+channelID, time.Hour, limit.PerHour)
		if err != nil || !ok {
			return ok, err
		}
	}

	return true, nil
}

func (l *RedisRateLimiter) allowKey(ctx context.Context, key string, ttl time.Duration, max int) (bool, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count <= int64(max), nil
}
