package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/defarge/availcal/internal/model"
	"github.com/defarge/availcal/internal/schedule"
)

// AvailabilityCache keeps finalized availability JSON in Redis, keyed by
// the full normalized window start instant. Windows anchored at different
// times of the same day return different availability, so the key must
// carry the time of day. Every operation is best-effort: a cache problem
// is logged and treated as a miss, never surfaced.
type AvailabilityCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl, prefix: "avail:", logger: logger}
}

// key formats a window start as avail:<RFC3339>. The date is the leading
// segment, so invalidation can match every anchor of one day by prefix.
func (c *AvailabilityCache) key(windowStart time.Time) string {
	return c.prefix + windowStart.UTC().Format(time.RFC3339)
}

// Get returns the cached payload for a window start, or ok=false.
func (c *AvailabilityCache) Get(ctx context.Context, windowStart time.Time) ([]byte, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, c.key(windowStart)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("availability cache read failed", "err", err)
		}
		return nil, false
	}
	return payload, true
}

func (c *AvailabilityCache) Set(ctx context.Context, windowStart time.Time, payload []byte) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(windowStart), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "err", err)
	}
}

// invalidationPatterns lists the key patterns of every cached window that
// can see an event dated at eventDate: a 7-day window starting on any of
// the 6 days before the event, or on the event's day itself, includes it.
// Each pattern covers every time-of-day anchor of that date.
func (c *AvailabilityCache) invalidationPatterns(eventDate time.Time) []string {
	patterns := make([]string, 0, schedule.WindowDays)
	for shift := -(schedule.WindowDays - 1); shift <= 0; shift++ {
		day := eventDate.AddDate(0, 0, shift).Format(model.DateKeyFormat)
		patterns = append(patterns, c.prefix+day+"*")
	}
	return patterns
}

// InvalidateAround drops every cached window affected by an event at
// eventDate.
func (c *AvailabilityCache) InvalidateAround(ctx context.Context, eventDate time.Time) {
	if c == nil || c.rdb == nil {
		return
	}
	for _, pattern := range c.invalidationPatterns(eventDate) {
		if err := c.deleteMatching(ctx, pattern); err != nil {
			c.logger.Warn("availability cache invalidation failed", "err", err)
			return
		}
	}
}

// Flush removes every cached window. Used when a weekly-recurring opening
// changes, since those apply to all windows.
func (c *AvailabilityCache) Flush(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.deleteMatching(ctx, c.prefix+"*"); err != nil {
		c.logger.Warn("availability cache flush failed", "err", err)
	}
}

func (c *AvailabilityCache) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
