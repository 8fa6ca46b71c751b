package cache

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNilCacheIsSafe(t *testing.T) {
	var c *AvailabilityCache
	ctx := context.Background()
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, ok := c.Get(ctx, at); ok {
		t.Fatal("nil cache reported a hit")
	}
	c.Set(ctx, at, []byte("{}"))
	c.InvalidateAround(ctx, at)
	c.Flush(ctx)
}

func TestUnconfiguredCacheIsSafe(t *testing.T) {
	c := New(nil, time.Minute, nil)
	ctx := context.Background()
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, ok := c.Get(ctx, at); ok {
		t.Fatal("unconfigured cache reported a hit")
	}
	c.Set(ctx, at, []byte("{}"))
}

func TestNewDefaultsTTL(t *testing.T) {
	c := New(nil, 0, nil)
	if c.ttl != time.Minute {
		t.Fatalf("expected default ttl of one minute, got %s", c.ttl)
	}
}

func TestKeyCarriesTimeOfDay(t *testing.T) {
	c := New(nil, time.Minute, nil)
	midnight := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	morning := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	if got := c.key(morning); got != "avail:2026-01-05T08:00:00Z" {
		t.Fatalf("unexpected key: %s", got)
	}
	if c.key(midnight) == c.key(morning) {
		t.Fatal("windows anchored at different times of the same day must not share a key")
	}
	if !strings.HasPrefix(c.key(morning), "avail:2026-01-05") {
		t.Fatalf("key must start with the window date: %s", c.key(morning))
	}
}

func TestInvalidationPatternsCoverSevenWindowStarts(t *testing.T) {
	c := New(nil, time.Minute, nil)

	got := c.invalidationPatterns(time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC))
	want := []string{
		"avail:2026-01-04*",
		"avail:2026-01-05*",
		"avail:2026-01-06*",
		"avail:2026-01-07*",
		"avail:2026-01-08*",
		"avail:2026-01-09*",
		"avail:2026-01-10*",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("patterns mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestInvalidationPatternsMatchAnyAnchorOfTheDay(t *testing.T) {
	c := New(nil, time.Minute, nil)

	patterns := c.invalidationPatterns(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	key := c.key(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))

	prefix := strings.TrimSuffix(patterns[len(patterns)-1], "*")
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("key %s not covered by pattern %s", key, patterns[len(patterns)-1])
	}
}
