// Package redis keeps daily usage counters in Redis so several replypass
// processes can enforce one quota.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/pkg/reply"
)

var _ store.UsageCounters = (*Counters)(nil)

// incrementScript increments KEYS[1] unless it already reached ARGV[1].
// The first increment sets the expiry to ARGV[2] seconds.
// Returns {admitted, count}.
var incrementScript = goredis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
	return {0, current}
end
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return {1, n}
`)

// Counters implements store.UsageCounters on a Redis client.
type Counters struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    int64
}

// NewCounters wraps an existing client. ttlSeconds bounds each counter's life.
func NewCounters(rdb goredis.UniversalClient, prefix string, ttlSeconds int64) *Counters {
	return &Counters{rdb: rdb, prefix: prefix, ttl: ttlSeconds}
}

// key lays out prefix:day:type:user so the day parses from a fixed offset
// whatever the user ID contains.
func (c *Counters) key(k reply.UsageKey) string {
	return c.prefix + ":" + k.Day + ":" + string(k.UsageType) + ":" + k.UserID
}

// IncrementIfBelow implements store.UsageCounters.
func (c *Counters) IncrementIfBelow(ctx context.Context, key reply.UsageKey, limit int) (int, bool, error) {
	if limit <= 0 {
		n, err := c.Count(ctx, key)
		return n, false, err
	}
	res, err := incrementScript.Run(ctx, c.rdb, []string{c.key(key)}, limit, c.ttl).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("usage.redis: increment: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("usage.redis: unexpected script reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

// Count implements store.UsageCounters.
func (c *Counters) Count(ctx context.Context, key reply.UsageKey) (int, error) {
	n, err := c.rdb.Get(ctx, c.key(key)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("usage.redis: read: %w", err)
	}
	return n, nil
}

// Prune implements store.UsageCounters. Keys expire on their own; Prune
// catches counters written with a longer TTL or before one was set.
func (c *Counters) Prune(ctx context.Context, before string) (int64, error) {
	var (
		deleted int64
		cursor  uint64
		head    = c.prefix + ":"
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, head+"*", 500).Result()
		if err != nil {
			return deleted, fmt.Errorf("usage.redis: scan: %w", err)
		}
		var stale []string
		for _, k := range keys {
			day, _, ok := strings.Cut(strings.TrimPrefix(k, head), ":")
			if ok && day < before {
				stale = append(stale, k)
			}
		}
		if len(stale) > 0 {
			n, err := c.rdb.Del(ctx, stale...).Result()
			if err != nil {
				return deleted, fmt.Errorf("usage.redis: delete: %w", err)
			}
			deleted += n
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (c *Counters) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
