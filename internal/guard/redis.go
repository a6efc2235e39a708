package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only when its owner equals ARGV[1].
var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
    return 0
end
local entry = cjson.decode(v)
if entry.owner == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisEntry struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// RedisGuard shares guard entries between processes through Redis. Keys are
// written without a TTL.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisGuard(client redis.UniversalClient, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = "poreview:guard:"
	}
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) key(k string) string { return g.prefix + k }

func (g *RedisGuard) TryAcquire(ctx context.Context, key, owner string) (bool, error) {
	val, err := json.Marshal(redisEntry{Owner: owner, AcquiredAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}
	ok, err := g.client.SetNX(ctx, g.key(key), val, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.key(key)}, owner).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

func (g *RedisGuard) Holder(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := g.client.Get(ctx, g.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode guard entry %s: %w", key, err)
	}
	return Entry{Key: key, Owner: e.Owner, AcquiredAt: e.AcquiredAt}, true, nil
}

func (g *RedisGuard) Clear(ctx context.Context, key string) (int, error) {
	if key != "" {
		return g.del(ctx, g.key(key))
	}
	keys, err := g.scan(ctx)
	if err != nil {
		return 0, err
	}
	return g.del(ctx, keys...)
}

func (g *RedisGuard) ClearStale(ctx context.Context, key string, olderThan time.Duration) (int, error) {
	keys := []string{g.key(key)}
	if key == "" {
		var err error
		if keys, err = g.scan(ctx); err != nil {
			return 0, err
		}
	}
	cutoff := time.Now().Add(-olderThan)
	var stale []string
	for _, k := range keys {
		e, held, err := g.Holder(ctx, strings.TrimPrefix(k, g.prefix))
		if err != nil {
			return 0, err
		}
		if held && e.AcquiredAt.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	return g.del(ctx, stale...)
}

func (g *RedisGuard) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := g.client.Scan(ctx, 0, g.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

func (g *RedisGuard) del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := g.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del %s: %w", strings.Join(keys, ","), err)
	}
	return int(n), nil
}
