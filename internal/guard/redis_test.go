package guard

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TestRedisGuard requires a running Redis at TEST_REDIS_ADDR.
func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	g := NewRedisGuard(client, "poreview:test:"+uuid.NewString()+":")
	exercise(t, g)
}
