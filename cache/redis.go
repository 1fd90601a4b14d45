// Package cache wraps the Redis client used for caching, rate limits,
// token revocation and pub/sub fan-out.
package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis at addr. Returns nil when Redis is
// unreachable; callers treat a nil client as "degrade gracefully".
func NewClient(addr string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection warning: %v (continuing without cache)", err)
		return nil
	}
	return client
}
