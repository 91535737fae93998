package engine

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimKeyPrefix = "dispatch:"

// RedisClaimer hands out per-reminder dispatch claims backed by SET NX with a
// TTL, so a crashed run cannot park a reminder forever.
type RedisClaimer struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisClaimer{client: client, ttl: ttl}
}

func (c *RedisClaimer) Claim(ctx context.Context, id string) (bool, error) {
	return c.client.SetNX(ctx, claimKeyPrefix+id, 1, c.ttl).Result()
}

func (c *RedisClaimer) Release(ctx context.Context, id string) error {
	return c.client.Del(ctx, claimKeyPrefix+id).Err()
}
