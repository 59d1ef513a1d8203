package apiclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceGuard rejects a (client, timestamp, hash) tuple seen before.
type NonceGuard interface {
	// Claim returns false when the tuple was already claimed.
	Claim(ctx context.Context, clientID, timestamp, hash string, ttl time.Duration) (bool, error)
}

type RedisNonceGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisNonceGuard(client *redis.Client) *RedisNonceGuard {
	return &RedisNonceGuard{
		client: client,
		prefix: "apiclient:nonce:",
	}
}

func (g *RedisNonceGuard) key(clientID, timestamp, hash string) string {
	return fmt.Sprintf("%s%s:%s:%s", g.prefix, clientID, timestamp, hash)
}

func (g *RedisNonceGuard) Claim(ctx context.Context, clientID, timestamp, hash string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(clientID, timestamp, hash), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("apiclient: claim nonce: %w", err)
	}
	return ok, nil
}
