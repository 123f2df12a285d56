// Package revoke provides the optional Redis-backed grant deny-list. Each
// revoked jti lives only as long as the grant it vetoes, so the list stays
// bounded without a sweeper.
package revoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "onecall:revoked:"

// RedisList stores revoked grant ids in Redis.
type RedisList struct {
	client *redis.Client
}

// NewRedisList connects to Redis at the given URL and verifies the
// connection.
func NewRedisList(ctx context.Context, redisURL string) (*RedisList, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisList{client: client}, nil
}

// Revoke records jti until the grant's own expiry. Revoking an already
// expired grant is a no-op.
func (l *RedisList) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, keyPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether jti is on the deny-list.
func (l *RedisList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := l.client.Get(ctx, keyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *RedisList) Close() error { return l.client.Close() }
