package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records pending job keys with SETNX so a job id is enqueued at most
// once until it is released or its TTL lapses.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduper creates a Deduper whose claims expire after ttl.
func NewDeduper(c *Client, ttl time.Duration) *Deduper {
	return &Deduper{rdb: c.rdb, ttl: ttl}
}

func dedupKey(key string) string {
	return "dedup:" + key
}

// Claim marks key pending. It returns false if the key is already pending.
func (d *Deduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKey(key), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// Release clears a pending key.
func (d *Deduper) Release(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, dedupKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: release %s: %w", key, err)
	}
	return nil
}
