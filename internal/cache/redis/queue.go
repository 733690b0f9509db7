package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO job queue on Redis lists (LPUSH / BRPOP).
type Queue struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
}

// NewQueue creates a Queue whose list keys are prefixed with prefix.
func NewQueue(c *Client, prefix string) *Queue {
	return &Queue{rdb: c.rdb, prefix: prefix, timeout: time.Second}
}

func (q *Queue) key(name string) string {
	return q.prefix + "queue:" + name
}

// Push appends payload to the named queue.
func (q *Queue) Push(ctx context.Context, name string, payload []byte) error {
	if err := q.rdb.LPush(ctx, q.key(name), payload).Err(); err != nil {
		return fmt.Errorf("redis: push %s: %w", name, err)
	}
	return nil
}

// Pop blocks until a payload is available on the named queue or ctx is done.
func (q *Queue) Pop(ctx context.Context, name string) ([]byte, error) {
	key := q.key(name)
	for {
		res, err := q.rdb.BRPop(ctx, q.timeout, key).Result()
		switch {
		case err == nil:
			// res is [key, value]
			return []byte(res[1]), nil
		case errors.Is(err, redis.Nil):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("redis: pop %s: %w", name, err)
		}
	}
}

// Len returns the number of payloads waiting on the named queue.
func (q *Queue) Len(ctx context.Context, name string) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: len %s: %w", name, err)
	}
	return n, nil
}
