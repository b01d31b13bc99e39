// Package queue decouples request submission from generation work. Jobs are
// request ids pushed onto a Redis list; the blocking pop gives each job to
// exactly one worker.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Dequeue when no job became available within the
// blocking window.
var ErrEmpty = errors.New("queue: no job available")

// Queue is the job dispatcher contract. Enqueue is called by the API process
// after the queued row is durable; Dequeue is called only by workers.
type Queue interface {
	Enqueue(ctx context.Context, requestID string) error
	Dequeue(ctx context.Context) (string, error)
}

// dequeueBlock bounds a single blocking pop so worker shutdown stays responsive.
const dequeueBlock = 5 * time.Second

// RedisQueue implements Queue over a Redis list (LPUSH producer, BRPOP consumer).
type RedisQueue struct {
	client *redis.Client
	name   string
}

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, name: name}
}

func (q *RedisQueue) Enqueue(ctx context.Context, requestID string) error {
	if err := q.client.LPush(ctx, q.name, requestID).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", requestID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	res, err := q.client.BRPop(ctx, dequeueBlock, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		return "", fmt.Errorf("queue: dequeue: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return "", ErrEmpty
	}
	return res[1], nil
}

var _ Queue = (*RedisQueue)(nil)
