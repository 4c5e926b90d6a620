// Package worker drains the log queue: it persists request logs, applies
// retention policy, debits org credits in batches, and drives the periodic
// auto-topup and queue-stats cadences.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Queue is a durable two-list queue. Messages wait in main, move to
// processing while a batch is being persisted, and are acknowledged out of
// processing once written. Anything left in processing after a crash is
// recovered back to main.
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	// ClaimBatch atomically moves up to n messages from main to processing.
	ClaimBatch(ctx context.Context, n int) ([][]byte, error)
	// Ack removes claimed messages from processing.
	Ack(ctx context.Context, batch [][]byte) error
	// Recover moves everything in processing back to main and returns the
	// number of messages moved.
	Recover(ctx context.Context) (int, error)
	Depth(ctx context.Context) (main, processing int64, err error)
}

const (
	mainKey       = "logs:main"
	processingKey = "logs:processing"
)

// RedisQueue is the production Queue: two Redis lists moved between with
// LMOVE so a claim survives process death.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, mainKey, payload).Err(); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) ClaimBatch(ctx context.Context, n int) ([][]byte, error) {
	var batch [][]byte
	for len(batch) < n {
		val, err := q.client.LMove(ctx, mainKey, processingKey, "RIGHT", "LEFT").Bytes()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("queue claim: %w", err)
		}
		batch = append(batch, val)
	}
	return batch, nil
}

func (q *RedisQueue) Ack(ctx context.Context, batch [][]byte) error {
	for _, msg := range batch {
		if err := q.client.LRem(ctx, processingKey, 1, msg).Err(); err != nil {
			return fmt.Errorf("queue ack: %w", err)
		}
	}
	return nil
}

func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, processingKey, mainKey, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("queue recover: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, int64, error) {
	main, err := q.client.LLen(ctx, mainKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	processing, err := q.client.LLen(ctx, processingKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return main, processing, nil
}

// MemoryQueue is an in-process Queue for development and tests. The same
// main/processing split applies; durability obviously does not survive the
// process.
type MemoryQueue struct {
	mu         sync.Mutex
	main       [][]byte
	processing [][]byte
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	q.main = append(q.main, cp)
	return nil
}

func (q *MemoryQueue) ClaimBatch(ctx context.Context, n int) ([][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.main) {
		n = len(q.main)
	}
	batch := q.main[:n]
	q.main = q.main[n:]
	q.processing = append(q.processing, batch...)
	out := make([][]byte, n)
	copy(out, batch)
	return out, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, batch [][]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, msg := range batch {
		for i, p := range q.processing {
			if string(p) == string(msg) {
				q.processing = append(q.processing[:i], q.processing[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (q *MemoryQueue) Recover(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	moved := len(q.processing)
	q.main = append(q.processing, q.main...)
	q.processing = nil
	return moved, nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int64, int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.main)), int64(len(q.processing)), nil
}
