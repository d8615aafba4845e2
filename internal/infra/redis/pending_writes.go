package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/optionvault/internal/core/domain"
)

// PendingWriteQueue implements storage.PendingWriteQueue. Writes are kept
// as JSON under their own key and indexed by a sorted set scored by
// attempt count, so the least-retried write is replayed first.
type PendingWriteQueue struct {
	c *Client
}

func NewPendingWriteQueue(client *Client) *PendingWriteQueue {
	return &PendingWriteQueue{c: client}
}

func (q *PendingWriteQueue) queueKey() string {
	return q.c.key("pending_writes")
}

func (q *PendingWriteQueue) writeKey(id string) string {
	return q.c.key("pending_write", id)
}

// Add stores the write and (re)scores it in the queue.
func (q *PendingWriteQueue) Add(ctx context.Context, w *domain.PendingWrite) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal pending write: %w", err)
	}

	_, err = q.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.writeKey(w.ID), data, 0)
		pipe.ZAdd(ctx, q.queueKey(), redis.Z{Score: float64(w.Attempts), Member: w.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add pending write: %w", err)
	}
	return nil
}

// List returns every queued write, fewest attempts first.
func (q *PendingWriteQueue) List(ctx context.Context) ([]*domain.PendingWrite, error) {
	ids, err := q.c.rdb.ZRange(ctx, q.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	writes := make([]*domain.PendingWrite, 0, len(ids))
	for _, id := range ids {
		data, err := q.c.rdb.Get(ctx, q.writeKey(id)).Bytes()
		if err == redis.Nil {
			// Data gone but id still indexed, drop the index entry
			q.c.rdb.ZRem(ctx, q.queueKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get pending write: %w", err)
		}

		var w domain.PendingWrite
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending write %s: %w", id, err)
		}
		writes = append(writes, &w)
	}
	return writes, nil
}

// Resolve removes a write.
func (q *PendingWriteQueue) Resolve(ctx context.Context, id string) error {
	_, err := q.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.queueKey(), id)
		pipe.Del(ctx, q.writeKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to resolve pending write: %w", err)
	}
	return nil
}

// Count returns the queue depth.
func (q *PendingWriteQueue) Count(ctx context.Context) (int, error) {
	n, err := q.c.rdb.ZCard(ctx, q.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}
