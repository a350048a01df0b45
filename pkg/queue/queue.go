// Package queue implements the durable processing queue and the scheduler
// that feeds prompt jobs to the execution engine.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/cache"
	"github.com/Juryyy/DP-BE-Redis-sub000/pkg/models"
)

// priorityStride spaces priority bands far enough apart that the sequence
// counter can never promote a job across bands. Scores stay below 2^53, so
// the float64 sorted-set score is exact.
const priorityStride = int64(1_000_000_000_000)

// PriorityQueue is a durable ordered job set on a Redis sorted set. Score is
// priority*stride+seq: strict priority order, FIFO within a priority. The
// set lives in Redis, so pending jobs survive a process restart.
type PriorityQueue struct {
	rdb redis.UniversalClient
}

// NewPriorityQueue creates a PriorityQueue over the hot-tier client.
func NewPriorityQueue(c *cache.Client) *PriorityQueue {
	return &PriorityQueue{rdb: c.Redis()}
}

// Enqueue adds a job. The sequence counter is a Redis INCR, so concurrent
// producers still get a total order.
func (q *PriorityQueue) Enqueue(ctx context.Context, job models.Job) error {
	seq, err := q.rdb.Incr(ctx, cache.QueueSeqKey).Result()
	if err != nil {
		return fmt.Errorf("failed to advance queue sequence: %w", err)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	score := float64(int64(job.Priority)*priorityStride + seq)
	if err := q.rdb.ZAdd(ctx, cache.QueueKey, redis.Z{Score: score, Member: string(data)}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue pops the lowest-scored job. Returns ok=false on an empty queue.
func (q *PriorityQueue) Dequeue(ctx context.Context) (*models.Job, bool, error) {
	entries, err := q.rdb.ZPopMin(ctx, cache.QueueKey, 1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to pop job: %w", err)
	}
	if len(entries) == 0 {
		return nil, false, nil
	}
	member, ok := entries[0].Member.(string)
	if !ok {
		return nil, false, fmt.Errorf("unexpected queue member type %T", entries[0].Member)
	}
	job, err := unmarshalJob(member)
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// DequeueEligible pops the best job whose session is not blocked. Blocked
// jobs stay in place, preserving their order for when the session frees up.
func (q *PriorityQueue) DequeueEligible(ctx context.Context, blocked func(sessionID string) bool) (*models.Job, bool, error) {
	const scanBatch = 100
	for offset := int64(0); ; offset += scanBatch {
		members, err := q.rdb.ZRange(ctx, cache.QueueKey, offset, offset+scanBatch-1).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan queue: %w", err)
		}
		if len(members) == 0 {
			return nil, false, nil
		}
		for _, member := range members {
			job, err := unmarshalJob(member)
			if err != nil {
				// Unreadable entry: drop it rather than wedge the queue.
				_ = q.rdb.ZRem(ctx, cache.QueueKey, member)
				continue
			}
			if blocked != nil && blocked(job.SessionID) {
				continue
			}
			removed, err := q.rdb.ZRem(ctx, cache.QueueKey, member).Result()
			if err != nil {
				return nil, false, fmt.Errorf("failed to remove job: %w", err)
			}
			if removed == 0 {
				// Another consumer won the race; keep scanning.
				continue
			}
			return job, true, nil
		}
	}
}

// Len returns the number of pending jobs.
func (q *PriorityQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, cache.QueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}

// RemoveSession drops every pending job of a session. Cancellation is lazy
// on dequeue anyway; this just keeps dead jobs from occupying the scan.
func (q *PriorityQueue) RemoveSession(ctx context.Context, sessionID string) (int, error) {
	members, err := q.rdb.ZRange(ctx, cache.QueueKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan queue: %w", err)
	}
	removed := 0
	for _, member := range members {
		job, err := unmarshalJob(member)
		if err != nil || job.SessionID != sessionID {
			continue
		}
		n, err := q.rdb.ZRem(ctx, cache.QueueKey, member).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to remove job: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}

func unmarshalJob(member string) (*models.Job, error) {
	job := &models.Job{}
	if err := json.Unmarshal([]byte(member), job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}
