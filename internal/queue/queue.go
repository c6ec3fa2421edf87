package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/models"
)

// Queue is a reliable FIFO job queue. Dequeued jobs sit on a processing
// list until acked; a nack puts the job back for retry or parks it on
// the dead-letter list once it runs out of attempts.
type Queue interface {
	Enqueue(ctx context.Context, job *models.RollupJob) error

	// Dequeue blocks up to timeout and returns (nil, nil) when nothing
	// arrived in time.
	Dequeue(ctx context.Context, timeout time.Duration) (*models.RollupJob, error)

	// Ack removes a completed job from the processing list.
	Ack(ctx context.Context, job *models.RollupJob) error

	// Nack retries the job with attempts incremented, or dead-letters it
	// once maxAttempts is reached. It reports whether the job was
	// dead-lettered.
	Nack(ctx context.Context, job *models.RollupJob, maxAttempts int) (bool, error)

	Depth(ctx context.Context) (int64, error)
	DeadLetterDepth(ctx context.Context) (int64, error)
}

// RedisQueue implements Queue on three Redis lists:
// <name>:pending, <name>:processing and <name>:dead.
type RedisQueue struct {
	client *redis.Client
	logger *zap.Logger
	name   string
}

func NewRedisQueue(client *redis.Client, name string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{client: client, name: name, logger: logger}
}

func (q *RedisQueue) pendingKey() string    { return q.name + ":pending" }
func (q *RedisQueue) processingKey() string { return q.name + ":processing" }
func (q *RedisQueue) deadKey() string       { return q.name + ":dead" }

func (q *RedisQueue) Enqueue(ctx context.Context, job *models.RollupJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.pendingKey(), payload).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.RollupJob, error) {
	payload, err := q.client.BLMove(ctx, q.pendingKey(), q.processingKey(), "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job models.RollupJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Unparseable payloads go straight to the dead list so they
		// cannot wedge the consumer.
		q.logger.Error("Dropping malformed job payload", zap.Error(err))
		q.client.LRem(ctx, q.processingKey(), 1, payload)
		q.client.LPush(ctx, q.deadKey(), payload)
		return nil, nil
	}
	return &job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *models.RollupJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LRem(ctx, q.processingKey(), 1, payload).Err()
}

func (q *RedisQueue) Nack(ctx context.Context, job *models.RollupJob, maxAttempts int) (bool, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if err := q.client.LRem(ctx, q.processingKey(), 1, payload).Err(); err != nil {
		return false, err
	}

	job.Attempts++
	retried, err := json.Marshal(job)
	if err != nil {
		return false, err
	}

	if job.Attempts >= maxAttempts {
		return true, q.client.LPush(ctx, q.deadKey(), retried).Err()
	}
	return false, q.client.LPush(ctx, q.pendingKey(), retried).Err()
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.pendingKey()).Result()
}

func (q *RedisQueue) DeadLetterDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey()).Result()
}

// MemoryQueue is the in-process Queue used by tests.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []*models.RollupJob
	dead    []*models.RollupJob
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *models.RollupJob) error {
	cp := *job
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, &cp)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.RollupJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, nil
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, job *models.RollupJob) error {
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, job *models.RollupJob, maxAttempts int) (bool, error) {
	cp := *job
	cp.Attempts++

	q.mu.Lock()
	defer q.mu.Unlock()

	if cp.Attempts >= maxAttempts {
		q.dead = append(q.dead, &cp)
		return true, nil
	}
	q.pending = append(q.pending, &cp)
	return false, nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

func (q *MemoryQueue) DeadLetterDepth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.dead)), nil
}
