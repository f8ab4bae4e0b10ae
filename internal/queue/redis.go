package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// Ensure RedisQueue implements Queue
var _ Queue = (*RedisQueue)(nil)

// RedisQueue stores jobs in Redis lists. Publish pushes on the left and
// consumers pop from the right, so each list is FIFO.
type RedisQueue struct {
	client      *redis.Client
	prefix      string
	pollTimeout time.Duration
}

// RedisOptions configures NewRedisQueue.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every list name.
	Prefix string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisQueue{
		client:      client,
		prefix:      opts.Prefix,
		pollTimeout: time.Second,
	}, nil
}

func (q *RedisQueue) list(key string) string {
	return q.prefix + key
}

// Publish encodes payload and pushes a new job onto key's list.
func (q *RedisQueue) Publish(ctx context.Context, key string, payload any) (*Job, error) {
	job, err := newJob(key, payload)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.list(key), raw).Err(); err != nil {
		return nil, fmt.Errorf("failed to push job to %s: %w", key, err)
	}

	return job, nil
}

// Consume blocks popping jobs of key and runs handler on each until ctx is
// done. Jobs that cannot be decoded or whose handler fails go to the failed
// list.
func (q *RedisQueue) Consume(ctx context.Context, key string, handler Handler) error {
	list := q.list(key)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		res, err := q.client.BRPop(ctx, q.pollTimeout, list).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.ErrClosed) {
				return ErrClosed
			}
			return fmt.Errorf("failed to pop job from %s: %w", key, err)
		}

		// res is [list, value]
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			slog.Error("Dropping undecodable job", "queue", key, "error", err)
			q.fail(ctx, key, Job{Key: key, Payload: json.RawMessage(res[1])}, err)
			continue
		}

		if err := handler(ctx, job); err != nil {
			slog.Error("Job failed", "queue", key, "job_id", job.ID, "error", err)
			q.fail(ctx, key, job, err)
		}
	}
}

func (q *RedisQueue) fail(ctx context.Context, key string, job Job, cause error) {
	ctx = context.WithoutCancel(ctx)
	raw, err := json.Marshal(failed(job, cause))
	if err != nil {
		slog.Error("Failed to encode failed job", "queue", key, "job_id", job.ID, "error", err)
		return
	}
	if err := q.client.RPush(ctx, q.list(FailedKey(key)), raw).Err(); err != nil {
		slog.Error("Failed to record failed job", "queue", key, "job_id", job.ID, "error", err)
	}
}

// Len returns the number of pending jobs for key.
func (q *RedisQueue) Len(ctx context.Context, key string) (int64, error) {
	n, err := q.client.LLen(ctx, q.list(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", key, err)
	}
	return n, nil
}

// Failed returns the failed jobs recorded for key.
func (q *RedisQueue) Failed(ctx context.Context, key string) ([]FailedJob, error) {
	values, err := q.client.LRange(ctx, q.list(FailedKey(key)), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read failed jobs of %s: %w", key, err)
	}

	jobs := make([]FailedJob, 0, len(values))
	for _, v := range values {
		var job FailedJob
		if err := json.Unmarshal([]byte(v), &job); err != nil {
			return nil, fmt.Errorf("failed to decode failed job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ping checks that Redis is reachable.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
