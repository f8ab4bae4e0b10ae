// Package queue provides a named-list job queue. Jobs are JSON payloads
// published under a key and consumed in FIFO order. Redis backs the queue in
// production; MemoryQueue serves tests and single-process deployments.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Consume when the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Job is one unit of work.
type Job struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// FailedJob is a job whose handler returned an error. It is kept on the
// "<key>:failed" list and never retried.
type FailedJob struct {
	Job
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Handler processes a job. A returned error moves the job to the failed list.
type Handler func(ctx context.Context, job Job) error

// Publisher enqueues jobs.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) (*Job, error)
}

// Consumer processes jobs of one key until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, key string, handler Handler) error
}

// Queue is a publisher and consumer that can report its backlog.
type Queue interface {
	Publisher
	Consumer

	// Len returns the number of pending jobs for key.
	Len(ctx context.Context, key string) (int64, error)

	// Failed returns the failed jobs recorded for key, oldest first.
	Failed(ctx context.Context, key string) ([]FailedJob, error)

	Close() error
}

// FailedKey names the list holding failed jobs of key.
func FailedKey(key string) string {
	return key + ":failed"
}

func newJob(key string, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", key, err)
	}
	return &Job{
		ID:         uuid.New().String(),
		Key:        key,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func failed(job Job, err error) FailedJob {
	return FailedJob{Job: job, Error: err.Error(), FailedAt: time.Now().UTC()}
}
