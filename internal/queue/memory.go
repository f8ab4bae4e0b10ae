package queue

import (
	"context"
	"log/slog"
	"sync"
)

// Ensure MemoryQueue implements Queue
var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process Queue. Jobs are lost on restart.
type MemoryQueue struct {
	mu      sync.Mutex
	pending map[string][]Job
	failed  map[string][]FailedJob
	signal  chan struct{}
	closed  chan struct{}
	once    sync.Once
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		pending: make(map[string][]Job),
		failed:  make(map[string][]FailedJob),
		signal:  make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// Publish appends a job to key.
func (q *MemoryQueue) Publish(ctx context.Context, key string, payload any) (*Job, error) {
	job, err := newJob(key, payload)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	q.pending[key] = append(q.pending[key], *job)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return job, nil
}

// Jobs returns a snapshot of the pending jobs of key.
func (q *MemoryQueue) Jobs(key string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.pending[key]...)
}

func (q *MemoryQueue) pop(key string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs := q.pending[key]
	if len(jobs) == 0 {
		return Job{}, false
	}
	q.pending[key] = jobs[1:]
	return jobs[0], true
}

// Drain runs handler on every pending job of key and returns once the list
// is empty.
func (q *MemoryQueue) Drain(ctx context.Context, key string, handler Handler) {
	for {
		job, ok := q.pop(key)
		if !ok {
			return
		}
		q.run(ctx, key, job, handler)
	}
}

func (q *MemoryQueue) run(ctx context.Context, key string, job Job, handler Handler) {
	if err := handler(ctx, job); err != nil {
		slog.Error("Job failed", "queue", key, "job_id", job.ID, "error", err)
		q.mu.Lock()
		q.failed[key] = append(q.failed[key], failed(job, err))
		q.mu.Unlock()
	}
}

// Consume processes jobs of key until ctx is done or the queue is closed.
// A MemoryQueue supports one consumer at a time.
func (q *MemoryQueue) Consume(ctx context.Context, key string, handler Handler) error {
	for {
		q.Drain(ctx, key, handler)

		select {
		case <-ctx.Done():
			return nil
		case <-q.closed:
			return ErrClosed
		case <-q.signal:
		}
	}
}

// Len returns the number of pending jobs for key.
func (q *MemoryQueue) Len(ctx context.Context, key string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending[key])), nil
}

// Failed returns the failed jobs recorded for key.
func (q *MemoryQueue) Failed(ctx context.Context, key string) ([]FailedJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]FailedJob(nil), q.failed[key]...), nil
}

// Close stops running consumers.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}
