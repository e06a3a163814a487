// Package worker runs submitted jobs on a bounded pool.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"meeting-protocol-service/internal/models"
)

// Errors returned by Submit.
var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Handler processes one submission. It owns the job until it returns.
type Handler func(ctx context.Context, sub models.Submission)

// Config holds the pool limits.
type Config struct {
	MaxConcurrentJobs int
	QueueSize         int
	// OnDropped is called for submissions still waiting when the queue
	// shuts down.
	OnDropped func(sub models.Submission)
}

// Queue is a bounded FIFO of submissions consumed by at most
// MaxConcurrentJobs concurrent handlers.
//
// Running handlers are not cancelled on shutdown; they receive a context
// detached from Run's context and Run waits for them to return.
type Queue struct {
	pending   chan models.Submission
	sem       *semaphore.Weighted
	onDropped func(sub models.Submission)
	logger    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a queue. Non-positive limits fall back to 2 workers and 100
// queued jobs.
func New(cfg Config, logger zerolog.Logger) *Queue {
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = 2
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	return &Queue{
		pending:   make(chan models.Submission, size),
		sem:       semaphore.NewWeighted(int64(limit)),
		onDropped: cfg.OnDropped,
		logger:    logger.With().Str("component", "worker-queue").Logger(),
	}
}

// Submit enqueues without blocking.
func (q *Queue) Submit(sub models.Submission) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.pending <- sub:
		q.logger.Debug().Str("jobId", sub.JobID).Int("queued", len(q.pending)).Msg("Job queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of submissions waiting for a worker.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Run consumes the queue until ctx is done, then stops accepting work,
// hands waiting submissions to OnDropped and waits for running handlers.
func (q *Queue) Run(ctx context.Context, handler Handler) error {
	q.logger.Info().Int("capacity", cap(q.pending)).Msg("Starting worker queue")
	jobCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			q.shutdown()
			return nil
		case sub := <-q.pending:
			if err := q.sem.Acquire(ctx, 1); err != nil {
				// ctx ended while every worker was busy
				q.drop(sub)
				q.shutdown()
				return nil
			}
			q.wg.Add(1)
			go func(s models.Submission) {
				defer q.wg.Done()
				defer q.sem.Release(1)
				handler(jobCtx, s)
			}(sub)
		}
	}
}

func (q *Queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	for {
		select {
		case sub := <-q.pending:
			q.drop(sub)
			continue
		default:
		}
		break
	}

	q.logger.Info().Msg("Worker queue closed, waiting for running jobs")
	q.wg.Wait()
	q.logger.Info().Msg("Worker queue stopped")
}

func (q *Queue) drop(sub models.Submission) {
	q.logger.Warn().Str("jobId", sub.JobID).Msg("Dropping queued job on shutdown")
	if q.onDropped != nil {
		q.onDropped(sub)
	}
}
