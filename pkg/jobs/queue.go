package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of work handed to a Queue.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. Returning an error wrapped by Permanent ends the
// job without further attempts.
type Handler func(context.Context, Job) error

// DoneFunc receives the outcome of a job exactly once: nil after a successful
// attempt, otherwise the error that ended it.
type DoneFunc func(Job, error)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// QueueConfig tunes the worker pool. Retries back off exponentially from
// RetryDelay up to MaxRetryDelay.
type QueueConfig struct {
	Workers        int
	BufferSize     int
	MaxRetries     int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
	AttemptTimeout time.Duration
	Logger         *zap.Logger
	OnDone         DoneFunc
}

// Queue fans jobs out to a fixed set of goroutines.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	waiting sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue prepares a queue; nothing runs until Start.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.OnDone == nil {
		cfg.OnDone = func(Job, error) {}
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Later calls do nothing.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.workers.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		go q.consume()
	}
	q.started = true
	q.logger.Debug("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels the workers and waits for them. Jobs still buffered or waiting
// to be retried are finished with the cancellation error.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()

	q.workers.Wait()
	q.waiting.Wait()
	for {
		select {
		case job := <-q.jobs:
			q.cfg.OnDone(job, q.ctx.Err())
		default:
			q.logger.Debug("queue stopped")
			return
		}
	}
}

// Enqueue hands job to the workers, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx, started := q.ctx, q.started
	q.mu.Unlock()
	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) consume() {
	defer q.workers.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.settle(job, q.attempt(job))
		}
	}
}

func (q *Queue) attempt(job Job) error {
	ctx := q.ctx
	if q.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.AttemptTimeout)
		defer cancel()
	}
	return q.handler(ctx, job)
}

func (q *Queue) settle(job Job, err error) {
	if err == nil {
		q.cfg.OnDone(job, nil)
		return
	}
	job.Attempt++
	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	}
	if IsPermanent(err) || job.Attempt > q.cfg.MaxRetries {
		q.logger.Warn("job abandoned", fields...)
		q.cfg.OnDone(job, err)
		return
	}

	wait := q.backoff(job.Attempt)
	q.logger.Info("job will be retried", append(fields, zap.Duration("in", wait))...)
	q.waiting.Add(1)
	go func() {
		defer q.waiting.Done()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.cfg.OnDone(job, q.ctx.Err())
		case <-timer.C:
			if err := q.Enqueue(job); err != nil {
				q.cfg.OnDone(job, err)
			}
		}
	}()
}

// backoff doubles the base delay for every previous attempt.
func (q *Queue) backoff(attempt int) time.Duration {
	wait := q.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= q.cfg.MaxRetryDelay {
			return q.cfg.MaxRetryDelay
		}
	}
	return wait
}
