package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	id  string
	err error
}

func collect(t *testing.T, done <-chan outcome, n int) map[string]error {
	t.Helper()
	results := make(map[string]error, n)
	timeout := time.After(2 * time.Second)
	for len(results) < n {
		select {
		case o := <-done:
			results[o.id] = o.err
		case <-timeout:
			t.Fatalf("timed out waiting for %d outcomes, got %d", n, len(results))
		}
	}
	return results
}

func TestQueueReportsOutcomes(t *testing.T) {
	var flakyCalls int32
	boom := errors.New("smtp unavailable")
	done := make(chan outcome, 4)

	q := NewQueue("notify", func(_ context.Context, job Job) error {
		switch job.ID {
		case "flaky":
			if atomic.AddInt32(&flakyCalls, 1) == 1 {
				return boom
			}
			return nil
		case "broken":
			return boom
		}
		return nil
	}, QueueConfig{
		Workers:    2,
		MaxRetries: 1,
		RetryDelay: 5 * time.Millisecond,
		OnDone:     func(job Job, err error) { done <- outcome{id: job.ID, err: err} },
	})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"ok", "flaky", "broken"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "due_reminder"}))
	}

	results := collect(t, done, 3)
	assert.NoError(t, results["ok"])
	assert.NoError(t, results["flaky"])
	assert.ErrorIs(t, results["broken"], boom)
	assert.EqualValues(t, 2, atomic.LoadInt32(&flakyCalls))
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
}

func TestQueueStopReportsPendingRetries(t *testing.T) {
	var mu sync.Mutex
	var outcomes []error
	q := NewQueue("slow", func(context.Context, Job) error { return errors.New("down") }, QueueConfig{
		MaxRetries: 3,
		RetryDelay: time.Hour,
		OnDone: func(_ Job, err error) {
			mu.Lock()
			outcomes = append(outcomes, err)
			mu.Unlock()
		},
	})
	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "stuck"}))

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.jobs) == 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0], context.Canceled)
}

func TestQueuePermanentErrorSkipsRetries(t *testing.T) {
	var calls int32
	noContact := errors.New("no contact")
	done := make(chan outcome, 1)
	q := NewQueue("notify", func(context.Context, Job) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(noContact)
	}, QueueConfig{
		MaxRetries: 5,
		RetryDelay: time.Millisecond,
		OnDone:     func(job Job, err error) { done <- outcome{id: job.ID, err: err} },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "s1"}))
	results := collect(t, done, 1)
	assert.ErrorIs(t, results["s1"], noContact)
	assert.True(t, IsPermanent(results["s1"]))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Nil(t, Permanent(nil))
}

func TestQueueAttemptTimeout(t *testing.T) {
	done := make(chan outcome, 1)
	q := NewQueue("slow", func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{
		AttemptTimeout: 10 * time.Millisecond,
		OnDone:         func(job Job, err error) { done <- outcome{id: job.ID, err: err} },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "hung"}))
	results := collect(t, done, 1)
	assert.ErrorIs(t, results["hung"], context.DeadlineExceeded)
}

func TestQueueBackoff(t *testing.T) {
	q := NewQueue("b", func(context.Context, Job) error { return nil }, QueueConfig{
		RetryDelay:    100 * time.Millisecond,
		MaxRetryDelay: time.Second,
	})
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 5, want: time.Second},
		{attempt: 40, want: time.Second},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, q.backoff(tc.attempt), "attempt %d", tc.attempt)
	}
}
