package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	done := make(chan string, 2)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		done <- job.ID
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	finished := make(chan int, 1)
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		finished <- job.Attempt
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r"}))
	select {
	case attempt := <-finished:
		assert.Equal(t, 2, attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestQueueRejectsWhenNotStarted(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "x"}), ErrNotStarted)
	assert.Zero(t, q.Pending())
}

func TestMuxDispatch(t *testing.T) {
	var routed string
	mux := NewMux(nil)
	mux.Handle(TypeAutoLink, func(ctx context.Context, job Job) error {
		routed = job.ID
		return nil
	})

	require.NoError(t, mux.Dispatch(context.Background(), Job{ID: "link-1", Type: TypeAutoLink}))
	assert.Equal(t, "link-1", routed)
	assert.Error(t, mux.Dispatch(context.Background(), Job{ID: "x", Type: "unknown"}))

	fallbackHit := false
	withFallback := NewMux(func(ctx context.Context, job Job) error {
		fallbackHit = true
		return nil
	})
	require.NoError(t, withFallback.Dispatch(context.Background(), Job{Type: "unpaid-balances"}))
	assert.True(t, fallbackHit)
}

func TestQueueTryEnqueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	<-started
	require.NoError(t, q.TryEnqueue(Job{ID: "b"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "c"}), ErrFull)
	assert.Equal(t, 1, q.Stats().Pending)
}

func TestQueueRejectsDuplicateKey(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	q := NewQueue("unique", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a", Key: TypeAutoLink}))
	<-started
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "b", Key: TypeAutoLink}), ErrDuplicate)
	require.NoError(t, q.TryEnqueue(Job{ID: "c", Key: TypeExportCleanup}))

	close(release)
	<-started
	require.Eventually(t, func() bool {
		return q.TryEnqueue(Job{ID: "d", Key: TypeAutoLink}) == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueueRecoversPanics(t *testing.T) {
	q := NewQueue("panics", func(ctx context.Context, job Job) error {
		panic("nil dataset")
	}, QueueConfig{MaxRetries: 1, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p"}))
	require.Eventually(t, func() bool {
		return q.Stats().Failed == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), q.Stats().Retried)
	assert.NoError(t, q.Healthy())
}

func TestQueueHealthy(t *testing.T) {
	q := NewQueue("health", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Healthy(), ErrNotStarted)

	q.Start(context.Background())
	assert.NoError(t, q.Healthy())
	q.Stop()
	assert.ErrorIs(t, q.Healthy(), ErrStopped)
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrStopped)
}
