package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(2, 8)
	defer p.Close()

	var ran atomic.Int32
	jobs := make([]*Job, 0, 5)
	for i := 0; i < 5; i++ {
		job, err := p.Submit("count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		jobs = append(jobs, job)
	}

	for _, job := range jobs {
		require.NoError(t, job.Wait(context.Background()))
	}
	assert.Equal(t, int32(5), ran.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2, 16)
	defer p.Close()

	var running, peak atomic.Int32
	jobs := make([]*Job, 0, 8)
	for i := 0; i < 8; i++ {
		job, err := p.Submit("slow", func(ctx context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		require.NoError(t, job.Wait(context.Background()))
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolReportsErrorsAndPanics(t *testing.T) {
	p := NewPool(1, 4)
	defer p.Close()

	boom := errors.New("boom")
	failing, err := p.Submit("fail", func(ctx context.Context) error { return boom })
	require.NoError(t, err)
	panicking, err := p.Submit("panic", func(ctx context.Context) error { panic("bad") })
	require.NoError(t, err)

	assert.ErrorIs(t, <-failing.Done(), boom)
	assert.ErrorContains(t, <-panicking.Done(), "panicked")
}

func TestPoolQueueFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := p.Submit("block", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	_, err = p.Submit("queued", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	_, err = p.Submit("overflow", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)
	close(release)
}

func TestPoolCloseFailsQueuedJobs(t *testing.T) {
	p := NewPool(1, 4)

	started := make(chan struct{})
	running, err := p.Submit("running", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	<-started

	queued, err := p.Submit("queued", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	p.Close()
	assert.ErrorIs(t, <-running.Done(), context.Canceled)
	assert.ErrorIs(t, <-queued.Done(), ErrPoolClosed)

	_, err = p.Submit("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	p.Close()
}
