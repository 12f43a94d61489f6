package inmemory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(PoolConfig{CoreSize: 2, MaxSize: 4, QueueCapacity: 10})

	var ran atomic.Int64
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(func() { ran.Add(1) }))
	}
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Equal(t, int64(20), ran.Load())
	assert.Equal(t, int64(20), p.Stats().Completed)
}

func TestPoolCallerRunsWhenSaturated(t *testing.T) {
	p := NewPool(PoolConfig{CoreSize: 1, MaxSize: 2, QueueCapacity: 1})
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	block := func() {
		started <- struct{}{}
		<-release
	}

	// Core worker.
	callerRan, err := p.TrySubmit(block)
	require.NoError(t, err)
	assert.False(t, callerRan)
	<-started

	// Queued behind the core worker.
	callerRan, err = p.TrySubmit(func() {})
	require.NoError(t, err)
	assert.False(t, callerRan)

	// Queue full: a non-core worker takes it.
	callerRan, err = p.TrySubmit(block)
	require.NoError(t, err)
	assert.False(t, callerRan)
	<-started

	// Queue full and at max size: runs here.
	var caller bool
	callerRan, err = p.TrySubmit(func() { caller = true })
	require.NoError(t, err)
	assert.True(t, callerRan)
	assert.True(t, caller, "task ran synchronously on the submitting goroutine")

	stats := p.Stats()
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, int64(1), stats.CallerRuns)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(4), p.Stats().Completed)
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	p := NewPool(PoolConfig{CoreSize: 1, MaxSize: 1, QueueCapacity: 5})

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, p.Submit(func() {
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p := NewPool(PoolConfig{CoreSize: 1})
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}

func TestPoolShutdownAwaitTimeout(t *testing.T) {
	p := NewPool(PoolConfig{CoreSize: 1, AwaitTermination: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, p.Submit(func() { <-release }))

	assert.ErrorIs(t, p.Shutdown(context.Background()), ErrAwaitTimeout)
}

func TestPoolShutdownContext(t *testing.T) {
	p := NewPool(PoolConfig{CoreSize: 1})
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, p.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
}

func TestPoolRetiresIdleSurplusWorkers(t *testing.T) {
	p := NewPool(PoolConfig{CoreSize: 1, MaxSize: 3, QueueCapacity: 0, KeepAlive: 10 * time.Millisecond})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			<-release
		}))
	}
	assert.Equal(t, 3, p.Stats().Workers)

	close(release)
	wg.Wait()

	assert.Eventually(t, func() bool {
		return p.Stats().Workers == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 0, p.Stats().Workers)
}

func TestPoolConfigNormalized(t *testing.T) {
	cfg := PoolConfig{CoreSize: 0, MaxSize: -1, QueueCapacity: -5}.normalized()

	assert.Equal(t, 1, cfg.CoreSize)
	assert.Equal(t, 1, cfg.MaxSize)
	assert.Equal(t, 0, cfg.QueueCapacity)
	assert.Equal(t, time.Minute, cfg.KeepAlive)
}
