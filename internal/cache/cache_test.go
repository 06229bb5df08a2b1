package cache

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

func counter(calls *atomic.Int32, v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestGet_CachesUntilExpiry(t *testing.T) {
	c := New[string, string](time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var calls atomic.Int32
	ctx := context.Background()

	v, err := c.Get(ctx, "AAPL", counter(&calls, "a"))
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, _ = c.Get(ctx, "AAPL", counter(&calls, "b"))
	assert.Equal(t, "a", v)
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(2 * time.Minute)
	v, _ = c.Get(ctx, "AAPL", counter(&calls, "c"))
	assert.Equal(t, "c", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidate(t *testing.T) {
	c := New[string, int](time.Hour)
	ctx := context.Background()

	_, _ = c.Get(ctx, "MSFT", func(context.Context) (int, error) { return 1, nil })
	c.Invalidate("MSFT")
	assert.Equal(t, 0, c.Len())

	v, err := c.Get(ctx, "MSFT", func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	c := New[string, int](time.Hour)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := c.Get(ctx, "TSLA", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.Get(ctx, "TSLA", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGet_DisabledWithZeroTTL(t *testing.T) {
	c := New[string, string](0)
	var calls atomic.Int32
	ctx := context.Background()

	_, _ = c.Get(ctx, "k", counter(&calls, "x"))
	_, _ = c.Get(ctx, "k", counter(&calls, "x"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestGet_ConcurrentMissesShareOneLoad(t *testing.T) {
	c := New[string, string](time.Hour)
	release := make(chan struct{})
	var calls atomic.Int32

	load := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "NVDA", load)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}
	// Let the goroutines pile up on the in-flight load.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	assert.Equal(t, 1, c.Len())
}

func TestInvalidate_DuringLoadDiscardsResult(t *testing.T) {
	c := New[string, string](time.Hour)
	ctx := context.Background()

	v, err := c.Get(ctx, "GOOGL", func(context.Context) (string, error) {
		c.Invalidate("GOOGL")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v)
	assert.Equal(t, 0, c.Len())
}

func TestGet_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	c := New[string, string](time.Hour)
	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr atomic.Value
	var once sync.Once

	load := func(ctx context.Context) (string, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
		}
		return "v", nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(first, "AAPL", load)
		firstErr <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		v, err := c.Get(context.Background(), "AAPL", load)
		assert.NoError(t, err)
		second <- v
	}()
	// Let the second caller join the in-flight load.
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, "v", <-second)
	assert.Nil(t, loadErr.Load())
	assert.Equal(t, 1, c.Len())
}
