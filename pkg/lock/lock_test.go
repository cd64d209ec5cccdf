package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMutualExclusion runs many goroutines inside the same key's lock and checks only one is ever inside.
func assertMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()
	var (
		inside, maxInside atomic.Int32
		wg                sync.WaitGroup
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "list-1")
			if !assert.NoError(t, err) {
				return
			}
			current := inside.Add(1)
			for {
				prev := maxInside.Load()
				if current <= prev || maxInside.CompareAndSwap(prev, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

// assertCancellable checks a blocked Lock call returns once its context is done.
func assertCancellable(t *testing.T, locker Locker) {
	t.Helper()
	unlock, err := locker.Lock(context.Background(), "list-1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "list-1")
	assert.Error(t, err)
}

func TestStriped(t *testing.T) {
	t.Run("mutual_exclusion", func(t *testing.T) {
		assertMutualExclusion(t, NewStriped(8))
	})
	t.Run("cancellable", func(t *testing.T) {
		assertCancellable(t, NewStriped(8))
	})
	t.Run("relock_after_unlock", func(t *testing.T) {
		locker := NewStriped(1)
		unlock, err := locker.Lock(context.Background(), "a")
		require.NoError(t, err)
		unlock()
		unlock, err = locker.Lock(context.Background(), "b") // Same stripe since there's only one.
		require.NoError(t, err)
		unlock()
	})
	t.Run("timed_out_waiter_leaves_stripe_free", func(t *testing.T) {
		locker := NewStriped(1)
		unlock, err := locker.Lock(context.Background(), "a")
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = locker.Lock(ctx, "a")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		unlock()

		unlock, err = locker.Lock(context.Background(), "a")
		require.NoError(t, err)
		unlock()
	})
}

func TestFileLocker(t *testing.T) {
	locker, err := NewFileLocker(t.TempDir(), 8)
	require.NoError(t, err)

	t.Run("mutual_exclusion", func(t *testing.T) {
		assertMutualExclusion(t, locker)
	})
	t.Run("cancellable", func(t *testing.T) {
		assertCancellable(t, locker)
	})
	t.Run("same_key_same_file", func(t *testing.T) {
		assert.Equal(t, locker.stripePath("list-7"), locker.stripePath("list-7"))
	})
}

func TestStripeOf(t *testing.T) {
	for _, key := range []string{"", "a", "list-1", "6512bd43d9caa6e02c990b0a82652dca"} {
		stripe := stripeOf(key, 7)
		assert.GreaterOrEqual(t, stripe, 0)
		assert.Less(t, stripe, 7)
	}
}
