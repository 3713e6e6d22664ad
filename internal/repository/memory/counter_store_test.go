package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"access-service/internal/clock"
)

func TestCounterStore_FixedWindow(t *testing.T) {
	clk := clock.NewManual(epoch)
	store := NewCounterStore(clk)
	ctx := context.Background()

	const max = 3
	window := time.Minute

	for i := 1; i <= max; i++ {
		d, err := store.Take(ctx, "save:fp", max, window)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, i, d.Count)
		require.Equal(t, epoch.Add(window), d.ResetAt)
	}

	d, err := store.Take(ctx, "save:fp", max, window)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, max, d.Count)

	t.Run("still denied at the reset instant", func(t *testing.T) {
		clk.Set(epoch.Add(window))
		d, err := store.Take(ctx, "save:fp", max, window)
		require.NoError(t, err)
		require.False(t, d.Allowed)
	})

	t.Run("new window just past reset", func(t *testing.T) {
		clk.Set(epoch.Add(window + time.Millisecond))
		d, err := store.Take(ctx, "save:fp", max, window)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 1, d.Count)
		require.Equal(t, clk.Now().Add(window), d.ResetAt)
	})
}

func TestCounterStore_KeysIndependent(t *testing.T) {
	store := NewCounterStore(clock.NewManual(epoch))
	ctx := context.Background()

	d, err := store.Take(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = store.Take(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = store.Take(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestCounterStore_Sweep(t *testing.T) {
	clk := clock.NewManual(epoch)
	store := NewCounterStore(clk)
	ctx := context.Background()

	_, err := store.Take(ctx, "short", 5, time.Second)
	require.NoError(t, err)
	_, err = store.Take(ctx, "long", 5, time.Hour)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCounterStore_ConcurrentTakeNeverExceedsMax(t *testing.T) {
	store := NewCounterStore(clock.NewManual(epoch))
	ctx := context.Background()

	const max = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := store.Take(ctx, "k", max, time.Minute)
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, max, allowed)
}
