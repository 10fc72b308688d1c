package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/metrics"
)

func TestMemoryStoreConcurrentHits(t *testing.T) {
	store := NewMemoryStore()
	key := core.WindowKey{Client: "10.0.0.1", Route: "files"}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := store.Hit(context.Background(), key, now, time.Minute)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	state, err := store.Hit(context.Background(), key, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker+1, state.Count)
}

func TestMemoryStoreConcurrentLimiterDecisions(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), nil)
	clock := newManualClock()
	limiter.Clock = clock.Now

	const limit = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(context.Background(), "c", "files", limit, time.Minute).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := store.Hit(ctx, core.WindowKey{Client: fmt.Sprintf("c%d", i), Route: "files"}, start, time.Minute)
		require.NoError(t, err)
	}
	_, err := store.Hit(ctx, core.WindowKey{Client: "late", Route: "files"}, start.Add(45*time.Second), time.Minute)
	require.NoError(t, err)
	require.Equal(t, 11, store.Len())

	evicted, err := store.Sweep(ctx, start.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, evicted, "windows are kept through their boundary")

	evicted, err = store.Sweep(ctx, start.Add(time.Minute+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 10, evicted)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreSweepKeepsResetWindow(t *testing.T) {
	store := NewMemoryStore()
	key := core.WindowKey{Client: "c", Route: "files"}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	_, err := store.Hit(ctx, key, start, time.Minute)
	require.NoError(t, err)

	// A hit after expiry resets the window before the sweeper runs.
	later := start.Add(2 * time.Minute)
	state, err := store.Hit(ctx, key, later, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, state.Count)

	evicted, err := store.Sweep(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)

	state, err = store.Hit(ctx, key, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Count)
}

func TestSweeperRunOnce(t *testing.T) {
	collector := setupTelemetry(t)
	store := NewMemoryStore()
	clock := newManualClock()
	ctx := context.Background()

	_, err := store.Hit(ctx, core.WindowKey{Client: "c", Route: "files"}, clock.Now(), time.Second)
	require.NoError(t, err)

	sweeper, err := NewSweeper(store, time.Hour, clock.Now)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sweeper.Stop() })

	assert.Equal(t, 0, sweeper.RunOnce(ctx))

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, sweeper.RunOnce(ctx))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, collector.CountMetricsByName(metrics.RateEvictionsTotal))
}

func TestSweeperRunOnceStoreError(t *testing.T) {
	collector := setupTelemetry(t)

	sweeper, err := NewSweeper(failingStore{}, time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sweeper.Stop() })

	assert.Equal(t, 0, sweeper.RunOnce(context.Background()))
	assert.Equal(t, 1, collector.CountMetricsByName(metrics.RateStoreErrors))
}

func TestSweeperScheduled(t *testing.T) {
	store := NewMemoryStore()
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := store.Hit(context.Background(), core.WindowKey{Client: "c", Route: "files"}, past, time.Second)
	require.NoError(t, err)

	sweeper, err := NewSweeper(store, 20*time.Millisecond, nil)
	require.NoError(t, err)
	sweeper.Start()
	t.Cleanup(func() { _ = sweeper.Stop() })

	assert.Eventually(t, func() bool { return store.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
