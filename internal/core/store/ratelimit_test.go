package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgfiles/tgfiles/internal/config"
	"github.com/tgfiles/tgfiles/internal/core"
)

func openSqliteStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "windows.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: "x"})
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openSqliteStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.Equal(t, "sqlite", s.Driver())
	require.Equal(t, "sql", s.Backend())
	require.NoError(t, s.Ping(context.Background()))

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)
}

func TestMigrateUpgradesUnversionedSchema(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "legacy.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.DB.ExecContext(ctx, `CREATE TABLE rate_windows (
		route TEXT NOT NULL,
		client TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		window_start INTEGER NOT NULL,
		window_ms INTEGER NOT NULL,
		updated_at INTEGER,
		PRIMARY KEY (route, client)
	)`)
	require.NoError(t, err)

	require.NoError(t, s.Migrate(ctx))

	_, err = s.Hit(ctx, core.WindowKey{Client: "c", Route: "quiz"}, time.Now(), time.Minute)
	require.NoError(t, err)
}

func TestStoreHitWindow(t *testing.T) {
	s := openSqliteStore(t)
	ctx := context.Background()
	key := core.WindowKey{Client: "10.0.0.1", Route: "files"}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	state, err := s.Hit(ctx, key, start, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Count)
	assert.True(t, start.Equal(state.WindowStart))

	state, err = s.Hit(ctx, key, start.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Count)
	assert.True(t, start.Equal(state.WindowStart))

	state, err = s.Hit(ctx, key, start.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Count, "boundary instant stays in the window")

	later := start.Add(time.Minute + time.Millisecond)
	state, err = s.Hit(ctx, key, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Count)
	assert.True(t, later.Equal(state.WindowStart))

	_, err = s.Hit(ctx, core.WindowKey{Client: "c"}, start, time.Minute)
	require.Error(t, err)
}

func TestStoreConcurrentHits(t *testing.T) {
	s := openSqliteStore(t)
	key := core.WindowKey{Client: "c", Route: "files"}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Hit(context.Background(), key, now, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := s.Hit(context.Background(), key, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 21, state.Count)
}

func TestStoreSweepAndAdmin(t *testing.T) {
	s := openSqliteStore(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, key := range []core.WindowKey{
		{Client: "10.0.0.1", Route: "files"},
		{Client: "10.0.0.2", Route: "files"},
		{Client: "10.0.0.1", Route: "quiz"},
	} {
		_, err := s.Hit(ctx, key, start, time.Minute)
		require.NoError(t, err)
	}
	_, err := s.Hit(ctx, core.WindowKey{Client: "192.168.1.5", Route: "files"}, start.Add(50*time.Second), time.Minute)
	require.NoError(t, err)

	count, err := s.CountWindows(ctx, WindowQuery{All: true})
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	entries, err := s.ListWindows(ctx, WindowQuery{Prefix: "10.0."})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "files", entries[0].Route)
	assert.Equal(t, "10.0.0.1", entries[0].Client)
	assert.Equal(t, time.Minute, entries[0].Window)
	require.NotNil(t, entries[0].LastHit)
	assert.True(t, start.Equal(*entries[0].LastHit))

	entries, err = s.ListWindows(ctx, WindowQuery{Route: "quiz"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	evicted, err := s.Sweep(ctx, start.Add(time.Minute+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, evicted)

	reset, err := s.ResetWindows(ctx, WindowQuery{Client: "192.168.1.5"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	count, err = s.CountWindows(ctx, WindowQuery{All: true})
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = s.ResetWindows(ctx, WindowQuery{})
	require.Error(t, err)
}
