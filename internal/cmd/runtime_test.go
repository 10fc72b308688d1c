package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgfiles/tgfiles/internal/config"
	"github.com/tgfiles/tgfiles/internal/core/store"
	"github.com/tgfiles/tgfiles/internal/relay"
)

func testConfig(t *testing.T, overrides map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	for key, value := range overrides {
		v.Set(key, value)
	}
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func TestRoutePolicies(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"rate_limit.routes.files.limit":  3,
		"rate_limit.routes.files.window": "10s",
	})

	routes := routePolicies(cfg.RateLimit)
	require.Contains(t, routes, relay.RouteFiles)
	require.Contains(t, routes, relay.RouteQuiz)
	assert.Equal(t, 3, routes[relay.RouteFiles].Limit)
	assert.Equal(t, 10*time.Second, routes[relay.RouteFiles].Window)
	assert.Equal(t, 20, routes[relay.RouteQuiz].Limit)
}

func TestBuildRuntimeWithoutToken(t *testing.T) {
	cfg := testConfig(t, map[string]any{"telegram.token": ""})

	rt, err := buildRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.Nil(t, rt.client)
	assert.False(t, rt.files.Configured())
	assert.Nil(t, rt.quiz.Fetcher)
	assert.False(t, rt.fallback)
	assert.NoError(t, rt.PingStore(context.Background()))

	_, err = rt.files.FetchFiles(context.Background(), relay.FetchRequest{ClientKey: cliClientKey})
	assert.ErrorIs(t, err, relay.ErrConfigMissing)

	result, err := rt.quiz.ParseText(context.Background(), cliClientKey, "Q: Ready?\nA: yes\nANS: A\n")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}

func TestBuildRuntimeWithToken(t *testing.T) {
	cfg := testConfig(t, map[string]any{"telegram.token": "123456:test-token"})

	rt, err := buildRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	require.NotNil(t, rt.client)
	assert.True(t, rt.files.Configured())
	assert.NotNil(t, rt.quiz.Fetcher)
	assert.NotNil(t, rt.files.Normalizer.Resolver)
}

func TestBuildRuntimeRedisFallback(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"rate_limit.backend":   "redis",
		"rate_limit.redis_url": "redis://127.0.0.1:1/0",
	})

	rt, err := buildRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.True(t, rt.fallback)
	assert.NotNil(t, rt.store)
	assert.True(t, rt.limiter.Allow(context.Background(), "client", relay.RouteFiles).Allowed)

	err = rateStoreChecker(rt)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis backend unavailable")
}

func TestBuildRuntimeSQLStore(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"rate_limit.backend": "sql",
		"store.driver":       "sqlite",
		"store.path":         filepath.Join(t.TempDir(), "windows.db"),
	})

	rt, err := buildRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.False(t, rt.fallback)
	require.NoError(t, rt.PingStore(context.Background()))

	for i := 0; i < 2; i++ {
		assert.True(t, rt.limiter.Allow(context.Background(), "203.0.113.9", relay.RouteQuiz).Allowed)
	}

	db, ok := rt.store.(*store.Store)
	require.True(t, ok)
	entries, err := db.ListWindows(context.Background(), store.WindowQuery{Client: "203.0.113.9"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, relay.RouteQuiz, entries[0].Route)
	assert.Equal(t, 2, entries[0].Count)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(fmt.Errorf("files: %w", relay.ErrConfigMissing)))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(&relay.UpstreamError{Message: "Request timeout"}))
	assert.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(&os.PathError{Op: "open", Path: "quiz.txt", Err: os.ErrNotExist}))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(errors.New("boom")))
}

func TestDescribeRelayError(t *testing.T) {
	err := describeRelayError(relay.ErrConfigMissing)
	assert.ErrorIs(t, err, relay.ErrConfigMissing)
	assert.Contains(t, err.Error(), relay.ConfigHint)

	err = describeRelayError(&relay.UpstreamError{Message: "Channel @x not found", Hint: "Check channel username"})
	assert.Contains(t, err.Error(), "Check channel username")

	plain := errors.New("plain")
	assert.Equal(t, plain, describeRelayError(plain))
}

func TestRenderWindowLines(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Contains(t, renderWindowLines(nil, now), "(no stored rate windows)")

	rendered := renderWindowLines([]store.WindowEntry{
		{Route: "files", Client: "203.0.113.5", Count: 4, WindowStart: now.Add(-20 * time.Second), Window: time.Minute},
		{Route: "quiz", Client: "cli", Count: 1, WindowStart: now.Add(-2 * time.Minute), Window: time.Minute},
	}, now)
	lines := strings.Split(rendered, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "files 203.0.113.5: count=4 window=1m0s resets in 40s", lines[2])
	assert.Equal(t, "quiz cli: count=1 window=1m0s expired", lines[3])
}

func TestReadQuizInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiz.txt")
	require.NoError(t, os.WriteFile(path, []byte("Q: One?\nA: a\n"), 0o600))

	text, err := readQuizInput(nil, path, 1024)
	require.NoError(t, err)
	assert.Equal(t, "Q: One?\nA: a\n", text)

	text, err = readQuizInput(strings.NewReader("0123456789"), "-", 4)
	require.NoError(t, err)
	assert.Equal(t, "01234", text, "one byte past the cap is kept so the caller can reject it")

	_, err = readQuizInput(nil, filepath.Join(t.TempDir(), "missing.txt"), 1024)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
