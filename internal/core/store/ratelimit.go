package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tgfiles/tgfiles/internal/core"
)

// hitQuery resets or increments one window in a single statement. SET
// expressions see the row as it was before the update.
const hitQuery = `
	INSERT INTO rate_windows (route, client, count, window_start, window_ms, updated_at)
	VALUES (?, ?, 1, ?, ?, ?)
	ON CONFLICT(route, client) DO UPDATE SET
		count = CASE
			WHEN excluded.window_start - rate_windows.window_start > rate_windows.window_ms THEN 1
			ELSE rate_windows.count + 1
		END,
		window_start = CASE
			WHEN excluded.window_start - rate_windows.window_start > rate_windows.window_ms THEN excluded.window_start
			ELSE rate_windows.window_start
		END,
		window_ms = excluded.window_ms,
		updated_at = excluded.updated_at
	RETURNING count, window_start
`

type windowRow struct {
	Count       int   `db:"count"`
	WindowStart int64 `db:"window_start"`
}

// Hit implements the rate limiter window store.
func (s *Store) Hit(ctx context.Context, key core.WindowKey, now time.Time, window time.Duration) (core.RateWindow, error) {
	if s == nil || s.DB == nil {
		return core.RateWindow{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	route := strings.TrimSpace(key.Route)
	if route == "" {
		return core.RateWindow{}, errors.New("route is required")
	}

	nowMs := now.UTC().UnixMilli()
	var row windowRow
	if err := s.DB.QueryRowxContext(ctx, hitQuery, route, key.Client, nowMs, window.Milliseconds(), nowMs).StructScan(&row); err != nil {
		return core.RateWindow{}, fmt.Errorf("hit rate window: %w", err)
	}

	return core.RateWindow{
		Count:       row.Count,
		WindowStart: time.UnixMilli(row.WindowStart).UTC(),
		Window:      window,
	}, nil
}

// Sweep deletes every window that has fully elapsed at now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `
		DELETE FROM rate_windows
		WHERE ? - window_start > window_ms
	`, now.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep rate windows: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep rate windows: %w", err)
	}
	return int(affected), nil
}
