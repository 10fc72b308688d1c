package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// WindowEntry is one stored rate window as shown by admin commands.
type WindowEntry struct {
	Route       string        `json:"route"`
	Client      string        `json:"client"`
	Count       int           `json:"count"`
	WindowStart time.Time     `json:"window_start"`
	Window      time.Duration `json:"window_ns"`
	LastHit     *time.Time    `json:"last_hit,omitempty"`
}

// WindowQuery selects stored windows. Route narrows any of the other modes.
type WindowQuery struct {
	All    bool
	Route  string
	Client string
	Prefix string
}

func (q WindowQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Client) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	if strings.TrimSpace(q.Route) != "" {
		return nil
	}
	return errors.New("must specify --all, --route, --client, or --prefix")
}

func (q WindowQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		clauses []string
		args    []any
	)
	if route := strings.TrimSpace(q.Route); route != "" {
		clauses = append(clauses, "route = ?")
		args = append(args, route)
	}
	if !q.All {
		if client := strings.TrimSpace(q.Client); client != "" {
			clauses = append(clauses, "client = ?")
			args = append(args, client)
		} else if prefix := strings.TrimSpace(q.Prefix); prefix != "" {
			clauses = append(clauses, "client LIKE ?")
			args = append(args, prefix+"%")
		}
	}

	if len(clauses) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

type windowEntryRow struct {
	Route       string        `db:"route"`
	Client      string        `db:"client"`
	Count       int           `db:"count"`
	WindowStart int64         `db:"window_start"`
	WindowMs    int64         `db:"window_ms"`
	UpdatedAt   sql.NullInt64 `db:"updated_at"`
}

func (s *Store) ListWindows(ctx context.Context, q WindowQuery) ([]WindowEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows := []windowEntryRow{}
	if err := s.DB.SelectContext(ctx, &rows, fmt.Sprintf(`
		SELECT route, client, count, window_start, window_ms, updated_at
		FROM rate_windows
		%s
		ORDER BY route, client
	`, where), args...); err != nil {
		return nil, fmt.Errorf("list rate windows: %w", err)
	}

	entries := make([]WindowEntry, 0, len(rows))
	for _, row := range rows {
		entry := WindowEntry{
			Route:       row.Route,
			Client:      row.Client,
			Count:       row.Count,
			WindowStart: time.UnixMilli(row.WindowStart).UTC(),
			Window:      time.Duration(row.WindowMs) * time.Millisecond,
		}
		if row.UpdatedAt.Valid {
			value := time.UnixMilli(row.UpdatedAt.Int64).UTC()
			entry.LastHit = &value
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func (s *Store) CountWindows(ctx context.Context, q WindowQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.GetContext(ctx, &count, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM rate_windows
		%s
	`, where), args...); err != nil {
		return 0, fmt.Errorf("count rate windows: %w", err)
	}
	return count, nil
}

func (s *Store) ResetWindows(ctx context.Context, q WindowQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM rate_windows
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate windows: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate windows: %w", err)
	}
	return affected, nil
}
