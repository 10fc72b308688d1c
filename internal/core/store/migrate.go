package store

import (
	"context"
	"errors"
	"fmt"
)

type migration struct {
	name  string
	apply func(ctx context.Context, s *Store) error
}

// migrations run in order. The schema version is the index of the last
// applied entry plus one, kept in PRAGMA user_version.
var migrations = []migration{
	{name: "rate_windows", apply: execAll(
		`CREATE TABLE IF NOT EXISTS rate_windows (
			route TEXT NOT NULL,
			client TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			window_start INTEGER NOT NULL,
			window_ms INTEGER NOT NULL,
			PRIMARY KEY (route, client)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_windows_start ON rate_windows(window_start)`,
	)},
	{name: "rate_windows_updated_at", apply: addColumn("rate_windows", "updated_at", "INTEGER")},
}

func execAll(statements ...string) func(context.Context, *Store) error {
	return func(ctx context.Context, s *Store) error {
		for _, stmt := range statements {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// addColumn tolerates databases created before versioning that already
// carry the column.
func addColumn(table, column, definition string) func(context.Context, *Store) error {
	return func(ctx context.Context, s *Store) error {
		var present int
		query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = ?", table)
		if err := s.DB.GetContext(ctx, &present, query, column); err != nil {
			return fmt.Errorf("inspect %s: %w", table, err)
		}
		if present > 0 {
			return nil
		}
		_, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
		return err
	}
}

// SchemaVersion reports how many migrations have been applied.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		m := migrations[i]
		if err := m.apply(ctx, s); err != nil {
			return fmt.Errorf("store migration %d (%s) failed: %w", i+1, m.name, err)
		}
		if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("record schema version %d: %w", i+1, err)
		}
	}
	return nil
}
