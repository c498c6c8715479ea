// Package schema applies versioned migrations to SQL stores. The applied
// version lives in the database itself (PRAGMA user_version), so a store
// opened by an older binary is upgraded in place.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration moves the schema from Version-1 to Version
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// Statements returns an Up function that executes stmts in order
func Statements(stmts ...string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
}

// Evolution is an ordered set of migrations
type Evolution struct {
	migrations []Migration
	logger     *zap.Logger
}

// NewEvolution validates that migrations are numbered 1..n without gaps
func NewEvolution(logger *zap.Logger, migrations ...Migration) (*Evolution, error) {
	for i, m := range migrations {
		if m.Version != i+1 {
			return nil, fmt.Errorf("migration %d has version %d, want %d", i, m.Version, i+1)
		}
		if m.Up == nil {
			return nil, fmt.Errorf("migration %d has no Up function", m.Version)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evolution{migrations: migrations, logger: logger}, nil
}

// Latest returns the version the migrations lead to
func (e *Evolution) Latest() int {
	return len(e.migrations)
}

// CurrentVersion reads the version recorded in db
func (e *Evolution) CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// Migrate applies every pending migration, each in its own transaction
// together with the version bump. It refuses databases written by a newer
// schema and returns the number of migrations applied.
func (e *Evolution) Migrate(ctx context.Context, db *sql.DB) (int, error) {
	current, err := e.CurrentVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	if current > e.Latest() {
		return 0, fmt.Errorf("database schema version %d is newer than supported version %d", current, e.Latest())
	}

	applied := 0
	for _, m := range e.migrations[current:] {
		if err := e.apply(ctx, db, m); err != nil {
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		applied++
		e.logger.Info("Applied schema migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description),
		)
	}
	return applied, nil
}

func (e *Evolution) apply(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}
	// PRAGMA arguments cannot be bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return err
	}
	return tx.Commit()
}
