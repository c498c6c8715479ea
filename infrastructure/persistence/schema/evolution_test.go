package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	createItems = Migration{Version: 1, Description: "items", Up: Statements(
		`CREATE TABLE items (id TEXT PRIMARY KEY)`,
	)}
	addLabel = Migration{Version: 2, Description: "item labels", Up: Statements(
		`ALTER TABLE items ADD COLUMN label TEXT NOT NULL DEFAULT ''`,
	)}
)

func TestEvolution_MigratesInOrderOnce(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	first, err := NewEvolution(nil, createItems)
	require.NoError(t, err)
	n, err := first.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second, err := NewEvolution(nil, createItems, addLabel)
	require.NoError(t, err)
	n, err = second.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = second.Migrate(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n)

	version, err := second.CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	_, err = db.ExecContext(ctx, `INSERT INTO items (id, label) VALUES ('a', 'b')`)
	assert.NoError(t, err)
}

func TestEvolution_FailedMigrationKeepsVersion(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	broken := Migration{Version: 2, Description: "broken", Up: func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE extra (id TEXT)`); err != nil {
			return err
		}
		return errors.New("boom")
	}}
	evo, err := NewEvolution(nil, createItems, broken)
	require.NoError(t, err)

	n, err := evo.Migrate(ctx, db)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, err.Error(), "migration 2 (broken)")

	version, err := evo.CurrentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = db.ExecContext(ctx, `SELECT * FROM extra`)
	assert.Error(t, err)
}

func TestEvolution_RejectsNewerDatabase(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	_, err := db.ExecContext(ctx, "PRAGMA user_version = 5")
	require.NoError(t, err)

	evo, err := NewEvolution(nil, createItems)
	require.NoError(t, err)
	_, err = evo.Migrate(ctx, db)
	assert.ErrorContains(t, err, "newer")
}

func TestNewEvolution_Validates(t *testing.T) {
	_, err := NewEvolution(nil, addLabel)
	assert.Error(t, err)

	_, err = NewEvolution(nil, Migration{Version: 1})
	assert.Error(t, err)
}
