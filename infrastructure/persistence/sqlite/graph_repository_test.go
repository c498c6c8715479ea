package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/repotest"
)

func newTestRepo(t *testing.T) *GraphRepository {
	t.Helper()
	repo, err := NewGraphRepository(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "canvas.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestGraphRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) ports.GraphRepository {
		return newTestRepo(t)
	})
}

func TestGraphRepository_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "canvas.db")

	repo, err := NewGraphRepository(ctx, Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	n := repotest.NewNode(t, "alice", "n", "")
	_, _, err = repo.CreateNode(ctx, "alice", n)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := NewGraphRepository(ctx, Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetNode(ctx, "alice", n.ID())
	require.NoError(t, err)
	assert.Equal(t, n.Label(), got.Label())
	assert.True(t, n.CreatedAt().Equal(got.CreatedAt()))
	assert.Equal(t, "blue", got.Payload().Map()["color"])

	var version int
	require.NoError(t, reopened.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestGraphRepository_Ping(t *testing.T) {
	assert.NoError(t, newTestRepo(t).Ping(context.Background()))
}
