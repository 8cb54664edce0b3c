package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/database"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		WALMode:      true,
		ForeignKeys:  true,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func TestCreateAndLookup(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	user := &User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, store.Create(ctx, user))
	require.NotEmpty(t, user.ID)

	byName, err := store.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, user.ID, byName.ID)
	require.Equal(t, "alice@example.com", byName.Email)

	byID, err := store.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", byID.Username)
}

func TestCreate_DuplicateUsername(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &User{Username: "alice", PasswordHash: "x"}))

	err := store.Create(ctx, &User{Username: "alice", PasswordHash: "y"})
	require.True(t, apperr.IsKind(err, apperr.KindBusinessRule))
}

func TestGetByUsername_NotFound(t *testing.T) {
	store := testStore(t)

	_, err := store.GetByUsername(context.Background(), "nobody")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
