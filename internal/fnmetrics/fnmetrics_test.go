package fnmetrics

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

func testStore(t *testing.T) (*Store, string) {
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

	ctx := context.Background()
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ('u1', 'alice', 'hash')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		INSERT INTO functions (id, user_id, app_name, name, language, framework, path, methods, image_tag)
		VALUES ('f1', 'u1', 'shop', 'orders', 'python', 'flask', '/orders', '["GET"]', 'splinter-u1-shop-orders_get')
	`)
	require.NoError(t, err)

	return NewStore(db), "f1"
}

func TestInitCreatesEmptyRow(t *testing.T) {
	store, fnID := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Init(ctx, fnID))
	require.NoError(t, store.Init(ctx, fnID))

	m, err := store.FindByFunctionID(ctx, fnID)
	require.NoError(t, err)
	require.Zero(t, m.InvocationCount)
	require.Zero(t, m.MinDurationMs)
	require.Nil(t, m.LastInvokedAt)
}

func TestRecordExecutionMonotonic(t *testing.T) {
	store, fnID := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx, fnID))

	require.NoError(t, store.RecordExecution(ctx, fnID, 120, true))
	require.NoError(t, store.RecordExecution(ctx, fnID, 40, false))
	require.NoError(t, store.RecordExecution(ctx, fnID, 300, true))

	m, err := store.FindByFunctionID(ctx, fnID)
	require.NoError(t, err)
	require.EqualValues(t, 3, m.InvocationCount)
	require.EqualValues(t, 2, m.SuccessCount)
	require.EqualValues(t, 1, m.FailureCount)
	require.EqualValues(t, 460, m.TotalDurationMs)
	require.EqualValues(t, 40, m.MinDurationMs)
	require.EqualValues(t, 300, m.MaxDurationMs)
	require.NotNil(t, m.LastInvokedAt)
	require.WithinDuration(t, time.Now(), *m.LastInvokedAt, time.Minute)
	require.InDelta(t, 153.3, m.AvgDurationMs(), 0.1)
}

func TestRecordExecutionFirstSampleSetsMin(t *testing.T) {
	store, fnID := testStore(t)
	ctx := context.Background()
	require.NoError(t, store.Init(ctx, fnID))

	require.NoError(t, store.RecordExecution(ctx, fnID, 75, true))

	m, err := store.FindByFunctionID(ctx, fnID)
	require.NoError(t, err)
	require.EqualValues(t, 75, m.MinDurationMs)
	require.EqualValues(t, 75, m.MaxDurationMs)
}

func TestRecordExecutionWithoutInit(t *testing.T) {
	store, fnID := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordExecution(ctx, fnID, 50, true))

	m, err := store.FindByFunctionID(ctx, fnID)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.InvocationCount)
}

func TestFindByFunctionIDNotFound(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.FindByFunctionID(context.Background(), "missing")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
