package invoke

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/database"
	"github.com/splinter-dev/splinter/internal/engine"
	"github.com/splinter-dev/splinter/internal/fnmetrics"
	"github.com/splinter-dev/splinter/internal/function"
	"github.com/splinter-dev/splinter/internal/users"
)

type testEnv struct {
	router  *Router
	fake    *engine.Fake
	metrics *fnmetrics.Store
	fnStore *function.Store
	fnID    string
}

func newTestEnv(t *testing.T) *testEnv {
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
	userStore := users.NewStore(db)
	require.NoError(t, userStore.Create(ctx, &users.User{ID: "u1", Username: "alice", PasswordHash: "hash"}))
	require.NoError(t, userStore.Create(ctx, &users.User{ID: "u2", Username: "bob", PasswordHash: "hash"}))

	fnStore := function.NewStore(db)
	fn := &function.Function{
		ID: uuid.NewString(), UserID: "u1", AppName: "shop", Name: "get_orders",
		Language: "python", Framework: "flask", Path: "/orders",
		Methods: []string{"GET", "POST"}, ImageTag: "splinter-u1-shop-get_orders_get",
	}
	require.NoError(t, fnStore.Create(ctx, fn))

	metricsStore := fnmetrics.NewStore(db)
	require.NoError(t, metricsStore.Init(ctx, fn.ID))

	fake := engine.NewFake()
	router := NewRouter(userStore, fnStore, fake, fnmetrics.NewService(metricsStore))
	return &testEnv{router: router, fake: fake, metrics: metricsStore, fnStore: fnStore, fnID: fn.ID}
}

func baseRequest() Request {
	return Request{
		OwnerUsername: "alice",
		AppName:       "shop",
		FunctionName:  "get_orders",
		Method:        "GET",
	}
}

func TestInvokeSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Results["get_orders"] = &function.ExecutionResult{
		StatusCode: 200,
		Body:       map[string]any{"orders": []any{}},
		Success:    true,
	}

	res, err := env.router.Invoke(context.Background(), baseRequest())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 200, res.StatusCode)

	m, err := env.metrics.FindByFunctionID(context.Background(), env.fnID)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.InvocationCount)
	require.EqualValues(t, 1, m.SuccessCount)
}

func TestInvokeUnknownOwner(t *testing.T) {
	env := newTestEnv(t)
	req := baseRequest()
	req.OwnerUsername = "nobody"

	_, err := env.router.Invoke(context.Background(), req)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestInvokeCrossTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	req := baseRequest()
	req.OwnerUsername = "bob"

	// bob has no function of this name even though alice does.
	_, err := env.router.Invoke(context.Background(), req)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestInvokeMethodNotSupported(t *testing.T) {
	env := newTestEnv(t)
	req := baseRequest()
	req.Method = "DELETE"

	_, err := env.router.Invoke(context.Background(), req)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	require.Contains(t, err.Error(), "GET, POST")
}

func TestInvokePrivateFunctionKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fn, err := env.fnStore.GetByID(ctx, env.fnID)
	require.NoError(t, err)
	now := time.Now().UTC()
	fn.Private = true
	fn.APIKey = "func_secret"
	fn.APIKeyGeneratedAt = &now
	require.NoError(t, env.fnStore.UpdateSecurity(ctx, fn))

	_, err = env.router.Invoke(ctx, baseRequest())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, "api_key_missing", ae.Code)
	require.Equal(t, 403, ae.HTTPStatus())

	req := baseRequest()
	req.APIKey = "func_wrong"
	_, err = env.router.Invoke(ctx, req)
	ae, ok = apperr.As(err)
	require.True(t, ok)
	require.Equal(t, "api_key_invalid", ae.Code)
	require.Equal(t, 403, ae.HTTPStatus())

	req.APIKey = "func_secret"
	res, err := env.router.Invoke(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestInvokeExecutionErrorBecomesResult(t *testing.T) {
	env := newTestEnv(t)
	env.fake.ExecErr = errors.New("daemon exploded")

	res, err := env.router.Invoke(context.Background(), baseRequest())
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 500, res.StatusCode)
	require.NotContains(t, res.ErrorMessage, "daemon exploded")

	m, err := env.metrics.FindByFunctionID(context.Background(), env.fnID)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.InvocationCount)
	require.EqualValues(t, 1, m.FailureCount)
}

func TestInvokeFailedResultRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Results["get_orders"] = &function.ExecutionResult{
		StatusCode: 500, Success: false, ErrorMessage: "boom",
	}

	res, err := env.router.Invoke(context.Background(), baseRequest())
	require.NoError(t, err)
	require.False(t, res.Success)

	m, err := env.metrics.FindByFunctionID(context.Background(), env.fnID)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.FailureCount)
	require.Zero(t, m.SuccessCount)
}

func TestInvokeLowercaseMethodAccepted(t *testing.T) {
	env := newTestEnv(t)
	req := baseRequest()
	req.Method = "post"

	res, err := env.router.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Success)
}
