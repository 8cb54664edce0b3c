package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/analyzer"
	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/database"
	"github.com/splinter-dev/splinter/internal/engine"
	"github.com/splinter-dev/splinter/internal/fnmetrics"
	"github.com/splinter-dev/splinter/internal/function"
	"github.com/splinter-dev/splinter/internal/resolver"
	"github.com/splinter-dev/splinter/internal/security"
	"github.com/splinter-dev/splinter/internal/synth"
)

const sampleApp = `from flask import Flask, jsonify

app = Flask(__name__)

def load_orders():
    return [{"id": 1}]

@app.route('/orders', methods=['GET'])
def get_orders():
    return jsonify(load_orders())

@app.route('/orders', methods=['POST'])
def create_order():
    return jsonify({"created": True}), 201
`

type testEnv struct {
	svc       *Service
	fake      *engine.Fake
	functions *function.Store
	metrics   *fnmetrics.Store
	appDir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	dbCfg := &config.DatabaseConfig{
		Path:         filepath.Join(root, "test.db"),
		WALMode:      true,
		ForeignKeys:  true,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	db, err := database.Open(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(context.Background(),
		`INSERT INTO users (id, username, password_hash) VALUES ('u1', 'alice', 'hash'), ('u2', 'bob', 'hash')`)
	require.NoError(t, err)

	fnStore := function.NewStore(db)
	metricsStore := fnmetrics.NewStore(db)
	fake := engine.NewFake()

	deployCfg := config.DeployConfig{
		BuildPath:         filepath.Join(root, "build"),
		TempPath:          filepath.Join(root, "tmp"),
		MaxParallelBuilds: 2,
	}
	svc := NewService(
		deployCfg,
		"splinter",
		fake,
		analyzer.NewRegistry(analyzer.NewFlaskScanner()),
		resolver.New(),
		synth.NewRegistry(synth.NewPythonTransformer(5*time.Second)),
		fnStore,
		fnmetrics.NewService(metricsStore),
		security.NewService(fnStore),
	)

	appDir := filepath.Join(root, "shop")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "app.py"), []byte(sampleApp), 0o644))

	return &testEnv{svc: svc, fake: fake, functions: fnStore, metrics: metricsStore, appDir: appDir}
}

func TestDeployApplication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outcome, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.NoError(t, err)
	require.Equal(t, function.StatusSuccess, outcome.Status)
	require.Equal(t, "shop", outcome.AppName)
	require.ElementsMatch(t, []string{"get_orders", "create_order"}, outcome.Deployed)
	require.Empty(t, outcome.Failed)
	require.Len(t, env.fake.Built, 2)

	fn, err := env.functions.GetByOwner(ctx, "u1", "shop", "get_orders")
	require.NoError(t, err)
	require.Equal(t, "splinter-u1-shop-get_orders_get", fn.ImageTag)
	require.Equal(t, []string{"GET"}, fn.Methods)

	m, err := env.metrics.FindByFunctionID(ctx, fn.ID)
	require.NoError(t, err)
	require.Zero(t, m.InvocationCount)

	main, err := os.ReadFile(filepath.Join(env.appDir, "..", "build", "u1", "shop", "get_orders-get", "main.py"))
	require.NoError(t, err)
	require.Contains(t, string(main), "def get_orders():")
}

func TestDeployApplicationPrivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outcome, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir, Private: true})
	require.NoError(t, err)
	require.Equal(t, function.StatusSuccess, outcome.Status)

	fn, err := env.functions.GetByOwner(ctx, "u1", "shop", "get_orders")
	require.NoError(t, err)
	require.True(t, fn.Private)
	require.NotEmpty(t, fn.APIKey)
}

func TestDeployApplicationPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.BuildErrFor["create_order"] = errors.New("build exploded")

	outcome, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.NoError(t, err)
	require.Equal(t, function.StatusPartial, outcome.Status)
	require.Equal(t, []string{"get_orders"}, outcome.Deployed)
	require.Len(t, outcome.Failed, 1)
	require.Equal(t, "create_order", outcome.Failed[0].Name)
	require.Contains(t, outcome.Failed[0].Reason, "build exploded")

	// The failed function's row was rolled back.
	_, err = env.functions.GetByOwner(ctx, "u1", "shop", "create_order")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDeployApplicationAllFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fake.BuildErr = errors.New("daemon down")

	outcome, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.Error(t, err)
	require.Nil(t, outcome)
	require.True(t, apperr.IsKind(err, apperr.KindDeployment))
}

func TestDeployDirectConflictSkips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.DeployFunction(ctx, DirectDeployRequest{
		UserID: "u1", Code: sampleApp, Language: "python", AppName: "shop",
	})
	require.NoError(t, err)
	require.Equal(t, function.StatusSuccess, first.Status)

	// Same app and function names again via the direct path: both are
	// skipped as already existing, so the whole request fails.
	_, err = env.svc.DeployFunction(ctx, DirectDeployRequest{
		UserID: "u1", Code: sampleApp, Language: "python", AppName: "shop",
	})
	require.Error(t, err)
	require.True(t, apperr.IsKind(err, apperr.KindDeployment))
}

func TestDeployBundleOverridesExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.NoError(t, err)
	firstID := mustGetFunction(t, env, "u1", "get_orders").ID

	outcome, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.NoError(t, err)
	require.Equal(t, function.StatusSuccess, outcome.Status)

	second := mustGetFunction(t, env, "u1", "get_orders")
	require.NotEqual(t, firstID, second.ID)
	require.NotEmpty(t, env.fake.Removed)
}

func TestDeploySameAppDifferentUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.NoError(t, err)
	_, err = env.svc.DeployApplication(ctx, DeployRequest{UserID: "u2", AppPath: env.appDir})
	require.NoError(t, err)

	a := mustGetFunction(t, env, "u1", "get_orders")
	b := mustGetFunction(t, env, "u2", "get_orders")
	require.NotEqual(t, a.ImageTag, b.ImageTag)
}

func TestDeployApplicationBadPath(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.DeployApplication(context.Background(), DeployRequest{UserID: "u1", AppPath: ""})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = env.svc.DeployApplication(context.Background(), DeployRequest{UserID: "u1", AppPath: "/no/such/dir"})
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDeployFunctionEmptyCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.DeployFunction(context.Background(), DirectDeployRequest{UserID: "u1", Code: "  "})
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestDeployFunctionGeneratedAppName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outcome, err := env.svc.DeployFunction(ctx, DirectDeployRequest{UserID: "u1", Code: sampleApp, Language: "python"})
	require.NoError(t, err)
	require.Equal(t, "python_app_1", outcome.AppName)

	outcome, err = env.svc.DeployFunction(ctx, DirectDeployRequest{UserID: "u2", Code: sampleApp, Language: "python"})
	require.NoError(t, err)
	require.Equal(t, "python_app_2", outcome.AppName)
}

func TestUndeployFunction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.NoError(t, err)
	fn := mustGetFunction(t, env, "u1", "get_orders")

	require.NoError(t, env.svc.UndeployFunction(ctx, "u1", "shop", "get_orders"))

	_, err = env.functions.GetByOwner(ctx, "u1", "shop", "get_orders")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
	require.Contains(t, env.fake.Removed, fn.ImageTag)

	err = env.svc.UndeployFunction(ctx, "u1", "shop", "get_orders")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestUndeployOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.DeployApplication(ctx, DeployRequest{UserID: "u1", AppPath: env.appDir})
	require.NoError(t, err)

	err = env.svc.UndeployFunction(ctx, "u2", "shop", "get_orders")
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = env.functions.GetByOwner(ctx, "u1", "shop", "get_orders")
	require.NoError(t, err)
}

func mustGetFunction(t *testing.T, env *testEnv, userID, name string) *function.Function {
	t.Helper()
	fn, err := env.functions.GetByOwner(context.Background(), userID, "shop", name)
	require.NoError(t, err)
	return fn
}

func TestSanitizeAppName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Shop App", "Shop_App"},
		{"-leading", "app_-leading"},
		{"", "app"},
		{"valid_name-1", "valid_name-1"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, sanitizeAppName(tc.in), "input %q", tc.in)
	}

	long := sanitizeAppName("a234567890a234567890a234567890a234567890a234567890extra")
	require.Len(t, long, maxAppNameLen)
}
