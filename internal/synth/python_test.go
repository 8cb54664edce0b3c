package synth

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/function"
)

func testBuildContext(t *testing.T, fn *function.Function) *function.BuildContext {
	t.Helper()
	root := t.TempDir()
	appPath := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(appPath, 0o755))
	return &function.BuildContext{
		Function:      fn,
		SourceAppPath: appPath,
		BuildPath:     filepath.Join(root, "build"),
		Language:      "python",
		Framework:     "flask",
	}
}

func testFn() *function.Function {
	return &function.Function{
		ID:           "fn-1",
		UserID:       "u-1",
		AppName:      "shop",
		Name:         "list_orders",
		Path:         "/orders",
		Language:     "python",
		Framework:    "flask",
		Methods:      []string{"GET"},
		SourceText:   "def list_orders():\n    return jsonify(format_order(fetch()))",
		Dependencies: []string{"format_order"},
		DependencySources: map[string]string{
			"format_order": "def format_order(o):\n    return {'id': o[0]}",
		},
		Imports:   []string{"import os", "from flask import Flask, jsonify"},
		AppModule: "application",
	}
}

func synthesize(t *testing.T, fn *function.Function) (*function.BuildContext, string) {
	t.Helper()
	bctx := testBuildContext(t, fn)
	tr := NewPythonTransformer(15 * time.Second)
	require.NoError(t, tr.Synthesize(context.Background(), bctx))

	data, err := os.ReadFile(filepath.Join(bctx.BuildPath, "main.py"))
	require.NoError(t, err)
	return bctx, string(data)
}

func TestSynthesize_AssemblyOrder(t *testing.T) {
	fn := testFn()
	fn.GlobalVars = map[string]string{"DEBUG_MODE": "DEBUG_MODE = True"}
	fn.ConfigCode = map[string]string{"MAX_ITEMS": "application.config['MAX_ITEMS'] = 50"}
	fn.EnvVarRefs = []string{"DATABASE_URL"}

	_, main := synthesize(t, fn)

	positions := []int{
		strings.Index(main, "import os"),
		strings.Index(main, "logging.basicConfig"),
		strings.Index(main, "#   DATABASE_URL"),
		strings.Index(main, "application.config['MAX_ITEMS']"),
		strings.Index(main, "DEBUG_MODE = True"),
		strings.Index(main, "application = Flask(__name__)"),
		strings.Index(main, "def format_order(o):"),
		strings.Index(main, "def list_orders():"),
	}
	for i, pos := range positions {
		require.GreaterOrEqual(t, pos, 0, "segment %d missing from main.py:\n%s", i, main)
		if i > 0 {
			require.Greater(t, pos, positions[i-1], "segment %d out of order:\n%s", i, main)
		}
	}
}

func TestSynthesize_InjectsDecoratorWhenMissing(t *testing.T) {
	_, main := synthesize(t, testFn())

	require.Contains(t, main, "@application.route('/orders', methods=['GET'])\ndef list_orders():")
	require.Equal(t, 1, strings.Count(main, ".route("), "exactly one route binding")
}

func TestSynthesize_NoDuplicateDecorator(t *testing.T) {
	fn := testFn()
	fn.SourceText = "@application.route('/orders', methods=['GET'])\ndef list_orders():\n    return jsonify([])"

	_, main := synthesize(t, fn)
	require.Equal(t, 1, strings.Count(main, ".route("), "a second route binding must never be emitted")
}

func TestSynthesize_StubForMissingSource(t *testing.T) {
	fn := testFn()
	fn.Dependencies = []string{"format_order", "mystery_helper"}

	_, main := synthesize(t, fn)
	require.Contains(t, main, "def mystery_helper(*args, **kwargs):")
	require.Contains(t, main, "return args[0] if args else None")
}

func TestSynthesize_DBBootstrap(t *testing.T) {
	fn := testFn()
	fn.RequiresDB = true

	_, main := synthesize(t, fn)
	require.Contains(t, main, "def get_db_connection():")
	require.Contains(t, main, "psycopg2.connect")
}

func TestSynthesize_NoDBBootstrapWithoutSignatures(t *testing.T) {
	_, main := synthesize(t, testFn())
	require.NotContains(t, main, "get_db_connection")
}

func TestSynthesize_SupportFiles(t *testing.T) {
	fn := testFn()
	bctx := testBuildContext(t, fn)

	require.NoError(t, os.WriteFile(filepath.Join(bctx.SourceAppPath, ".env"), []byte("API_KEY=x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bctx.SourceAppPath, "helpers.py"), []byte("def aux():\n    return 1\n"), 0o644))
	fn.Imports = append(fn.Imports, "import helpers")

	tr := NewPythonTransformer(15 * time.Second)
	require.NoError(t, tr.Synthesize(context.Background(), bctx))

	for _, name := range []string{"main.py", "wrapper.py", "Dockerfile", "requirements.txt", ".env", "helpers.py"} {
		_, err := os.Stat(filepath.Join(bctx.BuildPath, name))
		require.NoError(t, err, "expected %s in build dir", name)
	}

	dockerfile, err := os.ReadFile(filepath.Join(bctx.BuildPath, "Dockerfile"))
	require.NoError(t, err)
	require.Contains(t, string(dockerfile), `splinter.function="list_orders"`)

	wrapper, err := os.ReadFile(filepath.Join(bctx.BuildPath, "wrapper.py"))
	require.NoError(t, err)
	require.Contains(t, string(wrapper), "from main import application")
	require.Contains(t, string(wrapper), "FINAL_RESULT: ")
}

func TestFixMethods_Reconciles(t *testing.T) {
	dir := t.TempDir()
	mainPath := filepath.Join(dir, "main.py")
	source := "@application.route('/orders')\ndef list_orders():\n    return jsonify([])\n"
	require.NoError(t, os.WriteFile(mainPath, []byte(source), 0o644))

	require.NoError(t, FixMethods(context.Background(), mainPath, "list_orders", []string{"GET", "POST"}))

	fixed, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	require.Contains(t, string(fixed), "@application.route('/orders', methods=['GET', 'POST'])")
}

func TestFixMethods_ExpiredBudgetDegrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := FixMethods(ctx, filepath.Join(t.TempDir(), "main.py"), "x", []string{"GET"})
	require.Error(t, err, "an expired budget surfaces as an error the caller logs and ignores")
}
