package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/apperr"
)

const sampleApp = `import os
from flask import Flask, jsonify
import psycopg2

application = Flask(__name__)

DEBUG_MODE = True
application.config['MAX_ITEMS'] = 50

def get_connection():
    return psycopg2.connect(os.environ.get('DATABASE_URL'))

def format_order(order):
    return {'id': order[0], 'total': order[1]}

class OrderService:
    def list_orders(self):
        conn = get_connection()
        cursor = conn.cursor()
        cursor.execute('SELECT id, total FROM orders')
        return cursor.fetchall()

@application.route('/orders')
def list_orders():
    service = OrderService()
    return jsonify([format_order(o) for o in service.list_orders()])

@application.route('/orders', methods=['POST'])
def create_order():
    return jsonify({'ok': True}), 201
`

func writeApp(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestFlaskScanner_Analyze(t *testing.T) {
	dir := writeApp(t, map[string]string{"app.py": sampleApp})

	result, err := NewFlaskScanner().Analyze(context.Background(), dir)
	require.NoError(t, err)

	require.Equal(t, "python", result.Language)
	require.Equal(t, "flask", result.Framework)
	require.Equal(t, "application", result.AppModule)

	require.Len(t, result.Routes, 2)

	byName := make(map[string]Route)
	for _, r := range result.Routes {
		byName[r.Name] = r
	}

	listRoute := byName["list_orders"]
	require.Equal(t, "/orders", listRoute.Path)
	require.Equal(t, []string{"GET"}, listRoute.Methods, "routes without methods default to GET")
	require.Contains(t, listRoute.SourceText, "@application.route('/orders')")

	createRoute := byName["create_order"]
	require.Equal(t, []string{"POST"}, createRoute.Methods)

	require.Contains(t, result.Functions, "get_connection")
	require.Contains(t, result.Functions, "format_order")
	require.NotContains(t, result.Functions, "list_orders", "route handlers are not plain functions")

	require.Contains(t, result.Classes, "OrderService")
	require.Contains(t, result.Classes["OrderService"], "def list_orders(self):")

	require.Contains(t, result.DBCode, "get_connection")
	require.NotContains(t, result.DBCode, "format_order")

	require.Contains(t, result.ConfigCode, "MAX_ITEMS")
	require.Contains(t, result.GlobalVars, "DEBUG_MODE")
	require.NotContains(t, result.GlobalVars, "application", "the app object is not a plain global")

	require.Contains(t, result.EnvVarRefs, "DATABASE_URL")
	require.Contains(t, result.Imports, "import os")
	require.Contains(t, result.Imports, "from flask import Flask, jsonify")
}

func TestFlaskScanner_NoRoutes(t *testing.T) {
	dir := writeApp(t, map[string]string{"util.py": "def helper():\n    return 1\n"})

	_, err := NewFlaskScanner().Analyze(context.Background(), dir)
	require.True(t, apperr.IsKind(err, apperr.KindBusinessRule))
}

func TestFlaskScanner_NoSources(t *testing.T) {
	_, err := NewFlaskScanner().Analyze(context.Background(), t.TempDir())
	require.True(t, apperr.IsKind(err, apperr.KindCodeAnalysis))
}

func TestHasDBSignatures(t *testing.T) {
	require.True(t, HasDBSignatures("conn.commit()"))
	require.True(t, HasDBSignatures("cursor.execute('SELECT 1')"))
	require.False(t, HasDBSignatures("return jsonify({})"))
}

func TestDetectLanguage(t *testing.T) {
	dir := writeApp(t, map[string]string{"app.py": sampleApp})

	language, framework, err := DetectLanguage(dir)
	require.NoError(t, err)
	require.Equal(t, "python", language)
	require.Equal(t, "flask", framework)

	_, _, err = DetectLanguage(filepath.Join(dir, "missing"))
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewFlaskScanner())

	s, err := reg.ForLanguage("PYTHON")
	require.NoError(t, err)
	require.Equal(t, "python", s.Language())

	_, err = reg.ForLanguage("cobol")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}
