package synth

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/analyzer"
	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/function"
	"github.com/splinter-dev/splinter/internal/resolver"
)

//go:embed templates/python/*.tmpl
var pythonTemplates embed.FS

// PythonTransformer synthesizes Flask build units.
type PythonTransformer struct {
	dockerfile       *template.Template
	wrapper          *template.Template
	methodFixTimeout time.Duration
}

func NewPythonTransformer(methodFixTimeout time.Duration) *PythonTransformer {
	return &PythonTransformer{
		dockerfile:       template.Must(template.ParseFS(pythonTemplates, "templates/python/Dockerfile.tmpl")),
		wrapper:          template.Must(template.ParseFS(pythonTemplates, "templates/python/wrapper.py.tmpl")),
		methodFixTimeout: methodFixTimeout,
	}
}

func (t *PythonTransformer) Language() string { return "python" }

// Synthesize writes main.py, requirements.txt, Dockerfile, wrapper.py
// and sibling support files into the build directory.
func (t *PythonTransformer) Synthesize(ctx context.Context, bctx *function.BuildContext) error {
	fn := bctx.Function

	if err := os.MkdirAll(bctx.BuildPath, 0o755); err != nil {
		return apperr.FileOperation("mkdir_failed", err, "creating build directory %s", bctx.BuildPath)
	}

	mainSource := t.assembleMain(fn)
	mainPath := filepath.Join(bctx.BuildPath, "main.py")
	if err := os.WriteFile(mainPath, []byte(mainSource), 0o644); err != nil {
		return apperr.FileOperation("write_failed", err, "writing main.py")
	}

	if err := t.writeManifest(bctx); err != nil {
		return err
	}
	if err := t.writeDockerfile(bctx); err != nil {
		return err
	}
	if err := t.writeWrapper(bctx); err != nil {
		return err
	}
	if err := t.copySupportFiles(bctx); err != nil {
		return err
	}

	// Method reconciliation is best-effort: on budget expiry the build
	// continues with whatever the textual assembly produced.
	fixCtx, cancel := context.WithTimeout(ctx, t.methodFixTimeout)
	defer cancel()
	if err := FixMethods(fixCtx, mainPath, fn.Name, fn.Methods); err != nil {
		log.Warn().Err(err).
			Str("function", fn.Name).
			Msg("Method reconciliation skipped, continuing with assembled source")
	}

	return nil
}

// assembleMain emits the single-file program in fixed order: imports,
// logging bootstrap, environment variables, config, globals, the
// application object, database bootstrap, dependencies, and finally
// the route handler.
func (t *PythonTransformer) assembleMain(fn *function.Function) string {
	var sb strings.Builder
	appVar := fn.AppModule
	if appVar == "" {
		appVar = "app"
	}

	t.writeImports(&sb, fn)
	sb.WriteString("\nimport logging\n\nlogging.basicConfig(level=logging.INFO)\nlogger = logging.getLogger(__name__)\n")

	if len(fn.EnvVarRefs) > 0 {
		sb.WriteString("\n# Environment variables used by this function:\n")
		refs := append([]string(nil), fn.EnvVarRefs...)
		sort.Strings(refs)
		for _, ref := range refs {
			sb.WriteString("#   " + ref + "\n")
		}
	}

	if len(fn.ConfigCode) > 0 {
		sb.WriteString("\n")
		for _, key := range sortedKeys(fn.ConfigCode) {
			sb.WriteString(fn.ConfigCode[key] + "\n")
		}
	}

	if len(fn.GlobalVars) > 0 {
		sb.WriteString("\n")
		for _, name := range sortedKeys(fn.GlobalVars) {
			sb.WriteString(fn.GlobalVars[name] + "\n")
		}
	}

	if !definesAppObject(fn, appVar) {
		sb.WriteString(fmt.Sprintf("\n%s = Flask(__name__)\n", appVar))
	}

	if t.needsDBBootstrap(fn) {
		sb.WriteString(t.dbBootstrap(fn))
	}

	for _, dep := range fn.Dependencies {
		sb.WriteString("\n\n")
		if source, ok := fn.DependencySources[dep]; ok && source != "" {
			sb.WriteString(source)
			sb.WriteString("\n")
		} else {
			sb.WriteString(stubFor(dep))
		}
	}

	sb.WriteString("\n\n")
	sb.WriteString(t.routeHandler(fn, appVar))
	sb.WriteString("\n")

	return sb.String()
}

func (t *PythonTransformer) writeImports(sb *strings.Builder, fn *function.Function) {
	seen := make(map[string]bool)
	write := func(line string) {
		if line == "" || seen[line] {
			return
		}
		seen[line] = true
		sb.WriteString(line + "\n")
	}

	write("import os")
	write("from flask import Flask, request, jsonify")
	for _, imp := range fn.Imports {
		write(strings.TrimSpace(imp))
	}
}

func (t *PythonTransformer) needsDBBootstrap(fn *function.Function) bool {
	if fn.RequiresDB {
		return true
	}
	if analyzer.HasDBSignatures(fn.SourceText) {
		return true
	}
	for _, src := range fn.DependencySources {
		if analyzer.HasDBSignatures(src) {
			return true
		}
	}
	return false
}

func (t *PythonTransformer) dbBootstrap(fn *function.Function) string {
	// Skip the helper when the closure already carries a connection
	// factory of its own.
	for dep := range fn.DependencySources {
		if strings.TrimPrefix(dep, resolver.ClassPrefix) == "get_db_connection" || dep == "get_db_connection" {
			return ""
		}
	}
	return `
import psycopg2

def get_db_connection():
    return psycopg2.connect(os.environ.get("DATABASE_URL"))
`
}

var pyRouteDecoRegex = regexp.MustCompile(`@[a-zA-Z_][a-zA-Z0-9_]*\.route\(`)

// routeHandler emits the handler source, injecting a route-binding
// decorator only when the original source lacks one. Emitting a second
// binding would be a correctness bug.
func (t *PythonTransformer) routeHandler(fn *function.Function, appVar string) string {
	source := strings.TrimRight(fn.SourceText, "\n")
	if pyRouteDecoRegex.MatchString(source) {
		return source
	}

	methods := make([]string, len(fn.Methods))
	for i, m := range fn.Methods {
		methods[i] = "'" + m + "'"
	}
	decorator := fmt.Sprintf("@%s.route('%s', methods=[%s])", appVar, fn.Path, strings.Join(methods, ", "))
	return decorator + "\n" + source
}

// stubFor renders a logged placeholder for a dependency whose source
// could not be resolved: it returns its first argument unchanged so
// data pipelines keep flowing.
func stubFor(dep string) string {
	name := strings.TrimPrefix(strings.TrimPrefix(dep, resolver.ClassPrefix), resolver.ModelPrefix)
	return fmt.Sprintf(`def %s(*args, **kwargs):
    logger.warning("unresolved dependency stub '%s' called")
    return args[0] if args else None
`, name, name)
}

func (t *PythonTransformer) writeManifest(bctx *function.BuildContext) error {
	var appRequirements []string
	if data, err := os.ReadFile(filepath.Join(bctx.SourceAppPath, "requirements.txt")); err == nil {
		appRequirements = strings.Split(string(data), "\n")
	}

	manifest := BuildManifest(bctx.Function.Imports, appRequirements)
	path := filepath.Join(bctx.BuildPath, "requirements.txt")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		return apperr.FileOperation("write_failed", err, "writing requirements.txt")
	}
	return nil
}

func (t *PythonTransformer) writeDockerfile(bctx *function.BuildContext) error {
	f, err := os.Create(filepath.Join(bctx.BuildPath, "Dockerfile"))
	if err != nil {
		return apperr.FileOperation("write_failed", err, "creating Dockerfile")
	}
	defer f.Close()

	data := struct{ FunctionName string }{FunctionName: bctx.Function.Name}
	if err := t.dockerfile.Execute(f, data); err != nil {
		return apperr.FileOperation("template_failed", err, "rendering Dockerfile")
	}
	return nil
}

func (t *PythonTransformer) writeWrapper(bctx *function.BuildContext) error {
	fn := bctx.Function
	appVar := fn.AppModule
	if appVar == "" {
		appVar = "app"
	}

	f, err := os.Create(filepath.Join(bctx.BuildPath, "wrapper.py"))
	if err != nil {
		return apperr.FileOperation("write_failed", err, "creating wrapper.py")
	}
	defer f.Close()

	data := struct {
		AppModule     string
		RoutePath     string
		PrimaryMethod string
	}{
		AppModule:     appVar,
		RoutePath:     fn.Path,
		PrimaryMethod: fn.PrimaryMethod(),
	}
	if err := t.wrapper.Execute(f, data); err != nil {
		return apperr.FileOperation("template_failed", err, "rendering wrapper.py")
	}
	return nil
}

// copySupportFiles brings environment files and locally imported
// modules into the build directory, preserving their relative shape.
func (t *PythonTransformer) copySupportFiles(bctx *function.BuildContext) error {
	fn := bctx.Function

	for _, name := range []string{".env", ".flaskenv"} {
		src := filepath.Join(bctx.SourceAppPath, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyFile(src, filepath.Join(bctx.BuildPath, name)); err != nil {
			return apperr.FileOperation("copy_failed", err, "copying %s", name)
		}
	}

	for _, imp := range fn.Imports {
		module := moduleRoot(imp)
		if module == "" {
			continue
		}

		if src := filepath.Join(bctx.SourceAppPath, module+".py"); fileExists(src) {
			if err := copyFile(src, filepath.Join(bctx.BuildPath, module+".py")); err != nil {
				return apperr.FileOperation("copy_failed", err, "copying module %s", module)
			}
			continue
		}

		if src := filepath.Join(bctx.SourceAppPath, module); dirExists(src) && fileExists(filepath.Join(src, "__init__.py")) {
			if err := copyDir(src, filepath.Join(bctx.BuildPath, module)); err != nil {
				return apperr.FileOperation("copy_failed", err, "copying package %s", module)
			}
		}
	}

	return nil
}

// moduleRoot returns the first path component of the imported module
// name, preserving case so it matches on-disk files.
func moduleRoot(importLine string) string {
	fields := strings.Fields(importLine)
	if len(fields) < 2 {
		return ""
	}
	module := fields[1]
	if dot := strings.IndexByte(module, '.'); dot >= 0 {
		module = module[:dot]
	}
	return module
}

func definesAppObject(fn *function.Function, appVar string) bool {
	if _, ok := fn.GlobalVars[appVar]; ok {
		return true
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
