package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/apperr"
)

// FlaskScanner analyzes Python Flask applications by scanning source
// text. Resolution is best-effort and static; it is a documented
// heuristic, not a semantic analysis.
type FlaskScanner struct{}

func NewFlaskScanner() *FlaskScanner {
	return &FlaskScanner{}
}

func (s *FlaskScanner) Language() string { return "python" }

var (
	flaskAppRegex  = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*Flask\s*\(`)
	routeDecoRegex = regexp.MustCompile(`@([a-zA-Z_][a-zA-Z0-9_]*)\.route\(\s*['"]([^'"]+)['"]([^)]*)\)`)
	methodsRegex   = regexp.MustCompile(`methods\s*=\s*\[([^\]]*)\]`)
	defRegex       = regexp.MustCompile(`^def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	classRegex     = regexp.MustCompile(`^class\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	assignRegex    = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*\S`)
	configRegex    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*\.config\[\s*['"]([^'"]+)['"]\s*\]\s*=`)
	envRefRegex    = regexp.MustCompile(`os\.(?:environ\.get|getenv)\(\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]|os\.environ\[\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]\s*\]`)
)

// dbSignatures mark source as needing database bootstrap.
var dbSignatures = []string{
	"conn.", "cursor()", "psycopg2", "connect(",
	"commit()", "rollback()", "execute(", "fetchone()", "DATABASE_URL",
}

// HasDBSignatures reports whether source text touches a database.
func HasDBSignatures(source string) bool {
	for _, sig := range dbSignatures {
		if strings.Contains(source, sig) {
			return true
		}
	}
	return false
}

func (s *FlaskScanner) Analyze(ctx context.Context, appPath string) (*Result, error) {
	result := &Result{
		Functions:  make(map[string]string),
		Classes:    make(map[string]string),
		GlobalVars: make(map[string]string),
		DBCode:     make(map[string]string),
		ConfigCode: make(map[string]string),
		Language:   "python",
		Framework:  "flask",
	}

	envRefs := make(map[string]bool)
	importSeen := make(map[string]bool)

	var files []string
	err := filepath.WalkDir(appPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == "venv" || name == ".venv" || name == "__pycache__" || strings.HasPrefix(name, ".") && name != "." {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".py") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FileOperation("walk_failed", err, "walking application directory")
	}

	if len(files) == 0 {
		return nil, apperr.CodeAnalysis("no_sources", nil, "no Python sources found in %s", appPath)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, readErr := os.ReadFile(file)
		if readErr != nil {
			return nil, apperr.FileOperation("read_failed", readErr, "reading %s", file)
		}
		s.scanFile(string(content), result, envRefs, importSeen)
	}

	if result.AppModule == "" {
		result.AppModule = detectAppVariable(appPath)
	}

	for ref := range envRefs {
		result.EnvVarRefs = append(result.EnvVarRefs, ref)
	}
	sort.Strings(result.EnvVarRefs)

	if len(result.Routes) == 0 {
		return nil, apperr.BusinessRule("no_routes", "no deployable routes found in %s", appPath)
	}

	log.Debug().
		Int("routes", len(result.Routes)).
		Int("functions", len(result.Functions)).
		Int("classes", len(result.Classes)).
		Str("app_module", result.AppModule).
		Msg("Analyzed Flask application")

	return result, nil
}

// block is one top-level statement group: optional decorators followed
// by a def/class/assignment and its indented body.
type block struct {
	decorators []string
	header     string
	lines      []string
}

func (b *block) text() string {
	var sb strings.Builder
	for _, d := range b.decorators {
		sb.WriteString(d)
		sb.WriteString("\n")
	}
	sb.WriteString(b.header)
	sb.WriteString("\n")
	for _, l := range b.lines {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (s *FlaskScanner) scanFile(content string, result *Result, envRefs map[string]bool, importSeen map[string]bool) {
	if m := flaskAppRegex.FindStringSubmatch(content); m != nil && result.AppModule == "" {
		result.AppModule = m[1]
	}

	for _, m := range envRefRegex.FindAllStringSubmatch(content, -1) {
		if m[1] != "" {
			envRefs[m[1]] = true
		} else if m[2] != "" {
			envRefs[m[2]] = true
		}
	}

	lines := strings.Split(content, "\n")
	var pendingDecorators []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		// Only top-level statements start blocks.
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "@"):
			pendingDecorators = append(pendingDecorators, line)
			continue

		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from "):
			if !importSeen[trimmed] {
				importSeen[trimmed] = true
				result.Imports = append(result.Imports, trimmed)
			}

		case defRegex.MatchString(trimmed):
			name := defRegex.FindStringSubmatch(trimmed)[1]
			b := &block{decorators: pendingDecorators, header: line}
			i = collectBody(lines, i, b)
			s.recordDef(name, b, result)

		case classRegex.MatchString(trimmed):
			name := classRegex.FindStringSubmatch(trimmed)[1]
			b := &block{decorators: pendingDecorators, header: line}
			i = collectBody(lines, i, b)
			result.Classes[name] = b.text()

		case configRegex.MatchString(trimmed):
			key := configRegex.FindStringSubmatch(trimmed)[1]
			result.ConfigCode[key] = trimmed

		case assignRegex.MatchString(trimmed):
			name := assignRegex.FindStringSubmatch(trimmed)[1]
			if name != result.AppModule {
				result.GlobalVars[name] = trimmed
			}
		}

		pendingDecorators = nil
	}
}

// collectBody appends the indented body following lines[start] to b and
// returns the index of the last consumed line.
func collectBody(lines []string, start int, b *block) int {
	i := start + 1
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" || strings.TrimSpace(line) == "" {
			b.lines = append(b.lines, line)
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			break
		}
		b.lines = append(b.lines, line)
	}
	// Trim trailing blank lines so source text stays tight.
	for len(b.lines) > 0 && strings.TrimSpace(b.lines[len(b.lines)-1]) == "" {
		b.lines = b.lines[:len(b.lines)-1]
	}
	return i - 1
}

func (s *FlaskScanner) recordDef(name string, b *block, result *Result) {
	text := b.text()

	var routeDeco string
	for _, d := range b.decorators {
		if routeDecoRegex.MatchString(d) {
			routeDeco = d
			break
		}
	}

	if routeDeco != "" {
		m := routeDecoRegex.FindStringSubmatch(routeDeco)
		route := Route{
			Name:       name,
			Path:       m[2],
			Methods:    parseRouteMethods(m[3]),
			SourceText: text,
		}
		result.Routes = append(result.Routes, route)
		return
	}

	result.Functions[name] = text
	if HasDBSignatures(text) {
		result.DBCode[name] = text
	}
}

func parseRouteMethods(args string) []string {
	m := methodsRegex.FindStringSubmatch(args)
	if m == nil {
		return []string{"GET"}
	}
	var methods []string
	for _, part := range strings.Split(m[1], ",") {
		cleaned := strings.Trim(strings.TrimSpace(part), `'"`)
		if cleaned != "" {
			methods = append(methods, strings.ToUpper(cleaned))
		}
	}
	if len(methods) == 0 {
		return []string{"GET"}
	}
	return methods
}

// detectAppVariable searches the conventional entry files for the
// variable bound to the Flask constructor.
func detectAppVariable(appPath string) string {
	for _, candidate := range entryFileCandidates {
		content, err := os.ReadFile(filepath.Join(appPath, candidate))
		if err != nil {
			continue
		}
		if m := flaskAppRegex.FindStringSubmatch(string(content)); m != nil {
			return m[1]
		}
	}
	return "app"
}
