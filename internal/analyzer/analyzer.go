// Package analyzer turns a monolith source tree into a normalized scan
// result: routes plus symbol maps keyed by name. The resolver and
// synthesizer depend only on this shape, never on scanner internals.
package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/splinter-dev/splinter/internal/apperr"
)

// Route is one HTTP handler found in the source application.
type Route struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Methods    []string `json:"methods"`
	SourceText string   `json:"source"`
	ClassName  string   `json:"className,omitempty"`
	Namespace  string   `json:"namespace,omitempty"`
}

// Result is the normalized output of one application scan.
type Result struct {
	Routes     []Route           `json:"routes"`
	Functions  map[string]string `json:"functions"`
	Classes    map[string]string `json:"classes"`
	Imports    []string          `json:"imports"`
	GlobalVars map[string]string `json:"globalVars"`
	DBCode     map[string]string `json:"dbCode"`
	ConfigCode map[string]string `json:"configCode"`
	EnvVarRefs []string          `json:"envVarRefs"`
	Language   string            `json:"language"`
	Framework  string            `json:"framework"`

	// AppModule is the detected application object name (e.g. the
	// variable bound to Flask(...)), preserved so generated code does
	// not break intra-app aliasing.
	AppModule string `json:"appModule"`
}

// Scanner analyzes one source ecosystem.
type Scanner interface {
	// Language returns the ecosystem this scanner handles.
	Language() string

	// Analyze walks the application at appPath and emits the scan result.
	Analyze(ctx context.Context, appPath string) (*Result, error)
}

// Registry resolves scanners by language.
type Registry struct {
	scanners map[string]Scanner
}

func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: make(map[string]Scanner, len(scanners))}
	for _, s := range scanners {
		r.scanners[s.Language()] = s
	}
	return r
}

// ForLanguage returns the scanner for a language.
func (r *Registry) ForLanguage(language string) (Scanner, error) {
	s, ok := r.scanners[strings.ToLower(language)]
	if !ok {
		return nil, apperr.Validation("unsupported_language", "no analyzer for language %q", language)
	}
	return s, nil
}

// DetectLanguage inspects the application directory and guesses the
// source ecosystem from the files present.
func DetectLanguage(appPath string) (language, framework string, err error) {
	info, statErr := os.Stat(appPath)
	if statErr != nil || !info.IsDir() {
		return "", "", apperr.NotFound("app_path_not_found", "application path %s not found", appPath)
	}

	hasPython := false
	walkErr := filepath.WalkDir(appPath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if strings.HasSuffix(d.Name(), ".py") {
			hasPython = true
		}
		return nil
	})
	if walkErr != nil {
		return "", "", apperr.FileOperation("walk_failed", walkErr, "walking application directory")
	}

	if hasPython {
		return "python", "flask", nil
	}

	return "", "", apperr.Validation("unknown_language", "could not detect application language in %s", appPath)
}

// entryFileCandidates are checked in order when locating the module
// that constructs the application object.
var entryFileCandidates = []string{"app.py", "main.py", "server.py", "wsgi.py", "application.py"}
