// Package function defines the deployable function unit and its
// persistence. A Function is extracted from a monolith route, built into
// a container image, and looked up on every invocation.
package function

import (
	"strings"
	"time"

	"github.com/splinter-dev/splinter/internal/apperr"
)

// AllowedMethods is the set of HTTP methods a function may declare.
var AllowedMethods = map[string]bool{
	"GET":     true,
	"POST":    true,
	"PUT":     true,
	"DELETE":  true,
	"PATCH":   true,
	"OPTIONS": true,
	"HEAD":    true,
}

// Function is the deployable unit. The durable columns (identity,
// routing, security) are persisted; the source/closure fields only
// exist between analysis and containerization.
type Function struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	AppName   string `json:"appName"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Language  string `json:"language"`
	Framework string `json:"framework"`

	// Methods is never empty; a route with no declared methods gets GET.
	Methods []string `json:"methods"`

	ImageTag string            `json:"imageTag"`
	EnvVars  map[string]string `json:"envVars,omitempty"`

	Private           bool       `json:"private"`
	APIKey            string     `json:"-"`
	APIKeyGeneratedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Build-time closure, not persisted.
	SourceText        string            `json:"-"`
	Dependencies      []string          `json:"-"`
	DependencySources map[string]string `json:"-"`
	Imports           []string          `json:"-"`
	GlobalVars        map[string]string `json:"-"`
	DBCode            map[string]string `json:"-"`
	ConfigCode        map[string]string `json:"-"`
	EnvVarRefs        []string          `json:"-"`
	RequiresDB        bool              `json:"-"`
	AppModule         string            `json:"-"`
}

// PrimaryMethod returns the method used for image tagging and the
// build directory name.
func (f *Function) PrimaryMethod() string {
	if len(f.Methods) == 0 {
		return "GET"
	}
	return f.Methods[0]
}

// SupportsMethod reports whether the function accepts the given HTTP method.
func (f *Function) SupportsMethod(method string) bool {
	for _, m := range f.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// NormalizeMethods uppercases and validates a method list, defaulting
// to GET when empty.
func NormalizeMethods(methods []string) ([]string, error) {
	if len(methods) == 0 {
		return []string{"GET"}, nil
	}
	out := make([]string, 0, len(methods))
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		u := strings.ToUpper(strings.TrimSpace(m))
		if !AllowedMethods[u] {
			return nil, apperr.Validation("invalid_method", "unsupported HTTP method %q", m)
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out, nil
}

// BuildContext is the ephemeral input to build-unit synthesis.
type BuildContext struct {
	Function      *Function
	SourceAppPath string
	BuildPath     string
	Language      string
	Framework     string
}

// ExecutionResult is the normalized outcome of one container execution.
type ExecutionResult struct {
	StatusCode   int               `json:"statusCode"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         any               `json:"body,omitempty"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error,omitempty"`
}

// FailureDetail names one function that failed during a deployment and why.
type FailureDetail struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Deployment outcome statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// DeploymentOutcome aggregates per-function results for one deployment
// request. It is transient; only the functions themselves persist.
type DeploymentOutcome struct {
	Status   string          `json:"status"`
	AppName  string          `json:"appName"`
	Deployed []string        `json:"deployedFunctions"`
	Failed   []FailureDetail `json:"failedFunctions,omitempty"`
}
