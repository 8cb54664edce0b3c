// Package invoke routes incoming function calls to their containers:
// owner resolution, method and key checks, dispatch, and result
// normalization.
package invoke

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/engine"
	"github.com/splinter-dev/splinter/internal/fnmetrics"
	"github.com/splinter-dev/splinter/internal/function"
	"github.com/splinter-dev/splinter/internal/users"
)

// APIKeyHeader carries the function key for private invocations.
const APIKeyHeader = "X-Function-Key"

// Request is one function invocation.
type Request struct {
	OwnerUsername string
	AppName       string
	FunctionName  string
	Method        string
	Headers       map[string]string
	QueryParams   map[string]string
	Body          any
	APIKey        string
}

// Router resolves and dispatches invocations.
type Router struct {
	users     *users.Store
	functions *function.Store
	engine    engine.Engine
	metrics   *fnmetrics.Service
}

func NewRouter(userStore *users.Store, fnStore *function.Store, eng engine.Engine, metricsSvc *fnmetrics.Service) *Router {
	return &Router{
		users:     userStore,
		functions: fnStore,
		engine:    eng,
		metrics:   metricsSvc,
	}
}

// Invoke runs one function call end to end. Resolution and
// authorization failures return errors; execution outcomes, including
// function-level failures, come back as a result.
func (r *Router) Invoke(ctx context.Context, req Request) (*function.ExecutionResult, error) {
	owner, err := r.users.GetByUsername(ctx, req.OwnerUsername)
	if err != nil {
		return nil, err
	}

	// Lookup is scoped to the owner, so one user's function can never
	// shadow another's.
	fn, err := r.functions.GetByOwner(ctx, owner.ID, req.AppName, req.FunctionName)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if !fn.SupportsMethod(method) {
		return nil, apperr.Validation("method_not_supported",
			"function %s does not support %s (supported: %s)",
			fn.Name, method, strings.Join(fn.Methods, ", "))
	}

	if fn.Private {
		if err := checkAPIKey(fn, req.APIKey); err != nil {
			return nil, err
		}
	}

	event := &engine.Event{
		Method:      method,
		Path:        fn.Path,
		Headers:     req.Headers,
		QueryParams: req.QueryParams,
		Body:        req.Body,
		UserID:      owner.ID,
		Language:    fn.Language,
		Framework:   fn.Framework,
	}

	start := time.Now()
	result, execErr := r.engine.Execute(ctx, fn, event)
	elapsed := time.Since(start)

	success := execErr == nil && result != nil && result.Success
	if err := r.metrics.RecordExecution(context.WithoutCancel(ctx), fn.ID, fn.Name, fn.Language, elapsed, success); err != nil {
		log.Warn().Err(err).Str("function", fn.Name).Msg("failed to record execution metrics")
	}

	if execErr != nil {
		log.Error().Err(execErr).Str("function", fn.Name).Str("app", req.AppName).Msg("function execution failed")
		return &function.ExecutionResult{
			StatusCode:   500,
			Success:      false,
			ErrorMessage: "function execution failed",
		}, nil
	}
	return result, nil
}

func checkAPIKey(fn *function.Function, supplied string) error {
	if supplied == "" {
		return apperr.Forbidden("api_key_missing",
			"function %s is private; supply the %s header", fn.Name, APIKeyHeader)
	}
	if supplied != fn.APIKey {
		return apperr.Forbidden("api_key_invalid", "invalid api key for function %s", fn.Name)
	}
	return nil
}
