package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/invoke"
)

type InvokeHandlers struct {
	router *invoke.Router
}

func NewInvokeHandlers(router *invoke.Router) *InvokeHandlers {
	return &InvokeHandlers{router: router}
}

// Invoke dispatches an HTTP request to a deployed function and relays
// the function's own status code, headers, and body back to the caller.
func (h *InvokeHandlers) Invoke(w http.ResponseWriter, r *http.Request) {
	req := invoke.Request{
		OwnerUsername: r.PathValue("username"),
		AppName:       r.PathValue("appName"),
		FunctionName:  r.PathValue("functionName"),
		Method:        r.Method,
		APIKey:        r.Header.Get(invoke.APIKeyHeader),
		Headers:       flattenValues(r.Header),
		QueryParams:   flattenValues(r.URL.Query()),
	}

	if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			req.Body = parsed
		} else {
			req.Body = string(body)
		}
	}

	result, err := h.router.Invoke(r.Context(), req)
	if err != nil {
		AppError(w, err)
		return
	}

	for k, v := range result.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)

	payload := result.Body
	if !result.Success && payload == nil {
		payload = map[string]string{"error": result.ErrorMessage}
	}
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to write invocation response")
	}
}

// flattenValues keeps the first value for each key, which is what the
// runtime wrappers expect.
func flattenValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
