package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/auth"
	"github.com/splinter-dev/splinter/internal/fnmetrics"
	"github.com/splinter-dev/splinter/internal/function"
	"github.com/splinter-dev/splinter/internal/security"
)

type FunctionHandlers struct {
	functions *function.Store
	metrics   *fnmetrics.Service
	security  *security.Service
}

func NewFunctionHandlers(functions *function.Store, metrics *fnmetrics.Service, sec *security.Service) *FunctionHandlers {
	return &FunctionHandlers{functions: functions, metrics: metrics, security: sec}
}

// List returns every function owned by the caller, optionally
// narrowed to one application via ?app=.
func (h *FunctionHandlers) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, "not authenticated")
		return
	}

	var (
		fns []*function.Function
		err error
	)
	if app := r.URL.Query().Get("app"); app != "" {
		fns, err = h.functions.ListByUserApp(r.Context(), claims.UserID, app)
	} else {
		fns, err = h.functions.ListByUser(r.Context(), claims.UserID)
	}
	if err != nil {
		AppError(w, err)
		return
	}
	if fns == nil {
		fns = []*function.Function{}
	}
	JSON(w, http.StatusOK, map[string]any{"functions": fns})
}

// Metrics returns invocation statistics for one of the caller's functions.
func (h *FunctionHandlers) Metrics(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, "not authenticated")
		return
	}

	id := r.PathValue("id")
	fn, err := h.functions.GetByID(r.Context(), id)
	if err != nil {
		AppError(w, err)
		return
	}
	if fn.UserID != claims.UserID {
		AppError(w, apperr.Forbidden("not_owner", "function belongs to another user"))
		return
	}

	m, err := h.metrics.FindByFunctionID(r.Context(), id)
	if err != nil {
		AppError(w, err)
		return
	}
	JSON(w, http.StatusOK, metricsResponse{
		FunctionMetrics: m,
		AvgDurationMs:   m.AvgDurationMs(),
	})
}

type metricsResponse struct {
	*fnmetrics.FunctionMetrics
	AvgDurationMs float64 `json:"avgDurationMs"`
}

type securityRequest struct {
	Private bool `json:"private"`
}

type securityResponse struct {
	FunctionID string `json:"functionId"`
	IsPrivate  bool   `json:"isPrivate"`
	APIKey     string `json:"apiKey,omitempty"`
}

// Security toggles a function between public and private. Making a
// function private always issues a fresh API key, which is returned
// exactly once in this response.
func (h *FunctionHandlers) Security(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, "not authenticated")
		return
	}

	var req securityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	fn, err := h.security.Toggle(r.Context(), r.PathValue("id"), claims.UserID, req.Private)
	if err != nil {
		AppError(w, err)
		return
	}
	JSON(w, http.StatusOK, securityResponse{
		FunctionID: fn.ID,
		IsPrivate:  fn.Private,
		APIKey:     fn.APIKey,
	})
}
