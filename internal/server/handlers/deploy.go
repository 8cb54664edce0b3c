package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/splinter-dev/splinter/internal/auth"
	"github.com/splinter-dev/splinter/internal/deploy"
)

type DeployHandlers struct {
	service *deploy.Service
}

func NewDeployHandlers(service *deploy.Service) *DeployHandlers {
	return &DeployHandlers{service: service}
}

type deployAppRequest struct {
	AppPath string            `json:"appPath"`
	AppName string            `json:"appName,omitempty"`
	EnvVars map[string]string `json:"envVars,omitempty"`
	Private bool              `json:"private,omitempty"`
}

type deployFunctionRequest struct {
	Code     string            `json:"code"`
	Language string            `json:"language,omitempty"`
	AppName  string            `json:"appName,omitempty"`
	EnvVars  map[string]string `json:"envVars,omitempty"`
	Private  bool              `json:"private,omitempty"`
}

// DeployApplication handles a bundle deployment: every route in the
// application at appPath becomes a function, overwriting previous
// deployments of the same names.
func (h *DeployHandlers) DeployApplication(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, "not authenticated")
		return
	}

	var req deployAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	outcome, err := h.service.DeployApplication(r.Context(), deploy.DeployRequest{
		UserID:  claims.UserID,
		AppPath: req.AppPath,
		AppName: req.AppName,
		EnvVars: req.EnvVars,
		Private: req.Private,
	})
	if err != nil {
		AppError(w, err)
		return
	}
	JSON(w, http.StatusOK, outcome)
}

// DeployFunction handles a direct single-function deployment from raw
// source code. Name conflicts are skipped, not overwritten.
func (h *DeployHandlers) DeployFunction(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, "not authenticated")
		return
	}

	var req deployFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	outcome, err := h.service.DeployFunction(r.Context(), deploy.DirectDeployRequest{
		UserID:   claims.UserID,
		Code:     req.Code,
		Language: req.Language,
		AppName:  req.AppName,
		EnvVars:  req.EnvVars,
		Private:  req.Private,
	})
	if err != nil {
		AppError(w, err)
		return
	}
	JSON(w, http.StatusOK, outcome)
}

// Undeploy removes one of the caller's deployed functions.
func (h *DeployHandlers) Undeploy(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, "not authenticated")
		return
	}

	appName := r.PathValue("appName")
	functionName := r.PathValue("functionName")
	if appName == "" || functionName == "" {
		BadRequest(w, "appName and functionName are required")
		return
	}

	if err := h.service.UndeployFunction(r.Context(), claims.UserID, appName, functionName); err != nil {
		AppError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status":   "undeployed",
		"appName":  appName,
		"function": functionName,
	})
}
