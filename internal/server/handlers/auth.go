package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/auth"
)

// LoginBlocker throttles repeated failed logins per username.
type LoginBlocker interface {
	IsBlocked(key string) bool
	RecordFailure(key string)
	Clear(key string)
}

type AuthHandlers struct {
	service *auth.Service
	guard   LoginBlocker
}

func NewAuthHandlers(service *auth.Service, guard LoginBlocker) *AuthHandlers {
	return &AuthHandlers{service: service, guard: guard}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		BadRequest(w, "username and password are required")
		return
	}

	pair, err := h.service.Signup(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		AppError(w, err)
		return
	}
	JSON(w, http.StatusCreated, pair)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if h.guard != nil && h.guard.IsBlocked(req.Username) {
		Error(w, http.StatusTooManyRequests, "account_locked",
			"too many failed login attempts, try again later")
		return
	}

	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if h.guard != nil && apperr.IsKind(err, apperr.KindValidation) {
			h.guard.RecordFailure(req.Username)
		}
		AppError(w, err)
		return
	}

	if h.guard != nil {
		h.guard.Clear(req.Username)
	}
	JSON(w, http.StatusOK, pair)
}

// Me returns the authenticated user's claims.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, "not authenticated")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"userId":   claims.UserID,
		"username": claims.Username,
	})
}

func (h *AuthHandlers) Service() *auth.Service {
	return h.service
}
