package auth

import (
	"context"
	"time"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/users"
)

// Service wires user persistence to token issuance.
type Service struct {
	store *users.Store
	jwt   *JWTService
	cfg   config.AuthConfig
}

func NewService(store *users.Store, jwt *JWTService, cfg config.AuthConfig) *Service {
	return &Service{store: store, jwt: jwt, cfg: cfg}
}

// TokenPair is the result of a successful signup or login.
type TokenPair struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        *users.User `json:"user"`
}

// Signup registers a new account and returns an access token.
func (s *Service) Signup(ctx context.Context, username, email, password string) (*TokenPair, error) {
	if !s.cfg.AllowRegistration {
		return nil, apperr.BusinessRule("registration_disabled", "registration is disabled")
	}
	if username == "" {
		return nil, apperr.Validation("missing_username", "username is required")
	}
	if err := ValidatePassword(password, s.cfg.Password); err != nil {
		return nil, apperr.Validation("weak_password", "%v", err)
	}

	hash, err := HashPassword(password, s.cfg.Password.BcryptCost)
	if err != nil {
		return nil, err
	}

	user := &users.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.issueToken(user)
}

// Login verifies credentials and returns an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		// Indistinguishable from a wrong password.
		return nil, apperr.Validation("invalid_credentials", "invalid username or password")
	}

	if err := VerifyPassword(password, user.PasswordHash); err != nil {
		return nil, apperr.Validation("invalid_credentials", "invalid username or password")
	}

	return s.issueToken(user)
}

// ValidateToken resolves a bearer token into claims.
func (s *Service) ValidateToken(token string) (*Claims, error) {
	return s.jwt.ValidateAccessToken(token)
}

func (s *Service) issueToken(user *users.User) (*TokenPair, error) {
	token, expiresAt, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: token, ExpiresAt: expiresAt, User: user}, nil
}
