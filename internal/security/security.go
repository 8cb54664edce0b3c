// Package security manages per-function access control: the private
// flag and the API key that guards private invocations.
package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/function"
)

// KeyPrefix makes generated keys recognizable in logs and headers.
const KeyPrefix = "func_"

// Service toggles function visibility and issues API keys.
type Service struct {
	store *function.Store
}

func NewService(store *function.Store) *Service {
	return &Service{store: store}
}

// Toggle switches a function between public and private. Making a
// function private generates a fresh API key; making it public clears
// the key. Only the owner may toggle.
func (s *Service) Toggle(ctx context.Context, functionID, requestingUserID string, makePrivate bool) (*function.Function, error) {
	fn, err := s.store.GetByID(ctx, functionID)
	if err != nil {
		return nil, err
	}
	if fn.UserID != requestingUserID {
		return nil, apperr.Forbidden("not_owner", "user %s does not own function %s", requestingUserID, functionID)
	}

	if makePrivate {
		key, err := GenerateKey()
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		fn.Private = true
		fn.APIKey = key
		fn.APIKeyGeneratedAt = &now
	} else {
		fn.Private = false
		fn.APIKey = ""
		fn.APIKeyGeneratedAt = nil
	}

	if err := s.store.UpdateSecurity(ctx, fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// GenerateKey returns a new URL-safe API key backed by 32 bytes of
// crypto/rand entropy.
func GenerateKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", apperr.Deployment("key_generation", err, "failed to generate api key")
	}
	return KeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}
