package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/splinter-dev/splinter/internal/config"
)

var (
	ErrPasswordTooShort     = errors.New("password is too short")
	ErrPasswordHashMismatch = errors.New("password does not match")
)

// HashPassword hashes a password using bcrypt. A zero cost uses the
// library default.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches a hash.
func VerifyPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordHashMismatch
	}
	return err
}

// ValidatePassword checks if a password meets the configured requirements.
func ValidatePassword(password string, cfg config.PasswordConfig) error {
	if len(password) < cfg.MinLength {
		return ErrPasswordTooShort
	}
	return nil
}
