// Package users persists platform accounts. Each deployed function is
// owned by exactly one user and invoked through the owner's namespace.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/database"
)

// User is a platform account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store handles database operations for users.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new user. The ID is generated if empty.
func (s *Store) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		user.ID,
		user.Username,
		nullString(user.Email),
		user.PasswordHash,
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if classified := database.ClassifyError(err); database.IsUniqueError(classified) {
			return apperr.BusinessRule("user_exists", "username %q is taken", user.Username)
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// GetByID fetches a user by id.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
}

// GetByUsername fetches a user by username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectColumns+` WHERE username = ?`, username))
}

const selectColumns = `
	SELECT id, username, email, password_hash, created_at, updated_at
	FROM users`

func (s *Store) scanOne(row *sql.Row) (*User, error) {
	var (
		user      User
		email     sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(&user.ID, &user.Username, &email, &user.PasswordHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user_not_found", "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if email.Valid {
		user.Email = email.String
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		user.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		user.UpdatedAt = t
	}

	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
