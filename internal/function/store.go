package function

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/database"
)

// Store handles database operations for deployed functions.
type Store struct {
	db *database.DB
}

// NewStore creates a new function store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a function record.
func (s *Store) Create(ctx context.Context, fn *Function) error {
	methods, err := json.Marshal(fn.Methods)
	if err != nil {
		return fmt.Errorf("marshaling methods: %w", err)
	}

	envVars, err := marshalEnvVars(fn.EnvVars)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	fn.CreatedAt = now
	fn.UpdatedAt = now

	query := `
		INSERT INTO functions (
			id, user_id, app_name, name, language, framework,
			path, methods, image_tag, env_vars, private,
			api_key, api_key_generated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		fn.ID,
		fn.UserID,
		fn.AppName,
		fn.Name,
		fn.Language,
		fn.Framework,
		fn.Path,
		string(methods),
		fn.ImageTag,
		envVars,
		boolToInt(fn.Private),
		nullString(fn.APIKey),
		nullTime(fn.APIKeyGeneratedAt),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		if classified := database.ClassifyError(err); database.IsUniqueError(classified) {
			return apperr.BusinessRule("function_exists",
				"function %q already exists in app %q", fn.Name, fn.AppName)
		}
		return fmt.Errorf("inserting function: %w", err)
	}

	return nil
}

// GetByID fetches a function by its id.
func (s *Store) GetByID(ctx context.Context, id string) (*Function, error) {
	query := selectColumns + ` WHERE id = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByOwner fetches a function by its (userID, appName, name) identity.
// Cross-tenant lookups can never match: userID is part of the key.
func (s *Store) GetByOwner(ctx context.Context, userID, appName, name string) (*Function, error) {
	query := selectColumns + ` WHERE user_id = ? AND app_name = ? AND name = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, query, userID, appName, name))
}

// ExistsByOwner reports whether a function with this identity is deployed.
func (s *Store) ExistsByOwner(ctx context.Context, userID, appName, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM functions WHERE user_id = ? AND app_name = ? AND name = ?`,
		userID, appName, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("counting functions: %w", err)
	}
	return count > 0, nil
}

// ListByUser returns all functions owned by a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Function, error) {
	query := selectColumns + ` WHERE user_id = ? ORDER BY created_at DESC, name`
	return s.scanMany(ctx, query, userID)
}

// ListByUserApp returns all functions in one of a user's apps.
func (s *Store) ListByUserApp(ctx context.Context, userID, appName string) ([]*Function, error) {
	query := selectColumns + ` WHERE user_id = ? AND app_name = ? ORDER BY name`
	return s.scanMany(ctx, query, userID, appName)
}

// Delete removes a function by id. Metrics rows cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM functions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting function: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return apperr.NotFound("function_not_found", "function %s not found", id)
	}
	return nil
}

// UpdateSecurity persists the private flag and API key fields atomically.
func (s *Store) UpdateSecurity(ctx context.Context, fn *Function) error {
	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE functions
			SET private = ?, api_key = ?, api_key_generated_at = ?, updated_at = ?
			WHERE id = ?
		`,
			boolToInt(fn.Private),
			nullString(fn.APIKey),
			nullTime(fn.APIKeyGeneratedAt),
			time.Now().UTC().Format(time.RFC3339),
			fn.ID,
		)
		if err != nil {
			return fmt.Errorf("updating function security: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return apperr.NotFound("function_not_found", "function %s not found", fn.ID)
		}
		return nil
	})
}

const selectColumns = `
	SELECT id, user_id, app_name, name, language, framework,
	       path, methods, image_tag, env_vars, private,
	       api_key, api_key_generated_at, created_at, updated_at
	FROM functions`

func (s *Store) scanOne(row *sql.Row) (*Function, error) {
	fn, err := scanFunction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("function_not_found", "function not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning function: %w", err)
	}
	return fn, nil
}

func (s *Store) scanMany(ctx context.Context, query string, args ...any) ([]*Function, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying functions: %w", err)
	}
	defer rows.Close()

	var result []*Function
	for rows.Next() {
		fn, err := scanFunction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning function: %w", err)
		}
		result = append(result, fn)
	}
	return result, rows.Err()
}

func scanFunction(scan func(...any) error) (*Function, error) {
	var (
		fn        Function
		methods   string
		envVars   sql.NullString
		private   int
		apiKey    sql.NullString
		keyGenAt  sql.NullString
		createdAt string
		updatedAt string
	)

	err := scan(
		&fn.ID, &fn.UserID, &fn.AppName, &fn.Name, &fn.Language, &fn.Framework,
		&fn.Path, &methods, &fn.ImageTag, &envVars, &private,
		&apiKey, &keyGenAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(methods), &fn.Methods); err != nil {
		return nil, fmt.Errorf("unmarshaling methods: %w", err)
	}
	if envVars.Valid && envVars.String != "" {
		if err := json.Unmarshal([]byte(envVars.String), &fn.EnvVars); err != nil {
			return nil, fmt.Errorf("unmarshaling env vars: %w", err)
		}
	}

	fn.Private = private != 0
	if apiKey.Valid {
		fn.APIKey = apiKey.String
	}
	if keyGenAt.Valid {
		if t, err := time.Parse(time.RFC3339, keyGenAt.String); err == nil {
			fn.APIKeyGeneratedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		fn.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		fn.UpdatedAt = t
	}

	return &fn, nil
}

func marshalEnvVars(env map[string]string) (sql.NullString, error) {
	if len(env) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling env vars: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
