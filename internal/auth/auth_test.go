package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/database"
	"github.com/splinter-dev/splinter/internal/users"
)

func testService(t *testing.T) *Service {
	t.Helper()

	dbCfg := &config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		WALMode:      true,
		ForeignKeys:  true,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	db, err := database.Open(dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	authCfg := config.AuthConfig{
		JWT: config.JWTConfig{
			Secret:    "test-secret-test-secret-test-secret",
			AccessTTL: time.Hour,
			Issuer:    "splinter",
		},
		Password: config.PasswordConfig{
			MinLength:  8,
			BcryptCost: 4, // keep tests fast
		},
		AllowRegistration: true,
	}

	return NewService(users.NewStore(db), NewJWTService(authCfg.JWT), authCfg)
}

func TestSignupAndLogin(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	pair, err := svc.Signup(ctx, "alice", "alice@example.com", "hunter22hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.Equal(t, "alice", pair.User.Username)

	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, pair.User.ID, claims.UserID)
	require.Equal(t, "alice", claims.Username)

	loggedIn, err := svc.Login(ctx, "alice", "hunter22hunter22")
	require.NoError(t, err)
	require.Equal(t, pair.User.ID, loggedIn.User.ID)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, "alice", "", "hunter22hunter22")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong-password")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Login(ctx, "nobody", "hunter22hunter22")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSignup_WeakPassword(t *testing.T) {
	svc := testService(t)

	_, err := svc.Signup(context.Background(), "alice", "", "short")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestValidateToken_Tampered(t *testing.T) {
	svc := testService(t)

	pair, err := svc.Signup(context.Background(), "alice", "", "hunter22hunter22")
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.AccessToken + "x")
	require.Error(t, err)
}
