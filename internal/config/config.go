// Package config provides configuration management for Splinter.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure for Splinter.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Enable CORS
	CORS CORSConfig `mapstructure:"cors"`

	// Request timeout
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes. Source bundles arrive as
	// base64 zip payloads, so this runs larger than a typical API.
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// Rate limiting for invocation endpoints
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds token-bucket settings for invocation traffic.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Max requests per client per window
	Max int `mapstructure:"max"`

	// Refill window
	Window time.Duration `mapstructure:"window"`

	// Trust X-Real-IP / X-Forwarded-For when keying clients. Only
	// enable behind a proxy that strips client-supplied values,
	// otherwise callers can mint fresh buckets per request.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enable CORS
	Enabled bool `mapstructure:"enabled"`

	// Allowed origins (use ["*"] for all)
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Allowed methods
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// Allowed headers
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// Exposed headers
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// Allow credentials
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// Max age for preflight cache
	MaxAge time.Duration `mapstructure:"max_age"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// SQLite cache size in KB (negative) or pages (positive)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout for locked database
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign key enforcement
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWT      JWTConfig      `mapstructure:"jwt"`
	Password PasswordConfig `mapstructure:"password"`

	// Allow new accounts to self-register
	AllowRegistration bool `mapstructure:"allow_registration"`

	// Failed logins per account before a temporary lockout
	LockoutThreshold int `mapstructure:"lockout_threshold"`

	// Window over which failed logins accumulate
	LockoutWindow time.Duration `mapstructure:"lockout_window"`
}

// JWTConfig holds JWT settings.
type JWTConfig struct {
	// Secret for signing tokens. Loaded from config or SPLINTER_AUTH_JWT_SECRET.
	Secret string `mapstructure:"secret"`

	// Access token lifetime
	AccessTTL time.Duration `mapstructure:"access_ttl"`

	// Token issuer claim
	Issuer string `mapstructure:"issuer"`
}

// PasswordConfig holds password policy settings.
type PasswordConfig struct {
	MinLength int `mapstructure:"min_length"`

	// Bcrypt cost; 0 uses the library default
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// EngineConfig holds container engine settings.
type EngineConfig struct {
	// Prefix for built image tags
	ImagePrefix string `mapstructure:"image_prefix"`

	// Wall-clock limit for a single container build
	BuildTimeout time.Duration `mapstructure:"build_timeout"`

	// Wall-clock limit for a single function execution
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`

	// Remove containers after execution
	RemoveContainers bool `mapstructure:"remove_containers"`
}

// DeployConfig holds deployment pipeline settings.
type DeployConfig struct {
	// Root directory for generated build contexts
	BuildPath string `mapstructure:"build_path"`

	// Directory for direct single-function staging
	TempPath string `mapstructure:"temp_path"`

	// Maximum functions containerized concurrently per request
	MaxParallelBuilds int `mapstructure:"max_parallel_builds"`

	// Cron expression for the build directory janitor; empty disables it
	CleanupSchedule string `mapstructure:"cleanup_schedule"`

	// Build directories older than this are eligible for cleanup
	CleanupAge time.Duration `mapstructure:"cleanup_age"`
}

// AnalyzerConfig holds source analysis settings.
type AnalyzerConfig struct {
	// Command invoked for out-of-process analysis, if any
	ExternalCommand string `mapstructure:"external_command"`

	// Wall-clock limit for the external analyzer process
	ExternalTimeout time.Duration `mapstructure:"external_timeout"`

	// Wall-clock budget for HTTP method reconciliation; on expiry the
	// pipeline continues with whatever methods static analysis found
	MethodFixTimeout time.Duration `mapstructure:"method_fix_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Log format: json or console
	Format string `mapstructure:"format"`

	// Include caller information
	Caller bool `mapstructure:"caller"`

	// Include timestamps
	Timestamp bool `mapstructure:"timestamp"`
}

// Address returns the host:port the server binds to.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
