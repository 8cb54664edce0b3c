package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8080
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 120 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 64 * 1024 * 1024 // 64MB, bundles arrive inline

	// Database defaults.
	DefaultDBPath       = "splinter.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Auth defaults.
	DefaultAccessTTL        = time.Hour
	DefaultJWTIssuer        = "splinter"
	DefaultMinPassword      = 8
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute

	// Rate limit defaults for invocation endpoints.
	DefaultRateLimitMax    = 120
	DefaultRateLimitWindow = time.Minute

	// Engine defaults.
	DefaultImagePrefix      = "splinter"
	DefaultBuildTimeout     = 5 * time.Minute
	DefaultExecutionTimeout = 90 * time.Second

	// Deploy defaults.
	DefaultBuildPath         = "build"
	DefaultTempPath          = "tmp"
	DefaultMaxParallelBuilds = 4
	DefaultCleanupSchedule   = "@hourly"
	DefaultCleanupAge        = 24 * time.Hour

	// Analyzer defaults.
	DefaultExternalTimeout  = 60 * time.Second
	DefaultMethodFixTimeout = 15 * time.Second

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				Max:               DefaultRateLimitMax,
				Window:            DefaultRateLimitWindow,
				TrustProxyHeaders: false,
			},
			CORS: CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Function-Key"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			},
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				AccessTTL: DefaultAccessTTL,
				Issuer:    DefaultJWTIssuer,
			},
			Password: PasswordConfig{
				MinLength: DefaultMinPassword,
			},
			AllowRegistration: true,
			LockoutThreshold:  DefaultLockoutThreshold,
			LockoutWindow:     DefaultLockoutWindow,
		},
		Engine: EngineConfig{
			ImagePrefix:      DefaultImagePrefix,
			BuildTimeout:     DefaultBuildTimeout,
			ExecutionTimeout: DefaultExecutionTimeout,
			RemoveContainers: true,
		},
		Deploy: DeployConfig{
			BuildPath:         DefaultBuildPath,
			TempPath:          DefaultTempPath,
			MaxParallelBuilds: DefaultMaxParallelBuilds,
			CleanupSchedule:   DefaultCleanupSchedule,
			CleanupAge:        DefaultCleanupAge,
		},
		Analyzer: AnalyzerConfig{
			ExternalTimeout:  DefaultExternalTimeout,
			MethodFixTimeout: DefaultMethodFixTimeout,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
	}
}
