package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateDeploy(&cfg.Deploy)...)
	errs = append(errs, validateAnalyzer(&cfg.Analyzer)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 1024 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be at least 1KB",
		})
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Max < 1 {
			errs = append(errs, ValidationError{
				Field:   "server.rate_limit.max",
				Message: "must be at least 1 when rate limiting is enabled",
			})
		}
		if cfg.RateLimit.Window <= 0 {
			errs = append(errs, ValidationError{
				Field:   "server.rate_limit.window",
				Message: "must be positive when rate limiting is enabled",
			})
		}
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "must not be empty",
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.busy_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateAuth(cfg *AuthConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.JWT.AccessTTL <= 0 {
		errs = append(errs, ValidationError{
			Field:   "auth.jwt.access_ttl",
			Message: "must be positive",
		})
	}

	if cfg.Password.MinLength < 4 {
		errs = append(errs, ValidationError{
			Field:   "auth.password.min_length",
			Message: "must be at least 4",
		})
	}

	if cfg.Password.BcryptCost < 0 || cfg.Password.BcryptCost > 31 {
		errs = append(errs, ValidationError{
			Field:   "auth.password.bcrypt_cost",
			Message: "must be between 0 and 31",
		})
	}

	return errs
}

func validateEngine(cfg *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.ImagePrefix == "" {
		errs = append(errs, ValidationError{
			Field:   "engine.image_prefix",
			Message: "must not be empty",
		})
	}

	if cfg.BuildTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.build_timeout",
			Message: "must be positive",
		})
	}

	if cfg.ExecutionTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "engine.execution_timeout",
			Message: "must be positive",
		})
	}

	return errs
}

func validateDeploy(cfg *DeployConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.BuildPath == "" {
		errs = append(errs, ValidationError{
			Field:   "deploy.build_path",
			Message: "must not be empty",
		})
	}

	if cfg.MaxParallelBuilds < 1 {
		errs = append(errs, ValidationError{
			Field:   "deploy.max_parallel_builds",
			Message: "must be at least 1",
		})
	}

	if cfg.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
			errs = append(errs, ValidationError{
				Field:   "deploy.cleanup_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	if cfg.CleanupAge < 0 {
		errs = append(errs, ValidationError{
			Field:   "deploy.cleanup_age",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateAnalyzer(cfg *AnalyzerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.ExternalTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "analyzer.external_timeout",
			Message: "must be positive",
		})
	}

	if cfg.MethodFixTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "analyzer.method_fix_timeout",
			Message: "must be positive",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q", cfg.Level),
		})
	}

	switch cfg.Format {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (must be json or console)", cfg.Format),
		})
	}

	return errs
}
