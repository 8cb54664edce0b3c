package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/analyzer"
	"github.com/splinter-dev/splinter/internal/auth"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/database"
	"github.com/splinter-dev/splinter/internal/deploy"
	"github.com/splinter-dev/splinter/internal/engine"
	"github.com/splinter-dev/splinter/internal/fnmetrics"
	"github.com/splinter-dev/splinter/internal/function"
	"github.com/splinter-dev/splinter/internal/invoke"
	"github.com/splinter-dev/splinter/internal/resolver"
	"github.com/splinter-dev/splinter/internal/security"
	"github.com/splinter-dev/splinter/internal/synth"
	"github.com/splinter-dev/splinter/internal/users"
)

type Server struct {
	cfg     *config.Config
	db      *database.DB
	version string

	users     *users.Store
	functions *function.Store

	engine        engine.Engine
	authService   *auth.Service
	deployService *deploy.Service
	invokeRouter  *invoke.Router
	securitySvc   *security.Service
	fnMetrics     *fnmetrics.Service

	loginGuard  *LoginGuard
	rateLimiter *RateLimiter
	janitor     *deploy.Janitor

	httpServer *http.Server
	router     *Router
}

type Option func(*Server)

// WithEngine overrides the container engine, primarily for tests.
func WithEngine(eng engine.Engine) Option {
	return func(s *Server) {
		s.engine = eng
	}
}

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func New(cfg *config.Config, db *database.DB, opts ...Option) (*Server, error) {
	srv := &Server{
		cfg:     cfg,
		db:      db,
		version: "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.engine == nil {
		eng, err := engine.NewDockerEngine(cfg.Engine)
		if err != nil {
			return nil, fmt.Errorf("creating container engine: %w", err)
		}
		srv.engine = eng
	}

	srv.users = users.NewStore(db)
	srv.functions = function.NewStore(db)
	srv.fnMetrics = fnmetrics.NewService(fnmetrics.NewStore(db))
	srv.securitySvc = security.NewService(srv.functions)

	jwtService := auth.NewJWTService(cfg.Auth.JWT)
	srv.authService = auth.NewService(srv.users, jwtService, cfg.Auth)

	scanners := []analyzer.Scanner{analyzer.NewFlaskScanner()}
	if cfg.Analyzer.ExternalCommand != "" {
		scanners = append(scanners, analyzer.NewExternalScanner(
			"python",
			[]string{cfg.Analyzer.ExternalCommand},
			cfg.Analyzer.ExternalTimeout,
		))
	}

	srv.deployService = deploy.NewService(
		cfg.Deploy,
		cfg.Engine.ImagePrefix,
		srv.engine,
		analyzer.NewRegistry(scanners...),
		resolver.New(),
		synth.NewRegistry(synth.NewPythonTransformer(cfg.Analyzer.MethodFixTimeout)),
		srv.functions,
		srv.fnMetrics,
		srv.securitySvc,
	)

	srv.invokeRouter = invoke.NewRouter(srv.users, srv.functions, srv.engine, srv.fnMetrics)

	srv.loginGuard = NewLoginGuard(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutWindow)
	if cfg.Server.RateLimit.Enabled {
		srv.rateLimiter = NewRateLimiter(cfg.Server.RateLimit)
	}
	srv.janitor = deploy.NewJanitor(cfg.Deploy.TempPath, cfg.Deploy.CleanupSchedule, cfg.Deploy.CleanupAge)

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Str("version", s.version).
		Msg("Starting server")

	if err := s.janitor.Start(); err != nil {
		return fmt.Errorf("starting cleanup janitor: %w", err)
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")

	s.janitor.Stop()
	s.loginGuard.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	err := s.httpServer.Shutdown(ctx)

	if closer, ok := s.engine.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Error closing container engine")
		}
	}

	return err
}

func (s *Server) DB() *database.DB {
	return s.db
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) Version() string {
	return s.version
}

func (s *Server) Engine() engine.Engine {
	return s.engine
}

func (s *Server) AuthService() *auth.Service {
	return s.authService
}

func (s *Server) DeployService() *deploy.Service {
	return s.deployService
}

func (s *Server) InvokeRouter() *invoke.Router {
	return s.invokeRouter
}

func (s *Server) SecurityService() *security.Service {
	return s.securitySvc
}

func (s *Server) FnMetrics() *fnmetrics.Service {
	return s.fnMetrics
}

func (s *Server) Functions() *function.Store {
	return s.functions
}
