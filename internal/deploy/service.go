// Package deploy orchestrates the transformation of an analyzed
// application into deployed functions: conflict handling, persistence,
// build-unit synthesis, and containerization, with per-function failure
// isolation.
package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/splinter-dev/splinter/internal/analyzer"
	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/engine"
	"github.com/splinter-dev/splinter/internal/fnmetrics"
	"github.com/splinter-dev/splinter/internal/function"
	"github.com/splinter-dev/splinter/internal/metrics"
	"github.com/splinter-dev/splinter/internal/resolver"
	"github.com/splinter-dev/splinter/internal/security"
	"github.com/splinter-dev/splinter/internal/synth"
)

const maxAppNameLen = 50

// DeployRequest asks for every route of an application to be deployed.
type DeployRequest struct {
	UserID  string
	AppPath string

	// AppName overrides the name derived from the path's last segment.
	AppName string

	// EnvVars are merged over any .env found beside the app.
	EnvVars map[string]string

	// Private deploys every extracted function with an API key.
	Private bool

	// Direct marks an incremental single-function deployment: name
	// conflicts are skipped instead of overwritten.
	Direct bool
}

// DirectDeployRequest deploys one function from raw source code.
type DirectDeployRequest struct {
	UserID   string
	Code     string
	Language string
	AppName  string
	EnvVars  map[string]string
	Private  bool
}

// Service runs the deployment pipeline.
type Service struct {
	cfg         config.DeployConfig
	imagePrefix string
	engine      engine.Engine
	scanners    *analyzer.Registry
	resolver    *resolver.Resolver
	synths      *synth.Registry
	functions   *function.Store
	metrics     *fnmetrics.Service
	security    *security.Service
	metadata    *MetadataRepo
	leases      *keyedMutex
	counter     *Counter
}

func NewService(
	cfg config.DeployConfig,
	imagePrefix string,
	eng engine.Engine,
	scanners *analyzer.Registry,
	res *resolver.Resolver,
	synths *synth.Registry,
	functions *function.Store,
	fnMetrics *fnmetrics.Service,
	sec *security.Service,
) *Service {
	return &Service{
		cfg:         cfg,
		imagePrefix: imagePrefix,
		engine:      eng,
		scanners:    scanners,
		resolver:    res,
		synths:      synths,
		functions:   functions,
		metrics:     fnMetrics,
		security:    sec,
		metadata:    NewMetadataRepo(cfg.BuildPath),
		leases:      newKeyedMutex(),
		counter:     NewCounter(),
	}
}

// DeployApplication analyzes the application at req.AppPath and deploys
// every route it finds. Individual function failures are recorded in
// the outcome without aborting the siblings; only a deployment with
// zero successes returns an error.
func (s *Service) DeployApplication(ctx context.Context, req DeployRequest) (*function.DeploymentOutcome, error) {
	if err := validateAppPath(req.AppPath); err != nil {
		return nil, err
	}

	appName := req.AppName
	if appName == "" {
		appName = filepath.Base(filepath.Clean(req.AppPath))
	}
	appName = sanitizeAppName(appName)

	language, framework, err := analyzer.DetectLanguage(req.AppPath)
	if err != nil {
		return nil, err
	}
	scanner, err := s.scanners.ForLanguage(language)
	if err != nil {
		return nil, err
	}
	scan, err := scanner.Analyze(ctx, req.AppPath)
	if err != nil {
		return nil, err
	}

	appDir := filepath.Join(s.cfg.BuildPath, req.UserID, appName)
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		return nil, apperr.FileOperation("build_dir", err, "failed to prepare build dir for app %s", appName)
	}
	if !s.metadata.Exists(req.UserID, appName) {
		meta := &AppMetadata{
			AppName:   appName,
			UserID:    req.UserID,
			Language:  language,
			Framework: framework,
		}
		if err := s.metadata.Create(meta); err != nil {
			return nil, err
		}
	}

	envVars := s.loadEnvVars(req.AppPath, req.EnvVars)

	log.Info().
		Str("app", appName).
		Str("user", req.UserID).
		Str("language", language).
		Int("routes", len(scan.Routes)).
		Msg("deploying application")

	outcome := &function.DeploymentOutcome{AppName: appName, Deployed: []string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallelBuilds)
	for _, route := range scan.Routes {
		route := route
		g.Go(func() error {
			name, err := s.deployRoute(gctx, req, appName, envVars, scan, route)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("function", route.Name).Str("app", appName).Msg("function deployment failed")
				outcome.Failed = append(outcome.Failed, function.FailureDetail{Name: route.Name, Reason: err.Error()})
				metrics.RecordFunctionBuild(language, "failure")
			} else {
				outcome.Deployed = append(outcome.Deployed, name)
				metrics.RecordFunctionBuild(language, "success")
			}
			return nil
		})
	}
	// Failures are folded into the outcome per function; Wait only
	// observes context cancellation.
	_ = g.Wait()

	switch {
	case len(outcome.Deployed) == 0:
		metrics.RecordDeployment("failure")
		return nil, apperr.Deployment("all_functions_failed", nil,
			"all %d functions failed to deploy for app %s", len(outcome.Failed), appName)
	case len(outcome.Failed) > 0:
		outcome.Status = function.StatusPartial
	default:
		outcome.Status = function.StatusSuccess
	}
	metrics.RecordDeployment(outcome.Status)
	return outcome, nil
}

// DeployFunction stages raw source code into an ephemeral app directory
// and runs it through the regular pipeline with direct-deploy conflict
// semantics.
func (s *Service) DeployFunction(ctx context.Context, req DirectDeployRequest) (*function.DeploymentOutcome, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, apperr.Validation("empty_code", "function code must not be empty")
	}
	language := strings.ToLower(req.Language)
	if language == "" {
		language = "python"
	}
	if _, err := s.scanners.ForLanguage(language); err != nil {
		return nil, err
	}

	appName := req.AppName
	if appName == "" {
		appName = s.counter.NextAppName(language)
	}
	appName = sanitizeAppName(appName)

	stagingDir := filepath.Join(s.cfg.TempPath, "direct_"+appName)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, apperr.FileOperation("staging_dir", err, "failed to create staging dir for %s", appName)
	}
	defer func() {
		if err := os.RemoveAll(stagingDir); err != nil {
			log.Warn().Err(err).Str("dir", stagingDir).Msg("failed to remove staging dir")
		}
	}()

	if err := os.WriteFile(filepath.Join(stagingDir, "app.py"), []byte(req.Code), 0o644); err != nil {
		return nil, apperr.FileOperation("staging_write", err, "failed to stage function code")
	}

	return s.DeployApplication(ctx, DeployRequest{
		UserID:  req.UserID,
		AppPath: stagingDir,
		AppName: appName,
		EnvVars: req.EnvVars,
		Private: req.Private,
		Direct:  true,
	})
}

// deployRoute runs the per-function pipeline under the function's
// lease. Every error is local to this route.
func (s *Service) deployRoute(ctx context.Context, req DeployRequest, appName string, envVars map[string]string, scan *analyzer.Result, route analyzer.Route) (string, error) {
	release := s.leases.Acquire(req.UserID + "/" + appName + "/" + route.Name)
	defer release()

	methods, err := function.NormalizeMethods(route.Methods)
	if err != nil {
		return "", err
	}

	exists, err := s.functions.ExistsByOwner(ctx, req.UserID, appName, route.Name)
	if err != nil {
		return "", err
	}
	if exists {
		if req.Direct {
			return "", apperr.BusinessRule("function_exists", "function %s already exists", route.Name)
		}
		if err := s.undeployExisting(ctx, req.UserID, appName, route.Name); err != nil {
			return "", err
		}
	}

	closure := s.resolver.Resolve(route, scan)
	fn := &function.Function{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		AppName:   appName,
		Name:      route.Name,
		Path:      route.Path,
		Language:  scan.Language,
		Framework: scan.Framework,
		Methods:   methods,
		EnvVars:   envVars,

		SourceText:        route.SourceText,
		Dependencies:      closure.Dependencies,
		DependencySources: closure.Sources,
		Imports:           scan.Imports,
		GlobalVars:        scan.GlobalVars,
		DBCode:            scan.DBCode,
		ConfigCode:        scan.ConfigCode,
		EnvVarRefs:        scan.EnvVarRefs,
		RequiresDB:        len(scan.DBCode) > 0 || analyzer.HasDBSignatures(route.SourceText),
		AppModule:         scan.AppModule,
	}
	fn.ImageTag = engine.ImageTag(s.imagePrefix, fn.UserID, fn.AppName, fn.Name, fn.PrimaryMethod())

	if err := s.functions.Create(ctx, fn); err != nil {
		return "", err
	}
	// Everything past persistence rolls the row back on failure so a
	// retry starts clean.
	fail := func(cause error) (string, error) {
		if delErr := s.functions.Delete(context.WithoutCancel(ctx), fn.ID); delErr != nil {
			log.Warn().Err(delErr).Str("function", fn.Name).Msg("failed to roll back function row")
		}
		return "", cause
	}

	if err := s.metrics.Init(ctx, fn.ID); err != nil {
		return fail(err)
	}
	if req.Private {
		if _, err := s.security.Toggle(ctx, fn.ID, req.UserID, true); err != nil {
			return fail(err)
		}
	}

	bc := &function.BuildContext{
		Function:      fn,
		SourceAppPath: req.AppPath,
		BuildPath:     buildDir(s.cfg.BuildPath, req.UserID, appName, fn.Name, fn.PrimaryMethod()),
		Language:      fn.Language,
		Framework:     fn.Framework,
	}
	transformer, err := s.synths.ForLanguage(fn.Language)
	if err != nil {
		return fail(err)
	}
	if err := transformer.Synthesize(ctx, bc); err != nil {
		return fail(err)
	}

	tag, err := s.engine.BuildImage(ctx, bc)
	if err != nil {
		return fail(err)
	}

	if err := s.metadata.AddFunction(req.UserID, appName, DeployedFunction{
		Name:     fn.Name,
		ImageTag: tag,
		Methods:  fn.Methods,
	}); err != nil {
		return fail(err)
	}

	log.Info().Str("function", fn.Name).Str("app", appName).Str("image", tag).Msg("function deployed")
	return fn.Name, nil
}

// UndeployFunction removes a deployed function: its image, its database
// row (metrics cascade with it), its build dir, and its metadata entry.
func (s *Service) UndeployFunction(ctx context.Context, userID, appName, name string) error {
	release := s.leases.Acquire(userID + "/" + appName + "/" + name)
	defer release()
	return s.undeployExisting(ctx, userID, appName, name)
}

func (s *Service) undeployExisting(ctx context.Context, userID, appName, name string) error {
	fn, err := s.functions.GetByOwner(ctx, userID, appName, name)
	if err != nil {
		return err
	}

	if err := s.engine.RemoveImage(ctx, fn.ImageTag); err != nil {
		log.Warn().Err(err).Str("image", fn.ImageTag).Msg("failed to remove image during undeploy")
	}
	if err := s.functions.Delete(ctx, fn.ID); err != nil {
		return err
	}
	dir := buildDir(s.cfg.BuildPath, userID, appName, name, fn.PrimaryMethod())
	if err := os.RemoveAll(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to remove build dir")
	}
	if err := s.metadata.RemoveFunction(userID, appName, name); err != nil {
		log.Warn().Err(err).Str("function", name).Msg("failed to update metadata during undeploy")
	}

	log.Info().Str("function", name).Str("app", appName).Msg("function undeployed")
	return nil
}

// buildDir is stable across redeploys so rebuilds land in the same
// place.
func buildDir(root, userID, appName, fnName, method string) string {
	return filepath.Join(root, userID, appName,
		fmt.Sprintf("%s-%s", fnName, strings.ToLower(method)))
}

// loadEnvVars merges a .env beside the app with request-supplied vars,
// request winning on conflicts.
func (s *Service) loadEnvVars(appPath string, reqVars map[string]string) map[string]string {
	merged := map[string]string{}
	if fileVars, err := godotenv.Read(filepath.Join(appPath, ".env")); err == nil {
		for k, v := range fileVars {
			merged[k] = v
		}
	}
	for k, v := range reqVars {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func validateAppPath(appPath string) error {
	if strings.TrimSpace(appPath) == "" {
		return apperr.Validation("missing_path", "application path is required")
	}
	info, err := os.Stat(appPath)
	if err != nil {
		return apperr.NotFound("app_not_found", "application path %s does not exist", appPath)
	}
	if !info.IsDir() {
		return apperr.Validation("invalid_path", "application path %s is not a directory", appPath)
	}
	return nil
}

// sanitizeAppName keeps app names filesystem and tag safe: letters,
// digits, underscore and dash, at most 50 characters, always starting
// alphanumeric.
func sanitizeAppName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "app"
	}
	if c := out[0]; !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
		out = "app_" + out
	}
	if len(out) > maxAppNameLen {
		out = out[:maxAppNameLen]
	}
	return out
}
