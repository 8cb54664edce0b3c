package server

import (
	"net/http"

	"github.com/splinter-dev/splinter/internal/auth"
	"github.com/splinter-dev/splinter/internal/metrics"
	"github.com/splinter-dev/splinter/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	if r.server.cfg.Server.MaxBodySize > 0 {
		r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))
	}

	if r.server.cfg.Server.CORS.Enabled {
		r.Use(CORSMiddleware(r.server.cfg.Server.CORS))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	health := handlers.NewHealthHandlers(r.server.DB(), r.server.Engine(), r.server.Version())
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.HandleFunc("GET /health/live", health.Liveness)
	r.mux.HandleFunc("GET /health/ready", health.Readiness)
	r.mux.HandleFunc("GET /health/stats", health.Stats)

	r.mux.Handle("GET /metrics", metrics.Handler())

	authHandlers := handlers.NewAuthHandlers(r.server.AuthService(), r.server.loginGuard)
	r.mux.HandleFunc("POST /api/v1/auth/signup", authHandlers.Signup)
	r.mux.HandleFunc("POST /api/v1/auth/login", authHandlers.Login)
	r.mux.HandleFunc("GET /api/v1/auth/me", r.withAuth(authHandlers.Me))

	deployHandlers := handlers.NewDeployHandlers(r.server.DeployService())
	r.mux.HandleFunc("POST /api/v1/deploy", r.withAuth(deployHandlers.DeployApplication))
	r.mux.HandleFunc("POST /api/v1/deploy/function", r.withAuth(deployHandlers.DeployFunction))
	r.mux.HandleFunc("DELETE /api/v1/functions/{appName}/{functionName}", r.withAuth(deployHandlers.Undeploy))

	fnHandlers := handlers.NewFunctionHandlers(r.server.Functions(), r.server.FnMetrics(), r.server.SecurityService())
	r.mux.HandleFunc("GET /api/v1/functions", r.withAuth(fnHandlers.List))
	r.mux.HandleFunc("GET /api/v1/functions/{id}/metrics", r.withAuth(fnHandlers.Metrics))
	r.mux.HandleFunc("PUT /api/v1/functions/{id}/security", r.withAuth(fnHandlers.Security))

	// Invocation matches every HTTP method; the deployed function's own
	// method list decides what is accepted.
	invokeHandlers := handlers.NewInvokeHandlers(r.server.InvokeRouter())
	var invokeHandler http.Handler = http.HandlerFunc(invokeHandlers.Invoke)
	if r.server.rateLimiter != nil {
		invokeHandler = r.server.rateLimiter.Middleware(invokeHandler)
	}
	r.mux.Handle("/api/v1/{username}/functions/{appName}/{functionName}", invokeHandler)
}

func (r *Router) withAuth(fn http.HandlerFunc) http.HandlerFunc {
	middleware := auth.RequireAuth(r.server.AuthService())
	handler := middleware(fn)
	return handler.ServeHTTP
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
