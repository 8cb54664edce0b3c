package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splinter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splinter_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "splinter_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "splinter_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "splinter_db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	dbConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "splinter_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	functionInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splinter_function_invocations_total",
			Help: "Total number of function invocations",
		},
		[]string{"function", "runtime", "status"},
	)

	functionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splinter_function_duration_seconds",
			Help:    "Function execution time in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"function", "runtime"},
	)

	deploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splinter_deployments_total",
			Help: "Total number of deployment requests",
		},
		[]string{"status"},
	)

	functionBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splinter_function_builds_total",
			Help: "Total number of per-function build attempts",
		},
		[]string{"runtime", "status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func UpdateDBStats(open, inUse, idle int) {
	dbConnectionsOpen.Set(float64(open))
	dbConnectionsInUse.Set(float64(inUse))
	dbConnectionsIdle.Set(float64(idle))
}

func RecordFunctionInvocation(name, runtime, status string, duration time.Duration) {
	functionInvocations.WithLabelValues(name, runtime, status).Inc()
	functionDuration.WithLabelValues(name, runtime).Observe(duration.Seconds())
}

func RecordDeployment(status string) {
	deploymentsTotal.WithLabelValues(status).Inc()
}

func RecordFunctionBuild(runtime, status string) {
	functionBuilds.WithLabelValues(runtime, status).Inc()
}
