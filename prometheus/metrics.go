package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Container operation counter
	ContainerOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_container_operations_total",
			Help: "Total number of container operations",
		},
		[]string{"operation"}, // create, update, delete, list, get
	)

	// Assignment operation counter
	AssignmentOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_assignment_operations_total",
			Help: "Total number of company assignment operations",
		},
		[]string{"operation", "outcome"}, // assign/revoke, created/existing/deleted/noop
	)

	// Entitlement denials by reason
	EntitlementDenialCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_entitlement_denials_total",
			Help: "Total number of denied entitlement checks",
		},
		[]string{"check", "reason"}, // view/mutate/manage
	)

	// Container views by type
	ContainerViewCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_container_views_total",
			Help: "Total number of recorded container views",
		},
		[]string{"type"},
	)

	// Rate limited requests
	RateLimitedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// Authentication failures by reason
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_auth_errors_total",
			Help: "Total number of rejected authentication attempts",
		},
		[]string{"reason"},
	)

	// Login attempts by outcome
	LoginCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_logins_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"}, // success, failure
	)

	// URL health check results
	URLCheckCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_url_checks_total",
			Help: "Total number of container URL checks by resulting status",
		},
		[]string{"status"},
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // query, insert, update, delete
	)
)

// Gauge metrics
var (
	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketplace_info",
			Help: "Information about the marketplace service",
		},
		[]string{"version", "store"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(ContainerOperationCounter)
	prometheus.MustRegister(AssignmentOperationCounter)
	prometheus.MustRegister(EntitlementDenialCounter)
	prometheus.MustRegister(ContainerViewCounter)
	prometheus.MustRegister(RateLimitedCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(URLCheckCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(InfoGauge)
}

// GetPrometheusHandler returns an HTTP handler for exposing Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// SetInfo publishes the running version and store driver
func SetInfo(version, store string) {
	InfoGauge.With(prometheus.Labels{"version": version, "store": store}).Set(1)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.With(prometheus.Labels{"operation": operation}).Observe(time.Since(start).Seconds())
	}
}

// MetricsMiddleware records request count and duration per route
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			duration := time.Since(start).Seconds()
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			labels := prometheus.Labels{
				"endpoint": c.Path(),
				"method":   c.Request().Method,
				"status":   strconv.Itoa(status),
			}

			RequestDuration.With(labels).Observe(duration)
			HTTPRequestCounter.With(labels).Inc()

			return err
		}
	}
}

// RecordContainerOperation records a container operation
func RecordContainerOperation(operation string) {
	ContainerOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordAssignmentOperation records an assignment operation and its outcome
func RecordAssignmentOperation(operation, outcome string) {
	AssignmentOperationCounter.With(prometheus.Labels{"operation": operation, "outcome": outcome}).Inc()
}

// RecordDenial records a failed entitlement check
func RecordDenial(check, reason string) {
	EntitlementDenialCounter.With(prometheus.Labels{"check": check, "reason": reason}).Inc()
}

// RecordView records a container view
func RecordView(containerType string) {
	ContainerViewCounter.With(prometheus.Labels{"type": containerType}).Inc()
}

// RecordRateLimited records a rejected request
func RecordRateLimited() {
	RateLimitedCounter.Inc()
}

// RecordAuthError records a rejected authentication attempt
func RecordAuthError(reason string) {
	AuthErrorCounter.With(prometheus.Labels{"reason": reason}).Inc()
}

// RecordLogin records a login attempt
func RecordLogin(outcome string) {
	LoginCounter.With(prometheus.Labels{"outcome": outcome}).Inc()
}

// RecordURLCheck records the outcome of one URL check
func RecordURLCheck(status string) {
	URLCheckCounter.With(prometheus.Labels{"status": status}).Inc()
}
