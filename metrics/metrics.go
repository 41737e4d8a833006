// Package metrics holds the Prometheus collectors of the secret management
// service and the server exposing them.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sms"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	// SecretsAdded counts secrets persisted, by store namespace.
	SecretsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "secrets",
			Name:      "added_total",
			Help:      "Total number of secrets persisted.",
		},
		[]string{"store"},
	)

	// SecretExistenceChecks counts existence checks by store namespace and
	// cache outcome.
	SecretExistenceChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "secrets",
			Name:      "existence_checks_total",
			Help:      "Total number of secret existence checks by cache outcome.",
		},
		[]string{"store", "result"},
	)

	sessionsBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "built_total",
			Help:      "Total number of session build attempts by outcome.",
		},
		[]string{"result"},
	)

	taskCredentialsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credentials",
			Name:      "issued_total",
			Help:      "Total number of task credentials generated.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		SecretsAdded,
		SecretExistenceChecks,
		sessionsBuilt,
		taskCredentialsIssued,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordSecretAdded counts a secret persisted in store.
func RecordSecretAdded(store string) {
	SecretsAdded.WithLabelValues(store).Inc()
}

// RecordExistenceCheck counts an existence check answered by the cache (hit)
// or by the repository (miss).
func RecordExistenceCheck(store string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	SecretExistenceChecks.WithLabelValues(store, result).Inc()
}

// RecordSessionBuilt counts a session build attempt. result is "ok" or the
// kind of the error that stopped it.
func RecordSessionBuilt(result string) {
	sessionsBuilt.WithLabelValues(result).Inc()
}

// RecordTaskCredentialIssued counts a freshly generated task credential.
func RecordTaskCredentialIssued() {
	taskCredentialsIssued.Inc()
}

// InstrumentHandler wraps a chi router with HTTP metrics collection. Requests
// are labelled with the matched route pattern rather than the raw path, which
// carries addresses and keys.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
