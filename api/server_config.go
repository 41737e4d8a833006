package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the secret management API server.
type HTTPServerConfig struct {
	// ListenAddr serves the secret and session routes.
	ListenAddr string
	// MetricsAddr serves /metrics. Empty disables the metrics listener.
	MetricsAddr string
	// EnablePprof mounts net/http/pprof under /debug.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /readyz reports not-ready before the
	// listener closes on shutdown.
	DrainDuration time.Duration
	// GracefulShutdownDuration bounds the wait for in-flight secret writes
	// and session builds.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// WriteRateLimit is the sustained rate of secret writes and session
	// requests per second from one remote host. Zero disables the limiter.
	WriteRateLimit float64
	// WriteRateBurst is how many writes one host may send at once.
	WriteRateBurst int
}
