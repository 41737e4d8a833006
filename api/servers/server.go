package servers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ruteri/tee-secret-management-backend/api"
	"github.com/ruteri/tee-secret-management-backend/common"
	"github.com/ruteri/tee-secret-management-backend/metrics"
)

// RouteRegistrar is implemented by the API handlers.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Server runs the secret management API next to a metrics listener.
type Server struct {
	cfg    *api.HTTPServerConfig
	log    *slog.Logger
	health *health

	apiSrv     *http.Server
	metricsSrv *metrics.MetricsServer
	limiter    *rateLimiter
}

func New(cfg *api.HTTPServerConfig, handler RouteRegistrar) (*Server, error) {
	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:        cfg,
		log:        cfg.Log,
		health:     newHealth(cfg.Log),
		metricsSrv: metricsSrv,
	}
	if cfg.WriteRateLimit > 0 {
		srv.limiter, err = newRateLimiter(cfg.WriteRateLimit, cfg.WriteRateBurst, defaultLimiterCacheSize)
		if err != nil {
			return nil, err
		}
	}

	srv.apiSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.routes(handler),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

func (srv *Server) routes(handler RouteRegistrar) http.Handler {
	logged := func(next http.Handler) http.Handler {
		return httplogger.LoggingMiddlewareSlog(srv.log, next)
	}

	mux := chi.NewRouter()
	mux.Use(metrics.InstrumentHandler)

	mux.Group(func(r chi.Router) {
		r.Use(logged)
		if srv.limiter != nil {
			r.Use(srv.limiter.middleware(srv.log))
		}
		handler.RegisterRoutes(r)
	})

	mux.Group(func(r chi.Router) {
		r.Use(logged)
		srv.health.register(r)
	})

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

// RunInBackground starts the API listener and, when configured, the
// metrics listener. Listen errors are logged.
func (srv *Server) RunInBackground() {
	if srv.cfg.MetricsAddr != "" {
		go srv.serve("metrics", srv.cfg.MetricsAddr, srv.metricsSrv.ListenAndServe)
	}
	go srv.serve("api", srv.cfg.ListenAddr, srv.apiSrv.ListenAndServe)
}

func (srv *Server) serve(name, addr string, listen func() error) {
	srv.log.Info("Starting HTTP server", "server", name, "listenAddress", addr)
	if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		srv.log.Error("HTTP server failed", "server", name, "err", err)
	}
}

// Shutdown marks the server not ready, waits DrainDuration for load
// balancers to notice, then stops both listeners.
func (srv *Server) Shutdown() {
	if srv.health.drain() && srv.cfg.DrainDuration > 0 {
		srv.log.Info("Draining before shutdown", "duration", srv.cfg.DrainDuration)
		time.Sleep(srv.cfg.DrainDuration)
	}

	srv.stop("api", srv.apiSrv.Shutdown)
	if srv.cfg.MetricsAddr != "" {
		srv.stop("metrics", srv.metricsSrv.Shutdown)
	}
}

func (srv *Server) stop(name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "server", name, "err", err)
		return
	}
	srv.log.Info("HTTP server gracefully stopped", "server", name)
}
