package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsServer exposes Registry on /metrics of its own listener.
type MetricsServer struct {
	name string
	srv  *http.Server
}

// New creates a metrics server for the named service listening on addr.
func New(name, addr string) (*MetricsServer, error) {
	mux := chi.NewRouter()
	mux.Handle("/metrics", Handler())

	return &MetricsServer{
		name: name,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
