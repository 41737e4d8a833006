package servers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"
)

// health serves the liveness and readiness checks. Draining flips
// readiness off so load balancers stop sending secret writes.
type health struct {
	ready atomic.Bool
	log   *slog.Logger
}

func newHealth(log *slog.Logger) *health {
	h := &health{log: log}
	h.ready.Store(true)
	return h
}

func (h *health) register(r chi.Router) {
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "alive")
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !h.ready.Load() {
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	r.Get("/drain", func(w http.ResponseWriter, _ *http.Request) {
		if !h.drain() {
			writeStatus(w, http.StatusOK, "already draining")
			return
		}
		writeStatus(w, http.StatusOK, "draining")
	})
	r.Get("/undrain", func(w http.ResponseWriter, _ *http.Request) {
		if h.ready.Swap(true) {
			writeStatus(w, http.StatusOK, "already ready")
			return
		}
		h.log.Info("Server marked as ready")
		writeStatus(w, http.StatusOK, "ready")
	})
}

// drain reports whether the server was ready before the call.
func (h *health) drain() bool {
	if !h.ready.Swap(false) {
		return false
	}
	h.log.Info("Server marked as not ready")
	return true
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}
