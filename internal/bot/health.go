package bot

import (
	"context"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthServer exposes liveness, readiness and Prometheus metrics over
// HTTP for whoever supervises the bot (systemd, a container runtime, a
// scraping Prometheus).
type HealthServer struct {
	addr  string
	ready func() bool
	log   logr.Logger
}

// NewHealthServer creates the endpoint server. ready reports whether the
// bot is consuming updates; nil means always ready.
func NewHealthServer(addr string, ready func() bool, log logr.Logger) *HealthServer {
	return &HealthServer{
		addr:  addr,
		ready: ready,
		log:   log,
	}
}

// Run serves /healthz, /readyz and /metrics until ctx is cancelled.
func (h *HealthServer) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			h.log.Error(err, "Failed to write health check response")
		}
	})

	// Readiness check endpoint
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if h.ready != nil && !h.ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("not consuming updates")); err != nil {
				h.log.Error(err, "Failed to write readiness check response")
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			h.log.Error(err, "Failed to write readiness check response")
		}
	})

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    h.addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			h.log.Error(err, "Failed to shutdown health server")
		}
	}()

	h.log.Info("Starting health server", "addr", h.addr)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
