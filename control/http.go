// control/http.go
// Author: momentics <momentics@gmail.com>
//
// Operational HTTP endpoint: liveness, readiness, prometheus scrape and
// debug probes. Runs on its own goroutine and its own port.

package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewOpsRouter mounts /healthz, /readyz, /metrics and /debug/state.
// ready may be nil, meaning always ready.
func NewOpsRouter(gatherer prometheus.Gatherer, probes *DebugProbes, ready func() bool) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(probes.DumpState())
	})
	return r
}

// OpsServer serves the ops router.
type OpsServer struct {
	srv  *http.Server
	ln   net.Listener
	addr string
	log  zerolog.Logger
}

// NewOpsServer prepares a server for addr; call Start to bind.
func NewOpsServer(addr string, handler http.Handler, logger zerolog.Logger) *OpsServer {
	return &OpsServer{
		addr: addr,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: logger.With().Str("component", "ops").Logger(),
	}
}

// Start binds synchronously and serves in the background.
func (s *OpsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("ops endpoint listening")
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("ops endpoint failed")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *OpsServer) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server gracefully.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
