package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server answers liveness checks and serves Prometheus metrics.
type Server struct {
	addr   string
	router *mux.Router
	logger *zap.Logger
}

// NewServer builds the router. gatherer may be nil to omit /metrics.
func NewServer(logger *zap.Logger, addr string, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		addr:   addr,
		router: mux.NewRouter(),
		logger: logger.With(zap.String("component", "HealthServer")),
	}

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	for _, path := range []string{"/", "/health"} {
		s.router.HandleFunc(path, s.status).Methods(http.MethodGet, http.MethodPost)
		s.router.HandleFunc(path, preflight).Methods(http.MethodOptions)
	}
	s.router.MethodNotAllowedHandler = http.HandlerFunc(notAllowed)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Health server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "health server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown health server")
	}
	return nil
}

func corsHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "OPTIONS, POST, GET")
	h.Set("Access-Control-Max-Age", "2592000")
	h.Set("Content-Type", "application/json")
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	corsHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "OK"}); err != nil {
		s.logger.Debug("Failed to write health response", zap.Error(err))
	}
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	corsHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func notAllowed(w http.ResponseWriter, r *http.Request) {
	corsHeaders(w)
	w.WriteHeader(http.StatusMethodNotAllowed)
	fmt.Fprintf(w, "%s is not allowed for the request.", r.Method)
}
