// Package admin serves the operator HTTP endpoints: health, Prometheus
// metrics, the loaded key directory and the supported command list.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/go_atalla/internal/dispatch"
	"github.com/andrei-cloud/go_atalla/internal/hsm"
)

// Config configures the admin server.
type Config struct {
	Address  string
	HSM      *hsm.HSM
	Registry *dispatch.Registry
	// Gatherer backs /metrics; nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server is the admin HTTP server.
type Server struct {
	server   *http.Server
	hsm      *hsm.HSM
	registry *dispatch.Registry
	gatherer prometheus.Gatherer
	started  time.Time
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status               string `json:"status"`
	MasterKeyCheckDigits string `json:"master_key_check_digits"`
	KeyDirectoryEntries  int    `json:"key_directory_entries"`
	UptimeSeconds        int64  `json:"uptime_seconds"`
}

// CommandResponse is one /commands entry.
type CommandResponse struct {
	Code         string `json:"code"`
	ResponseCode string `json:"response_code"`
	Description  string `json:"description"`
}

// New creates the admin server.
func New(cfg Config) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	registry := cfg.Registry
	if registry == nil {
		registry = dispatch.DefaultRegistry()
	}

	s := &Server{
		hsm:      cfg.HSM,
		registry: registry,
		gatherer: gatherer,
		started:  time.Now(),
	}
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the admin routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Get("/keys", s.keysHandler)
	r.Get("/commands", s.commandsHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	log.Info().Str("address", s.server.Addr).Msg("admin server started")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start admin server: %w", err)
	}

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown admin server: %w", err)
	}

	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	snap := s.hsm.Snapshot()
	writeJSON(w, HealthResponse{
		Status:               "ok",
		MasterKeyCheckDigits: snap.MasterKeyCheckDigits(),
		KeyDirectoryEntries:  len(snap.Keys),
		UptimeSeconds:        int64(time.Since(s.started).Seconds()),
	}, http.StatusOK)
}

func (s *Server) keysHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.hsm.Snapshot().Directory(), http.StatusOK)
}

func (s *Server) commandsHandler(w http.ResponseWriter, _ *http.Request) {
	list := s.registry.List()
	out := make([]CommandResponse, 0, len(list))
	for _, info := range list {
		out = append(out, CommandResponse{
			Code:         info.Code,
			ResponseCode: info.ResponseCode,
			Description:  info.Description,
		})
	}
	writeJSON(w, out, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}
