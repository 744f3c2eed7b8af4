package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/glimpsed/internal/config"
	"github.com/dokzlo13/glimpsed/internal/ledger"
	"github.com/dokzlo13/glimpsed/internal/trigger"
)

// StateProvider reports the trigger phase. *trigger.Machine satisfies it.
type StateProvider interface {
	State() trigger.State
}

// CaptureHistory lists finished cycles. *ledger.Ledger satisfies it.
type CaptureHistory interface {
	RecentCaptures(limit int) ([]ledger.Capture, error)
}

const (
	defaultCapturesLimit = 20
	maxCapturesLimit     = 200
)

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg     *config.Config
	state   StateProvider
	history CaptureHistory
	server  *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, state StateProvider, history CaptureHistory) *HealthService {
	return &HealthService{
		cfg:     cfg,
		state:   state,
		history: history,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler returns the HTTP routes.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Ready once the device loop is watching the sensors
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		state := s.state.State()
		status, code := "ready", http.StatusOK
		if state == trigger.StateIdle {
			status, code = "starting", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"status": status, "state": state.String()})
	})

	mux.HandleFunc("/captures", s.handleCaptures)

	return mux
}

func (s *HealthService) handleCaptures(w http.ResponseWriter, r *http.Request) {
	limit := defaultCapturesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxCapturesLimit)
	}

	captures, err := s.history.RecentCaptures(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read capture history")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"captures": captures})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.GetHost(), s.cfg.Healthcheck.GetPort())

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
