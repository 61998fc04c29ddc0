package api

import (
	"context"
	"net/http"
	"time"

	"ntteams/ingestion/internal/models"

	"github.com/rs/zerolog/log"
)

// RateSource computes the derived per-player rates
type RateSource interface {
	ComputeRates(ctx context.Context) ([]models.PlayerRate, error)
}

// HealthChecker reports storage reachability
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handlers holds the collaborators behind the HTTP routes
type Handlers struct {
	Rates  RateSource
	Health HealthChecker
}

// NewHandlers is the constructor for the API handlers
func NewHandlers(rates RateSource, health HealthChecker) *Handlers {
	return &Handlers{
		Rates:  rates,
		Health: health,
	}
}

// RootHandler confirms the process is running.
// GET /
func (h *Handlers) RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Team stats ingestion service is running\n"))
}

// ProcessedPlayersHandler returns per-player races, WPM and accuracy over the stored history.
// GET /processed-players
func (h *Handlers) ProcessedPlayersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	rates, err := h.Rates.ComputeRates(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute processed players")
		WriteInternalServerError(w, "Failed to compute player statistics")
		return
	}

	if err := WriteJSON(w, http.StatusOK, rates); err != nil {
		log.Error().Err(err).Msg("Failed to write processed players response")
	}
}

// HealthHandler pings the database.
// GET /health
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.Health(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		_ = WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
