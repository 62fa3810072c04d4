package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
)

// ProviderHealthResponse is the per-endpoint health info returned by the API.
type ProviderHealthResponse struct {
	Endpoint     string `json:"endpoint"`
	Status       string `json:"status"`
	LatencyMs    int64  `json:"latencyMs"`
	LastError    string `json:"lastError"`
	CircuitState string `json:"circuitState"`
	CheckedAt    string `json:"checkedAt"`
}

// GetProviderHealth returns a handler for GET /api/health/providers.
// Stored probe results are overlaid with the live breaker state.
func GetProviderHealth(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("provider health requested", "remoteAddr", r.RemoteAddr)

		rows, err := deps.DB.ListProviderHealth(r.Context(), deps.Chain.ID)
		if err != nil {
			slog.Error("failed to get provider health", "error", err)
			writeError(w, http.StatusInternalServerError, config.ErrorDatabase, "failed to fetch provider health")
			return
		}

		var live map[string]string
		if deps.Breakers != nil {
			live = deps.Breakers.States()
		}

		out := make([]ProviderHealthResponse, 0, len(rows))
		for _, row := range rows {
			state := row.CircuitState
			if s, ok := live[row.Endpoint]; ok {
				state = s
			}
			out = append(out, ProviderHealthResponse{
				Endpoint:     row.Endpoint,
				Status:       row.Status,
				LatencyMs:    row.LatencyMs,
				LastError:    row.LastError,
				CircuitState: state,
				CheckedAt:    row.UpdatedAt,
			})
		}

		slog.Debug("provider health response", "providerCount", len(out))

		writeJSON(w, http.StatusOK, models.APIResponse{Data: out})
	}
}
