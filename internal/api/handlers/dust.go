package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/viewstate"
)

type dustScanRequest struct {
	Owner string `json:"owner"`
}

// ScanDust handles POST /api/dust/scan.
func ScanDust(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req dustScanRequest
		if err := decodeBody(w, r, &req); err != nil {
			slog.Warn("invalid dust scan request", "error", err)
			writeError(w, http.StatusBadRequest, config.ErrorInvalidRequest, err.Error())
			return
		}

		owner, err := resolveOwner(deps, req.Owner)
		if err != nil {
			writeFailure(w, err)
			return
		}

		ticket := deps.Views.Begin(viewstate.KindDust)
		slog.Info("dust scan requested", "owner", owner.Hex(), "ticket", ticket.Seq)

		result, err := deps.Dust.Scan(r.Context(), owner)
		if err != nil {
			writeFailure(w, err)
			return
		}

		deps.Views.Commit(viewstate.KindDust, ticket, result)
		deps.recordScan(r.Context(), models.ScanLogEntry{
			Pipeline:   metrics.PipelineDust,
			Owner:      owner.Hex(),
			Results:    len(result.Tokens),
			Failures:   result.Dropped,
			DurationMs: result.Duration.Milliseconds(),
		})

		writeJSON(w, http.StatusOK, models.APIResponse{
			Data: result,
			Meta: &models.APIMeta{
				ExecutionTime: time.Since(start).Milliseconds(),
				Ticket:        ticket.ID,
				Sequence:      ticket.Seq,
			},
		})
	}
}
