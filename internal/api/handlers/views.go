package handlers

import (
	"net/http"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/viewstate"
)

// LatestResult handles GET /api/{kind}/latest: the last committed scan of kind.
func LatestResult(deps *Deps, kind viewstate.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := deps.Views.Latest(kind)
		if !ok {
			writeError(w, http.StatusNotFound, config.ErrorNotFound, "no "+string(kind)+" scan has completed yet")
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{
			Data: snap.Value,
			Meta: &models.APIMeta{Ticket: snap.Ticket.ID, Sequence: snap.Ticket.Seq},
		})
	}
}
