package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/go-chi/chi/v5"
)

// ListSubmissions handles GET /api/submissions?limit=N.
func ListSubmissions(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", config.SubmissionListMaxLimit)

		rows, err := deps.DB.ListSubmissions(r.Context(), limit)
		if err != nil {
			slog.Error("failed to list submissions", "error", err)
			writeError(w, http.StatusInternalServerError, config.ErrorDatabase, "failed to fetch submissions")
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: rows})
	}
}

// ListScanLog handles GET /api/scans?pipeline=&limit=N.
func ListScanLog(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", config.SubmissionListMaxLimit)

		rows, err := deps.DB.ListScanLog(r.Context(), r.URL.Query().Get("pipeline"), limit)
		if err != nil {
			slog.Error("failed to list scan log", "error", err)
			writeError(w, http.StatusInternalServerError, config.ErrorDatabase, "failed to fetch scan log")
			return
		}
		writeJSON(w, http.StatusOK, models.APIResponse{Data: rows})
	}
}

type spenderResponse struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Known   bool   `json:"known"`
	URL     string `json:"url"`
}

// LookupSpender handles GET /api/registry/spenders/{address}.
func LookupSpender(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := parseAddress("address", chi.URLParam(r, "address"))
		if err != nil {
			writeFailure(w, err)
			return
		}

		name, known := deps.Registry.SpenderName(addr)
		writeJSON(w, http.StatusOK, models.APIResponse{Data: spenderResponse{
			Address: addr.Hex(),
			Name:    name,
			Known:   known,
			URL:     deps.Registry.AddressURL(deps.Chain.ID, addr),
		}})
	}
}
