package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/protocol"
	"github.com/Fantasim/rektrescue/internal/viewstate"
)

type assessRequest struct {
	Address string `json:"address"`
}

type assessResponse struct {
	Report models.ProtocolRiskReport `json:"report"`
	Text   string                    `json:"text"`
}

// AssessProtocols handles POST /api/protocols/assess. With no address and
// no wallet the zero address is assessed.
func AssessProtocols(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req assessRequest
		if err := decodeBody(w, r, &req); err != nil {
			slog.Warn("invalid protocol assess request", "error", err)
			writeError(w, http.StatusBadRequest, config.ErrorInvalidRequest, err.Error())
			return
		}

		addr, err := parseAddress("address", req.Address)
		if err != nil {
			writeFailure(w, err)
			return
		}

		ticket := deps.Views.Begin(viewstate.KindProtocols)
		report := deps.Protocols.Assess(r.Context(), protocol.AssessRequest{
			Address:   addr,
			Connected: deps.sessionAddress(),
			ChainID:   deps.Chain.ID,
		})
		resp := assessResponse{Report: report, Text: protocol.Text(report)}

		applicable := 0
		for _, v := range report.Verdicts() {
			if v.Status != models.VerdictNotApplicable {
				applicable++
			}
		}

		deps.Views.Commit(viewstate.KindProtocols, ticket, resp)
		elapsed := time.Since(start)
		deps.recordScan(r.Context(), models.ScanLogEntry{
			Pipeline:   metrics.PipelineProtocols,
			Owner:      report.Address.Hex(),
			Results:    applicable,
			Failures:   len(report.Verdicts()) - applicable,
			DurationMs: elapsed.Milliseconds(),
		})

		writeJSON(w, http.StatusOK, models.APIResponse{
			Data: resp,
			Meta: &models.APIMeta{
				ExecutionTime: elapsed.Milliseconds(),
				Ticket:        ticket.ID,
				Sequence:      ticket.Seq,
			},
		})
	}
}
