package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Fantasim/rektrescue/internal/approvals"
	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/viewstate"
	"github.com/ethereum/go-ethereum/common"
)

type approvalScanRequest struct {
	Owner     string  `json:"owner"`
	FromBlock *uint64 `json:"fromBlock"`
	ToBlock   *uint64 `json:"toBlock"`
	Window    uint64  `json:"window"`
}

type approvalScanResponse struct {
	Owner          string                     `json:"owner"`
	Network        string                     `json:"network"`
	Range          models.BlockRange          `json:"range"`
	Events         []approvals.AnnotatedEvent `json:"events"`
	Failures       []approvals.QueryFailure   `json:"failures"`
	Partial        bool                       `json:"partial"`
	Queries        int                        `json:"queries"`
	DecodeFailures int                        `json:"decodeFailures"`
}

// ScanApprovals handles POST /api/approvals/scan.
func ScanApprovals(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req approvalScanRequest
		if err := decodeBody(w, r, &req); err != nil {
			slog.Warn("invalid approval scan request", "error", err)
			writeError(w, http.StatusBadRequest, config.ErrorInvalidRequest, err.Error())
			return
		}

		owner, err := resolveOwner(deps, req.Owner)
		if err != nil {
			writeFailure(w, err)
			return
		}

		if req.Window > config.MaxBlockWindow {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidBlockRange,
				fmt.Sprintf("window must be at most %d blocks", config.MaxBlockWindow))
			return
		}

		ticket := deps.Views.Begin(viewstate.KindApprovals)

		latest, err := deps.Head.BlockNumber(r.Context())
		if err != nil {
			slog.Error("failed to read chain head for approval scan", "error", err)
			writeFailure(w, fmt.Errorf("%w: latest block: %w", config.ErrProviderUnavailable, err))
			return
		}

		window := req.Window
		if window == 0 {
			window = deps.Config.DefaultBlockWindow
		}
		rng := approvals.ResolveWindow(latest, req.FromBlock, req.ToBlock, window)

		slog.Info("approval scan requested",
			"owner", owner.Hex(),
			"from", rng.From,
			"to", rng.To,
			"latest", latest,
			"ticket", ticket.Seq,
		)

		result, err := deps.Approvals.Scan(r.Context(), approvals.ScanRequest{
			Owner:     owner,
			FromBlock: rng.From,
			ToBlock:   rng.To,
		})
		if err != nil {
			slog.Error("approval scan failed", "owner", owner.Hex(), "error", err)
			writeFailure(w, err)
			return
		}

		failures := result.Failures
		if failures == nil {
			failures = []approvals.QueryFailure{}
		}
		resp := approvalScanResponse{
			Owner:          owner.Hex(),
			Network:        deps.Chain.Label,
			Range:          result.Range,
			Events:         deps.Annotator.Annotate(r.Context(), deps.Chain.ID, result.Events),
			Failures:       failures,
			Partial:        result.Partial(),
			Queries:        result.Queries,
			DecodeFailures: result.DecodeFailures,
		}

		deps.Views.Commit(viewstate.KindApprovals, ticket, resp)
		deps.recordScan(r.Context(), models.ScanLogEntry{
			Pipeline:   metrics.PipelineApprovals,
			Owner:      owner.Hex(),
			FromBlock:  result.Range.From,
			ToBlock:    result.Range.To,
			Results:    len(resp.Events),
			Failures:   len(resp.Failures),
			DurationMs: result.Duration.Milliseconds(),
		})

		writeJSON(w, http.StatusOK, models.APIResponse{
			Data: resp,
			Meta: &models.APIMeta{
				ExecutionTime: time.Since(start).Milliseconds(),
				Ticket:        ticket.ID,
				Sequence:      ticket.Seq,
			},
		})
	}
}

// resolveOwner prefers an explicit address and falls back to the wallet session.
func resolveOwner(deps *Deps, raw string) (common.Address, error) {
	owner, err := parseAddress("owner", raw)
	if err != nil {
		return common.Address{}, err
	}
	if owner == (common.Address{}) {
		owner = deps.sessionAddress()
	}
	if owner == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no owner given and no wallet connected", config.ErrPreconditionUnmet)
	}
	return owner, nil
}

func defaultRange(latest, window uint64) models.BlockRange {
	return approvals.ResolveWindow(latest, nil, nil, window)
}
