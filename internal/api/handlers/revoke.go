package handlers

import (
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/revoke"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

type revokeRequest struct {
	Kind     models.ApprovalKind `json:"kind"`
	Token    string              `json:"token"`
	Spender  string              `json:"spender"`
	Operator string              `json:"operator"`
	TokenID  string              `json:"tokenId"`
}

type submitResponse struct {
	TxHash string `json:"txHash"`
	TxURL  string `json:"txUrl"`
}

// event rebuilds the approval the caller wants cleared.
func (req revokeRequest) event(owner common.Address) (models.ApprovalEvent, error) {
	token, err := parseAddress("token", req.Token)
	if err != nil {
		return models.ApprovalEvent{}, err
	}
	ev := models.ApprovalEvent{Token: token, Owner: owner}

	switch req.Kind {
	case models.KindFungible:
		spender, err := parseAddress("spender", req.Spender)
		if err != nil {
			return models.ApprovalEvent{}, err
		}
		ev.Approval = models.FungibleApproval{Spender: spender, Amount: new(big.Int)}
	case models.KindNonFungible:
		id, err := parseTokenID(req.TokenID)
		if err != nil {
			return models.ApprovalEvent{}, err
		}
		ev.Approval = models.NonFungibleApproval{TokenID: id}
	case models.KindBlanket:
		operator, err := parseAddress("operator", req.Operator)
		if err != nil {
			return models.ApprovalEvent{}, err
		}
		ev.Approval = models.BlanketApproval{Operator: operator, Approved: true}
	default:
		return models.ApprovalEvent{}, fmt.Errorf("%w: approval kind %q", config.ErrUnsupportedAction, req.Kind)
	}
	return ev, nil
}

// parseTokenID accepts a decimal or 0x-prefixed hex uint256.
func parseTokenID(raw string) (*big.Int, error) {
	s, base := strings.TrimSpace(raw), 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, fmt.Errorf("%w: invalid token id %q", config.ErrPreconditionUnmet, raw)
	}
	return id, nil
}

// RevokeApproval handles POST /api/revoke.
func RevokeApproval(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeRequest
		if err := decodeBody(w, r, &req); err != nil {
			slog.Warn("invalid revoke request", "error", err)
			writeError(w, http.StatusBadRequest, config.ErrorInvalidRequest, err.Error())
			return
		}

		event, err := req.event(deps.sessionAddress())
		if err != nil {
			writeFailure(w, err)
			return
		}

		slog.Info("revoke requested",
			"kind", req.Kind,
			"token", event.Token.Hex(),
			"spender", event.Spender().Hex(),
		)

		hash, err := deps.Submitter.Revoke(r.Context(), deps.Session, event)
		if err != nil {
			writeFailure(w, err)
			return
		}

		writeJSON(w, http.StatusOK, models.APIResponse{Data: deps.submitted(hash)})
	}
}

// SubmitAction handles POST /api/actions: one manual approve, revoke or transfer.
func SubmitAction(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var action revoke.Action
		if err := decodeBody(w, r, &action); err != nil {
			slog.Warn("invalid action request", "error", err)
			writeError(w, http.StatusBadRequest, config.ErrorInvalidRequest, err.Error())
			return
		}

		slog.Info("manual action requested", "kind", action.Kind, "token", action.Token.Hex())

		hash, err := deps.Submitter.Submit(r.Context(), deps.Session, action)
		if err != nil {
			writeFailure(w, err)
			return
		}

		writeJSON(w, http.StatusOK, models.APIResponse{Data: deps.submitted(hash)})
	}
}

func (d *Deps) submitted(hash common.Hash) submitResponse {
	resp := submitResponse{TxHash: hash.Hex()}
	if d.Registry != nil {
		resp.TxURL = d.Registry.TxURL(d.Chain.ID, hash)
	}
	return resp
}

type batchAddRequest struct {
	Label  string        `json:"label"`
	Action revoke.Action `json:"action"`
}

// ListBatch handles GET /api/batch.
func ListBatch(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.APIResponse{Data: deps.Batch.List()})
	}
}

// AddToBatch handles POST /api/batch. The action is validated before it is queued.
func AddToBatch(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchAddRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, config.ErrorInvalidRequest, err.Error())
			return
		}

		// Any non-zero sender works for shape validation.
		probe := deps.sessionAddress()
		if probe == (common.Address{}) {
			probe = common.HexToAddress("0x0000000000000000000000000000000000000001")
		}
		if _, err := req.Action.Calldata(probe); err != nil {
			writeFailure(w, err)
			return
		}

		label := strings.TrimSpace(req.Label)
		if label == "" {
			label = string(req.Action.Kind)
		}
		item := deps.Batch.Add(label, req.Action)

		slog.Info("action queued", "id", item.ID, "kind", item.Action.Kind, "queued", len(deps.Batch.List()))
		writeJSON(w, http.StatusCreated, models.APIResponse{Data: item})
	}
}

// RemoveFromBatch handles DELETE /api/batch/{id}.
func RemoveFromBatch(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !deps.Batch.Remove(id) {
			writeError(w, http.StatusNotFound, config.ErrorNotFound, "no queued action with id "+id)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ClearBatch handles DELETE /api/batch.
func ClearBatch(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Batch.Clear()
		slog.Info("action batch cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

type batchSubmitResponse struct {
	Results   []revoke.BatchResult `json:"results"`
	Submitted int                  `json:"submitted"`
	Failed    int                  `json:"failed"`
	Remaining int                  `json:"remaining"`
}

// SubmitBatch handles POST /api/batch/submit.
func SubmitBatch(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if deps.Session == nil {
			writeError(w, http.StatusBadRequest, config.ErrorPreconditionUnmet, "no wallet session")
			return
		}

		results, err := deps.Batch.SubmitAll(r.Context(), deps.Submitter, deps.Session)
		if err != nil {
			writeFailure(w, err)
			return
		}
		resp := batchSubmitResponse{Results: results, Remaining: len(deps.Batch.List())}
		for _, res := range results {
			if res.Error != "" {
				resp.Failed++
			} else {
				resp.Submitted++
			}
		}

		slog.Info("action batch submitted",
			"submitted", resp.Submitted,
			"failed", resp.Failed,
			"remaining", resp.Remaining,
		)

		writeJSON(w, http.StatusOK, models.APIResponse{
			Data: resp,
			Meta: &models.APIMeta{ExecutionTime: time.Since(start).Milliseconds()},
		})
	}
}
