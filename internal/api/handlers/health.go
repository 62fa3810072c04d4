package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
)

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	ChainID         uint64 `json:"chainId"`
	Network         string `json:"network"`
	WalletConnected bool   `json:"walletConnected"`
	Wallet          string `json:"wallet,omitempty"`
}

// HealthHandler returns a handler for the GET /api/health endpoint.
func HealthHandler(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("health check requested", "remoteAddr", r.RemoteAddr)

		resp := healthResponse{
			Status:  "ok",
			Version: deps.Version,
			ChainID: deps.Chain.ID,
			Network: deps.Chain.Label,
		}
		if deps.Session != nil {
			resp.WalletConnected = true
			resp.Wallet = deps.Session.Address().Hex()
		}

		writeJSON(w, http.StatusOK, models.APIResponse{Data: resp})
	}
}

type chainHeadResponse struct {
	ChainID       uint64            `json:"chainId"`
	Network       string            `json:"network"`
	LatestBlock   uint64            `json:"latestBlock"`
	DefaultWindow uint64            `json:"defaultWindow"`
	DefaultRange  models.BlockRange `json:"defaultRange"`
}

// ChainHead handles GET /api/chain/head.
func ChainHead(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		latest, err := deps.Head.BlockNumber(r.Context())
		if err != nil {
			slog.Error("failed to read chain head", "error", err)
			writeError(w, http.StatusBadGateway, config.ErrorProviderUnavailable, "failed to read latest block")
			return
		}

		window := deps.Config.DefaultBlockWindow
		writeJSON(w, http.StatusOK, models.APIResponse{
			Data: chainHeadResponse{
				ChainID:       deps.Chain.ID,
				Network:       deps.Chain.Label,
				LatestBlock:   latest,
				DefaultWindow: window,
				DefaultRange:  defaultRange(latest, window),
			},
			Meta: &models.APIMeta{ExecutionTime: time.Since(start).Milliseconds()},
		})
	}
}
