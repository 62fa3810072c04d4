package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/db"
	"github.com/Fantasim/rektrescue/internal/models"
)

func TestHealth(t *testing.T) {
	deps := newTestDeps(t)
	router := newTestRouter(deps)

	var got healthResponse
	rec := do(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	decodeData(t, rec, &got)
	if got.Status != "ok" || got.ChainID != 11155111 || got.Network != "Sepolia" {
		t.Errorf("health = %+v", got)
	}
	if got.WalletConnected {
		t.Error("wallet should not be connected")
	}

	deps.Session = &fakeSession{}
	decodeData(t, do(t, router, http.MethodGet, "/api/health", nil), &got)
	if !got.WalletConnected || got.Wallet != testWallet.Hex() {
		t.Errorf("health with session = %+v", got)
	}
}

func TestChainHead(t *testing.T) {
	deps := newTestDeps(t)

	var got chainHeadResponse
	rec := do(t, newTestRouter(deps), http.MethodGet, "/api/chain/head", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	decodeData(t, rec, &got)
	if got.LatestBlock != 20000 || got.DefaultWindow != 5000 {
		t.Errorf("head = %+v", got)
	}
	if got.DefaultRange != (models.BlockRange{From: 15001, To: 20000}) {
		t.Errorf("default range = %+v, want 15001..20000", got.DefaultRange)
	}
}

func TestChainHead_ProviderDown(t *testing.T) {
	deps := newTestDeps(t)
	deps.Head = fakeHead{err: errBoom}

	rec := do(t, newTestRouter(deps), http.MethodGet, "/api/chain/head", nil)
	expectError(t, rec, http.StatusBadGateway, config.ErrorProviderUnavailable)
}

func TestGetProviderHealth(t *testing.T) {
	deps := newTestDeps(t)
	router := newTestRouter(deps)

	var got []ProviderHealthResponse
	decodeData(t, do(t, router, http.MethodGet, "/api/health/providers", nil), &got)
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0 on empty table", len(got))
	}

	ctx := context.Background()
	rows := []db.ProviderHealthRow{
		{Endpoint: "rpc-a", ChainID: 11155111, Status: "healthy", LatencyMs: 12, CircuitState: "closed"},
		{Endpoint: "rpc-b", ChainID: 11155111, Status: "down", LastError: "timeout", CircuitState: "closed"},
		{Endpoint: "rpc-c", ChainID: 1, Status: "healthy", CircuitState: "closed"},
	}
	for _, row := range rows {
		if err := deps.DB.UpsertProviderHealth(ctx, row); err != nil {
			t.Fatalf("UpsertProviderHealth() error = %v", err)
		}
	}
	deps.Breakers = fakeBreakers{"rpc-b": "open"}

	rec := do(t, router, http.MethodGet, "/api/health/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	decodeData(t, rec, &got)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 for this chain", len(got))
	}
	if got[0].Endpoint != "rpc-a" || got[0].CircuitState != "closed" || got[0].LatencyMs != 12 {
		t.Errorf("rpc-a = %+v", got[0])
	}
	if got[1].CircuitState != "open" || got[1].LastError != "timeout" {
		t.Errorf("rpc-b = %+v, want live breaker state", got[1])
	}
}
