package handlers

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/dust"
	"github.com/Fantasim/rektrescue/internal/models"
)

func TestScanDust(t *testing.T) {
	deps := newTestDeps(t)
	deps.Dust = fakeDust{result: &dust.Result{
		Candidates: 3,
		Dropped:    1,
		Tokens: []models.DustToken{{
			Address:  testToken,
			Balance:  big.NewInt(1),
			Raw:      "1",
			Decimals: 18,
			Symbol:   "DUST",
			Name:     "Dust Token",
			Display:  "0.000000000000000001",
		}},
	}}

	rec := do(t, newTestRouter(deps), http.MethodPost, "/api/dust/scan", map[string]string{"owner": testOwner.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var got dust.Result
	decodeData(t, rec, &got)
	if got.Owner != testOwner || len(got.Tokens) != 1 {
		t.Fatalf("result = %+v", got)
	}
	if got.Tokens[0].Display != "0.000000000000000001" || got.Tokens[0].Raw != "1" {
		t.Errorf("token = %+v", got.Tokens[0])
	}

	logs, err := deps.DB.ListScanLog(context.Background(), "dust", 10)
	if err != nil {
		t.Fatalf("ListScanLog() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Results != 1 || logs[0].Failures != 1 {
		t.Errorf("scan log = %+v", logs)
	}
}

func TestScanDust_UpstreamFailure(t *testing.T) {
	deps := newTestDeps(t)
	deps.Dust = fakeDust{err: fmt.Errorf("%w: token history: %w", config.ErrUpstreamDataUnavailable, errBoom)}
	router := newTestRouter(deps)

	rec := do(t, router, http.MethodPost, "/api/dust/scan", map[string]string{"owner": testOwner.Hex()})
	expectError(t, rec, http.StatusBadGateway, config.ErrorUpstreamDataUnavailable)

	if _, ok := deps.Views.Latest("dust"); ok {
		t.Error("failed scan must not commit a result")
	}
}

func TestScanDust_NoOwner(t *testing.T) {
	deps := newTestDeps(t)
	rec := do(t, newTestRouter(deps), http.MethodPost, "/api/dust/scan", nil)
	expectError(t, rec, http.StatusBadRequest, config.ErrorPreconditionUnmet)
}
