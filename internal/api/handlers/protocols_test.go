package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/ethereum/go-ethereum/common"
)

func TestAssessProtocols(t *testing.T) {
	deps := newTestDeps(t)
	deps.Session = &fakeSession{}
	assessor := deps.Protocols.(*fakeAssessor)

	rec := do(t, newTestRouter(deps), http.MethodPost, "/api/protocols/assess", map[string]string{"address": testOwner.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var got assessResponse
	decodeData(t, rec, &got)

	req := assessor.got[0]
	if req.Address != testOwner || req.Connected != testWallet || req.ChainID != 11155111 {
		t.Errorf("assess request = %+v", req)
	}
	if got.Report.Address != testOwner {
		t.Errorf("report address = %s, want explicit address", got.Report.Address.Hex())
	}
	if got.Report.Liquidity.Status != models.VerdictPositionsFound {
		t.Errorf("liquidity = %+v", got.Report.Liquidity)
	}
	for _, want := range []string{"Aave: N/A", "Uniswap: 2 LP NFTs found."} {
		if !strings.Contains(got.Text, want) {
			t.Errorf("text missing %q:\n%s", want, got.Text)
		}
	}
}

func TestAssessProtocols_NoAddressNoWallet(t *testing.T) {
	deps := newTestDeps(t)
	assessor := deps.Protocols.(*fakeAssessor)

	rec := do(t, newTestRouter(deps), http.MethodPost, "/api/protocols/assess", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if assessor.got[0].Target() != (common.Address{}) {
		t.Errorf("target = %s, want zero address", assessor.got[0].Target().Hex())
	}
}

func TestAssessProtocols_BadAddress(t *testing.T) {
	deps := newTestDeps(t)
	rec := do(t, newTestRouter(deps), http.MethodPost, "/api/protocols/assess", map[string]string{"address": "nope"})
	expectError(t, rec, http.StatusBadRequest, config.ErrorInvalidAddress)
}
