package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Fantasim/rektrescue/internal/approvals"
	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/db"
	"github.com/Fantasim/rektrescue/internal/dust"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/protocol"
	"github.com/Fantasim/rektrescue/internal/registry"
	"github.com/Fantasim/rektrescue/internal/revoke"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/Fantasim/rektrescue/internal/viewstate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
)

var (
	testOwner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testWallet  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testToken   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testSpender = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
)

type fakeHead struct {
	latest uint64
	err    error
}

func (f fakeHead) BlockNumber(context.Context) (uint64, error) { return f.latest, f.err }

type fakeApprovals struct {
	mu     sync.Mutex
	got    []approvals.ScanRequest
	result *approvals.ScanResult
	err    error
}

func (f *fakeApprovals) Scan(_ context.Context, req approvals.ScanRequest) (*approvals.ScanResult, error) {
	f.mu.Lock()
	f.got = append(f.got, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Owner = req.Owner
	res.Range = models.BlockRange{From: req.FromBlock, To: req.ToBlock}
	return &res, nil
}

type fakeDust struct {
	result *dust.Result
	err    error
}

func (f fakeDust) Scan(_ context.Context, owner common.Address) (*dust.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Owner = owner
	return &res, nil
}

type fakeAssessor struct {
	got []protocol.AssessRequest
}

func (f *fakeAssessor) Assess(_ context.Context, req protocol.AssessRequest) models.ProtocolRiskReport {
	f.got = append(f.got, req)
	return models.ProtocolRiskReport{
		Address:      req.Target(),
		ChainID:      req.ChainID,
		NetworkLabel: "Sepolia",
		LendingPool:  models.ProtocolVerdict{Protocol: protocol.LendingPool, Status: models.VerdictNotApplicable, Message: "Aave: N/A"},
		MoneyMarket:  protocol.MoneyMarketVerdict(common.Big0, common.Big0),
		Liquidity:    protocol.LiquidityVerdict(common.Big2),
	}
}

type fakeSession struct {
	mu   sync.Mutex
	sent []common.Address
	err  error
}

func (s *fakeSession) Address() common.Address { return testWallet }
func (s *fakeSession) ChainID() uint64         { return 11155111 }

func (s *fakeSession) SignAndSend(_ context.Context, to common.Address, _ []byte) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return common.Hash{}, s.err
	}
	s.sent = append(s.sent, to)
	return common.BigToHash(common.Big1), nil
}

type staticSymbols struct{}

func (staticSymbols) Symbol(context.Context, common.Address) (string, error) { return "TKN", nil }

type fakeBreakers map[string]string

func (f fakeBreakers) States() map[string]string { return f }

// newTestDeps builds handler deps on a migrated temp database, the embedded
// registry and fakes for every chain-facing component.
func newTestDeps(t *testing.T) *Deps {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "handlers.sqlite"))
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	if err := database.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	reg, err := registry.Load("")
	if err != nil {
		t.Fatalf("registry.Load() error = %v", err)
	}

	return &Deps{
		Config:    &config.Config{ChainID: 11155111, DefaultBlockWindow: 5000},
		Version:   "test",
		DB:        database,
		Registry:  reg,
		Chain:     reg.Resolve(11155111),
		Head:      fakeHead{latest: 20000},
		Approvals: &fakeApprovals{result: &approvals.ScanResult{Queries: 3}},
		Annotator: approvals.NewAnnotator(tokens.NewSymbolCache(staticSymbols{}), reg),
		Dust:      fakeDust{result: &dust.Result{Tokens: []models.DustToken{}}},
		Protocols: &fakeAssessor{},
		Submitter: revoke.NewSubmitter(database, nil),
		Batch:     revoke.NewBatch(),
		Views:     viewstate.NewStore(),
	}
}

// newTestRouter mounts the handlers under the same paths the server uses.
func newTestRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/health", HealthHandler(deps))
	r.Get("/api/health/providers", GetProviderHealth(deps))
	r.Get("/api/chain/head", ChainHead(deps))
	r.Post("/api/approvals/scan", ScanApprovals(deps))
	r.Get("/api/approvals/latest", LatestResult(deps, viewstate.KindApprovals))
	r.Post("/api/dust/scan", ScanDust(deps))
	r.Post("/api/protocols/assess", AssessProtocols(deps))
	r.Post("/api/revoke", RevokeApproval(deps))
	r.Post("/api/actions", SubmitAction(deps))
	r.Get("/api/batch", ListBatch(deps))
	r.Post("/api/batch", AddToBatch(deps))
	r.Delete("/api/batch", ClearBatch(deps))
	r.Delete("/api/batch/{id}", RemoveFromBatch(deps))
	r.Post("/api/batch/submit", SubmitBatch(deps))
	r.Get("/api/submissions", ListSubmissions(deps))
	r.Get("/api/scans", ListScanLog(deps))
	r.Get("/api/registry/spenders/{address}", LookupSpender(deps))
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the data envelope into dst and returns the meta block.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) *models.APIMeta {
	t.Helper()

	var env struct {
		Data json.RawMessage `json:"data"`
		Meta *models.APIMeta `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
		}
	}
	return env.Meta
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body models.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != code {
		t.Errorf("code = %q, want %q (%s)", body.Error.Code, code, body.Error.Message)
	}
}

var errBoom = errors.New("boom")
