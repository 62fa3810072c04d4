package provider

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// jsonRPCRequest is the expected JSON-RPC request body.
type jsonRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// jsonRPCError is a JSON-RPC error object.
type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// jsonRPCResponse is a generic JSON-RPC response.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// respondWith returns a handler answering every call with result or rpcErr.
func respondWith(result string, rpcErr *jsonRPCError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck

		resp := jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			resp.Result = json.RawMessage(result)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}
}

// newTestRPCProvider creates an RPCProvider connected to a mock JSON-RPC server.
func newTestRPCProvider(t *testing.T, handler http.HandlerFunc) *RPCProvider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ethclient.Dial(server.URL)
	if err != nil {
		t.Fatalf("failed to dial mock server: %v", err)
	}
	t.Cleanup(client.Close)

	return &RPCProvider{
		client: client,
		rl:     NewRateLimiter("test", 1000, nil),
		name:   EndpointName(server.URL),
	}
}

func TestRPCProvider_BlockNumber(t *testing.T) {
	p := newTestRPCProvider(t, respondWith(`"0x10"`, nil))

	n, err := p.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber() error = %v", err)
	}
	if n != 16 {
		t.Errorf("BlockNumber() = %d, want 16", n)
	}
}

func TestRPCProvider_FilterLogs(t *testing.T) {
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	logs := `[{
		"address": "0x1111111111111111111111111111111111111111",
		"topics": ["0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"],
		"data": "0x",
		"blockNumber": "0x5",
		"transactionHash": "0x0000000000000000000000000000000000000000000000000000000000000abc",
		"transactionIndex": "0x0",
		"blockHash": "0x00000000000000000000000000000000000000000000000000000000000000ff",
		"logIndex": "0x3",
		"removed": false
	}]`

	var gotMethod string
	p := newTestRPCProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
		gotMethod = req.Method
		json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(logs)}) //nolint:errcheck
	})

	got, err := p.FilterLogs(context.Background(), ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		ToBlock:   big.NewInt(10),
	})
	if err != nil {
		t.Fatalf("FilterLogs() error = %v", err)
	}
	if gotMethod != "eth_getLogs" {
		t.Errorf("method = %q, want eth_getLogs", gotMethod)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 log, got %d", len(got))
	}
	if got[0].Address != token || got[0].Index != 3 || got[0].BlockNumber != 5 {
		t.Errorf("unexpected log: %+v", got[0])
	}
}

func TestRPCProvider_HTTP429IsRateLimit(t *testing.T) {
	p := newTestRPCProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.BlockNumber(context.Background())
	if !errors.Is(err, config.ErrProviderRateLimit) {
		t.Errorf("expected ErrProviderRateLimit, got %v", err)
	}
	if !config.IsTransient(err) {
		t.Error("expected transient error")
	}
	if p.rl.Paused() <= 0 {
		t.Error("a throttled endpoint should be paused")
	}
}

func TestRPCProvider_HTTP500IsUnavailable(t *testing.T) {
	p := newTestRPCProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.BlockNumber(context.Background())
	if !errors.Is(err, config.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", err)
	}
	if !config.IsTransient(err) {
		t.Error("expected transient error")
	}
}

func TestRPCProvider_LimitExceededCode(t *testing.T) {
	p := newTestRPCProvider(t, respondWith("", &jsonRPCError{Code: -32005, Message: "limit exceeded"}))

	_, err := p.BlockNumber(context.Background())
	if !errors.Is(err, config.ErrProviderRateLimit) {
		t.Errorf("expected ErrProviderRateLimit, got %v", err)
	}
}

func TestRPCProvider_RevertIsNotTransient(t *testing.T) {
	p := newTestRPCProvider(t, respondWith("", &jsonRPCError{Code: 3, Message: "execution reverted"}))

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	_, err := p.CallContract(context.Background(), ethereum.CallMsg{To: &to}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if config.IsTransient(err) {
		t.Errorf("revert should not be transient: %v", err)
	}
}

func TestEndpointName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://sepolia.infura.io/v3/secret-key", "sepolia.infura.io"},
		{"https://eth.llamarpc.com?apikey=abc", "eth.llamarpc.com"},
		{"http://127.0.0.1:8545", "127.0.0.1:8545"},
		{"not a url", "rpc"},
	}

	for _, tt := range tests {
		if got := EndpointName(tt.url); got != tt.want {
			t.Errorf("EndpointName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
