package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// rpcLimitExceeded is the JSON-RPC code several hosted nodes use for throttling.
const rpcLimitExceeded = -32005

// RPCProvider talks to one JSON-RPC endpoint through ethclient.
type RPCProvider struct {
	client *ethclient.Client
	rl     *RateLimiter
	name   string
}

// DialRPCProvider connects to rawURL. The provider name is the URL host, so
// API keys embedded in paths or query strings never reach the logs.
func DialRPCProvider(ctx context.Context, rawURL string, rps int, m *metrics.Metrics) (*RPCProvider, error) {
	name := EndpointName(rawURL)

	slog.Info("rpc provider connecting", "endpoint", name)

	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", name, err)
	}

	return &RPCProvider{
		client: client,
		rl:     NewRateLimiter(name, rps, m),
		name:   name,
	}, nil
}

// EndpointName reduces an RPC URL to its host.
func EndpointName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "rpc"
	}
	return u.Host
}

func (p *RPCProvider) Name() string { return p.name }

// Close closes the underlying ethclient connection.
func (p *RPCProvider) Close() {
	p.client.Close()
	slog.Info("rpc provider closed", "endpoint", p.name)
}

func (p *RPCProvider) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel, err := p.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := p.client.BlockNumber(ctx)
	if err != nil {
		return 0, p.wrap("eth_blockNumber", err)
	}
	return n, nil
}

func (p *RPCProvider) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	logs, err := p.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, p.wrap("eth_getLogs", err)
	}

	slog.Debug("rpc logs fetched",
		"endpoint", p.name,
		"from", q.FromBlock,
		"to", q.ToBlock,
		"count", len(logs),
	)
	return logs, nil
}

func (p *RPCProvider) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	out, err := p.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, p.wrap("eth_call", err)
	}
	return out, nil
}

func (p *RPCProvider) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ctx, cancel, err := p.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	nonce, err := p.client.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, p.wrap("eth_getTransactionCount", err)
	}
	return nonce, nil
}

func (p *RPCProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	price, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, p.wrap("eth_gasPrice", err)
	}
	return price, nil
}

func (p *RPCProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ctx, cancel, err := p.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	gas, err := p.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, p.wrap("eth_estimateGas", err)
	}
	return gas, nil
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	ctx, cancel, err := p.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := p.client.SendTransaction(ctx, tx); err != nil {
		return p.wrap("eth_sendRawTransaction", err)
	}
	return nil
}

// begin waits for the rate limiter and applies the per-request timeout.
func (p *RPCProvider) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := p.rl.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, config.ProviderRequestTimeout)
	return ctx, cancel, nil
}

// wrap maps a client error onto the provider taxonomy. Transport failures,
// throttling and 5xx responses are transient so the pool can fail over.
// A JSON-RPC error means the node answered; it is returned as-is for the caller.
func (p *RPCProvider) wrap(method string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			p.rl.Backoff(0)
			return config.NewTransientError(fmt.Errorf("%s %s: %w: %v", p.name, method, config.ErrProviderRateLimit, err))
		}
		return config.NewTransientError(fmt.Errorf("%s %s: %w: %v", p.name, method, config.ErrProviderUnavailable, err))
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		if rpcErr.ErrorCode() == rpcLimitExceeded || isRateLimitMessage(rpcErr.Error()) {
			p.rl.Backoff(0)
			return config.NewTransientError(fmt.Errorf("%s %s: %w: %v", p.name, method, config.ErrProviderRateLimit, err))
		}
		return fmt.Errorf("%s %s: %w", p.name, method, err)
	}

	return config.NewTransientError(fmt.Errorf("%s %s: %w: %v", p.name, method, config.ErrProviderUnavailable, err))
}

func isRateLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit")
}
