package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Endpoint is one named backend the pool can route calls to.
type Endpoint interface {
	ChainReader
	TxBackend
	Name() string
}

// Pool spreads calls across endpoints in round-robin order, with a circuit
// breaker per endpoint and failover on transient errors.
type Pool struct {
	endpoints []Endpoint
	breakers  []*CircuitBreaker // one per endpoint, same index
	current   atomic.Uint32
	metrics   *metrics.Metrics
}

// NewPool creates a pool over at least one endpoint.
func NewPool(m *metrics.Metrics, endpoints ...Endpoint) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no rpc endpoints configured", config.ErrInvalidConfig)
	}

	names := make([]string, len(endpoints))
	breakers := make([]*CircuitBreaker, len(endpoints))
	for i, e := range endpoints {
		names[i] = e.Name()
		breakers[i] = NewCircuitBreaker(e.Name(), config.CircuitBreakerThreshold, config.CircuitBreakerCooldown)
		breakers[i].OnTrip(m.BreakerTrip)
	}

	slog.Info("provider pool created",
		"endpoints", names,
		"count", len(endpoints),
	)

	return &Pool{
		endpoints: endpoints,
		breakers:  breakers,
		metrics:   m,
	}, nil
}

func (p *Pool) nextIndex() int {
	idx := p.current.Add(1)
	return int((idx - 1) % uint32(len(p.endpoints)))
}

// States returns each endpoint's breaker state keyed by endpoint name.
func (p *Pool) States() map[string]string {
	out := make(map[string]string, len(p.endpoints))
	for i, e := range p.endpoints {
		out[e.Name()] = p.breakers[i].State()
	}
	return out
}

// call runs fn against endpoints until one succeeds or a non-transient error occurs.
func call[T any](ctx context.Context, p *Pool, method string, fn func(Endpoint) (T, error)) (T, error) {
	var zero T
	var allErrors []error

	for range len(p.endpoints) {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		idx := p.nextIndex()
		endpoint := p.endpoints[idx]
		cb := p.breakers[idx]

		if !cb.Allow() {
			slog.Debug("circuit breaker open, skipping endpoint",
				"endpoint", endpoint.Name(),
				"method", method,
				"state", cb.State(),
			)
			allErrors = append(allErrors, fmt.Errorf("%s: %w", endpoint.Name(), config.ErrCircuitOpen))
			continue
		}

		result, err := fn(endpoint)
		if err == nil {
			cb.RecordSuccess()
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, err
		}

		if !config.IsTransient(err) && !errors.Is(err, config.ErrProviderRateLimit) {
			// The endpoint answered; the call itself failed.
			return zero, fmt.Errorf("%w: %w", config.ErrProviderUnavailable, err)
		}

		cb.RecordFailure()
		p.metrics.ProviderFailure(endpoint.Name())
		allErrors = append(allErrors, err)

		slog.Warn("endpoint failed, trying next",
			"endpoint", endpoint.Name(),
			"method", method,
			"circuitState", cb.State(),
			"consecutiveFailures", cb.ConsecutiveFailures(),
			"error", err,
		)
	}

	return zero, fmt.Errorf("%s: %w: %w: %w", method, config.ErrAllProvidersFailed, config.ErrProviderUnavailable, errors.Join(allErrors...))
}

func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	return call(ctx, p, "eth_blockNumber", func(e Endpoint) (uint64, error) {
		return e.BlockNumber(ctx)
	})
}

func (p *Pool) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return call(ctx, p, "eth_getLogs", func(e Endpoint) ([]types.Log, error) {
		return e.FilterLogs(ctx, q)
	})
}

func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, p, "eth_call", func(e Endpoint) ([]byte, error) {
		return e.CallContract(ctx, msg, blockNumber)
	})
}

func (p *Pool) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return call(ctx, p, "eth_getTransactionCount", func(e Endpoint) (uint64, error) {
		return e.PendingNonceAt(ctx, account)
	})
}

func (p *Pool) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return call(ctx, p, "eth_gasPrice", func(e Endpoint) (*big.Int, error) {
		return e.SuggestGasPrice(ctx)
	})
}

func (p *Pool) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return call(ctx, p, "eth_estimateGas", func(e Endpoint) (uint64, error) {
		return e.EstimateGas(ctx, msg)
	})
}

// SendTransaction submits through a single endpoint. A failed broadcast is
// reported to the caller, never replayed on another endpoint.
func (p *Pool) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	for range len(p.endpoints) {
		idx := p.nextIndex()
		if !p.breakers[idx].Allow() {
			continue
		}
		endpoint := p.endpoints[idx]

		err := endpoint.SendTransaction(ctx, tx)
		if err != nil {
			if config.IsTransient(err) {
				p.breakers[idx].RecordFailure()
				p.metrics.ProviderFailure(endpoint.Name())
			}
			return err
		}
		p.breakers[idx].RecordSuccess()
		return nil
	}
	return fmt.Errorf("eth_sendRawTransaction: %w: %w", config.ErrAllProvidersFailed, config.ErrCircuitOpen)
}
