package dust

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// HistoryLookup discovers the token contracts an owner has interacted with.
// Its answer is untrusted; every candidate is re-read on chain.
type HistoryLookup interface {
	CandidateTokens(ctx context.Context, owner common.Address) ([]common.Address, error)
}

// TokenReader is the subset of ERC-20 reads the dust scan needs.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
	Name(ctx context.Context, token common.Address) (string, error)
}

// LinkFunc builds the explorer link for a token.
type LinkFunc func(token common.Address) string

// Scanner runs the dust balance pipeline.
type Scanner struct {
	history     HistoryLookup
	reader      TokenReader
	concurrency int
	link        LinkFunc
	metrics     *metrics.Metrics
}

// NewScanner creates a dust scanner. link may be nil.
func NewScanner(history HistoryLookup, reader TokenReader, concurrency int, link LinkFunc, m *metrics.Metrics) *Scanner {
	if concurrency < 1 {
		concurrency = config.DefaultDustConcurrency
	}
	return &Scanner{
		history:     history,
		reader:      reader,
		concurrency: concurrency,
		link:        link,
		metrics:     m,
	}
}

// Result is the outcome of one dust scan.
type Result struct {
	Owner      common.Address     `json:"owner"`
	Candidates int                `json:"candidates"`
	Dropped    int                `json:"dropped"`
	Tokens     []models.DustToken `json:"tokens"`
	Duration   time.Duration      `json:"-"`
}

// Scan lists the owner's candidate tokens and keeps those with a positive
// balance. A history failure fails the whole scan; a failed read of balance,
// decimals or symbol drops only that token.
func (s *Scanner) Scan(ctx context.Context, owner common.Address) (*Result, error) {
	start := time.Now()

	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner address is required", config.ErrPreconditionUnmet)
	}

	raw, err := s.history.CandidateTokens(ctx, owner)
	if err != nil {
		s.metrics.ObserveScan(metrics.PipelineDust, metrics.ResultError, time.Since(start))
		slog.Error("dust scan aborted, history lookup failed",
			"owner", owner.Hex(),
			"error", err,
		)
		return nil, fmt.Errorf("%w: token history: %w", config.ErrUpstreamDataUnavailable, err)
	}

	candidates := Unique(raw)
	slog.Info("dust scan started",
		"owner", owner.Hex(),
		"candidates", len(candidates),
		"duplicates", len(raw)-len(candidates),
	)

	found := make([]*models.DustToken, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, token := range candidates {
		g.Go(func() error {
			dt, err := s.read(gctx, token, owner)
			if err != nil {
				slog.Warn("token dropped from dust scan",
					"token", token.Hex(),
					"error", err,
				)
				return nil
			}
			found[i] = dt
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Owner: owner, Candidates: len(candidates), Tokens: []models.DustToken{}}
	for _, dt := range found {
		if dt == nil {
			result.Dropped++
			continue
		}
		if dt.Balance.Sign() > 0 {
			result.Tokens = append(result.Tokens, *dt)
		}
	}
	result.Duration = time.Since(start)

	outcome := metrics.ResultOK
	if result.Dropped > 0 {
		outcome = metrics.ResultPartial
	}
	s.metrics.ObserveScan(metrics.PipelineDust, outcome, result.Duration)

	slog.Info("dust scan complete",
		"owner", owner.Hex(),
		"candidates", result.Candidates,
		"dropped", result.Dropped,
		"holdings", len(result.Tokens),
		"duration", result.Duration.Round(time.Millisecond),
	)

	return result, nil
}

// read fetches one token's fields concurrently. Balance, decimals and
// symbol are mandatory; name falls back to a placeholder.
func (s *Scanner) read(ctx context.Context, token, owner common.Address) (*models.DustToken, error) {
	var (
		balance  *big.Int
		decimals uint8
		symbol   string
		name     string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		balance, err = s.reader.BalanceOf(gctx, token, owner)
		return err
	})
	g.Go(func() (err error) {
		decimals, err = s.reader.Decimals(gctx, token)
		return err
	})
	g.Go(func() (err error) {
		symbol, err = s.reader.Symbol(gctx, token)
		return err
	})
	g.Go(func() error {
		n, err := s.reader.Name(gctx, token)
		if err != nil {
			slog.Debug("token name unavailable", "token", token.Hex(), "error", err)
			n = config.TokenNamePlaceholder
		}
		name = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dt := &models.DustToken{
		Address:  token,
		Balance:  balance,
		Raw:      balance.String(),
		Decimals: decimals,
		Symbol:   symbol,
		Name:     name,
		Display:  tokens.FormatUnits(balance, decimals),
	}
	if s.link != nil {
		dt.Explorer = s.link(token)
	}
	return dt, nil
}

// Unique drops repeated addresses, keeping first-seen order. Addresses are
// compared as bytes, so checksum casing in the source never matters.
func Unique(addrs []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
