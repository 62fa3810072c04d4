package approvals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/provider"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// ScanRequest selects the owner and the inclusive block interval to scan.
type ScanRequest struct {
	Owner     common.Address
	FromBlock uint64
	ToBlock   uint64
}

// QueryFailure records one (signature, range) log query that failed.
type QueryFailure struct {
	Signature string            `json:"signature"`
	Range     models.BlockRange `json:"range"`
	Error     string            `json:"error"`
	err       error
}

func (f QueryFailure) Unwrap() error { return f.err }

// ScanResult is the merged, deduplicated outcome of one scan.
// Failures lists the queries that were skipped; the events are still valid.
type ScanResult struct {
	Owner          common.Address
	Range          models.BlockRange
	Events         []models.ApprovalEvent
	Failures       []QueryFailure
	Queries        int
	DecodeFailures int
	Duration       time.Duration
}

// Partial reports whether some queries failed.
func (r *ScanResult) Partial() bool {
	return len(r.Failures) > 0
}

// Scanner runs the approval log pipeline against a ChainReader.
type Scanner struct {
	chain       provider.ChainReader
	batchSize   uint64
	concurrency int
	metrics     *metrics.Metrics
}

// NewScanner creates a scanner issuing log queries of at most batchSize blocks.
func NewScanner(chain provider.ChainReader, batchSize uint64, m *metrics.Metrics) *Scanner {
	return &Scanner{
		chain:       chain,
		batchSize:   batchSize,
		concurrency: config.LogQueryConcurrency,
		metrics:     m,
	}
}

type query struct {
	sig  Signature
	rng  models.BlockRange
	logs []types.Log
	err  error
}

// Scan queries every signature over every planned range, decodes what comes
// back, and merges it. A failed query or undecodable log is skipped and
// recorded; Scan itself fails only when ctx ends or every query failed.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	start := time.Now()

	if req.Owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: owner address is required", config.ErrPreconditionUnmet)
	}

	n, err := CountRanges(req.FromBlock, req.ToBlock, s.batchSize)
	if err != nil {
		return nil, err
	}
	if n > config.MaxScanRanges {
		return nil, fmt.Errorf("%w: %d sub-ranges exceeds limit of %d", config.ErrInvalidBlockRange, n, config.MaxScanRanges)
	}
	ranges, err := PlanRanges(req.FromBlock, req.ToBlock, s.batchSize)
	if err != nil {
		return nil, err
	}

	slog.Info("approval scan started",
		"owner", req.Owner.Hex(),
		"from", ranges[0].From,
		"to", ranges[len(ranges)-1].To,
		"ranges", len(ranges),
	)

	queries := make([]*query, 0, len(Signatures)*len(ranges))
	for _, sig := range Signatures {
		for _, r := range ranges {
			queries = append(queries, &query{sig: sig, rng: r})
		}
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, q := range queries {
		g.Go(func() error {
			q.logs, q.err = s.chain.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(q.rng.From),
				ToBlock:   new(big.Int).SetUint64(q.rng.To),
				Topics:    [][]common.Hash{{q.sig.Topic}, {ownerTopic(req.Owner)}},
			})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ScanResult{
		Owner:   req.Owner,
		Range:   models.BlockRange{From: ranges[0].From, To: ranges[len(ranges)-1].To},
		Queries: len(queries),
	}

	var decoded []models.ApprovalEvent
	var queryErrs []error
	for _, q := range queries {
		if q.err != nil {
			slog.Warn("log query failed, skipping range",
				"signature", q.sig.Label,
				"from", q.rng.From,
				"to", q.rng.To,
				"error", q.err,
			)
			result.Failures = append(result.Failures, QueryFailure{
				Signature: q.sig.Label,
				Range:     q.rng,
				Error:     q.err.Error(),
				err:       q.err,
			})
			queryErrs = append(queryErrs, q.err)
			continue
		}

		for _, log := range q.logs {
			if q.sig.Sibling(log) {
				slog.Debug("log belongs to sibling layout, skipping",
					"signature", q.sig.Label,
					"tx", log.TxHash.Hex(),
					"logIndex", log.Index,
				)
				continue
			}
			event, err := q.sig.Decode(log)
			if err != nil {
				slog.Warn("log decode failed, skipping",
					"signature", q.sig.Label,
					"tx", log.TxHash.Hex(),
					"logIndex", log.Index,
					"error", err,
				)
				result.DecodeFailures++
				s.metrics.DecodeFailure(q.sig.Label)
				continue
			}
			decoded = append(decoded, event)
		}
	}

	result.Duration = time.Since(start)

	if len(result.Failures) == len(queries) {
		s.metrics.ObserveScan(metrics.PipelineApprovals, metrics.ResultError, result.Duration)
		return nil, fmt.Errorf("%w: all %d log queries failed: %w", config.ErrProviderUnavailable, len(queries), errors.Join(queryErrs...))
	}

	result.Events = SortByOwner(Dedup(decoded))

	outcome := metrics.ResultOK
	if result.Partial() {
		outcome = metrics.ResultPartial
	}
	s.metrics.ObserveScan(metrics.PipelineApprovals, outcome, result.Duration)

	slog.Info("approval scan complete",
		"owner", req.Owner.Hex(),
		"queries", result.Queries,
		"failedQueries", len(result.Failures),
		"decodeFailures", result.DecodeFailures,
		"events", len(result.Events),
		"duration", result.Duration.Round(time.Millisecond),
	)

	return result, nil
}

// Dedup keeps the first event for each (txHash, logIndex). Idempotent.
func Dedup(events []models.ApprovalEvent) []models.ApprovalEvent {
	seen := make(map[models.LogKey]struct{}, len(events))
	out := make([]models.ApprovalEvent, 0, len(events))
	for _, e := range events {
		k := e.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// SortByOwner stable-sorts events by lowercase owner address in place.
func SortByOwner(events []models.ApprovalEvent) []models.ApprovalEvent {
	sort.SliceStable(events, func(i, j int) bool {
		return strings.ToLower(events[i].Owner.Hex()) < strings.ToLower(events[j].Owner.Hex())
	})
	return events
}
