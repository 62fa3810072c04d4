package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/provider"
	"github.com/Fantasim/rektrescue/internal/registry"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Protocol names as shown in verdicts.
const (
	LendingPool      = "Aave"
	MoneyMarket      = "Compound"
	LiquidityManager = "Uniswap"
)

var healthFactorThreshold = decimal.RequireFromString(config.HealthFactorRiskThreshold)

// Deployments resolves the protocol contracts for a chain.
type Deployments interface {
	Resolve(chainID uint64) registry.Chain
}

// AssessRequest names the address to check. Address wins over Connected;
// with neither, the zero address is assessed.
type AssessRequest struct {
	Address   common.Address
	Connected common.Address
	ChainID   uint64
}

// Target returns the address the three reads are issued for.
func (r AssessRequest) Target() common.Address {
	if r.Address != (common.Address{}) {
		return r.Address
	}
	return r.Connected
}

// Assessor runs the protocol risk reads.
type Assessor struct {
	chain       provider.ChainReader
	deployments Deployments
	metrics     *metrics.Metrics
}

func NewAssessor(chain provider.ChainReader, deployments Deployments, m *metrics.Metrics) *Assessor {
	return &Assessor{chain: chain, deployments: deployments, metrics: m}
}

// Assess issues the three protocol reads concurrently. Each read fails on
// its own: a failure leaves that verdict not applicable.
func (a *Assessor) Assess(ctx context.Context, req AssessRequest) models.ProtocolRiskReport {
	start := time.Now()
	target := req.Target()
	chain := a.deployments.Resolve(req.ChainID)

	report := models.ProtocolRiskReport{
		Address:      target,
		ChainID:      chain.ID,
		NetworkLabel: chain.Label,
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		report.LendingPool = a.lendingPool(ctx, chain.LendingPool, target)
	}()
	go func() {
		defer wg.Done()
		report.MoneyMarket = a.moneyMarket(ctx, chain.MoneyMarket, target)
	}()
	go func() {
		defer wg.Done()
		report.Liquidity = a.liquidity(ctx, chain.LiquidityManager, target)
	}()
	wg.Wait()

	failed := 0
	for _, v := range report.Verdicts() {
		if v.Status == models.VerdictNotApplicable {
			failed++
		}
	}
	outcome := metrics.ResultOK
	switch {
	case failed == 3:
		outcome = metrics.ResultError
	case failed > 0:
		outcome = metrics.ResultPartial
	}
	a.metrics.ObserveScan(metrics.PipelineProtocols, outcome, time.Since(start))

	slog.Info("protocol risk assessed",
		"address", target.Hex(),
		"chainID", chain.ID,
		"network", chain.Label,
		"lendingPool", report.LendingPool.Status,
		"moneyMarket", report.MoneyMarket.Status,
		"liquidity", report.Liquidity.Status,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return report
}

func notApplicable(protocol string) models.ProtocolVerdict {
	return models.ProtocolVerdict{
		Protocol: protocol,
		Status:   models.VerdictNotApplicable,
		Message:  protocol + ": N/A",
	}
}

func (a *Assessor) read(ctx context.Context, protocol string, contract common.Address, parsed abi.ABI, method string, target common.Address) ([]interface{}, bool) {
	if contract == (common.Address{}) {
		slog.Debug("protocol not deployed on chain, skipping", "protocol", protocol)
		return nil, false
	}
	values, err := tokens.Call(ctx, a.chain, contract, parsed, method, target)
	if err != nil {
		slog.Warn("protocol read failed",
			"protocol", protocol,
			"contract", contract.Hex(),
			"method", method,
			"error", err,
		)
		return nil, false
	}
	return values, true
}

func (a *Assessor) lendingPool(ctx context.Context, contract, target common.Address) models.ProtocolVerdict {
	values, ok := a.read(ctx, LendingPool, contract, lendingPoolABI, "getUserAccountData", target)
	if !ok || len(values) != 6 {
		return notApplicable(LendingPool)
	}
	raw, ok := values[5].(*big.Int)
	if !ok {
		return notApplicable(LendingPool)
	}
	return LendingPoolVerdict(raw)
}

// LendingPoolVerdict grades a raw 18-decimal health factor. Below 1.1 is a
// liquidation risk; 1.1 itself is healthy.
func LendingPoolVerdict(raw *big.Int) models.ProtocolVerdict {
	hf := decimal.NewFromBigInt(raw, -config.HealthFactorDecimals)
	shown := hf.StringFixed(config.HealthFactorDisplayDecimals)

	v := models.ProtocolVerdict{Protocol: LendingPool, HealthFactor: shown}
	if hf.LessThan(healthFactorThreshold) {
		v.Status = models.VerdictLiquidationRisk
		v.Message = "Aave: Liquidation risk. Health Factor: " + shown
	} else {
		v.Status = models.VerdictHealthy
		v.Message = "Aave: Healthy. Health Factor: " + shown
	}
	return v
}

func (a *Assessor) moneyMarket(ctx context.Context, contract, target common.Address) models.ProtocolVerdict {
	values, ok := a.read(ctx, MoneyMarket, contract, moneyMarketABI, "getAccountLiquidity", target)
	if !ok || len(values) != 3 {
		return notApplicable(MoneyMarket)
	}
	liquidity, ok1 := values[1].(*big.Int)
	shortfall, ok2 := values[2].(*big.Int)
	if !ok1 || !ok2 {
		return notApplicable(MoneyMarket)
	}
	return MoneyMarketVerdict(liquidity, shortfall)
}

// MoneyMarketVerdict grades an account's liquidity and shortfall. Any
// shortfall wins over liquidity.
func MoneyMarketVerdict(liquidity, shortfall *big.Int) models.ProtocolVerdict {
	v := models.ProtocolVerdict{Protocol: MoneyMarket}
	switch {
	case shortfall.Sign() > 0:
		v.Status = models.VerdictUndercollateralized
		v.Message = "Compound: Undercollateralized!"
	case liquidity.Sign() > 0:
		v.Status = models.VerdictHealthy
		v.Message = "Compound: Healthy."
	default:
		v.Status = models.VerdictNoPosition
		v.Message = "Compound: No active position."
	}
	return v
}

func (a *Assessor) liquidity(ctx context.Context, contract, target common.Address) models.ProtocolVerdict {
	values, ok := a.read(ctx, LiquidityManager, contract, liquidityManagerABI, "balanceOf", target)
	if !ok || len(values) != 1 {
		return notApplicable(LiquidityManager)
	}
	count, ok := values[0].(*big.Int)
	if !ok {
		return notApplicable(LiquidityManager)
	}
	return LiquidityVerdict(count)
}

// LiquidityVerdict reports how many position NFTs the address holds.
func LiquidityVerdict(count *big.Int) models.ProtocolVerdict {
	v := models.ProtocolVerdict{Protocol: LiquidityManager}
	if count.Sign() > 0 {
		v.Status = models.VerdictPositionsFound
		v.Positions = count.String()
		v.Message = fmt.Sprintf("Uniswap: %s LP NFTs found.", count)
		return v
	}
	v.Status = models.VerdictNoPosition
	v.Message = "Uniswap: No LP positions."
	return v
}

// Text renders the report as three lines, warnings marked.
func Text(r models.ProtocolRiskReport) string {
	lines := make([]string, 0, 3)
	for _, v := range r.Verdicts() {
		lines = append(lines, marker(v.Status)+v.Message)
	}
	return strings.Join(lines, "\n")
}

func marker(s models.VerdictStatus) string {
	switch s {
	case models.VerdictLiquidationRisk, models.VerdictUndercollateralized:
		return "⚠️ "
	case models.VerdictNoPosition:
		return "ℹ "
	default:
		return ""
	}
}
