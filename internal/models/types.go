package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ApprovalKind identifies which approval variant an event carries.
type ApprovalKind string

const (
	KindFungible    ApprovalKind = "fungible"
	KindNonFungible ApprovalKind = "non_fungible"
	KindBlanket     ApprovalKind = "blanket"
)

// Approval is the closed set of decoded approval payloads.
// Only the three variants below implement it.
type Approval interface {
	Kind() ApprovalKind
	isApproval()
}

// FungibleApproval is an ERC-20 Approval(owner, spender, value).
type FungibleApproval struct {
	Spender common.Address
	Amount  *big.Int
}

// NonFungibleApproval is an ERC-721 Approval(owner, approved, tokenId).
type NonFungibleApproval struct {
	Approved common.Address
	TokenID  *big.Int
}

// BlanketApproval is an ERC-721 ApprovalForAll(owner, operator, approved).
type BlanketApproval struct {
	Operator common.Address
	Approved bool
}

func (FungibleApproval) Kind() ApprovalKind    { return KindFungible }
func (NonFungibleApproval) Kind() ApprovalKind { return KindNonFungible }
func (BlanketApproval) Kind() ApprovalKind     { return KindBlanket }

func (FungibleApproval) isApproval()    {}
func (NonFungibleApproval) isApproval() {}
func (BlanketApproval) isApproval()     {}

// ApprovalEvent is one decoded approval log. Never mutated after decode.
type ApprovalEvent struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Token       common.Address // contract that emitted the log
	Owner       common.Address
	Approval    Approval
}

// LogKey uniquely identifies a log on chain.
type LogKey struct {
	TxHash   common.Hash
	LogIndex uint
}

// Key returns the event's (transactionHash, logIndex) identity.
func (e ApprovalEvent) Key() LogKey {
	return LogKey{TxHash: e.TxHash, LogIndex: e.LogIndex}
}

// Spender returns the address the approval grants rights to, whichever variant it is.
func (e ApprovalEvent) Spender() common.Address {
	switch a := e.Approval.(type) {
	case FungibleApproval:
		return a.Spender
	case NonFungibleApproval:
		return a.Approved
	case BlanketApproval:
		return a.Operator
	default:
		return common.Address{}
	}
}

// RiskLevel is derived from an ApprovalEvent, never stored.
type RiskLevel string

const (
	RiskUnlimited RiskLevel = "unlimited"
	RiskLarge     RiskLevel = "large"
	RiskLimited   RiskLevel = "limited"
	RiskNone      RiskLevel = "none"
	RiskActive    RiskLevel = "active"  // blanket approval granted
	RiskRevoked   RiskLevel = "revoked" // blanket approval cleared
)

// IsHigh reports whether the level warrants a red indicator.
func (r RiskLevel) IsHigh() bool {
	return r == RiskUnlimited || r == RiskActive
}

// BlockRange is an inclusive [From, To] block interval.
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Len returns the number of blocks covered by the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// DustToken is an ERC-20 holding with a strictly positive balance.
type DustToken struct {
	Address  common.Address `json:"address"`
	Balance  *big.Int       `json:"-"`
	Raw      string         `json:"balance"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Display  string         `json:"display"`
	Explorer string         `json:"explorer,omitempty"`
}

// VerdictStatus classifies one protocol's read result.
type VerdictStatus string

const (
	VerdictLiquidationRisk     VerdictStatus = "liquidation_risk"
	VerdictHealthy             VerdictStatus = "healthy"
	VerdictUndercollateralized VerdictStatus = "undercollateralized"
	VerdictNoPosition          VerdictStatus = "no_position"
	VerdictPositionsFound      VerdictStatus = "positions_found"
	VerdictNotApplicable       VerdictStatus = "not_applicable"
)

// ProtocolVerdict is the textual verdict for one protocol.
type ProtocolVerdict struct {
	Protocol     string        `json:"protocol"`
	Status       VerdictStatus `json:"status"`
	Message      string        `json:"message"`
	HealthFactor string        `json:"healthFactor,omitempty"`
	Positions    string        `json:"positions,omitempty"`
}

// ProtocolRiskReport holds three independent verdicts.
type ProtocolRiskReport struct {
	Address      common.Address  `json:"address"`
	ChainID      uint64          `json:"chainId"`
	NetworkLabel string          `json:"network"`
	LendingPool  ProtocolVerdict `json:"lendingPool"`
	MoneyMarket  ProtocolVerdict `json:"moneyMarket"`
	Liquidity    ProtocolVerdict `json:"liquidity"`
}

// Verdicts returns the three verdicts in display order.
func (r ProtocolRiskReport) Verdicts() []ProtocolVerdict {
	return []ProtocolVerdict{r.LendingPool, r.MoneyMarket, r.Liquidity}
}

// Submission is one ledger row for a submitted state-changing action.
type Submission struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	ChainID   uint64 `json:"chainId"`
	From      string `json:"from"`
	Token     string `json:"token"`
	Target    string `json:"target"`
	Value     string `json:"value,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// ScanLogEntry summarises one completed scan run.
type ScanLogEntry struct {
	ID         int64  `json:"id"`
	Pipeline   string `json:"pipeline"`
	Owner      string `json:"owner"`
	FromBlock  uint64 `json:"fromBlock,omitempty"`
	ToBlock    uint64 `json:"toBlock,omitempty"`
	Results    int    `json:"results"`
	Failures   int    `json:"failures"`
	DurationMs int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Data interface{} `json:"data,omitempty"`
	Meta *APIMeta    `json:"meta,omitempty"`
}

// APIMeta contains execution metadata.
type APIMeta struct {
	ExecutionTime int64  `json:"executionTime,omitempty"`
	Ticket        string `json:"ticket,omitempty"`
	Sequence      uint64 `json:"sequence,omitempty"`
}

// APIError is the standard error response.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail contains error code and message.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
