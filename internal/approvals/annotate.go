package approvals

import (
	"context"
	"fmt"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/ethereum/go-ethereum/common"
)

// Directory supplies spender names and explorer links.
type Directory interface {
	SpenderName(addr common.Address) (string, bool)
	TxURL(chainID uint64, hash common.Hash) string
	AddressURL(chainID uint64, addr common.Address) string
	TokenURL(chainID uint64, token common.Address) string
}

// AnnotatedEvent is an ApprovalEvent rendered for display.
type AnnotatedEvent struct {
	BlockNumber uint64              `json:"blockNumber"`
	TxHash      string              `json:"txHash"`
	LogIndex    uint                `json:"logIndex"`
	Kind        models.ApprovalKind `json:"kind"`
	Label       string              `json:"label"`
	Token       string              `json:"token"`
	TokenSymbol string              `json:"tokenSymbol"`
	Owner       string              `json:"owner"`
	Spender     string              `json:"spender"`
	SpenderName string              `json:"spenderName,omitempty"`
	Amount      string              `json:"amount,omitempty"`
	TokenID     string              `json:"tokenId,omitempty"`
	Approved    *bool               `json:"approved,omitempty"`
	Display     string              `json:"display"`
	Risk        models.RiskLevel    `json:"risk"`
	RiskTooltip string              `json:"riskTooltip"`
	HighRisk    bool                `json:"highRisk"`
	TxURL       string              `json:"txUrl"`
	TokenURL    string              `json:"tokenUrl"`
	SpenderURL  string              `json:"spenderUrl"`
}

// Annotator enriches events with symbols, spender names and links.
type Annotator struct {
	symbols *tokens.SymbolCache
	dir     Directory
}

func NewAnnotator(symbols *tokens.SymbolCache, dir Directory) *Annotator {
	return &Annotator{symbols: symbols, dir: dir}
}

// Annotate resolves the symbols of every emitting contract once, then renders
// each event in order.
func (a *Annotator) Annotate(ctx context.Context, chainID uint64, events []models.ApprovalEvent) []AnnotatedEvent {
	addrs := make([]common.Address, len(events))
	for i, e := range events {
		addrs[i] = e.Token
	}
	symbols := a.symbols.ResolveAll(ctx, addrs)

	out := make([]AnnotatedEvent, len(events))
	for i, e := range events {
		out[i] = a.render(chainID, e, symbols[e.Token])
	}
	return out
}

func (a *Annotator) render(chainID uint64, e models.ApprovalEvent, symbol string) AnnotatedEvent {
	spender := e.Spender()
	risk := Classify(e)

	ae := AnnotatedEvent{
		BlockNumber: e.BlockNumber,
		TxHash:      e.TxHash.Hex(),
		LogIndex:    e.LogIndex,
		Kind:        e.Approval.Kind(),
		Label:       Label(e.Approval.Kind()),
		Token:       e.Token.Hex(),
		TokenSymbol: symbol,
		Owner:       e.Owner.Hex(),
		Spender:     spender.Hex(),
		Display:     DisplayAmount(e, symbol),
		Risk:        risk,
		RiskTooltip: RiskTooltip(risk),
		HighRisk:    risk.IsHigh(),
		TxURL:       a.dir.TxURL(chainID, e.TxHash),
		TokenURL:    a.dir.TokenURL(chainID, e.Token),
		SpenderURL:  a.dir.AddressURL(chainID, spender),
	}
	if name, ok := a.dir.SpenderName(spender); ok {
		ae.SpenderName = name
	}

	switch v := e.Approval.(type) {
	case models.FungibleApproval:
		ae.Amount = v.Amount.String()
	case models.NonFungibleApproval:
		ae.TokenID = v.TokenID.String()
	case models.BlanketApproval:
		approved := v.Approved
		ae.Approved = &approved
	}
	return ae
}

// DisplayAmount renders the human-readable amount column. Fungible amounts
// are always scaled by 18 decimals, whatever the token declares.
func DisplayAmount(e models.ApprovalEvent, symbol string) string {
	switch v := e.Approval.(type) {
	case models.FungibleApproval:
		s := tokens.FormatUnits(v.Amount, config.ApprovalDisplayDecimals)
		if symbol != "" {
			s += " " + symbol
		}
		return s
	case models.NonFungibleApproval:
		return fmt.Sprintf("Token ID: %s (ERC721)", v.TokenID)
	case models.BlanketApproval:
		if v.Approved {
			return "All NFTs: Approved"
		}
		return "All NFTs: Revoked"
	default:
		return "-"
	}
}
