package revoke

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/ethereum/go-ethereum/common"
)

const erc721JSON = `[
{"inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"name":"approve","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"name":"setApprovalForAll","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"name":"transferFrom","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var erc721ABI = tokens.MustParseABI(erc721JSON)

// ActionKind names a state-changing call the submitter can build.
type ActionKind string

const (
	ActionApproveFungible     ActionKind = "approve_fungible"
	ActionApproveBlanket      ActionKind = "approve_blanket"
	ActionRevokeFungible      ActionKind = "revoke_fungible"
	ActionRevokeNonFungible   ActionKind = "revoke_nonfungible"
	ActionRevokeBlanket       ActionKind = "revoke_blanket"
	ActionTransferFungible    ActionKind = "transfer_fungible"
	ActionTransferNonFungible ActionKind = "transfer_nonfungible"
)

// Action is one requested call against a token contract. Target is the
// spender, operator or recipient depending on Kind.
type Action struct {
	Kind    ActionKind     `json:"kind"`
	Token   common.Address `json:"token"`
	Target  common.Address `json:"target"`
	TokenID string         `json:"tokenId,omitempty"`
	Amount  string         `json:"amount,omitempty"`
}

// Calldata validates the action and encodes it for a sender. Every failure
// is ErrPreconditionUnmet except an unknown kind.
func (a Action) Calldata(from common.Address) ([]byte, error) {
	if a.Token == (common.Address{}) {
		return nil, precondition("token address is required")
	}

	switch a.Kind {
	case ActionApproveFungible:
		if err := a.requireTarget("spender"); err != nil {
			return nil, err
		}
		amount := a.Amount
		if amount == "" {
			amount = config.DefaultApproveAmount
		}
		raw, err := tokens.ParseUnits(amount, config.ApproveAmountDecimals)
		if err != nil {
			return nil, precondition(err.Error())
		}
		return tokens.ERC20ABI.Pack("approve", a.Target, raw)

	case ActionApproveBlanket:
		if err := a.requireTarget("operator"); err != nil {
			return nil, err
		}
		return erc721ABI.Pack("setApprovalForAll", a.Target, true)

	case ActionRevokeFungible:
		if err := a.requireTarget("spender"); err != nil {
			return nil, err
		}
		return tokens.ERC20ABI.Pack("approve", a.Target, new(big.Int))

	case ActionRevokeNonFungible:
		id, err := a.tokenID()
		if err != nil {
			return nil, err
		}
		return erc721ABI.Pack("approve", common.Address{}, id)

	case ActionRevokeBlanket:
		if err := a.requireTarget("operator"); err != nil {
			return nil, err
		}
		return erc721ABI.Pack("setApprovalForAll", a.Target, false)

	case ActionTransferFungible:
		if err := a.requireTarget("recipient"); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.Amount) == "" {
			return nil, precondition("amount is required")
		}
		raw, err := tokens.ParseUnits(a.Amount, config.ApproveAmountDecimals)
		if err != nil {
			return nil, precondition(err.Error())
		}
		return tokens.ERC20ABI.Pack("transfer", a.Target, raw)

	case ActionTransferNonFungible:
		if err := a.requireTarget("recipient"); err != nil {
			return nil, err
		}
		id, err := a.tokenID()
		if err != nil {
			return nil, err
		}
		return erc721ABI.Pack("transferFrom", from, a.Target, id)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnsupportedAction, a.Kind)
	}
}

// Value is the token id or raw amount the action carries, for the ledger.
func (a Action) Value() string {
	switch {
	case a.TokenID != "":
		return a.TokenID
	case a.Amount != "":
		return a.Amount
	default:
		return ""
	}
}

func (a Action) requireTarget(role string) error {
	if a.Target == (common.Address{}) {
		return precondition(role + " address is required")
	}
	return nil
}

// tokenID parses a decimal or 0x-prefixed hex token id.
func (a Action) tokenID() (*big.Int, error) {
	s := strings.TrimSpace(a.TokenID)
	if s == "" {
		return nil, precondition("token id is required")
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, precondition(fmt.Sprintf("token id %q is not a uint256", a.TokenID))
	}
	return id, nil
}

func precondition(msg string) error {
	return fmt.Errorf("%w: %s", config.ErrPreconditionUnmet, msg)
}
