package revoke

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	sender   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenTKN = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func unpackInputs(t *testing.T, parsed abi.ABI, data []byte) (string, []interface{}) {
	t.Helper()
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		t.Fatalf("MethodById: %v", err)
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack %s: %v", m.Name, err)
	}
	return m.Name, args
}

func TestAction_Calldata(t *testing.T) {
	hundred, _ := new(big.Int).SetString("100000000000000000000", 10)
	half, _ := new(big.Int).SetString("500000000000000000", 10)

	tests := []struct {
		name       string
		action     Action
		parsed     abi.ABI
		wantMethod string
		wantArgs   []interface{}
	}{
		{
			name:       "approve fungible defaults to 100 tokens",
			action:     Action{Kind: ActionApproveFungible, Token: tokenTKN, Target: spender},
			parsed:     tokens.ERC20ABI,
			wantMethod: "approve",
			wantArgs:   []interface{}{spender, hundred},
		},
		{
			name:       "approve blanket",
			action:     Action{Kind: ActionApproveBlanket, Token: tokenTKN, Target: spender},
			parsed:     erc721ABI,
			wantMethod: "setApprovalForAll",
			wantArgs:   []interface{}{spender, true},
		},
		{
			name:       "revoke fungible sets allowance to zero",
			action:     Action{Kind: ActionRevokeFungible, Token: tokenTKN, Target: spender},
			parsed:     tokens.ERC20ABI,
			wantMethod: "approve",
			wantArgs:   []interface{}{spender, big.NewInt(0)},
		},
		{
			name:       "revoke non-fungible approves the zero address",
			action:     Action{Kind: ActionRevokeNonFungible, Token: tokenTKN, TokenID: "42"},
			parsed:     erc721ABI,
			wantMethod: "approve",
			wantArgs:   []interface{}{common.Address{}, big.NewInt(42)},
		},
		{
			name:       "revoke blanket",
			action:     Action{Kind: ActionRevokeBlanket, Token: tokenTKN, Target: spender},
			parsed:     erc721ABI,
			wantMethod: "setApprovalForAll",
			wantArgs:   []interface{}{spender, false},
		},
		{
			name:       "transfer fungible scales by 18 decimals",
			action:     Action{Kind: ActionTransferFungible, Token: tokenTKN, Target: spender, Amount: "0.5"},
			parsed:     tokens.ERC20ABI,
			wantMethod: "transfer",
			wantArgs:   []interface{}{spender, half},
		},
		{
			name:       "transfer non-fungible from the sender",
			action:     Action{Kind: ActionTransferNonFungible, Token: tokenTKN, Target: spender, TokenID: "0x10"},
			parsed:     erc721ABI,
			wantMethod: "transferFrom",
			wantArgs:   []interface{}{sender, spender, big.NewInt(16)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.action.Calldata(sender)
			if err != nil {
				t.Fatalf("Calldata() error = %v", err)
			}
			method, args := unpackInputs(t, tt.parsed, data)
			if method != tt.wantMethod {
				t.Fatalf("method = %s, want %s", method, tt.wantMethod)
			}
			for i, want := range tt.wantArgs {
				switch w := want.(type) {
				case *big.Int:
					if args[i].(*big.Int).Cmp(w) != 0 {
						t.Errorf("arg %d = %v, want %v", i, args[i], w)
					}
				default:
					if args[i] != want {
						t.Errorf("arg %d = %v, want %v", i, args[i], want)
					}
				}
			}
		})
	}
}

func TestAction_ERC20AndERC721ApproveShareSelector(t *testing.T) {
	if !bytes.Equal(tokens.ERC20ABI.Methods["approve"].ID, erc721ABI.Methods["approve"].ID) {
		t.Error("approve(address,uint256) should encode identically for both standards")
	}
}

func TestAction_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"missing token", Action{Kind: ActionRevokeBlanket, Target: spender}},
		{"missing spender", Action{Kind: ActionRevokeFungible, Token: tokenTKN}},
		{"missing operator", Action{Kind: ActionApproveBlanket, Token: tokenTKN}},
		{"missing token id", Action{Kind: ActionRevokeNonFungible, Token: tokenTKN}},
		{"malformed token id", Action{Kind: ActionRevokeNonFungible, Token: tokenTKN, TokenID: "12abc"}},
		{"negative token id", Action{Kind: ActionTransferNonFungible, Token: tokenTKN, Target: spender, TokenID: "-1"}},
		{"missing amount", Action{Kind: ActionTransferFungible, Token: tokenTKN, Target: spender}},
		{"malformed amount", Action{Kind: ActionTransferFungible, Token: tokenTKN, Target: spender, Amount: "1e5"}},
		{"too precise amount", Action{Kind: ActionApproveFungible, Token: tokenTKN, Target: spender, Amount: "0.0000000000000000001"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.action.Calldata(sender)
			if !errors.Is(err, config.ErrPreconditionUnmet) {
				t.Errorf("error = %v, want ErrPreconditionUnmet", err)
			}
		})
	}
}

func TestAction_UnknownKind(t *testing.T) {
	_, err := Action{Kind: "burn", Token: tokenTKN}.Calldata(sender)
	if !errors.Is(err, config.ErrUnsupportedAction) {
		t.Errorf("error = %v, want ErrUnsupportedAction", err)
	}
}
