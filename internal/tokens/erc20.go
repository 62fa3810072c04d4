package tokens

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/provider"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20JSON = `[
{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ERC20ABI is the subset of the ERC-20 interface this module reads and writes.
var ERC20ABI = MustParseABI(erc20JSON)

// MustParseABI parses a JSON ABI definition and panics on malformed input.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Call packs method with args, runs it as eth_call against contract, and
// unpacks the return values. Empty or malformed output is ErrDecodeFailure.
func Call(ctx context.Context, chain provider.ChainReader, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := chain.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, contract.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: %w: empty return data", method, contract.Hex(), config.ErrDecodeFailure)
	}

	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w: %v", method, contract.Hex(), config.ErrDecodeFailure, err)
	}
	return values, nil
}

// ERC20Reader issues ERC-20 view calls through a ChainReader.
type ERC20Reader struct {
	chain provider.ChainReader
}

func NewERC20Reader(chain provider.ChainReader) *ERC20Reader {
	return &ERC20Reader{chain: chain}
}

func (r *ERC20Reader) Symbol(ctx context.Context, token common.Address) (string, error) {
	return r.text(ctx, token, "symbol")
}

func (r *ERC20Reader) Name(ctx context.Context, token common.Address) (string, error) {
	return r.text(ctx, token, "name")
}

func (r *ERC20Reader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	values, err := Call(ctx, r.chain, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals on %s: %w: unexpected type %T", token.Hex(), config.ErrDecodeFailure, values[0])
	}
	return d, nil
}

func (r *ERC20Reader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	values, err := Call(ctx, r.chain, token, ERC20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	b, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf on %s: %w: unexpected type %T", token.Hex(), config.ErrDecodeFailure, values[0])
	}
	return b, nil
}

// text reads a string accessor. Older tokens return bytes32 instead of
// string; a 32-byte answer is decoded as NUL-padded ASCII.
func (r *ERC20Reader) text(ctx context.Context, token common.Address, method string) (string, error) {
	data, err := ERC20ABI.Pack(method)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := r.chain.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return "", fmt.Errorf("%s on %s: %w", method, token.Hex(), err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%s on %s: %w: empty return data", method, token.Hex(), config.ErrDecodeFailure)
	}

	if len(out) == 32 {
		return string(bytes.TrimRight(out, "\x00")), nil
	}

	values, err := ERC20ABI.Unpack(method, out)
	if err != nil {
		return "", fmt.Errorf("%s on %s: %w: %v", method, token.Hex(), config.ErrDecodeFailure, err)
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s on %s: %w: unexpected type %T", method, token.Hex(), config.ErrDecodeFailure, values[0])
	}
	return s, nil
}
