package revoke

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/provider"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// WalletSession is a connected account able to sign and submit calls.
type WalletSession interface {
	Address() common.Address
	ChainID() uint64
	SignAndSend(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// KeySession signs with a locally held private key and submits through a
// TxBackend.
type KeySession struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID uint64
	backend provider.TxBackend

	// serializes nonce lookup through send
	sendMu sync.Mutex
}

// NewKeySession wraps an already loaded key.
func NewKeySession(key *ecdsa.PrivateKey, chainID uint64, backend provider.TxBackend) *KeySession {
	return &KeySession{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		backend: backend,
	}
}

// LoadKeySession reads a hex private key (0x prefix optional) from path.
func LoadKeySession(path string, chainID uint64, backend provider.TxBackend) (*KeySession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read key file %q: %w", config.ErrKeyLoad, path, err)
	}

	hexKey := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("%w: key file %q is empty", config.ErrKeyLoad, path)
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		// The parse error can echo key material; keep it out of the message.
		return nil, fmt.Errorf("%w: key file %q does not hold a secp256k1 private key", config.ErrKeyLoad, path)
	}

	s := NewKeySession(key, chainID, backend)
	slog.Info("wallet session loaded",
		"address", s.address.Hex(),
		"chainID", chainID,
	)
	return s, nil
}

func (s *KeySession) Address() common.Address { return s.address }
func (s *KeySession) ChainID() uint64         { return s.chainID }

// SignAndSend builds a legacy transaction calling to with data, signs it
// with EIP-155 replay protection and submits it. Concurrent calls are
// serialized so no two transactions share a pending nonce.
func (s *KeySession) SignAndSend(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	suggested, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gasPrice := buffer(suggested, config.GasPriceBufferNumer, config.GasPriceBufferDenom)

	gas, err := s.estimateGas(ctx, to, data)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(new(big.Int).SetUint64(s.chainID)), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	slog.Debug("sending transaction",
		"from", s.address.Hex(),
		"to", to.Hex(),
		"nonce", nonce,
		"gas", gas,
		"gasPrice", gasPrice.String(),
		"txHash", signed.Hash().Hex(),
	)

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash(), nil
}

// estimateGas buffers the node's estimate. A call that would revert is an
// error; any other estimation failure falls back to a fixed limit.
func (s *KeySession) estimateGas(ctx context.Context, to common.Address, data []byte) (uint64, error) {
	est, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &to, Data: data})
	if err == nil {
		return buffer(new(big.Int).SetUint64(est), config.GasLimitBufferNumer, config.GasLimitBufferDenom).Uint64(), nil
	}
	if isRevert(err) {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	slog.Warn("gas estimation failed, using fallback limit",
		"to", to.Hex(),
		"fallback", config.GasLimitFallback,
		"error", err,
	)
	return config.GasLimitFallback, nil
}

func buffer(v *big.Int, numer, denom int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(numer))
	return out.Div(out, big.NewInt(denom))
}

func isRevert(err error) bool {
	var de interface{ ErrorData() interface{} }
	if errors.As(err, &de) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
