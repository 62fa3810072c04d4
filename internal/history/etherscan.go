package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/provider"
	"github.com/ethereum/go-ethereum/common"
)

// tokenTxResponse is the Etherscan account/tokentx envelope. Result is a
// list on success and a plain string on most errors.
type tokenTxResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTx struct {
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	Hash            string `json:"hash"`
}

// EtherscanLookup discovers ERC-20 contracts an owner has interacted with
// through the Etherscan v2 multichain API.
type EtherscanLookup struct {
	client  *http.Client
	rl      *provider.RateLimiter
	apiURL  string
	apiKey  string
	chainID uint64
}

// NewEtherscanLookup creates a lookup for one chain.
func NewEtherscanLookup(client *http.Client, apiURL, apiKey string, chainID uint64, m *metrics.Metrics) *EtherscanLookup {
	slog.Info("etherscan lookup created",
		"apiURL", apiURL,
		"hasAPIKey", apiKey != "",
		"chainID", chainID,
	)

	return &EtherscanLookup{
		client:  client,
		rl:      provider.NewRateLimiter("Etherscan", config.RateLimitEtherscan, m),
		apiURL:  apiURL,
		apiKey:  apiKey,
		chainID: chainID,
	}
}

// CandidateTokens returns every token contract found in the owner's transfer
// history, in history order. Duplicates are left for the caller.
func (l *EtherscanLookup) CandidateTokens(ctx context.Context, owner common.Address) ([]common.Address, error) {
	if err := l.rl.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	q := url.Values{}
	q.Set("chainid", strconv.FormatUint(l.chainID, 10))
	q.Set("module", "account")
	q.Set("action", "tokentx")
	q.Set("address", owner.Hex())
	q.Set("sort", "asc")
	if l.apiKey != "" {
		q.Set("apikey", l.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	slog.Debug("etherscan tokentx request", "owner", owner.Hex(), "chainID", l.chainID)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: etherscan request: %v", config.ErrUpstreamDataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := provider.ParseRetryAfter(resp.Header)
		l.rl.Backoff(retryAfter)
		return nil, config.NewTransientErrorWithRetry(
			fmt.Errorf("%w: %w", config.ErrUpstreamDataUnavailable, config.ErrProviderRateLimit),
			retryAfter,
		)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("etherscan non-200 response", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: etherscan HTTP %d", config.ErrUpstreamDataUnavailable, resp.StatusCode)
	}

	var data tokenTxResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode etherscan response: %v", config.ErrUpstreamDataUnavailable, err)
	}

	if data.Status != "1" {
		detail := data.Message
		var s string
		if json.Unmarshal(data.Result, &s) == nil && s != "" {
			detail += ": " + s
		}
		slog.Warn("etherscan error response",
			"status", data.Status,
			"message", detail,
		)
		if strings.Contains(strings.ToLower(detail), "rate limit") {
			l.rl.Backoff(0)
			return nil, fmt.Errorf("%w: %w: %s", config.ErrUpstreamDataUnavailable, config.ErrProviderRateLimit, detail)
		}
		return nil, fmt.Errorf("%w: %s", config.ErrUpstreamDataUnavailable, detail)
	}

	var txs []tokenTx
	if err := json.Unmarshal(data.Result, &txs); err != nil {
		return nil, fmt.Errorf("%w: decode tokentx result: %v", config.ErrUpstreamDataUnavailable, err)
	}

	tokens := make([]common.Address, 0, len(txs))
	for _, tx := range txs {
		if !common.IsHexAddress(tx.ContractAddress) {
			slog.Warn("etherscan returned malformed contract address",
				"contract", tx.ContractAddress,
				"tx", tx.Hash,
			)
			continue
		}
		tokens = append(tokens, common.HexToAddress(tx.ContractAddress))
	}

	slog.Debug("etherscan tokentx fetched",
		"owner", owner.Hex(),
		"transfers", len(txs),
	)
	return tokens, nil
}
