package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Fantasim/rektrescue/internal/config"
)

// HealthCheckResult holds the outcome of probing one endpoint.
type HealthCheckResult struct {
	Endpoint string
	OK       bool
	Latency  time.Duration
	Error    error
}

// RunStartupHealthChecks sends eth_blockNumber to every endpoint concurrently
// and logs the outcome. Failures are reported, never fatal.
func RunStartupHealthChecks(ctx context.Context, urls []string) []HealthCheckResult {
	slog.Info("running startup provider health checks", "count", len(urls))

	client := &http.Client{Timeout: config.HealthCheckTimeout}

	var (
		results = make([]HealthCheckResult, len(urls))
		wg      sync.WaitGroup
	)

	for i, u := range urls {
		wg.Add(1)
		go func(i int, rawURL string) {
			defer wg.Done()

			name := EndpointName(rawURL)
			start := time.Now()
			err := probeBlockNumber(ctx, client, rawURL)
			latency := time.Since(start)

			results[i] = HealthCheckResult{
				Endpoint: name,
				OK:       err == nil,
				Latency:  latency,
				Error:    err,
			}

			if err != nil {
				slog.Warn("provider health check FAILED",
					"endpoint", name,
					"latency", latency.Round(time.Millisecond),
					"error", err,
				)
				return
			}
			slog.Info("provider health check OK",
				"endpoint", name,
				"latency", latency.Round(time.Millisecond),
			)
		}(i, u)
	}

	wg.Wait()

	okCount := 0
	for _, r := range results {
		if r.OK {
			okCount++
		}
	}

	slog.Info("startup health checks complete",
		"total", len(results),
		"ok", okCount,
		"failed", len(results)-okCount,
	)

	return results
}

// probeBlockNumber posts a raw eth_blockNumber request and checks for a result.
func probeBlockNumber(ctx context.Context, client *http.Client, rpcURL string) error {
	ctx, cancel := context.WithTimeout(ctx, config.HealthCheckTimeout)
	defer cancel()

	body := `{"jsonrpc":"2.0","method":"eth_blockNumber","params":[],"id":1}`
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rpcURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "rektrescue-healthcheck")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed struct {
		Result string `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("rpc error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if parsed.Result == "" {
		return fmt.Errorf("empty result")
	}
	return nil
}
