package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Fantasim/rektrescue/internal/api"
	"github.com/Fantasim/rektrescue/internal/api/handlers"
	"github.com/Fantasim/rektrescue/internal/approvals"
	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/db"
	"github.com/Fantasim/rektrescue/internal/dust"
	"github.com/Fantasim/rektrescue/internal/history"
	"github.com/Fantasim/rektrescue/internal/logging"
	"github.com/Fantasim/rektrescue/internal/metrics"
	"github.com/Fantasim/rektrescue/internal/protocol"
	"github.com/Fantasim/rektrescue/internal/provider"
	"github.com/Fantasim/rektrescue/internal/registry"
	"github.com/Fantasim/rektrescue/internal/revoke"
	"github.com/Fantasim/rektrescue/internal/tokens"
	"github.com/Fantasim/rektrescue/internal/viewstate"
	"github.com/ethereum/go-ethereum/common"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case "check":
		if err := runCheck(); err != nil {
			slog.Error("check error", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("rektrescue %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: rektrescue <command>

Commands:
  serve     Start the localhost HTTP API
  check     Probe the configured RPC endpoints and exit
  version   Print version information
`)
}

// network resolves the chain entry and the RPC endpoints to use. Configured
// endpoints win; otherwise the registry's public endpoints are used.
func network(cfg *config.Config, reg *registry.Registry) (registry.Chain, []string, uint64) {
	chain := reg.Resolve(cfg.ChainID)
	if chain.ID != cfg.ChainID {
		slog.Warn("chain not in registry, protocol lookups use default chain",
			"chainID", cfg.ChainID,
			"fallback", chain.ID,
			"label", chain.Label,
		)
	}

	if len(cfg.RPCURLs) > 0 {
		return chain, cfg.RPCURLs, cfg.ChainID
	}
	return chain, chain.RPCURLs, chain.ID
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	reg, err := registry.Load(cfg.RegistryFile)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	chain, rpcURLs, signingChainID := network(cfg, reg)

	slog.Info("starting rektrescue",
		"version", version,
		"chainID", cfg.ChainID,
		"network", chain.Label,
		"rpcEndpoints", len(rpcURLs),
		"port", cfg.Port,
		"dbPath", cfg.DBPath,
		"logLevel", cfg.LogLevel,
	)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Probe results are recorded, never fatal.
	results := provider.RunStartupHealthChecks(ctx, rpcURLs)
	persistHealth(ctx, database, signingChainID, results)

	pool, closePool, err := provider.Setup(ctx, rpcURLs, cfg.RPCRateLimit, m)
	if err != nil {
		return fmt.Errorf("failed to setup chain provider: %w", err)
	}
	defer closePool()

	reader := tokens.NewERC20Reader(pool)
	symbols := tokens.NewSymbolCache(reader)
	lookup := history.NewEtherscanLookup(
		&http.Client{Timeout: config.ProviderRequestTimeout},
		cfg.EtherscanAPIURL, cfg.EtherscanAPIKey, signingChainID, m,
	)
	tokenLink := func(token common.Address) string { return reg.TokenURL(chain.ID, token) }

	var session revoke.WalletSession
	if cfg.PrivateKeyFile != "" {
		ks, err := revoke.LoadKeySession(cfg.PrivateKeyFile, signingChainID, pool)
		if err != nil {
			return fmt.Errorf("failed to load wallet session: %w", err)
		}
		session = ks
		slog.Info("wallet session ready", "address", ks.Address().Hex(), "chainID", signingChainID)
	} else {
		slog.Warn("no private key configured, revoke and manual actions are disabled")
	}

	router := api.NewRouter(&handlers.Deps{
		Config:    cfg,
		Version:   version,
		DB:        database,
		Registry:  reg,
		Chain:     chain,
		Head:      pool,
		Approvals: approvals.NewScanner(pool, cfg.LogBatchSize, m),
		Annotator: approvals.NewAnnotator(symbols, reg),
		Dust:      dust.NewScanner(lookup, reader, cfg.DustConcurrency, tokenLink, m),
		Protocols: protocol.NewAssessor(pool, reg, m),
		Submitter: revoke.NewSubmitter(database, m),
		Batch:     revoke.NewBatch(),
		Session:   session,
		Views:     viewstate.NewStore(),
		Breakers:  pool,
		Metrics:   m,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	srv := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    config.ServerReadTimeout,
		WriteTimeout:   config.ServerWriteTimeout,
		IdleTimeout:    config.ServerIdleTimeout,
		MaxHeaderBytes: config.ServerMaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("initiating graceful shutdown", "timeout", config.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	persistBreakers(shutdownCtx, database, signingChainID, pool.States())
	slog.Info("server stopped gracefully")
	return nil
}

// runCheck probes every endpoint once and prints a table.
func runCheck() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	reg, err := registry.Load(cfg.RegistryFile)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	chain, rpcURLs, _ := network(cfg, reg)

	results := provider.RunStartupHealthChecks(context.Background(), rpcURLs)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NETWORK\t%s (%d)\n\n", chain.Label, chain.ID)
	fmt.Fprintln(w, "ENDPOINT\tSTATUS\tLATENCY\tERROR")
	failed := 0
	for _, r := range results {
		status, msg := healthStatus(r)
		if !r.OK {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Endpoint, status, r.Latency.Round(time.Millisecond), msg)
	}
	w.Flush()

	if failed == len(results) {
		return fmt.Errorf("%w: all %d endpoints failed", config.ErrProviderUnavailable, len(results))
	}
	return nil
}

func healthStatus(r provider.HealthCheckResult) (string, string) {
	if r.OK {
		return "healthy", ""
	}
	return "down", r.Error.Error()
}

func persistHealth(ctx context.Context, database *db.DB, chainID uint64, results []provider.HealthCheckResult) {
	for _, r := range results {
		status, msg := healthStatus(r)
		row := db.ProviderHealthRow{
			Endpoint:     r.Endpoint,
			ChainID:      chainID,
			Status:       status,
			LatencyMs:    r.Latency.Milliseconds(),
			LastError:    msg,
			CircuitState: config.CircuitClosed,
		}
		if err := database.UpsertProviderHealth(ctx, row); err != nil {
			slog.Error("failed to persist provider health", "endpoint", r.Endpoint, "error", err)
		}
	}
}

// persistBreakers records each endpoint's final circuit state on shutdown.
func persistBreakers(ctx context.Context, database *db.DB, chainID uint64, states map[string]string) {
	rows, err := database.ListProviderHealth(ctx, chainID)
	if err != nil {
		slog.Error("failed to read provider health on shutdown", "error", err)
		return
	}
	for _, row := range rows {
		state, ok := states[row.Endpoint]
		if !ok || state == row.CircuitState {
			continue
		}
		row.CircuitState = state
		if err := database.UpsertProviderHealth(ctx, row); err != nil {
			slog.Error("failed to persist breaker state", "endpoint", row.Endpoint, "error", err)
		}
	}
}
