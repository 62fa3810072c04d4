package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	ChainID uint64   `envconfig:"REKTRESCUE_CHAIN_ID" default:"11155111"`
	RPCURLs []string `envconfig:"REKTRESCUE_RPC_URLS"`

	EtherscanAPIURL string `envconfig:"REKTRESCUE_ETHERSCAN_API_URL" default:"https://api.etherscan.io/v2/api"`
	EtherscanAPIKey string `envconfig:"REKTRESCUE_ETHERSCAN_API_KEY"`

	PrivateKeyFile string `envconfig:"REKTRESCUE_PRIVATE_KEY_FILE"`
	RegistryFile   string `envconfig:"REKTRESCUE_REGISTRY_FILE"`

	DBPath   string `envconfig:"REKTRESCUE_DB_PATH" default:"./data/rektrescue.sqlite"`
	Port     int    `envconfig:"REKTRESCUE_PORT" default:"8080"`
	LogLevel string `envconfig:"REKTRESCUE_LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"REKTRESCUE_LOG_DIR" default:"./logs"`

	LogBatchSize       uint64 `envconfig:"REKTRESCUE_LOG_BATCH_SIZE" default:"9000"`
	DefaultBlockWindow uint64 `envconfig:"REKTRESCUE_DEFAULT_BLOCK_WINDOW" default:"5000"`
	DustConcurrency    int    `envconfig:"REKTRESCUE_DUST_CONCURRENCY" default:"8"`
	RPCRateLimit       int    `envconfig:"REKTRESCUE_RPC_RATE_LIMIT" default:"10"`
}

// Load reads configuration from .env file (if present) then from environment variables.
// Environment variables override .env values.
func Load() (*Config, error) {
	// godotenv does NOT override already-set env vars.
	envFiles := []string{".env"}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				slog.Warn("failed to load .env file", "file", f, "error", err)
			} else {
				slog.Info("loaded .env file", "file", f)
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("%w: chain id must be non-zero", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.LogBatchSize < 1 || c.LogBatchSize > MaxLogBatchSize {
		return fmt.Errorf("%w: log batch size must be 1-%d, got %d", ErrInvalidConfig, MaxLogBatchSize, c.LogBatchSize)
	}
	if c.DefaultBlockWindow < 1 || c.DefaultBlockWindow > MaxBlockWindow {
		return fmt.Errorf("%w: default block window must be 1-%d, got %d", ErrInvalidConfig, MaxBlockWindow, c.DefaultBlockWindow)
	}
	if c.DustConcurrency < 1 {
		return fmt.Errorf("%w: dust concurrency must be >= 1, got %d", ErrInvalidConfig, c.DustConcurrency)
	}
	if c.RPCRateLimit < 1 {
		return fmt.Errorf("%w: rpc rate limit must be >= 1, got %d", ErrInvalidConfig, c.RPCRateLimit)
	}
	return nil
}
