package config

import "time"

// Chains
const (
	ChainIDMainnet     = 1
	ChainIDSepolia     = 11155111
	ChainIDArbitrum    = 42161
	ChainIDPolygon     = 137
	ChainIDBase        = 8453
	ChainIDBaseSepolia = 84532

	// DefaultRegistryChainID is used when the active chain has no registry entry.
	DefaultRegistryChainID = ChainIDSepolia

	DefaultExplorerURL = "https://etherscan.io"
)

// Approval scanning
const (
	DefaultLogBatchSize     = 9000 // stays under the 10k block cap of free RPC tiers
	MaxLogBatchSize         = 10_000
	DefaultBlockWindow      = 5000
	MaxBlockWindow          = 10_000
	LogQueryConcurrency     = 4
	MaxScanRanges           = 1000 // per signature; ~9M blocks at the default batch size
	LargeApprovalThreshold  = "1000000000000000000000" // 10^21
	ApprovalDisplayDecimals = 18
)

// Dust scanning
const (
	DefaultDustConcurrency = 8
	TokenNamePlaceholder   = "-"
)

// Protocol risk
const (
	HealthFactorDecimals        = 18
	HealthFactorRiskThreshold   = "1.1"
	HealthFactorDisplayDecimals = 2
)

// Manual actions
const (
	DefaultApproveAmount   = "100" // whole tokens, scaled by ApproveAmountDecimals
	ApproveAmountDecimals  = 18
	GasLimitFallback       = 100_000
	GasPriceBufferNumer    = 12
	GasPriceBufferDenom    = 10
	GasLimitBufferNumer    = 12
	GasLimitBufferDenom    = 10
	SubmissionListMaxLimit = 500
)

// Rate Limiting (requests per second)
const (
	RateLimitRPC       = 10
	RateLimitEtherscan = 5
	RateLimitBackoff   = 5 * time.Second // pause after a throttling response without Retry-After
)

// Circuit Breaker
const (
	CircuitBreakerThreshold   = 3
	CircuitBreakerCooldown    = 30 * time.Second
	CircuitBreakerHalfOpenMax = 1

	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// Provider
const (
	ProviderRequestTimeout = 20 * time.Second
	HealthCheckTimeout     = 5 * time.Second
)

// Server
const (
	ServerReadTimeout    = 30 * time.Second
	ServerWriteTimeout   = 120 * time.Second
	ServerIdleTimeout    = 60 * time.Second
	ServerMaxHeaderBytes = 1 << 20
	ShutdownTimeout      = 30 * time.Second
	MaxRequestBodyBytes  = 1 << 16
)

// Logging
const (
	LogFilePrefix  = "rektrescue-"
	LogFilePattern = "rektrescue-%s.log" // %s = YYYY-MM-DD
	LogMaxAgeDays  = 30
)

// Database
const (
	DBBusyTimeout = 5000 // milliseconds
)
