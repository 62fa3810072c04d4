package registry

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultRegistry []byte

type fileChain struct {
	ID               uint64   `yaml:"id"`
	Label            string   `yaml:"label"`
	RPC              []string `yaml:"rpc"`
	LendingPool      string   `yaml:"lending_pool"`
	MoneyMarket      string   `yaml:"money_market"`
	LiquidityManager string   `yaml:"liquidity_manager"`
}

type file struct {
	DefaultChain uint64            `yaml:"default_chain"`
	Chains       []fileChain       `yaml:"chains"`
	Explorers    map[uint64]string `yaml:"explorers"`
	Spenders     map[string]string `yaml:"spenders"`
}

// Chain is one network's protocol deployment. A zero address means the
// protocol has no known deployment there.
type Chain struct {
	ID               uint64
	Label            string
	RPCURLs          []string
	LendingPool      common.Address
	MoneyMarket      common.Address
	LiquidityManager common.Address
}

// Registry is the read-only chain/spender table, built once at startup.
type Registry struct {
	defaultChain uint64
	chains       map[uint64]Chain
	explorers    map[uint64]string
	spenders     map[common.Address]string
}

// Load parses the embedded registry and, if overridePath is set, merges the
// file on top of it: chains are replaced by id, explorers and spenders are merged.
func Load(overridePath string) (*Registry, error) {
	var base file
	if err := yaml.Unmarshal(defaultRegistry, &base); err != nil {
		return nil, fmt.Errorf("parse embedded registry: %w", err)
	}

	if overridePath != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read registry override: %w", err)
		}
		var override file
		if err := yaml.Unmarshal(raw, &override); err != nil {
			return nil, fmt.Errorf("parse registry override: %w", err)
		}
		base = merge(base, override)
		slog.Info("registry override applied", "path", overridePath)
	}

	return build(base)
}

func merge(base, override file) file {
	if override.DefaultChain != 0 {
		base.DefaultChain = override.DefaultChain
	}

	for _, oc := range override.Chains {
		replaced := false
		for i := range base.Chains {
			if base.Chains[i].ID == oc.ID {
				base.Chains[i] = oc
				replaced = true
				break
			}
		}
		if !replaced {
			base.Chains = append(base.Chains, oc)
		}
	}

	if base.Explorers == nil {
		base.Explorers = map[uint64]string{}
	}
	for id, u := range override.Explorers {
		base.Explorers[id] = u
	}

	if base.Spenders == nil {
		base.Spenders = map[string]string{}
	}
	for name, addr := range override.Spenders {
		base.Spenders[name] = addr
	}
	return base
}

func build(f file) (*Registry, error) {
	r := &Registry{
		defaultChain: f.DefaultChain,
		chains:       make(map[uint64]Chain, len(f.Chains)),
		explorers:    make(map[uint64]string, len(f.Explorers)),
		spenders:     make(map[common.Address]string, len(f.Spenders)),
	}
	if r.defaultChain == 0 {
		r.defaultChain = config.DefaultRegistryChainID
	}

	for _, c := range f.Chains {
		if c.ID == 0 {
			return nil, fmt.Errorf("%w: registry chain id is required", config.ErrInvalidConfig)
		}
		if _, dup := r.chains[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate registry chain %d", config.ErrInvalidConfig, c.ID)
		}
		r.chains[c.ID] = Chain{
			ID:               c.ID,
			Label:            strings.TrimSpace(c.Label),
			RPCURLs:          c.RPC,
			LendingPool:      parseAddress(c.ID, "lending_pool", c.LendingPool),
			MoneyMarket:      parseAddress(c.ID, "money_market", c.MoneyMarket),
			LiquidityManager: parseAddress(c.ID, "liquidity_manager", c.LiquidityManager),
		}
	}

	if _, ok := r.chains[r.defaultChain]; !ok {
		return nil, fmt.Errorf("%w: default chain %d has no registry entry", config.ErrInvalidConfig, r.defaultChain)
	}

	for id, u := range f.Explorers {
		r.explorers[id] = strings.TrimRight(u, "/")
	}

	for name, raw := range f.Spenders {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("%w: spender %s has malformed address %q", config.ErrInvalidConfig, name, raw)
		}
		r.spenders[common.HexToAddress(raw)] = name
	}

	slog.Info("registry loaded",
		"chains", len(r.chains),
		"explorers", len(r.explorers),
		"spenders", len(r.spenders),
		"defaultChain", r.defaultChain,
	)
	return r, nil
}

// parseAddress returns the zero address for empty or malformed entries.
func parseAddress(chainID uint64, field, raw string) common.Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(raw) {
		slog.Warn("registry address malformed, treating as absent",
			"chainID", chainID,
			"field", field,
			"value", raw,
		)
		return common.Address{}
	}
	return common.HexToAddress(raw)
}

// Chain returns the exact entry for id.
func (r *Registry) Chain(id uint64) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// Resolve returns the entry for id, or the default chain's entry when id is unknown.
func (r *Registry) Resolve(id uint64) Chain {
	if c, ok := r.chains[id]; ok {
		return c
	}
	slog.Debug("chain not in registry, using default", "chainID", id, "default", r.defaultChain)
	return r.chains[r.defaultChain]
}

// SpenderName returns the display name of a well-known spender.
func (r *Registry) SpenderName(addr common.Address) (string, bool) {
	name, ok := r.spenders[addr]
	return name, ok
}

// ExplorerURL returns the block explorer base URL for a chain.
func (r *Registry) ExplorerURL(chainID uint64) string {
	if u, ok := r.explorers[chainID]; ok {
		return u
	}
	return config.DefaultExplorerURL
}

func (r *Registry) TxURL(chainID uint64, hash common.Hash) string {
	return r.ExplorerURL(chainID) + "/tx/" + hash.Hex()
}

func (r *Registry) AddressURL(chainID uint64, addr common.Address) string {
	return r.ExplorerURL(chainID) + "/address/" + addr.Hex()
}

func (r *Registry) TokenURL(chainID uint64, token common.Address) string {
	return r.ExplorerURL(chainID) + "/token/" + token.Hex()
}
