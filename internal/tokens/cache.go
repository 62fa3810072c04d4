package tokens

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SymbolReader resolves a token's symbol accessor.
type SymbolReader interface {
	Symbol(ctx context.Context, token common.Address) (string, error)
}

// SymbolCache memoizes token symbols for the lifetime of the process.
// A failed lookup is cached as "" and never retried.
type SymbolCache struct {
	reader  SymbolReader
	mu      sync.RWMutex
	entries map[string]string // lowercase hex address -> symbol
	group   singleflight.Group
}

func NewSymbolCache(reader SymbolReader) *SymbolCache {
	return &SymbolCache{
		reader:  reader,
		entries: make(map[string]string),
	}
}

func cacheKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// Lookup returns the cached symbol without touching the network.
func (c *SymbolCache) Lookup(addr common.Address) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[cacheKey(addr)]
	return s, ok
}

// Resolve returns the cached symbol, fetching it on first sight.
// Concurrent first lookups of one address share a single call; if the caller
// that started it is cancelled, a caller whose context is still live retries.
func (c *SymbolCache) Resolve(ctx context.Context, addr common.Address) string {
	if s, ok := c.Lookup(addr); ok {
		return s
	}

	key := cacheKey(addr)
	for {
		v, _, _ := c.group.Do(key, func() (interface{}, error) {
			return c.fetch(ctx, addr, key), nil
		})
		r := v.(lookup)
		if r.cached || ctx.Err() != nil {
			return r.symbol
		}
	}
}

type lookup struct {
	symbol string
	cached bool
}

func (c *SymbolCache) fetch(ctx context.Context, addr common.Address, key string) lookup {
	if s, ok := c.Lookup(addr); ok {
		return lookup{symbol: s, cached: true}
	}

	symbol, err := c.reader.Symbol(ctx, addr)
	if err != nil && ctx.Err() != nil {
		// Cancelled; leave the address unresolved.
		return lookup{}
	}
	if err != nil {
		slog.Warn("token symbol lookup failed, caching empty",
			"token", addr.Hex(),
			"error", err,
		)
		symbol = ""
	}

	c.mu.Lock()
	c.entries[key] = symbol
	c.mu.Unlock()

	return lookup{symbol: symbol, cached: true}
}

// ResolveAll resolves every address not yet cached and returns the symbols
// of all of them.
func (c *SymbolCache) ResolveAll(ctx context.Context, addrs []common.Address) map[common.Address]string {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.LogQueryConcurrency)

	seen := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if _, ok := c.Lookup(a); ok {
			continue
		}
		g.Go(func() error {
			c.Resolve(gctx, a)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[common.Address]string, len(seen))
	for a := range seen {
		s, _ := c.Lookup(a)
		out[a] = s
	}
	return out
}

// Len returns the number of cached entries.
func (c *SymbolCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
