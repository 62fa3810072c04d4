package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/metrics"
)

// Setup dials every configured endpoint and wraps them in a Pool.
// Endpoints that fail to dial are skipped; the returned func closes the rest.
func Setup(ctx context.Context, urls []string, rps int, m *metrics.Metrics) (*Pool, func(), error) {
	slog.Info("setting up chain data provider", "endpoints", len(urls))

	var (
		providers []*RPCProvider
		endpoints []Endpoint
	)
	for _, u := range urls {
		p, err := DialRPCProvider(ctx, u, rps, m)
		if err != nil {
			slog.Warn("rpc endpoint skipped", "endpoint", EndpointName(u), "error", err)
			continue
		}
		providers = append(providers, p)
		endpoints = append(endpoints, p)
	}

	if len(endpoints) == 0 {
		return nil, nil, fmt.Errorf("%w: none of %d rpc endpoints could be dialed", config.ErrProviderUnavailable, len(urls))
	}

	pool, err := NewPool(m, endpoints...)
	if err != nil {
		return nil, nil, err
	}

	closeAll := func() {
		for _, p := range providers {
			p.Close()
		}
	}
	return pool, closeAll, nil
}
