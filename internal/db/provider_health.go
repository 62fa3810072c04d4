package db

import (
	"context"
	"fmt"
	"log/slog"
)

// ProviderHealthRow is the last known state of one RPC endpoint.
type ProviderHealthRow struct {
	Endpoint     string `json:"endpoint"`
	ChainID      uint64 `json:"chainId"`
	Status       string `json:"status"`
	LatencyMs    int64  `json:"latencyMs"`
	LastError    string `json:"lastError,omitempty"`
	CircuitState string `json:"circuitState"`
	UpdatedAt    string `json:"updatedAt"`
}

// UpsertProviderHealth inserts or replaces an endpoint's health record.
func (d *DB) UpsertProviderHealth(ctx context.Context, ph ProviderHealthRow) error {
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO provider_health (endpoint, chain_id, status, latency_ms, last_error, circuit_state)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET
		   chain_id = excluded.chain_id,
		   status = excluded.status,
		   latency_ms = excluded.latency_ms,
		   last_error = excluded.last_error,
		   circuit_state = excluded.circuit_state,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`,
		ph.Endpoint, ph.ChainID, ph.Status, ph.LatencyMs, ph.LastError, ph.CircuitState,
	)
	if err != nil {
		return fmt.Errorf("upsert provider health %s: %w", ph.Endpoint, err)
	}

	slog.Debug("provider health upserted",
		"endpoint", ph.Endpoint,
		"status", ph.Status,
		"circuitState", ph.CircuitState,
	)
	return nil
}

// ListProviderHealth returns every endpoint's record for a chain.
func (d *DB) ListProviderHealth(ctx context.Context, chainID uint64) ([]ProviderHealthRow, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT endpoint, chain_id, status, latency_ms, last_error, circuit_state, updated_at
		 FROM provider_health
		 WHERE chain_id = ?
		 ORDER BY endpoint ASC`,
		chainID,
	)
	if err != nil {
		return nil, fmt.Errorf("query provider health for chain %d: %w", chainID, err)
	}
	defer rows.Close()

	out := []ProviderHealthRow{}
	for rows.Next() {
		var ph ProviderHealthRow
		if err := rows.Scan(&ph.Endpoint, &ph.ChainID, &ph.Status, &ph.LatencyMs,
			&ph.LastError, &ph.CircuitState, &ph.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan provider health row: %w", err)
		}
		out = append(out, ph)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate provider health rows: %w", err)
	}
	return out, nil
}
