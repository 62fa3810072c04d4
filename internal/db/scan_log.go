package db

import (
	"context"
	"fmt"

	"github.com/Fantasim/rektrescue/internal/models"
)

// InsertScanLog records a completed scan run.
func (d *DB) InsertScanLog(ctx context.Context, e models.ScanLogEntry) (int64, error) {
	result, err := d.conn.ExecContext(ctx,
		`INSERT INTO scan_log (pipeline, owner, from_block, to_block, results, failures, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Pipeline, e.Owner, e.FromBlock, e.ToBlock, e.Results, e.Failures, e.DurationMs,
	)
	if err != nil {
		return 0, fmt.Errorf("insert scan log for %s: %w", e.Pipeline, err)
	}
	return result.LastInsertId()
}

// ListScanLog returns the newest runs first, optionally for one pipeline.
func (d *DB) ListScanLog(ctx context.Context, pipeline string, limit int) ([]models.ScanLogEntry, error) {
	limit = clampLimit(limit)

	query := `SELECT id, pipeline, owner, from_block, to_block, results, failures, duration_ms, created_at
		FROM scan_log`
	args := []interface{}{}
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan log: %w", err)
	}
	defer rows.Close()

	out := []models.ScanLogEntry{}
	for rows.Next() {
		var e models.ScanLogEntry
		if err := rows.Scan(&e.ID, &e.Pipeline, &e.Owner, &e.FromBlock, &e.ToBlock,
			&e.Results, &e.Failures, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scan log row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan log rows: %w", err)
	}
	return out, nil
}
