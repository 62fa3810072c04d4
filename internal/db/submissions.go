package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Fantasim/rektrescue/internal/config"
	"github.com/Fantasim/rektrescue/internal/models"
)

// InsertSubmission appends one submitted action to the ledger.
func (d *DB) InsertSubmission(ctx context.Context, s models.Submission) (int64, error) {
	result, err := d.conn.ExecContext(ctx,
		`INSERT INTO submissions (kind, chain_id, from_addr, token, target, value, tx_hash, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Kind, s.ChainID, s.From, s.Token, s.Target, s.Value, s.TxHash, s.Status, s.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	slog.Debug("submission recorded",
		"id", id,
		"kind", s.Kind,
		"status", s.Status,
		"txHash", s.TxHash,
	)
	return id, nil
}

// ListSubmissions returns the newest submissions first. limit is clamped
// to [1, SubmissionListMaxLimit].
func (d *DB) ListSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	limit = clampLimit(limit)

	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, kind, chain_id, from_addr, token, target, value, tx_hash, status, error, created_at
		 FROM submissions
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	out := []models.Submission{}
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.Kind, &s.ChainID, &s.From, &s.Token, &s.Target,
			&s.Value, &s.TxHash, &s.Status, &s.Error, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission rows: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit < 1:
		return config.SubmissionListMaxLimit
	case limit > config.SubmissionListMaxLimit:
		return config.SubmissionListMaxLimit
	default:
		return limit
	}
}
