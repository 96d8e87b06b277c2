package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adamscao/captionapi/internal/models"
)

// EndpointStatsRepository is the per-route request ledger
type EndpointStatsRepository struct {
	db *sql.DB
}

// NewEndpointStatsRepository creates a new endpoint stats repository
func NewEndpointStatsRepository(db *sql.DB) *EndpointStatsRepository {
	return &EndpointStatsRepository{db: db}
}

// RecordHit creates the (method, endpoint) row on first sight, otherwise increments it
func (r *EndpointStatsRepository) RecordHit(ctx context.Context, method, endpoint string) error {
	query := `
		INSERT INTO endpoint_stats (method, endpoint, requests)
		VALUES (?, ?, 1)
		ON CONFLICT(method, endpoint)
		DO UPDATE SET requests = requests + 1
	`

	if _, err := r.db.ExecContext(ctx, query, method, endpoint); err != nil {
		return fmt.Errorf("failed to record endpoint hit: %w", err)
	}

	return nil
}

// List returns all counters, busiest first. Ties keep insertion order.
func (r *EndpointStatsRepository) List(ctx context.Context) ([]*models.EndpointStat, error) {
	query := `
		SELECT method, endpoint, requests
		FROM endpoint_stats
		ORDER BY requests DESC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoint stats: %w", err)
	}
	defer rows.Close()

	stats := []*models.EndpointStat{}

	for rows.Next() {
		stat := &models.EndpointStat{}
		if err := rows.Scan(&stat.Method, &stat.Endpoint, &stat.Requests); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint stat: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list endpoint stats: %w", err)
	}

	return stats, nil
}
