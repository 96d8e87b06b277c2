package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/captionapi/internal/models"
)

func TestRecordHitUpserts(t *testing.T) {
	ctx := context.Background()
	sqlDB := newTestDB(t)
	repo := NewEndpointStatsRepository(sqlDB)

	require.NoError(t, repo.RecordHit(ctx, "GET", "/admin"))
	require.NoError(t, repo.RecordHit(ctx, "GET", "/admin"))

	var rows int
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM endpoint_stats`).Scan(&rows))
	assert.Equal(t, 1, rows)

	stats, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*models.EndpointStat{{Method: "GET", Endpoint: "/admin", Requests: 2}}, stats)
}

func TestListOrdersByRequestsThenInsertion(t *testing.T) {
	ctx := context.Background()
	repo := NewEndpointStatsRepository(newTestDB(t))

	require.NoError(t, repo.RecordHit(ctx, "POST", "/login"))
	require.NoError(t, repo.RecordHit(ctx, "GET", "/protected"))
	require.NoError(t, repo.RecordHit(ctx, "POST", "/use-api"))
	require.NoError(t, repo.RecordHit(ctx, "POST", "/use-api"))
	// Same path, different method is a separate key.
	require.NoError(t, repo.RecordHit(ctx, "GET", "/login"))

	stats, err := repo.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, []*models.EndpointStat{
		{Method: "POST", Endpoint: "/use-api", Requests: 2},
		{Method: "POST", Endpoint: "/login", Requests: 1},
		{Method: "GET", Endpoint: "/protected", Requests: 1},
		{Method: "GET", Endpoint: "/login", Requests: 1},
	}, stats)
}

func TestListEmpty(t *testing.T) {
	stats, err := NewEndpointStatsRepository(newTestDB(t)).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}
