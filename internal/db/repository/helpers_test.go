package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adamscao/captionapi/internal/db"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = db.RunMigrations(context.Background(), database)
	require.NoError(t, err)

	return database.DB
}
