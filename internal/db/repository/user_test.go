package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/captionapi/internal/models"
)

func createUser(t *testing.T, repo *UserRepository, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "hash-" + email}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestCreateInitialisesQuota(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 20)

	user := createUser(t, repo, "a@x.com")
	assert.NotZero(t, user.ID)
	assert.Equal(t, models.RoleUser, user.Role)

	remaining, err := repo.GetAPIQuota(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, remaining)

	got, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hash-a@x.com", got.PasswordHash)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 20)

	createUser(t, repo, "a@x.com")

	err := repo.Create(ctx, &models.User{Email: "a@x.com", PasswordHash: "other", Role: models.RoleAdmin})
	require.ErrorIs(t, err, ErrDuplicateEmail)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEmailIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 20)

	createUser(t, repo, "a@x.com")
	createUser(t, repo, "A@x.com")

	_, err := repo.GetByEmail(ctx, "A@X.COM")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetMissingUser(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 20)

	_, err := repo.GetByID(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.GetAPIQuota(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 20)
	user := createUser(t, repo, "a@x.com")

	require.NoError(t, repo.UpdatePasswordHash(ctx, "a@x.com", "new-hash"))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, models.RoleUser, got.Role)

	remaining, err := repo.GetAPIQuota(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, remaining)

	require.ErrorIs(t, repo.UpdatePasswordHash(ctx, "gone@x.com", "h"), ErrNotFound)
}

func TestUpdateRoleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 20)
	user := createUser(t, repo, "a@x.com")

	require.NoError(t, repo.UpdateRole(ctx, user.ID, models.RoleAdmin))
	require.NoError(t, repo.UpdateRole(ctx, user.ID, models.RoleAdmin))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())

	require.ErrorIs(t, repo.UpdateRole(ctx, 9999, models.RoleAdmin), ErrNotFound)
}

func TestDeleteRemovesQuota(t *testing.T) {
	ctx := context.Background()
	sqlDB := newTestDB(t)
	repo := NewUserRepository(sqlDB, 20)
	user := createUser(t, repo, "a@x.com")

	require.NoError(t, repo.Delete(ctx, user.ID))

	_, err := repo.GetByID(ctx, user.ID)
	require.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_quotas`).Scan(&orphans))
	assert.Zero(t, orphans)

	require.ErrorIs(t, repo.Delete(ctx, user.ID), ErrNotFound)
}

func TestListProjection(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 20)
	a := createUser(t, repo, "a@x.com")
	b := createUser(t, repo, "b@x.com")
	require.NoError(t, repo.UpdateRole(ctx, b.ID, models.RoleAdmin))
	_, err := repo.DecrementAPIQuota(ctx, a.ID)
	require.NoError(t, err)

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, &models.UserSummary{ID: a.ID, Email: "a@x.com", Role: models.RoleUser, APICount: 19}, users[0])
	assert.Equal(t, &models.UserSummary{ID: b.ID, Email: "b@x.com", Role: models.RoleAdmin, APICount: 20}, users[1])
}

func TestDecrementStopsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t), 2)
	user := createUser(t, repo, "a@x.com")

	remaining, err := repo.DecrementAPIQuota(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	remaining, err = repo.DecrementAPIQuota(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	remaining, err = repo.DecrementAPIQuota(ctx, user.ID)
	require.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Equal(t, 0, remaining)

	_, err = repo.DecrementAPIQuota(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentDecrementNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	const quota, callers = 5, 25

	repo := NewUserRepository(newTestDB(t), quota)
	user := createUser(t, repo, "a@x.com")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.DecrementAPIQuota(ctx, user.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrQuotaExhausted):
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, quota, succeeded)
	assert.Equal(t, callers-quota, exhausted)

	remaining, err := repo.GetAPIQuota(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}
