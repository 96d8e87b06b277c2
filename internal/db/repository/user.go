package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adamscao/captionapi/internal/db"
	"github.com/adamscao/captionapi/internal/models"
)

// UserRepository is the only reader and writer of users and api_quotas rows
type UserRepository struct {
	db           *sql.DB
	initialCalls int
}

// NewUserRepository creates a new user repository. Every user created through it
// starts with initialCalls metered API calls.
func NewUserRepository(db *sql.DB, initialCalls int) *UserRepository {
	return &UserRepository{db: db, initialCalls: initialCalls}
}

const userColumns = `id, email, password_hash, role, created_at, updated_at`

// Create creates a new user together with its API quota row
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	// Friendly pre-check; the UNIQUE constraint below is the backstop.
	if _, err := r.GetByEmail(ctx, user.Email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if user.Role == "" {
		user.Role = models.RoleUser
	}

	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.Querier) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO users (email, password_hash, role) VALUES (?, ?, ?)`,
			user.Email, user.PasswordHash, string(user.Role),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO api_quotas (user_id, remaining_calls) VALUES (?, ?)`,
			id, r.initialCalls,
		); err != nil {
			return fmt.Errorf("failed to create api quota: %w", err)
		}

		user.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	return nil
}

// GetByEmail retrieves a user by exact email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var role string

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Role = models.Role(role)
	return user, nil
}

// UpdatePasswordHash replaces the password hash of the user with the given email
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, email, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE email = ?`,
		passwordHash, email,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return expectAffected(result)
}

// UpdateRole sets the role of a user. Setting the current role again is a no-op.
func (r *UserRepository) UpdateRole(ctx context.Context, id int64, role models.Role) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(role), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	return expectAffected(result)
}

// Delete permanently deletes a user and its quota row
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context, tx db.Querier) error {
		// Also covered by ON DELETE CASCADE; explicit so no orphan survives
		// a connection opened without the foreign_keys pragma.
		if _, err := tx.ExecContext(ctx, `DELETE FROM api_quotas WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete api quota: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}

		return expectAffected(result)
	})
}

// List lists all users with their remaining quota
func (r *UserRepository) List(ctx context.Context) ([]*models.UserSummary, error) {
	query := `
		SELECT u.id, u.email, u.role, COALESCE(q.remaining_calls, 0)
		FROM users u
		LEFT JOIN api_quotas q ON q.user_id = u.id
		ORDER BY u.id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.UserSummary{}

	for rows.Next() {
		user := &models.UserSummary{}
		var role string

		if err := rows.Scan(&user.ID, &user.Email, &role, &user.APICount); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		user.Role = models.Role(role)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// Count returns the number of registered users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// GetAPIQuota returns the remaining metered calls of a user
func (r *UserRepository) GetAPIQuota(ctx context.Context, userID int64) (int, error) {
	var remaining int
	err := r.db.QueryRowContext(ctx,
		`SELECT remaining_calls FROM api_quotas WHERE user_id = ?`, userID,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get api quota: %w", err)
	}

	return remaining, nil
}

// DecrementAPIQuota consumes exactly one call and returns the remaining count.
// It returns ErrQuotaExhausted, without changing anything, when no calls remain.
func (r *UserRepository) DecrementAPIQuota(ctx context.Context, userID int64) (int, error) {
	var remaining int

	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.Querier) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE api_quotas SET remaining_calls = remaining_calls - 1
			 WHERE user_id = ? AND remaining_calls > 0`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to decrement api quota: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`SELECT remaining_calls FROM api_quotas WHERE user_id = ?`, userID,
		).Scan(&remaining)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read api quota: %w", err)
		}

		if n == 0 {
			return ErrQuotaExhausted
		}
		return nil
	})
	if err != nil {
		return remaining, err
	}

	return remaining, nil
}

// expectAffected maps a zero-row write to ErrNotFound
func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
