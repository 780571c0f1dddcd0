package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/workorder-scheduler/internal/persistence"
)

const userColumns = `id, email, display_name, password_hash, is_admin, created_at, updated_at`

// UserRepository implements persistence.UserRepository using SQLite
type UserRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewUserRepository creates a new SQLite user repository
func NewUserRepository(pool *ConnectionPool, now func() time.Time) *UserRepository {
	if now == nil {
		now = time.Now
	}
	return &UserRepository{pool: pool, mapper: NewErrorMapper(), now: now}
}

// CreateUser inserts a new user into the database
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := r.pool.DB().ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		normalizeEmail(user.Email),
		user.DisplayName,
		user.PasswordHash,
		user.IsAdmin,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetUser retrieves a user by ID from the database
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address from the database
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, normalized)
	user, err := scanUser(row)
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// ListUsers returns all users ordered by creation time.
func (r *UserRepository) ListUsers(ctx context.Context) ([]persistence.User, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	users := make([]persistence.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.IsAdmin,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.User{}, err
	}

	var err error
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return user, nil
}

// normalizeEmail normalizes email addresses for consistent storage and lookup
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
