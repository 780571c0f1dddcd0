package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/workorder-scheduler/internal/persistence"
)

const sessionColumns = `id, user_id, token, fingerprint, expires_at, revoked_at, created_at, updated_at`

// SessionRepository implements persistence.SessionRepository using SQLite
type SessionRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	now    func() time.Time
}

// NewSessionRepository creates a new SQLite session repository
func NewSessionRepository(pool *ConnectionPool, now func() time.Time) *SessionRepository {
	if now == nil {
		now = time.Now
	}
	return &SessionRepository{pool: pool, mapper: NewErrorMapper(), now: now}
}

// CreateSession stores a new session token for a user
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	session.Token = strings.TrimSpace(session.Token)
	if session.ID == "" || session.UserID == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	now := r.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err := r.pool.DB().ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Token,
		strings.TrimSpace(session.Fingerprint),
		formatTime(session.ExpiresAt),
		nullableTime(session.RevokedAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	return r.GetSession(ctx, session.Token)
}

// GetSession retrieves a session by its token value
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token)
	session, err := scanSession(row)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// RevokeSession marks a session as revoked based on its token value
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	stamp := formatTime(revokedAt)
	result, err := r.pool.DB().ExecContext(ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?), updated_at = ? WHERE token = ?`,
		stamp, stamp, token,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.Session{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.Session{}, persistence.ErrNotFound
	}

	return r.GetSession(ctx, token)
}

// DeleteExpiredSessions removes sessions that expired on or before the provided timestamp
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.pool.DB().ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	return r.mapper.MapError(err)
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var (
		session                         persistence.Session
		expiresAt, createdAt, updatedAt string
		revokedAt                       sql.NullString
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.Fingerprint,
		&expiresAt,
		&revokedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Session{}, err
	}

	var err error
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if session.RevokedAt, err = parseNullableTime(revokedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse revoked_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return session, nil
}
