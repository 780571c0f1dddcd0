package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// defaultSessionTTL applies when the configured lifetime is not positive.
const defaultSessionTTL = 24 * time.Hour

// CredentialStore resolves accounts for login and session checks.
type CredentialStore interface {
	GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error)
	GetUser(ctx context.Context, id string) (User, error)
}

// SessionRepository persists issued sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService gates the work-order API behind bearer sessions.
type AuthService struct {
	credentials    CredentialStore
	sessions       SessionRepository
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger
}

// NewAuthService is NewAuthServiceWithLogger with the default logger.
func NewAuthService(credentials CredentialStore, sessions SessionRepository, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(credentials, sessions, verify, tokenGenerator, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger wires the auth service. A nil verifier checks
// argon2id hashes; tokenGenerator is called twice per login, once for the
// session id and once for the bearer token.
func NewAuthServiceWithLogger(credentials CredentialStore, sessions SessionRepository, verify PasswordVerifier, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	s := &AuthService{
		credentials:    credentials,
		sessions:       sessions,
		verifyPassword: verify,
		tokenGenerator: tokenGenerator,
		now:            now,
		sessionTTL:     sessionTTL,
		logger:         defaultLogger(logger),
	}
	if s.verifyPassword == nil {
		s.verifyPassword = VerifyPassword
	}
	if s.tokenGenerator == nil {
		s.tokenGenerator = func() string { return "" }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}
	return s
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

var (
	errAuthServiceNil       = errors.New("AuthService is nil")
	errNoCredentialStore    = errors.New("credential store not configured")
	errNoSessionsRepository = errors.New("session repository not configured")
)

// check reports a wiring error for the dependencies an operation needs.
func (s *AuthService) check(needCredentials, needSessions bool) error {
	switch {
	case s == nil:
		return errAuthServiceNil
	case needCredentials && s.credentials == nil:
		return errNoCredentialStore
	case needSessions && s.sessions == nil:
		return errNoSessionsRepository
	}
	return nil
}

// Authenticate checks an email and password and issues a session. Unknown
// accounts and wrong passwords both yield ErrInvalidCredentials. Expired
// sessions are pruned before the new one is stored.
func (s *AuthService) Authenticate(ctx context.Context, params AuthenticateParams) (result AuthenticateResult, err error) {
	if err = s.check(true, false); err != nil {
		return
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))
	logger := s.loggerWith(ctx, "Authenticate", "email", email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "authentication failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "authentication succeeded",
			"user_id", result.User.ID,
			"session_id", result.Session.ID,
		)
	}()

	if email == "" || params.Password == "" {
		err = ErrInvalidCredentials
		return
	}

	var creds UserCredentials
	if creds, err = s.credentials.GetUserCredentialsByEmail(ctx, email); err != nil {
		if isNotFoundError(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	if s.verifyPassword(creds.PasswordHash, params.Password) != nil {
		err = ErrInvalidCredentials
		return
	}

	session := s.newSession(creds.User.ID, params.Fingerprint)
	if s.sessions != nil {
		if err = s.sessions.DeleteExpiredSessions(ctx, session.CreatedAt); err != nil {
			return
		}
		if session, err = s.sessions.CreateSession(ctx, session); err != nil {
			return
		}
	}

	result = AuthenticateResult{User: creds.User, Session: session}
	return
}

func (s *AuthService) newSession(userID, fingerprint string) Session {
	now := s.now()
	id := s.tokenGenerator()
	token := s.tokenGenerator()
	if token == "" {
		token = id
	}
	return Session{
		ID:          id,
		UserID:      userID,
		Token:       token,
		Fingerprint: strings.TrimSpace(fingerprint),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.sessionTTL),
	}
}

// RevokeSession ends the session holding token. An unknown token yields
// ErrInvalidCredentials.
func (s *AuthService) RevokeSession(ctx context.Context, token string) (err error) {
	if err = s.check(false, true); err != nil {
		return
	}

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ErrInvalidCredentials
	}

	logger := s.loggerWith(ctx, "RevokeSession")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session revoked")
	}()

	now := s.now()
	if _, err = s.sessions.RevokeSession(ctx, trimmed, now); err != nil {
		if isNotFoundError(err) {
			err = ErrInvalidCredentials
		}
		return
	}
	return s.sessions.DeleteExpiredSessions(ctx, now)
}

// ValidateSession resolves token to the principal recorded on work orders the
// caller touches. Revoked and expired sessions are rejected with
// ErrSessionRevoked and ErrSessionExpired; a session whose user is gone
// yields ErrUnauthorized.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if err = s.check(true, true); err != nil {
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "session validated", "principal_id", principal.UserID)
	}()

	if trimmed == "" {
		err = ErrInvalidCredentials
		return
	}

	var session Session
	if session, err = s.sessions.GetSession(ctx, trimmed); err != nil {
		if isNotFoundError(err) {
			err = ErrUnauthorized
		}
		return
	}
	if err = sessionState(session, s.now()); err != nil {
		return
	}

	var user User
	if user, err = s.credentials.GetUser(ctx, session.UserID); err != nil {
		if isNotFoundError(err) {
			err = ErrUnauthorized
		}
		return
	}

	principal = Principal{UserID: user.ID, DisplayName: user.DisplayName, IsAdmin: user.IsAdmin}
	return
}

// sessionState returns nil when session is usable at now.
func sessionState(session Session, now time.Time) error {
	if session.RevokedAt != nil && !session.RevokedAt.IsZero() {
		return ErrSessionRevoked
	}
	if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(now) {
		return ErrSessionExpired
	}
	return nil
}
