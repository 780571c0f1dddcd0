package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/workorder-scheduler/internal/persistence"
)

// minPasswordLength is the shortest password accepted at registration.
const minPasswordLength = 8

// UserRepository captures the persistence operations needed by the user service.
type UserRepository interface {
	CreateUser(ctx context.Context, credentials UserCredentials) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// PasswordHasher turns a plain password into a storable hash.
type PasswordHasher func(password string) (string, error)

// UserService registers the accounts allowed to call the API.
type UserService struct {
	users       UserRepository
	hash        PasswordHasher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewUserService wires dependencies for the user service. A nil hasher uses
// argon2id with DefaultArgon2idParams.
func NewUserService(users UserRepository, hash PasswordHasher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *UserService {
	if hash == nil {
		hash = func(password string) (string, error) {
			return CreatePasswordHash(password, DefaultArgon2idParams)
		}
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &UserService{users: users, hash: hash, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

// CreateUser validates input, hashes the password and persists the account.
func (s *UserService) CreateUser(ctx context.Context, params CreateUserParams) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("UserService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	normalized := normalizeUserInput(params)
	logger := serviceLogger(ctx, s.logger, "UserService", "CreateUser", "email", normalized.Email)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "user registration failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	}()

	if vErr := validateUserInput(normalized); vErr.HasErrors() {
		err = vErr
		return
	}

	var hash string
	hash, err = s.hash(normalized.Password)
	if err != nil {
		err = fmt.Errorf("hash password: %w", err)
		return
	}

	now := s.now()
	user, err = s.users.CreateUser(ctx, UserCredentials{
		User: User{
			ID:          s.idGenerator(),
			Email:       normalized.Email,
			DisplayName: normalized.DisplayName,
			IsAdmin:     normalized.IsAdmin,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			err = ErrAlreadyExists
		}
		return
	}
	return
}

// ListUsers returns every registered account.
func (s *UserService) ListUsers(ctx context.Context) ([]User, error) {
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("user repository not configured")
	}
	return s.users.ListUsers(ctx)
}

func normalizeUserInput(params CreateUserParams) CreateUserParams {
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	params.DisplayName = strings.TrimSpace(params.DisplayName)
	return params
}

func validateUserInput(params CreateUserParams) *ValidationError {
	vErr := &ValidationError{}
	if params.Email == "" {
		vErr.add("email", "is required")
	} else if addr, err := mail.ParseAddress(params.Email); err != nil || addr.Address != params.Email {
		vErr.add("email", "must be a valid address")
	}
	if params.DisplayName == "" {
		vErr.add("display_name", "is required")
	}
	if len(params.Password) < minPasswordLength {
		vErr.add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	return vErr
}
