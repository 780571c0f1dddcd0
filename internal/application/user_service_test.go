package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/workorder-scheduler/internal/persistence"
)

func TestUserService_CreateUser(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	fakeHash := func(password string) (string, error) { return "hashed:" + password, nil }

	t.Run("validates input fields including email format", func(t *testing.T) {
		t.Parallel()

		repo := &userRepositoryStub{}
		svc := NewUserService(repo, fakeHash, func() string { return "user-1" }, func() time.Time { return now }, nil)

		_, err := svc.CreateUser(context.Background(), CreateUserParams{Email: "not-an-email", Password: "short"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"email", "display_name", "password"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s to be rejected, got %v", field, vErr.FieldErrors)
			}
		}
		if len(repo.created) != 0 {
			t.Fatalf("expected nothing to be persisted")
		}
	})

	t.Run("normalizes and persists hashed credentials", func(t *testing.T) {
		t.Parallel()

		repo := &userRepositoryStub{}
		svc := NewUserService(repo, fakeHash, func() string { return "user-1" }, func() time.Time { return now }, nil)

		user, err := svc.CreateUser(context.Background(), CreateUserParams{
			Email:       " Dispatcher@Example.com ",
			DisplayName: " Dana ",
			Password:    "long enough",
			IsAdmin:     true,
		})
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		if user.ID != "user-1" || user.Email != "dispatcher@example.com" || user.DisplayName != "Dana" || !user.IsAdmin {
			t.Fatalf("unexpected user %#v", user)
		}
		if len(repo.created) != 1 || repo.created[0].PasswordHash != "hashed:long enough" {
			t.Fatalf("expected hashed credentials to be stored, got %#v", repo.created)
		}
		if !repo.created[0].User.CreatedAt.Equal(now) {
			t.Fatalf("expected creation time from clock, got %v", repo.created[0].User.CreatedAt)
		}
	})

	t.Run("maps duplicate email violations to sentinel errors", func(t *testing.T) {
		t.Parallel()

		repo := &userRepositoryStub{err: fmt.Errorf("sqlite: %w", persistence.ErrDuplicate)}
		svc := NewUserService(repo, fakeHash, nil, nil, nil)

		_, err := svc.CreateUser(context.Background(), CreateUserParams{Email: "a@example.com", DisplayName: "A", Password: "long enough"})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("hashes with argon2id by default", func(t *testing.T) {
		t.Parallel()

		repo := &userRepositoryStub{}
		svc := NewUserService(repo, nil, func() string { return "user-1" }, nil, nil)

		if _, err := svc.CreateUser(context.Background(), CreateUserParams{Email: "a@example.com", DisplayName: "A", Password: "long enough"}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		if err := VerifyPassword(repo.created[0].PasswordHash, "long enough"); err != nil {
			t.Fatalf("expected stored hash to verify, got %v", err)
		}
	})
}

func TestUserService_ListUsers(t *testing.T) {
	t.Parallel()

	repo := &userRepositoryStub{}
	svc := NewUserService(repo, func(p string) (string, error) { return p, nil }, func() string { return "user-1" }, nil, nil)
	if _, err := svc.CreateUser(context.Background(), CreateUserParams{Email: "a@example.com", DisplayName: "A", Password: "long enough"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	users, err := svc.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != "user-1" {
		t.Fatalf("unexpected users %#v", users)
	}
}

type userRepositoryStub struct {
	created []UserCredentials
	err     error
}

func (s *userRepositoryStub) CreateUser(ctx context.Context, credentials UserCredentials) (User, error) {
	if s.err != nil {
		return User{}, s.err
	}
	s.created = append(s.created, credentials)
	return credentials.User, nil
}

func (s *userRepositoryStub) ListUsers(ctx context.Context) ([]User, error) {
	users := make([]User, 0, len(s.created))
	for _, c := range s.created {
		users = append(users, c.User)
	}
	return users, nil
}
