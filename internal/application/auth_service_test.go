package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionTTL = 8 * time.Hour

var planner = UserCredentials{
	User:         User{ID: "user-7", Email: "planner@example.com", DisplayName: "Morgan Reyes"},
	PasswordHash: "night-shift",
}

type authClock struct{ now time.Time }

func (c *authClock) Now() time.Time { return c.now }

// newTestAuthService issues sequential session ids and tokens so both are
// predictable in assertions.
func newTestAuthService(creds CredentialStore, sessions SessionRepository, clock *authClock) *AuthService {
	seq := 0
	next := func() string {
		seq++
		return fmt.Sprintf("tok-%d", seq)
	}
	return NewAuthService(creds, sessions, plainVerifier, next, clock.Now, testSessionTTL)
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()

	t.Run("issues a session and prunes expired ones first", func(t *testing.T) {
		t.Parallel()

		clock := &authClock{now: testNow}
		sessions := newSessionRepositoryStub()
		sessions.seed(Session{ID: "stale", UserID: planner.User.ID, Token: "stale-token", ExpiresAt: testNow.Add(-time.Minute)})
		sessions.seed(Session{ID: "live", UserID: planner.User.ID, Token: "live-token", ExpiresAt: testNow.Add(time.Hour)})
		svc := newTestAuthService(&credentialStoreStub{credentials: planner}, sessions, clock)

		result, err := svc.Authenticate(context.Background(), AuthenticateParams{
			Email:       "  Planner@Example.com ",
			Password:    "night-shift",
			Fingerprint: " tablet-3 ",
		})
		require.NoError(t, err)

		assert.Equal(t, planner.User, result.User)
		assert.Equal(t, "tok-1", result.Session.ID)
		assert.Equal(t, "tok-2", result.Session.Token)
		assert.Equal(t, "tablet-3", result.Session.Fingerprint)
		assert.True(t, testNow.Add(testSessionTTL).Equal(result.Session.ExpiresAt))

		assert.Equal(t, []time.Time{testNow}, sessions.deleteCalls)
		assert.NotContains(t, sessions.tokenToID, "stale-token")
		assert.Contains(t, sessions.tokenToID, "live-token")
		assert.Contains(t, sessions.tokenToID, "tok-2")
	})

	t.Run("rejected logins never touch the session store", func(t *testing.T) {
		t.Parallel()

		tests := map[string]AuthenticateParams{
			"unknown account": {Email: "nobody@example.com", Password: "night-shift"},
			"wrong password":  {Email: planner.User.Email, Password: "day-shift"},
			"blank password":  {Email: planner.User.Email},
		}
		for name, params := range tests {
			params := params
			t.Run(name, func(t *testing.T) {
				t.Parallel()

				creds := &credentialStoreStub{credentials: planner}
				if name == "unknown account" {
					creds = &credentialStoreStub{}
				}
				sessions := newSessionRepositoryStub()
				svc := newTestAuthService(creds, sessions, &authClock{now: testNow})

				_, err := svc.Authenticate(context.Background(), params)
				require.ErrorIs(t, err, ErrInvalidCredentials)
				assert.Empty(t, sessions.sessionsByID)
				assert.Empty(t, sessions.deleteCalls)
			})
		}
	})

	t.Run("store failures are not reported as bad credentials", func(t *testing.T) {
		t.Parallel()

		sessions := newSessionRepositoryStub()
		sessions.createErr = errors.New("database is locked")
		svc := newTestAuthService(&credentialStoreStub{credentials: planner}, sessions, &authClock{now: testNow})

		_, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: planner.User.Email, Password: "night-shift"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthService_SessionGate(t *testing.T) {
	t.Parallel()

	login := func(t *testing.T, svc *AuthService) string {
		t.Helper()
		result, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: planner.User.Email, Password: "night-shift"})
		require.NoError(t, err)
		return result.Session.Token
	}

	t.Run("a live session resolves to the planner", func(t *testing.T) {
		t.Parallel()

		svc := newTestAuthService(&credentialStoreStub{credentials: planner}, newSessionRepositoryStub(), &authClock{now: testNow})
		principal, err := svc.ValidateSession(context.Background(), " "+login(t, svc)+" ")
		require.NoError(t, err)
		assert.Equal(t, Principal{UserID: "user-7", DisplayName: "Morgan Reyes"}, principal)
	})

	t.Run("expiry and revocation are told apart", func(t *testing.T) {
		t.Parallel()

		clock := &authClock{now: testNow}
		svc := newTestAuthService(&credentialStoreStub{credentials: planner}, newSessionRepositoryStub(), clock)
		expiring := login(t, svc)
		revoked := login(t, svc)

		require.NoError(t, svc.RevokeSession(context.Background(), revoked))
		_, err := svc.ValidateSession(context.Background(), revoked)
		assert.ErrorIs(t, err, ErrSessionRevoked)

		clock.now = testNow.Add(testSessionTTL)
		_, err = svc.ValidateSession(context.Background(), expiring)
		assert.ErrorIs(t, err, ErrSessionExpired)
	})

	t.Run("logout prunes sessions that have already expired", func(t *testing.T) {
		t.Parallel()

		clock := &authClock{now: testNow}
		sessions := newSessionRepositoryStub()
		svc := newTestAuthService(&credentialStoreStub{credentials: planner}, sessions, clock)
		old := login(t, svc)

		clock.now = testNow.Add(testSessionTTL + time.Minute)
		current := login(t, svc)
		sessions.seed(Session{ID: "left-over", Token: "left-over", ExpiresAt: clock.now.Add(-time.Second)})

		require.NoError(t, svc.RevokeSession(context.Background(), current))
		assert.NotContains(t, sessions.tokenToID, old)
		assert.NotContains(t, sessions.tokenToID, "left-over")
		assert.Contains(t, sessions.tokenToID, current, "revoked sessions are kept until they expire")
	})

	t.Run("unknown or orphaned tokens are unauthorized", func(t *testing.T) {
		t.Parallel()

		sessions := newSessionRepositoryStub()
		sessions.seed(Session{ID: "orphan", UserID: "user-deleted", Token: "orphan", ExpiresAt: testNow.Add(time.Hour)})
		svc := newTestAuthService(&credentialStoreStub{credentials: planner}, sessions, &authClock{now: testNow})

		_, err := svc.ValidateSession(context.Background(), "never-issued")
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = svc.ValidateSession(context.Background(), "orphan")
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = svc.ValidateSession(context.Background(), "   ")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		assert.ErrorIs(t, svc.RevokeSession(context.Background(), "never-issued"), ErrInvalidCredentials)
	})

	t.Run("misconfigured services fail closed", func(t *testing.T) {
		t.Parallel()

		var nilService *AuthService
		_, err := nilService.ValidateSession(context.Background(), "tok")
		assert.Error(t, err)

		noSessions := NewAuthService(&credentialStoreStub{credentials: planner}, nil, plainVerifier, nil, nil, 0)
		_, err = noSessions.ValidateSession(context.Background(), "tok")
		assert.Error(t, err)
		assert.Error(t, noSessions.RevokeSession(context.Background(), "tok"))
	})
}

func TestAuthService_PrincipalSignsActivityLog(t *testing.T) {
	t.Parallel()

	svc := newTestAuthService(&credentialStoreStub{credentials: planner}, newSessionRepositoryStub(), &authClock{now: testNow})
	login, err := svc.Authenticate(context.Background(), AuthenticateParams{Email: planner.User.Email, Password: "night-shift"})
	require.NoError(t, err)
	principal, err := svc.ValidateSession(context.Background(), login.Session.Token)
	require.NoError(t, err)

	store := newWorkOrderStoreStub()
	orders := newTestWorkOrderService(store)

	_, err = orders.ExpandRecurrence(context.Background(), ExpandRecurrenceParams{
		Principal: principal,
		Template: WorkOrderTemplate{
			TeamIDs:      []string{"T1"},
			PlannedStart: at(2, 9, 0),
			PlannedEnd:   mo.Some(at(2, 10, 0)),
		},
		RecurrenceType:     "daily",
		RecurrenceInterval: 1,
		RecurrenceEndDate:  at(3, 0, 0),
	})
	require.NoError(t, err)

	created := store.all()
	require.Len(t, created, 2)
	for _, order := range created {
		assert.Equal(t, "user-7", order.CreatedBy)
		require.Len(t, order.ActivityLog, 1)
		assert.Equal(t, "Morgan Reyes", order.ActivityLog[0].Actor)
	}

	conflicting := []WorkOrder{created[0], created[1]}
	conflicting[1].PlannedStart = ptrTime(at(2, 9, 30))
	conflicting[1].PlannedEnd = ptrTime(at(2, 10, 30))
	_, err = orders.ResolveOverlaps(context.Background(), ResolveOverlapsParams{
		Principal:  Principal{UserID: principal.UserID},
		WorkOrders: conflicting,
	})
	require.NoError(t, err)

	adjusted := store.get(created[1].ID)
	require.Len(t, adjusted.ActivityLog, 2)
	assert.Equal(t, ActionScheduleAdjusted, adjusted.ActivityLog[1].Action)
	assert.Equal(t, "user-7", adjusted.ActivityLog[1].Actor, "without a display name the user id is recorded")
}

func plainVerifier(hashed, password string) error {
	if hashed != password {
		return ErrInvalidCredentials
	}
	return nil
}

// credentialStoreStub serves a single account.
type credentialStoreStub struct {
	credentials UserCredentials
	err         error
}

func (c *credentialStoreStub) GetUserCredentialsByEmail(ctx context.Context, email string) (UserCredentials, error) {
	if c.err != nil {
		return UserCredentials{}, c.err
	}
	if c.credentials.User.ID == "" || c.credentials.User.Email != email {
		return UserCredentials{}, ErrNotFound
	}
	return c.credentials, nil
}

func (c *credentialStoreStub) GetUser(ctx context.Context, id string) (User, error) {
	if c.err != nil {
		return User{}, c.err
	}
	if c.credentials.User.ID == "" || c.credentials.User.ID != id {
		return User{}, ErrNotFound
	}
	return c.credentials.User, nil
}

// sessionRepositoryStub keeps sessions in maps keyed by id and token.
type sessionRepositoryStub struct {
	sessionsByID map[string]Session
	tokenToID    map[string]string

	createErr error

	deleteCalls []time.Time
}

func newSessionRepositoryStub() *sessionRepositoryStub {
	return &sessionRepositoryStub{
		sessionsByID: make(map[string]Session),
		tokenToID:    make(map[string]string),
	}
}

func (s *sessionRepositoryStub) seed(session Session) {
	s.sessionsByID[session.ID] = session
	s.tokenToID[session.Token] = session.ID
}

func (s *sessionRepositoryStub) CreateSession(ctx context.Context, session Session) (Session, error) {
	if s.createErr != nil {
		return Session{}, s.createErr
	}
	s.seed(session)
	return session, nil
}

func (s *sessionRepositoryStub) GetSession(ctx context.Context, token string) (Session, error) {
	id, ok := s.tokenToID[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s.sessionsByID[id], nil
}

func (s *sessionRepositoryStub) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error) {
	id, ok := s.tokenToID[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	session := s.sessionsByID[id]
	session.RevokedAt = &revokedAt
	session.UpdatedAt = revokedAt
	s.sessionsByID[id] = session
	return session, nil
}

func (s *sessionRepositoryStub) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	s.deleteCalls = append(s.deleteCalls, reference)
	for id, session := range s.sessionsByID {
		if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(reference) {
			delete(s.sessionsByID, id)
			delete(s.tokenToID, session.Token)
		}
	}
	return nil
}
