package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/workorder-scheduler/internal/application"
	"github.com/example/workorder-scheduler/internal/testfixtures"
)

func TestRequireSessionWithAuthService(t *testing.T) {
	t.Parallel()

	const ttl = 12 * time.Hour

	user := testfixtures.NewUserFixture(testfixtures.WithUserDisplayName("Night Planner"))
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock))

	verify := func(hashed, password string) error {
		if hashed != password {
			return application.ErrInvalidCredentials
		}
		return nil
	}

	var authLog bytes.Buffer
	auth := factory.NewAuthService(testfixtures.AuthServiceDeps{
		Credentials:    gateCredentials{creds: user.Credentials()},
		Sessions:       &gateSessions{byToken: make(map[string]application.Session)},
		PasswordVerify: verify,
		SessionTTL:     ttl,
		Logger:         slog.New(slog.NewJSONHandler(&authLog, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	var seen application.Principal
	gate := RequireSession(auth, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/work-orders", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)
		return rec
	}
	login := func() string {
		result, err := auth.Authenticate(context.Background(), application.AuthenticateParams{
			Email:    user.Email,
			Password: user.PasswordHash,
		})
		require.NoError(t, err)
		return result.Session.Token
	}
	lastRejection := func() string {
		lines := strings.Split(strings.TrimSpace(authLog.String()), "\n")
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry), authLog.String())
		return entry["error"].(string)
	}

	shift := login()
	revoked := login()

	rec := call(shift)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, "Night Planner", seen.DisplayName)
	assert.Equal(t, user.ID, seen.UserID)

	require.NoError(t, auth.RevokeSession(context.Background(), revoked))
	rec = call(revoked)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), errInvalidSession.Error())
	assert.Contains(t, lastRejection(), application.ErrSessionRevoked.Error())

	clock.Advance(ttl)
	rec = call(shift)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), errInvalidSession.Error(), "clients see one message for both cases")
	assert.Contains(t, lastRejection(), application.ErrSessionExpired.Error())
}

type gateCredentials struct {
	creds application.UserCredentials
}

func (g gateCredentials) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	if email != g.creds.User.Email {
		return application.UserCredentials{}, application.ErrNotFound
	}
	return g.creds, nil
}

func (g gateCredentials) GetUser(ctx context.Context, id string) (application.User, error) {
	if id != g.creds.User.ID {
		return application.User{}, application.ErrNotFound
	}
	return g.creds.User, nil
}

type gateSessions struct {
	byToken map[string]application.Session
}

func (g *gateSessions) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	g.byToken[session.Token] = session
	return session, nil
}

func (g *gateSessions) GetSession(ctx context.Context, token string) (application.Session, error) {
	session, ok := g.byToken[token]
	if !ok {
		return application.Session{}, application.ErrNotFound
	}
	return session, nil
}

func (g *gateSessions) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	session, ok := g.byToken[token]
	if !ok {
		return application.Session{}, application.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	g.byToken[token] = session
	return session, nil
}

func (g *gateSessions) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	for token, session := range g.byToken {
		if !session.ExpiresAt.After(reference) {
			delete(g.byToken, token)
		}
	}
	return nil
}
