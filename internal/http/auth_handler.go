package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/workorder-scheduler/internal/application"
)

const sessionCookieName = "session_token"

var errForbidden = errors.New("administrator privileges are required")

type authService interface {
	Authenticate(ctx context.Context, params application.AuthenticateParams) (application.AuthenticateResult, error)
	RevokeSession(ctx context.Context, token string) error
}

// AuthHandler issues and revokes bearer sessions.
type AuthHandler struct {
	service   authService
	validate  *validator.Validate
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, validate: newValidator(), responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// CreateSession handles POST /sessions.
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(ctx, "CreateSession", "error_kind", "bad_request").WarnContext(ctx, "failed to decode session request", "error", err)
		h.responder.writeProblem(ctx, w, r, http.StatusBadRequest, "bad_request", errBadRequestBody)
		return
	}
	if err := validateRequest(h.validate, req); err != nil {
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := h.log(ctx, "CreateSession", "email", email)

	result, err := h.service.Authenticate(ctx, application.AuthenticateParams{
		Email:       email,
		Password:    req.Password,
		Fingerprint: r.UserAgent(),
	})
	if err != nil {
		logger.WarnContext(ctx, "authentication rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	setSessionCookie(w, result.Session.Token, result.Session.ExpiresAt)
	w.Header().Set("X-Session-Token", result.Session.Token)
	logger.InfoContext(ctx, "user authenticated", "user_id", result.User.ID)

	h.responder.writeJSON(ctx, w, http.StatusCreated, loginResponse{
		Token:     result.Session.Token,
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339Nano),
		Principal: principalDTO{
			UserID:      result.User.ID,
			DisplayName: result.User.DisplayName,
			IsAdmin:     result.User.IsAdmin,
		},
	})
}

// DeleteCurrentSession handles DELETE /sessions/current.
func (h *AuthHandler) DeleteCurrentSession(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	token := extractTokenFromRequest(r)
	if token == "" {
		h.responder.writeProblem(ctx, w, r, http.StatusUnauthorized, "unauthorized", errMissingSessionToken)
		return
	}

	logger := h.log(ctx, "DeleteCurrentSession")
	if err := h.service.RevokeSession(ctx, token); err != nil {
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	clearSessionCookie(w)
	logger.InfoContext(ctx, "session revoked for current principal")
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

// DeleteSession handles DELETE /sessions/{token}; administrators only.
func (h *AuthHandler) DeleteSession(w http.ResponseWriter, r *http.Request, token string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	principal, ok := PrincipalFromContext(ctx)
	if !ok || !principal.IsAdmin {
		h.log(ctx, "DeleteSession", "error_kind", "forbidden").WarnContext(ctx, "non-administrator attempted session revocation")
		h.responder.writeProblem(ctx, w, r, http.StatusForbidden, "forbidden", errForbidden)
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := h.log(ctx, "DeleteSession", "actor_id", principal.UserID)
	if err := h.service.RevokeSession(ctx, trimmed); err != nil {
		logger.ErrorContext(ctx, "failed to revoke session", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(ctx, w, r, err)
		return
	}

	logger.InfoContext(ctx, "session revoked by administrator")
	h.responder.writeJSON(ctx, w, http.StatusNoContent, nil)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type principalDTO struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsAdmin     bool   `json:"is_admin"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	Principal principalDTO `json:"principal"`
}

func setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   true,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
	})
}

func extractTokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
