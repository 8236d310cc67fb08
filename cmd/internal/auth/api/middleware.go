package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"logvault/cmd/internal/auth/authctx"
	"logvault/cmd/internal/httpx"
	"logvault/cmd/security/token"
)

// TokenVerifier is satisfied by *token.Manager.
type TokenVerifier interface {
	Verify(raw string, now time.Time) (token.Claims, error)
}

// Middleware guards handlers behind a bearer token.
type Middleware struct {
	tokens   TokenVerifier
	log      *slog.Logger
	now      func() time.Time
	onReject func(reason string)
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithRejectHook is called with the rejection reason for every refused request.
func WithRejectHook(fn func(reason string)) MiddlewareOption {
	return func(m *Middleware) {
		if fn != nil {
			m.onReject = fn
		}
	}
}

// WithMiddlewareClock overrides time.Now (tests).
func WithMiddlewareClock(now func() time.Time) MiddlewareOption {
	return func(m *Middleware) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMiddleware(tokens TokenVerifier, log *slog.Logger, opts ...MiddlewareOption) *Middleware {
	if log == nil {
		log = slog.Default()
	}
	m := &Middleware{
		tokens:   tokens,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		onReject: func(string) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// RequireAuth verifies the bearer token and stores its subject in the request
// context (authctx). next is not called on failure.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := httpx.BearerToken(r)
		if raw == "" {
			m.reject(w, r, "missing", http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}

		claims, err := m.tokens.Verify(raw, m.now())
		if err != nil {
			m.reject(w, r, rejectReason(err), http.StatusUnauthorized, "invalid_token", "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(authctx.WithSubject(r.Context(), claims.Subject)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, reason string, status int, code, msg string) {
	m.onReject(reason)
	m.log.Info("auth.token.rejected", "reason", reason, "path", r.URL.Path)
	httpx.WriteError(w, status, code, msg)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, token.ErrMalformed):
		return "malformed"
	default:
		return "unknown"
	}
}
