package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"logvault/cmd/internal/auth/session"
	"logvault/cmd/internal/httpx"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("auth: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return &Handler{log: log, cfg: cfg, sessions: sessions}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/register", h.handleRegister)
	mux.HandleFunc("/login", h.handleLogin)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.sessions.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		var fe session.FieldError
		switch {
		case errors.As(err, &fe):
			httpx.WriteError(w, http.StatusBadRequest, "missing_field", fe.Field+" is required")
		case errors.Is(err, session.ErrInvalidUsername):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_username", err.Error())
		case session.IsPolicyError(err):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_password", err.Error())
		case errors.Is(err, session.ErrUsernameTaken):
			httpx.WriteError(w, http.StatusBadRequest, "conflict", "username already exists")
		default:
			h.log.Error("auth.register.fail", "err", err, "ip", h.clientIP(r))
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		Message: "User registered successfully",
		User:    userResponse{Username: res.Username},
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	issued, err := h.sessions.Login(r.Context(), req.Username, req.Password, h.clientIP(r))
	if err != nil {
		var fe session.FieldError
		var te session.ThrottledError
		switch {
		case errors.As(err, &fe):
			httpx.WriteError(w, http.StatusBadRequest, "missing_field", fe.Field+" is required")
		case errors.As(err, &te):
			writeRateLimited(w, te.RetryAfter)
		case errors.Is(err, session.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_credentials", "invalid credentials")
		default:
			h.log.Error("auth.login.fail", "err", err, "ip", h.clientIP(r))
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     issued.Token,
		TokenType: "Bearer",
		ExpiresAt: issued.ExpiresAt,
	})
}

// ---- helpers ----

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		if httpx.IsBodyTooLarge(err) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	return true
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

func (h *Handler) clientIP(r *http.Request) string {
	ip := clientIP(r, h.cfg.TrustProxy)
	if ip == nil {
		return ""
	}
	return ip.String()
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
