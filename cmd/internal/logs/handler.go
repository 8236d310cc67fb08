package logs

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"logvault/cmd/internal/auth/authctx"
	"logvault/cmd/internal/httpx"
)

// NextAfterHeader carries the cursor for the next page of GET /logs.
const NextAfterHeader = "X-Next-After"

type createLogRequest struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// Handler exposes the log API over HTTP. Every route must be wrapped by the
// bearer-token guard, which puts the subject in the request context.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	svc    *Service
	stream *Stream
}

func NewHandler(log *slog.Logger, cfg Config, svc *Service) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("logs: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	h := &Handler{log: log, cfg: cfg, svc: svc}
	if b := svc.Broker(); b != nil {
		h.stream = NewStream(log, cfg, b)
		if sr, ok := svc.recorder.(StreamRecorder); ok {
			h.stream.SetRecorder(sr)
		}
	}
	return h, nil
}

// Register mounts /logs (and /logs/stream when a broker is configured) behind guard.
func (h *Handler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	if h == nil || mux == nil {
		return
	}
	if guard == nil {
		panic("logs: routes require an auth guard")
	}
	mux.Handle("/logs", guard(http.HandlerFunc(h.handleLogs)))
	if h.stream != nil {
		mux.Handle("/logs/stream", guard(h.stream))
	}
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreate(w, r)
	case http.MethodGet, http.MethodHead:
		h.handleList(w, r)
	default:
		httpx.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	subject, ok := authctx.SubjectFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}

	var req createLogRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		if httpx.IsBodyTooLarge(err) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body")
		return
	}

	e, err := h.svc.CreateLog(r.Context(), subject, req.Message, req.Level)
	if err != nil {
		var fe FieldError
		switch {
		case errors.As(err, &fe) && errors.Is(err, ErrMissingField):
			httpx.WriteError(w, http.StatusBadRequest, "missing_field", fe.Field+" is required")
		case errors.As(err, &fe) && errors.Is(err, ErrFieldTooLong):
			httpx.WriteError(w, http.StatusBadRequest, "field_too_long", fe.Field+" is too long")
		default:
			h.log.Error("logs.append.fail", "owner", subject, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	subject, ok := authctx.SubjectFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}

	q := r.URL.Query()
	page := Page{After: strings.TrimSpace(q.Get("after"))}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		page.Limit = n
	}

	res, err := h.svc.ListLogs(r.Context(), subject, page)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCursor):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_cursor", "after must be a log entry id")
		case errors.Is(err, ErrInvalidLimit):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		default:
			h.log.Error("logs.list.fail", "owner", subject, "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	// A caller with no entries at all gets 404; an exhausted cursor is an empty page.
	if len(res.Entries) == 0 && page.After == "" {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no logs found")
		return
	}

	if res.HasMore && len(res.Entries) > 0 {
		w.Header().Set(NextAfterHeader, res.Entries[len(res.Entries)-1].ID)
	}
	entries := res.Entries
	if entries == nil {
		entries = []LogEntry{}
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}
