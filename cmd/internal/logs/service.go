package logs

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"logvault/cmd/internal/ids"
)

// Recorder receives log API outcomes (e.g. for metrics).
type Recorder interface {
	ObserveAppend(outcome string)
	ObserveList(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveAppend(string) {}
func (noopRecorder) ObserveList(string)   {}

// Page selects a slice of the caller's entries.
type Page struct {
	After string
	Limit int
}

// Service implements create/list over a Store and publishes new entries to
// the Broker.
type Service struct {
	cfg    Config
	store  Store
	broker *Broker

	log      *slog.Logger
	recorder Recorder
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service. A nil broker disables live publishing.
func NewService(cfg Config, store Store, broker *Broker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("logs: nil store")
	}
	def := DefaultConfig()
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.MaxLevelBytes <= 0 {
		cfg.MaxLevelBytes = def.MaxLevelBytes
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		broker:   broker,
		log:      slog.Default(),
		recorder: noopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Broker returns the broker new entries are published to (may be nil).
func (s *Service) Broker() *Broker { return s.broker }

// CreateLog appends an entry owned by subject. The owner always comes from
// the verified subject, never from client input. message and level are
// stored exactly as given; whitespace-only values count as missing.
func (s *Service) CreateLog(ctx context.Context, subject, message, level string) (LogEntry, error) {
	switch {
	case subject == "":
		s.recorder.ObserveAppend("invalid")
		return LogEntry{}, missing("owner")
	case strings.TrimSpace(message) == "":
		s.recorder.ObserveAppend("invalid")
		return LogEntry{}, missing("message")
	case strings.TrimSpace(level) == "":
		s.recorder.ObserveAppend("invalid")
		return LogEntry{}, missing("level")
	case len(message) > s.cfg.MaxMessageBytes:
		s.recorder.ObserveAppend("invalid")
		return LogEntry{}, tooLong("message")
	case len(level) > s.cfg.MaxLevelBytes:
		s.recorder.ObserveAppend("invalid")
		return LogEntry{}, tooLong("level")
	}

	e, err := s.store.Append(ctx, AppendInput{
		Owner:   subject,
		Message: message,
		Level:   level,
		Now:     s.now(),
	})
	if err != nil {
		s.recorder.ObserveAppend("error")
		return LogEntry{}, err
	}

	if s.broker != nil {
		s.broker.Publish(e)
	}
	s.recorder.ObserveAppend("ok")
	s.log.Debug("logs.append.ok", "owner", e.Owner, "id", e.ID, "level", e.Level)
	return e, nil
}

// ListLogs returns a page of subject's own entries in creation order.
func (s *Service) ListLogs(ctx context.Context, subject string, page Page) (ListResult, error) {
	if subject == "" {
		s.recorder.ObserveList("invalid")
		return ListResult{}, missing("owner")
	}
	page.After = strings.TrimSpace(page.After)
	if page.After != "" && !ids.Valid(page.After) {
		s.recorder.ObserveList("invalid")
		return ListResult{}, ErrInvalidCursor
	}
	if page.Limit < 0 {
		s.recorder.ObserveList("invalid")
		return ListResult{}, ErrInvalidLimit
	}

	res, err := s.store.ListByOwner(ctx, ListInput{
		Owner: subject,
		After: page.After,
		Limit: page.Limit,
	})
	if err != nil {
		s.recorder.ObserveList("error")
		return ListResult{}, err
	}
	if len(res.Entries) == 0 {
		s.recorder.ObserveList("empty")
	} else {
		s.recorder.ObserveList("ok")
	}
	return res, nil
}
