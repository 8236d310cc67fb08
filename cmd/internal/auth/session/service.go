package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"logvault/cmd/identity"
	"logvault/cmd/security/password"
	"logvault/cmd/security/token"
)

// Recorder receives login/registration outcomes (e.g. for metrics).
type Recorder interface {
	ObserveRegister(outcome string)
	ObserveLogin(outcome string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveRegister(string) {}
func (noopRecorder) ObserveLogin(string)    {}

// Service implements registration and login over an identity store.
type Service struct {
	cfg      Config
	store    identity.Store
	hasher   *password.Hasher
	tokens   *token.Manager
	throttle *Throttle // per normalized username
	ipLimit  *Throttle // per client IP

	log      *slog.Logger
	recorder Recorder
	now      func() time.Time

	// dummyHash is verified against when the user does not exist so both
	// failure paths cost one KDF run.
	dummyHash string
}

// Registered is the public result of a registration. It never carries the hash.
type Registered struct {
	Username  string
	CreatedAt time.Time
}

// Issued is the result of a successful login.
type Issued struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// Option configures optional Service dependencies.
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

// NewService constructs a Service. store, hasher and tokens are required.
func NewService(cfg Config, store identity.Store, hasher *password.Hasher, tokens *token.Manager, opts ...Option) (*Service, error) {
	if store == nil || hasher == nil || tokens == nil {
		return nil, errors.New("session: store, hasher and token manager are required")
	}
	if cfg.MaxUsernameRunes <= 0 {
		cfg.MaxUsernameRunes = DefaultConfig().MaxUsernameRunes
	}

	throttle, err := NewThrottle(cfg.MaxLoginFailures, cfg.FailureWindow, cfg.TrackedUsers)
	if err != nil {
		return nil, err
	}
	ipLimit, err := NewThrottle(cfg.MaxLoginFailuresPerIP, cfg.FailureWindow, cfg.TrackedIPs)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		throttle: throttle,
		ipLimit:  ipLimit,
		log:      slog.Default(),
		recorder: noopRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}

	dummy, err := hasher.Config().Hash("dummy-password-for-timing-only")
	if err != nil {
		return nil, fmt.Errorf("session: dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates an identity for username with a freshly hashed password.
func (s *Service) Register(ctx context.Context, username, pw string) (Registered, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		s.recorder.ObserveRegister("invalid")
		return Registered{}, FieldError{Field: "username"}
	}
	if strings.TrimSpace(pw) == "" {
		s.recorder.ObserveRegister("invalid")
		return Registered{}, FieldError{Field: "password"}
	}
	if err := s.validateUsername(username); err != nil {
		s.recorder.ObserveRegister("invalid")
		return Registered{}, err
	}

	hash, err := s.hasher.Hash(ctx, pw)
	if err != nil {
		if IsPolicyError(err) {
			s.recorder.ObserveRegister("invalid")
			return Registered{}, err
		}
		s.recorder.ObserveRegister("error")
		return Registered{}, fmt.Errorf("session: hash password: %w", err)
	}

	now := s.now()
	err = s.store.InsertIfAbsent(ctx, identity.Identity{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			s.recorder.ObserveRegister("conflict")
			s.log.Info("auth.register.conflict", "username", username)
			return Registered{}, ErrUsernameTaken
		}
		s.recorder.ObserveRegister("error")
		return Registered{}, fmt.Errorf("session: insert identity: %w", err)
	}

	s.recorder.ObserveRegister("ok")
	s.log.Info("auth.register.success", "username", username)
	return Registered{Username: username, CreatedAt: now}, nil
}

// Login verifies credentials and issues a token whose subject is the stored
// username. clientIP feeds the per-IP failure limit; empty skips it.
func (s *Service) Login(ctx context.Context, username, pw, clientIP string) (Issued, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Issued{}, FieldError{Field: "username"}
	}
	if pw == "" {
		return Issued{}, FieldError{Field: "password"}
	}

	key := identity.NormalizeUsername(username)
	now := s.now()

	// The attempt is counted as a failure up front and uncounted when it
	// turns out otherwise, so concurrent guesses cannot overshoot the limits.
	if retryAfter, ok := s.ipLimit.Begin(clientIP, now); !ok {
		return Issued{}, s.loginThrottled(username, "ip", retryAfter)
	}
	if retryAfter, ok := s.throttle.Begin(key, now); !ok {
		s.ipLimit.Cancel(clientIP, now)
		return Issued{}, s.loginThrottled(username, "username", retryAfter)
	}
	undo := func() {
		s.throttle.Cancel(key, now)
		s.ipLimit.Cancel(clientIP, now)
	}

	id, err := s.store.Lookup(ctx, username)
	if err != nil {
		if !identity.IsNotFound(err) {
			undo()
			s.recorder.ObserveLogin("error")
			return Issued{}, fmt.Errorf("session: lookup identity: %w", err)
		}
		// Timing resistance: perform a dummy verify when user is missing.
		_, _ = s.hasher.Verify(ctx, s.dummyHash, pw)
		return Issued{}, s.loginFailed(username, "not_found")
	}

	ok, err := s.hasher.Verify(ctx, id.PasswordHash, pw)
	if err != nil {
		if !errors.Is(err, password.ErrInvalidHash) {
			undo()
			s.recorder.ObserveLogin("error")
			return Issued{}, fmt.Errorf("session: verify password: %w", err)
		}
		s.log.Error("auth.login.stored_hash_invalid", "username", id.Username)
		return Issued{}, s.loginFailed(username, "bad_hash")
	}
	if !ok {
		return Issued{}, s.loginFailed(username, "bad_password")
	}

	s.throttle.Reset(key)
	s.ipLimit.Cancel(clientIP, now)

	raw, claims, err := s.tokens.Issue(id.Username, now)
	if err != nil {
		s.recorder.ObserveLogin("error")
		return Issued{}, fmt.Errorf("session: issue token: %w", err)
	}

	s.recorder.ObserveLogin("ok")
	s.log.Info("auth.login.success", "username", id.Username)
	return Issued{Token: raw, Subject: claims.Subject, ExpiresAt: claims.ExpiresAt}, nil
}

func (s *Service) loginThrottled(username, scope string, retryAfter time.Duration) error {
	s.recorder.ObserveLogin("throttled")
	s.log.Warn("auth.login.throttled", "username", username, "scope", scope, "retry_after_s", int64(retryAfter.Seconds()))
	return ThrottledError{RetryAfter: retryAfter}
}

func (s *Service) loginFailed(username, reason string) error {
	s.recorder.ObserveLogin("invalid")
	s.log.Warn("auth.login.failed", "username", username, "reason", reason)
	return ErrInvalidCredentials
}

func (s *Service) validateUsername(username string) error {
	if utf8.RuneCountInString(username) > s.cfg.MaxUsernameRunes {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidUsername, s.cfg.MaxUsernameRunes)
	}
	for _, r := range username {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control characters", ErrInvalidUsername)
		}
	}
	if !utf8.ValidString(username) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidUsername)
	}
	return nil
}

// IsPolicyError reports password policy rejections (caller-fixable).
func IsPolicyError(err error) bool {
	return errors.Is(err, password.ErrPasswordTooShort) ||
		errors.Is(err, password.ErrPasswordTooLong) ||
		errors.Is(err, password.ErrWeakPassword)
}
