package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"logvault/cmd/identity"
	"logvault/cmd/security/password"
	"logvault/cmd/security/token"
)

const testClientIP = "198.51.100.7"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	mu       sync.Mutex
	register map[string]int
	login    map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{register: map[string]int{}, login: map[string]int{}}
}

func (r *countingRecorder) ObserveRegister(o string) { r.mu.Lock(); r.register[o]++; r.mu.Unlock() }
func (r *countingRecorder) ObserveLogin(o string)    { r.mu.Lock(); r.login[o]++; r.mu.Unlock() }

type testEnv struct {
	svc    *Service
	store  *identity.MemoryStore
	tokens *token.Manager
	clock  *fakeClock
	rec    *countingRecorder
}

func newTestEnv(t *testing.T, cfg Config) testEnv {
	t.Helper()

	pwCfg := password.DefaultConfig()
	pwCfg.Params.MemoryKiB = 8 * 1024
	pwCfg.Params.Iterations = 1
	pwCfg.Params.Parallelism = 1

	tokens, err := token.NewManager(token.Config{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
		TTL:    time.Hour,
		Issuer: "logvault",
	})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	clock := &fakeClock{now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	store := identity.NewMemoryStore()
	rec := newCountingRecorder()

	svc, err := NewService(cfg, store, password.NewHasher(pwCfg), tokens,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRecorder(rec),
		WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return testEnv{svc: svc, store: store, tokens: tokens, clock: clock, rec: rec}
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	got, err := env.svc.Register(ctx, "  alice ", "s3cret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got.Username != "alice" || !got.CreatedAt.Equal(env.clock.Now()) {
		t.Fatalf("unexpected result: %+v", got)
	}

	stored, err := env.store.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if stored.PasswordHash == "s3cret" || !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("password not hashed: %q", stored.PasswordHash)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	cases := []struct {
		user, pw, field string
	}{
		{"", "pw", "username"},
		{"   ", "pw", "username"},
		{"bob", "", "password"},
		{"bob", "   ", "password"},
	}
	for _, tc := range cases {
		_, err := env.svc.Register(context.Background(), tc.user, tc.pw)
		var fe FieldError
		if !errors.As(err, &fe) || fe.Field != tc.field || !errors.Is(err, ErrMissingField) {
			t.Fatalf("Register(%q,%q): expected missing %s, got %v", tc.user, tc.pw, tc.field, err)
		}
	}
	if env.store.Len() != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestRegister_InvalidUsername(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	for _, name := range []string{strings.Repeat("é", 65), "bad\x00name", "tab\tname"} {
		if _, err := env.svc.Register(context.Background(), name, "pw"); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("Register(%q): expected ErrInvalidUsername, got %v", name, err)
		}
	}
	if _, err := env.svc.Register(context.Background(), strings.Repeat("é", 64), "pw"); err != nil {
		t.Fatalf("64 runes should be accepted: %v", err)
	}
}

func TestRegister_PasswordPolicy(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	_, err := env.svc.Register(context.Background(), "carol", strings.Repeat("x", 300))
	if !errors.Is(err, password.ErrPasswordTooLong) || !IsPolicyError(err) {
		t.Fatalf("expected password policy error, got %v", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "dave", "pw1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := env.svc.Register(ctx, "DAVE", "pw2"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if env.rec.register["conflict"] != 1 || env.rec.register["ok"] != 1 {
		t.Fatalf("recorder = %+v", env.rec.register)
	}
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	const n = 8
	var ok, taken atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Register(context.Background(), "erin", "pw")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrUsernameTaken):
				taken.Add(1)
			default:
				t.Errorf("unexpected: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || taken.Load() != n-1 {
		t.Fatalf("ok=%d taken=%d", ok.Load(), taken.Load())
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "Frank", "hunter2"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	issued, err := env.svc.Login(ctx, "frank", "hunter2", testClientIP)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if issued.Subject != "Frank" {
		t.Fatalf("subject = %q, want stored username", issued.Subject)
	}
	if !issued.ExpiresAt.Equal(env.clock.Now().Add(time.Hour)) {
		t.Fatalf("expires_at = %s", issued.ExpiresAt)
	}

	claims, err := env.tokens.Verify(issued.Token, env.clock.Now())
	if err != nil || claims.Subject != "Frank" {
		t.Fatalf("token did not verify: %+v %v", claims, err)
	}
}

func TestLogin_NoEnumeration(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "grace", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, errUnknown := env.svc.Login(ctx, "nobody", "right", testClientIP)
	_, errWrong := env.svc.Login(ctx, "grace", "wrong", testClientIP)

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("failure messages differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestLogin_Throttle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginFailures = 3
	cfg.FailureWindow = time.Minute
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "heidi", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := env.svc.Login(ctx, "heidi", "wrong", testClientIP); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
		env.clock.Advance(time.Second)
	}

	_, err := env.svc.Login(ctx, "HEIDI", "right", testClientIP)
	var te ThrottledError
	if !errors.As(err, &te) || !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if te.RetryAfter <= 0 || te.RetryAfter > time.Minute {
		t.Fatalf("retry after = %s", te.RetryAfter)
	}

	env.clock.Advance(time.Minute)
	if _, err := env.svc.Login(ctx, "heidi", "right", testClientIP); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestLogin_SuccessResetsFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginFailures = 2
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "ivan", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _ = env.svc.Login(ctx, "ivan", "wrong", testClientIP)
	if _, err := env.svc.Login(ctx, "ivan", "right", testClientIP); err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, _ = env.svc.Login(ctx, "ivan", "wrong", testClientIP)
	if _, err := env.svc.Login(ctx, "ivan", "right", testClientIP); err != nil {
		t.Fatalf("one failure after reset must not throttle: %v", err)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	if _, err := env.svc.Login(context.Background(), " ", "pw", testClientIP); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := env.svc.Login(context.Background(), "judy", "", testClientIP); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

type failingStore struct{ err error }

func (f failingStore) InsertIfAbsent(context.Context, identity.Identity) error { return f.err }
func (f failingStore) Lookup(context.Context, string) (identity.Identity, error) {
	return identity.Identity{}, f.err
}

func TestLogin_StoreErrorIsNotInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	boom := errors.New("db down")
	env.svc.store = failingStore{err: boom}

	_, err := env.svc.Login(context.Background(), "kim", "pw", testClientIP)
	if !errors.Is(err, boom) || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	_, err = env.svc.Register(context.Background(), "kim", "pw")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestLogin_ConcurrentFailuresStayWithinLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginFailures = 3
	cfg.MaxLoginFailuresPerIP = 0
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "mallet", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	const attempts = 20
	var invalid, throttled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Login(ctx, "mallet", "wrong", testClientIP)
			switch {
			case errors.Is(err, ErrThrottled):
				throttled.Add(1)
			case errors.Is(err, ErrInvalidCredentials):
				invalid.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if invalid.Load() != 3 || throttled.Load() != attempts-3 {
		t.Fatalf("invalid=%d throttled=%d, want 3/%d", invalid.Load(), throttled.Load(), attempts-3)
	}
}

func TestLogin_PerIPLimitSpansUsernames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginFailures = 5
	cfg.MaxLoginFailuresPerIP = 2
	cfg.FailureWindow = time.Minute
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "olivia", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, user := range []string{"nobody1", "nobody2"} {
		if _, err := env.svc.Login(ctx, user, "guess", testClientIP); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: %v", user, err)
		}
	}

	if _, err := env.svc.Login(ctx, "olivia", "right", testClientIP); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected per-IP throttle, got %v", err)
	}
	if _, err := env.svc.Login(ctx, "olivia", "right", "203.0.113.9"); err != nil {
		t.Fatalf("other IP must not be throttled: %v", err)
	}
	if _, err := env.svc.Login(ctx, "olivia", "right", ""); err != nil {
		t.Fatalf("unknown IP skips the per-IP limit: %v", err)
	}

	env.clock.Advance(time.Minute)
	if _, err := env.svc.Login(ctx, "olivia", "right", testClientIP); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestLogin_SuccessDoesNotCountAgainstIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginFailuresPerIP = 1
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "pat", "right"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := env.svc.Login(ctx, "pat", "right", testClientIP); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
}

func TestLogin_StoreErrorIsNotCountedAsFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginFailures = 1
	cfg.MaxLoginFailuresPerIP = 1
	env := newTestEnv(t, cfg)
	boom := errors.New("db down")
	env.svc.store = failingStore{err: boom}

	for i := 0; i < 3; i++ {
		if _, err := env.svc.Login(context.Background(), "kim", "pw", testClientIP); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected store error, got %v", i, err)
		}
	}
}
