package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines runtime configuration for registration and login.
type Config struct {
	// MaxUsernameRunes bounds username length after trimming.
	MaxUsernameRunes int

	// MaxLoginFailures is how many failures per username are allowed inside
	// FailureWindow before further attempts are refused. 0 disables throttling.
	MaxLoginFailures int
	FailureWindow    time.Duration

	// TrackedUsers caps how many usernames the throttle remembers.
	TrackedUsers int

	// MaxLoginFailuresPerIP bounds failures from one client IP inside
	// FailureWindow, across all usernames. 0 disables the per-IP limit.
	MaxLoginFailuresPerIP int
	TrackedIPs            int
}

// DefaultConfig returns the defaults used when no env overrides are set.
func DefaultConfig() Config {
	return Config{
		MaxUsernameRunes: 64,
		MaxLoginFailures: 5,
		FailureWindow:    15 * time.Minute,
		TrackedUsers:     10000,

		MaxLoginFailuresPerIP: 20,
		TrackedIPs:            10000,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - LOGVAULT_LOGIN_MAX_FAILURES (0 disables throttling)
//   - LOGVAULT_LOGIN_FAILURE_WINDOW (Go duration)
//   - LOGVAULT_LOGIN_TRACKED_USERS
//   - LOGVAULT_LOGIN_MAX_FAILURES_PER_IP (0 disables the per-IP limit)
//   - LOGVAULT_LOGIN_TRACKED_IPS
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("LOGVAULT_LOGIN_MAX_FAILURES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 1000 {
			return Config{}, ErrConfig
		}
		cfg.MaxLoginFailures = n
	}

	if v := strings.TrimSpace(os.Getenv("LOGVAULT_LOGIN_FAILURE_WINDOW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.FailureWindow = d
	}

	if v := strings.TrimSpace(os.Getenv("LOGVAULT_LOGIN_TRACKED_USERS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 10_000_000 {
			return Config{}, ErrConfig
		}
		cfg.TrackedUsers = n
	}

	if v := strings.TrimSpace(os.Getenv("LOGVAULT_LOGIN_MAX_FAILURES_PER_IP")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100_000 {
			return Config{}, ErrConfig
		}
		cfg.MaxLoginFailuresPerIP = n
	}

	if v := strings.TrimSpace(os.Getenv("LOGVAULT_LOGIN_TRACKED_IPS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 10_000_000 {
			return Config{}, ErrConfig
		}
		cfg.TrackedIPs = n
	}

	return cfg, nil
}
