package token

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// SecretEnvKey is the env var name for the signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "LOGVAULT_TOKEN_SECRET"

	TTLEnvKey    = "LOGVAULT_TOKEN_TTL"
	IssuerEnvKey = "LOGVAULT_TOKEN_ISSUER"

	MinSecretBytes = 32

	DefaultTTL    = time.Hour
	DefaultIssuer = "logvault"

	maxTTL = 30 * 24 * time.Hour
)

// Config is the single configuration surface for this package.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// SecretFromEnv returns the configured secret bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrSecretMissing.
// If too short -> ErrSecretTooShort.
func SecretFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(SecretEnvKey))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}

// ConfigFromEnv loads the secret, TTL and issuer.
//
// Env surface:
// - LOGVAULT_TOKEN_SECRET (required, >= 32 bytes)
// - LOGVAULT_TOKEN_TTL (Go duration, default 1h)
// - LOGVAULT_TOKEN_ISSUER (default "logvault")
func ConfigFromEnv() (Config, error) {
	secret, err := SecretFromEnv(MinSecretBytes)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", SecretEnvKey, err)
	}

	cfg := Config{
		Secret: secret,
		TTL:    DefaultTTL,
		Issuer: DefaultIssuer,
	}

	if v := strings.TrimSpace(os.Getenv(TTLEnvKey)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: invalid duration", TTLEnvKey)
		}
		if d < time.Second || d > maxTTL {
			return Config{}, fmt.Errorf("%s: out of range [1s..%s]", TTLEnvKey, maxTTL)
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv(IssuerEnvKey)); v != "" {
		cfg.Issuer = v
	}

	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Secret) == 0 {
		return ErrSecretMissing
	}
	if len(c.Secret) < MinSecretBytes {
		return ErrSecretTooShort
	}
	if c.TTL <= 0 {
		return fmt.Errorf("token: ttl must be positive")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("token: issuer is required")
	}
	return nil
}
