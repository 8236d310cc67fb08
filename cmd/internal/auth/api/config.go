package authapi

import (
	"os"
	"strconv"
	"strings"

	"logvault/cmd/internal/httpx"
)

// Config controls auth API behavior.
type Config struct {
	// TrustProxy makes client IPs come from X-Forwarded-For / X-Real-IP (logging only).
	TrustProxy   bool
	MaxBodyBytes int64
}

// LoadConfigFromEnv loads auth API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	return Config{
		TrustProxy:   envBool("LOGVAULT_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("LOGVAULT_MAX_BODY_BYTES", httpx.DefaultMaxBodyBytes),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
