package logs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config bounds log entries and tunes the tail stream.
type Config struct {
	MaxMessageBytes int
	MaxLevelBytes   int

	// StreamQueue is the per-subscriber buffer; a full buffer drops the subscriber.
	StreamQueue int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	WriteTimeout      time.Duration

	// OriginRequired rejects stream upgrades without an Origin header.
	// Non-browser clients do not send one, so it defaults to false.
	OriginRequired bool
	AllowedOrigins []string

	MaxBodyBytes int64
}

func DefaultConfig() Config {
	return Config{
		MaxMessageBytes:   8192,
		MaxLevelBytes:     32,
		StreamQueue:       64,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		WriteTimeout:      5 * time.Second,
		OriginRequired:    false,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		MaxBodyBytes:      1 << 20,
	}
}

// LoadConfigFromEnv loads log settings from environment variables.
//
// Optional:
//   - LOGVAULT_LOG_MESSAGE_MAX_BYTES
//   - LOGVAULT_LOG_LEVEL_MAX_BYTES
//   - LOGVAULT_STREAM_QUEUE
//   - LOGVAULT_STREAM_HEARTBEAT_INTERVAL, LOGVAULT_STREAM_HEARTBEAT_TIMEOUT, LOGVAULT_STREAM_WRITE_TIMEOUT
//   - LOGVAULT_STREAM_ORIGIN_REQUIRED
//   - LOGVAULT_STREAM_ALLOWED_ORIGINS (comma separated, "*" allows any)
//   - LOGVAULT_MAX_BODY_BYTES
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		dst      *int
		min, max int
	}{
		{"LOGVAULT_LOG_MESSAGE_MAX_BYTES", &cfg.MaxMessageBytes, 1, 1 << 20},
		{"LOGVAULT_LOG_LEVEL_MAX_BYTES", &cfg.MaxLevelBytes, 1, 1024},
		{"LOGVAULT_STREAM_QUEUE", &cfg.StreamQueue, 1, 1 << 16},
	}
	for _, it := range ints {
		v := strings.TrimSpace(os.Getenv(it.key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < it.min || n > it.max {
			return Config{}, fmt.Errorf("%w: %s", ErrConfig, it.key)
		}
		*it.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"LOGVAULT_STREAM_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"LOGVAULT_STREAM_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout},
		{"LOGVAULT_STREAM_WRITE_TIMEOUT", &cfg.WriteTimeout},
	}
	for _, it := range durations {
		v := strings.TrimSpace(os.Getenv(it.key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%w: %s", ErrConfig, it.key)
		}
		*it.dst = d
	}

	if v := strings.TrimSpace(os.Getenv("LOGVAULT_STREAM_ORIGIN_REQUIRED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: LOGVAULT_STREAM_ORIGIN_REQUIRED", ErrConfig)
		}
		cfg.OriginRequired = b
	}

	if v, ok := os.LookupEnv("LOGVAULT_STREAM_ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = splitCSV(v)
	}

	if v := strings.TrimSpace(os.Getenv("LOGVAULT_MAX_BODY_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("%w: LOGVAULT_MAX_BODY_BYTES", ErrConfig)
		}
		cfg.MaxBodyBytes = n
	}

	return cfg, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
