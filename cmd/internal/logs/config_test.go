package logs

import (
	"errors"
	"os"
	"testing"
	"time"
)

var logsEnvKeys = []string{
	"LOGVAULT_LOG_MESSAGE_MAX_BYTES",
	"LOGVAULT_LOG_LEVEL_MAX_BYTES",
	"LOGVAULT_STREAM_QUEUE",
	"LOGVAULT_STREAM_HEARTBEAT_INTERVAL",
	"LOGVAULT_STREAM_HEARTBEAT_TIMEOUT",
	"LOGVAULT_STREAM_WRITE_TIMEOUT",
	"LOGVAULT_STREAM_ORIGIN_REQUIRED",
	"LOGVAULT_STREAM_ALLOWED_ORIGINS",
	"LOGVAULT_MAX_BODY_BYTES",
}

func unsetLogsEnv(t *testing.T) {
	t.Helper()
	for _, k := range logsEnvKeys {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	unsetLogsEnv(t)

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	def := DefaultConfig()
	if cfg.MaxMessageBytes != 8192 || cfg.MaxLevelBytes != 32 || cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != len(def.AllowedOrigins) || cfg.OriginRequired {
		t.Fatalf("unexpected origin defaults: %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	unsetLogsEnv(t)
	t.Setenv("LOGVAULT_LOG_MESSAGE_MAX_BYTES", "100")
	t.Setenv("LOGVAULT_STREAM_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("LOGVAULT_STREAM_ORIGIN_REQUIRED", "true")
	t.Setenv("LOGVAULT_STREAM_ALLOWED_ORIGINS", " https://app.example , ,http://localhost:5173")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.MaxMessageBytes != 100 || cfg.HeartbeatInterval != 5*time.Second || !cfg.OriginRequired {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://app.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"LOGVAULT_LOG_MESSAGE_MAX_BYTES":     "0",
		"LOGVAULT_LOG_LEVEL_MAX_BYTES":       "abc",
		"LOGVAULT_STREAM_QUEUE":              "-1",
		"LOGVAULT_STREAM_HEARTBEAT_INTERVAL": "soon",
		"LOGVAULT_STREAM_ORIGIN_REQUIRED":    "maybe",
		"LOGVAULT_MAX_BODY_BYTES":            "0",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			unsetLogsEnv(t)
			t.Setenv(k, v)
			if _, err := LoadConfigFromEnv(); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
