package app

import "time"

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Config contains the runtime configuration loaded from environment variables.
// Package-specific settings (password, token, session, logs) are loaded by
// their own packages.
type Config struct {
	HTTPAddr string

	// PublicBaseURL is only used for the startup log line; derived from
	// HTTPAddr when empty.
	PublicBaseURL string

	LogLevel  string
	LogFormat string // json | pretty

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// Empty DatabaseURL selects the in-memory stores.
	DatabaseURL   string
	DBMaxConns    int32
	DBMinConns    int32
	DBSchema      string
	DBAutoMigrate bool

	// If true, /readyz returns 503 unless a DB is configured and reachable.
	ReadinessRequireDB bool

	MetricsEnabled bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:      EnvString("LOGVAULT_HTTP_ADDR", "0.0.0.0:8080"),
		PublicBaseURL: EnvString("LOGVAULT_PUBLIC_BASE_URL", ""),

		LogLevel:  EnvString("LOGVAULT_LOG_LEVEL", "info"),
		LogFormat: EnvString("LOGVAULT_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("LOGVAULT_HTTP_READ_HEADER_TIMEOUT", defaultReadHeaderTimeout),
		ReadTimeout:       EnvDuration("LOGVAULT_HTTP_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:      EnvDuration("LOGVAULT_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
		IdleTimeout:       EnvDuration("LOGVAULT_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
		MaxHeaderBytes:    EnvInt("LOGVAULT_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("LOGVAULT_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),

		DatabaseURL:   EnvString("LOGVAULT_DATABASE_URL", ""),
		DBMaxConns:    EnvInt32("LOGVAULT_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("LOGVAULT_DB_MIN_CONNS", 0),
		DBSchema:      EnvString("LOGVAULT_DB_SCHEMA", "logvault"),
		DBAutoMigrate: EnvBool("LOGVAULT_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("LOGVAULT_READINESS_REQUIRE_DB", false),

		MetricsEnabled: EnvBool("LOGVAULT_METRICS_ENABLED", true),

		CORSAllowedOrigins:   EnvCSV("LOGVAULT_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("LOGVAULT_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("LOGVAULT_CORS_MAX_AGE", 600),
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
