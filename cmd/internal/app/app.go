// Package app wires the logvault server runtime: config, logging, storage,
// HTTP routes and graceful shutdown.
package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"logvault/cmd/identity"
	authapi "logvault/cmd/internal/auth/api"
	"logvault/cmd/internal/auth/session"
	"logvault/cmd/internal/logs"
	"logvault/cmd/internal/metrics"
	"logvault/cmd/security/password"
)

// App is the server runtime. It owns the DB pool and the HTTP handler tree.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	metrics *metrics.Metrics
	handler http.Handler
}

// New builds a fully wired App. Package settings (token, password, session,
// logs) are read from the environment here so a bad value fails startup.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	tokens, err := loadTokenManager()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	logsCfg, err := logs.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	authCfg := authapi.LoadConfigFromEnv()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	idStore, logStore, pool, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*App, error) {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}
	if m != nil {
		m.RegisterPool(pool)
	}

	sessOpts := []session.Option{session.WithLogger(log)}
	logOpts := []logs.Option{logs.WithLogger(log)}
	mwOpts := []authapi.MiddlewareOption{}
	broker := logs.NewBroker(log, logsCfg.StreamQueue)
	if m != nil {
		sessOpts = append(sessOpts, session.WithRecorder(m))
		logOpts = append(logOpts, logs.WithRecorder(m))
		mwOpts = append(mwOpts, authapi.WithRejectHook(m.ObserveTokenRejected))
		broker.SetDropHook(m.ObserveStreamDropped)
	}

	sessions, err := session.NewService(sessCfg, idStore, password.NewHasher(pwCfg), tokens, sessOpts...)
	if err != nil {
		return fail(err)
	}
	authHandler, err := authapi.NewHandler(log, authCfg, sessions)
	if err != nil {
		return fail(err)
	}
	logSvc, err := logs.NewService(logsCfg, logStore, broker, logOpts...)
	if err != nil {
		return fail(err)
	}
	logsHandler, err := logs.NewHandler(log, logsCfg, logSvc)
	if err != nil {
		return fail(err)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, routes{
		auth:    authHandler,
		guard:   authapi.NewMiddleware(tokens, log, mwOpts...),
		logs:    logsHandler,
		metrics: m,
		pool:    pool,
	})

	var obs RequestObserver
	if m != nil {
		obs = m
	}
	handler := WithRequestLogging(WithSecurityHeaders(WithCORS(mux, cfg, log)), log, obs)

	return &App{cfg: cfg, log: log, pool: pool, metrics: m, handler: handler}, nil
}

// Handler returns the root HTTP handler (tests mount it on httptest).
func (a *App) Handler() http.Handler { return a.handler }

// Close releases the DB pool. Run calls it after shutdown.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// within cfg.ShutdownTimeout and closes the pool.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, defaultReadHeaderTimeout),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, defaultIdleTimeout),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	defer a.Close()

	base := a.cfg.PublicBaseURL
	if base == "" {
		base = runtimeBaseURL(a.cfg.HTTPAddr)
	}
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"stream_url", wsBaseURL(base)+"/logs/stream",
		"db_enabled", a.pool != nil,
		"metrics_enabled", a.metrics != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, defaultShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// newStores picks Postgres when a database URL is configured, in-memory otherwise.
func newStores(ctx context.Context, cfg Config, log Logger) (identity.Store, logs.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return identity.NewMemoryStore(), logs.NewMemoryStore(), nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	idStore, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	logStore, err := logs.NewPostgresStore(pool, logs.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	if cfg.DBAutoMigrate {
		if err := migrate(ctx, log, idStore, logStore); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema, "auto_migrate", cfg.DBAutoMigrate)
	return idStore, logStore, pool, nil
}
