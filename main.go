package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MGallo-Code/tgbridge/internal/audit"
	"github.com/MGallo-Code/tgbridge/internal/auth"
	"github.com/MGallo-Code/tgbridge/internal/config"
	"github.com/MGallo-Code/tgbridge/internal/exchange"
	"github.com/MGallo-Code/tgbridge/internal/metrics"
	"github.com/MGallo-Code/tgbridge/internal/store"
	"github.com/MGallo-Code/tgbridge/internal/telegram"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Embeds the migration files INTO the go bin

//go:embed migrations/*.sql
var migrationsDir embed.FS

func main() {
	// Load config first so we can set log level
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback logger before config is available
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	// Include source location in log entries at debug level only.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogLevel == slog.LevelDebug,
	})))

	// Cancel ctx on SIGINT/SIGTERM; run() shuts down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run holds all server logic and returns error instead of calling os.Exit,
// so deferred resource cleanup always runs.
// Shuts down when ctx is cancelled (signal handling is the caller's concern).
// If ready is non-nil, the server's base URL is sent on it once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	sc := cfg.SigningContext()
	switch sc.Mode() {
	case telegram.ModeBypass:
		slog.Warn("telegram signature verification is BYPASSED; every assertion will be accepted", "app_env", cfg.AppEnv)
	case telegram.ModeReject:
		slog.Warn("TELEGRAM_BOT_TOKEN not set; every telegram assertion will be rejected")
	}
	if cfg.BotName == "" {
		slog.Warn("TELEGRAM_BOT_NAME not set; callbacks will fail with a configuration error")
	}

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	h := &auth.AuthHandler{
		Verifier:         telegram.NewVerifier(sc),
		Metrics:          m,
		BotName:          cfg.BotName,
		PublicURL:        cfg.PublicURL,
		FallbackRedirect: cfg.FallbackRedirect,
		RateAuth: store.RateLimit{
			Max:     cfg.RateAuthMax,
			Window:  cfg.RateAuthWindow,
			Lockout: cfg.RateAuthLockout,
		},
	}

	if cfg.BackendURL != "" {
		h.EX = exchange.NewClient(cfg.BackendURL, cfg.ExchangeTimeout)
	} else {
		slog.Info("BACKEND_URL not set; token exchange disabled")
	}

	// Postgres is optional: it only backs the login audit log.
	var ps *store.PostgresStore
	if cfg.DatabaseURL != "" {
		ps, err = store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to set up postgres store: %w", err)
		}
		defer ps.Close()

		migrationsFS, err := fs.Sub(migrationsDir, "migrations")
		if err != nil {
			return fmt.Errorf("failed to access embedded migrations: %w", err)
		}
		n, err := ps.Migrate(ctx, migrationsFS)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		slog.Info("migrations applied", "count", n)

		h.AL = ps
		h.PS = ps

		// Audit cleanup goroutine; runs every 24h, stops when run() returns.
		cleanupCtx, cancelCleanup := context.WithCancel(ctx)
		defer cancelCleanup()
		go auditCleanup(cleanupCtx, ps, cfg.AuditRetention)
	} else {
		slog.Info("DATABASE_URL not set; login audit log disabled")
	}

	// Redis is optional: it backs rate limiting and the audit queue.
	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to set up redis client: %w", err)
		}
		defer rdb.Close()

		rl := store.NewRedisRateLimiter(rdb)
		h.RL = rl
		h.RS = rl

		// With both stores up, audit writes go through the Redis queue.
		if ps != nil {
			aq := audit.NewQueuedLog(ps, rdb, audit.DefaultMaxQueueSize)
			h.AL = aq

			workerCtx, cancelWorker := context.WithCancel(ctx)
			workerDone := make(chan struct{})
			go func() {
				defer close(workerDone)
				aq.StartWorker(workerCtx)
			}()
			// Runs before rdb.Close and ps.Close.
			defer func() {
				cancelWorker()
				<-workerDone
			}()
		}
	} else {
		slog.Info("REDIS_URL not set; rate limiting disabled")
	}

	// Bind listener; ":0" picks a free port (useful in tests).
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	server := &http.Server{
		Handler:           buildRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine; run() continues past this.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("tgbridge listening", "addr", ln.Addr().String(), "signing_mode", sc.Mode().String())
		// Send error only if server stops for a reason other than explicit shutdown.
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Signal readiness to caller (used by tests; nil in production).
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	// Wait for server error or shutdown signal from ctx.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")
	// Stop accepting, drain in-flight requests, give up after 30s.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// auditCleanup deletes login events older than retention once a day until ctx is done.
func auditCleanup(ctx context.Context, ps *store.PostgresStore, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := ps.CleanupLoginEvents(ctx, retention)
			if err != nil {
				slog.Warn("audit cleanup failed", "error", err)
			} else {
				slog.Info("audit cleanup complete", "deleted", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// buildRouter wires all routes and middleware.
// Called from run() and from smoke tests.
func buildRouter(h *auth.AuthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.Metrics.Middleware(routePattern))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.CheckHealth)
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	// Rate limited per client IP when Redis is configured.
	r.Group(func(r chi.Router) {
		r.Use(h.RateLimit)
		r.Get("/auth/telegram", h.TelegramAuth)
		r.Post("/auth/telegram/exchange", h.TelegramExchange)
	})

	return r
}

// routePattern returns the matched chi pattern, e.g. "/auth/telegram".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
