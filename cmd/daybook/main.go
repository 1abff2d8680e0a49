package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	daybookhttp "github.com/daybookhq/daybook/internal/adapter/http"
	"github.com/daybookhq/daybook/internal/adapter/nats"
	"github.com/daybookhq/daybook/internal/adapter/natskv"
	"github.com/daybookhq/daybook/internal/adapter/otel"
	"github.com/daybookhq/daybook/internal/adapter/postgres"
	"github.com/daybookhq/daybook/internal/adapter/ristretto"
	"github.com/daybookhq/daybook/internal/adapter/stripe"
	"github.com/daybookhq/daybook/internal/adapter/tiered"
	"github.com/daybookhq/daybook/internal/adapter/ws"
	"github.com/daybookhq/daybook/internal/config"
	"github.com/daybookhq/daybook/internal/logger"
	"github.com/daybookhq/daybook/internal/middleware"
	"github.com/daybookhq/daybook/internal/resilience"
	"github.com/daybookhq/daybook/internal/secrets"
	"github.com/daybookhq/daybook/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		// CLI output goes to the terminal; keep log noise on stderr.
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"config_file", yamlPath,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	vault, err := secrets.NewEnvVault()
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	for _, name := range vault.Keys() {
		slog.Info("secret loaded", "name", name, "value", vault.Redacted(name))
	}

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	// Run migrations
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := nats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Tiered cache: per-instance ristretto in front of a shared JetStream KV
	// bucket. JetStream expires at bucket level, so the bucket carries the
	// longer of the two entry TTLs.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	l2TTL := cfg.Cache.TenantTTL
	if cfg.Cache.CatalogTTL > l2TTL {
		l2TTL = cfg.Cache.CatalogTTL
	}
	cacheKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, l2TTL)
	if err != nil {
		return fmt.Errorf("l2 cache: %w", err)
	}
	sharedCache := tiered.New(l1, natskv.New(cacheKV), cfg.Cache.L1TTL)

	idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}

	// --- Observability ---

	shutdownOTel, err := otel.Setup(ctx, cfg.OTel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(flushCtx)
	}()
	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Payment gateway ---

	gw := stripe.NewClient(cfg.Gateway, vault)
	gw.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---

	store := postgres.NewStore(pool)
	directory := service.NewDirectoryService(store, sharedCache, cfg.Cache.TenantTTL)
	catalogSvc := service.NewCatalogService(store, sharedCache, cfg.Cache.CatalogTTL)
	hub := ws.NewHub(wsOriginPattern(cfg.Server.CORSOrigin), catalogSvc)
	bookings := service.NewBookingService(store, queue, hub, metrics, cfg.Booking.HoldTTL)
	payments := service.NewPaymentService(store, gw, queue, hub, metrics, cfg.Booking.Currency)
	ingest := service.NewIngestService(store, payments, directory, queue, hub, metrics)

	reaper := service.NewReaper(store, queue, hub, metrics, ingest, cfg.Booking.SweepInterval, cfg.Booking.SweepBatch)
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	reaper.Start(reaperCtx)

	// SIGHUP swaps in fresh secrets without a restart.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded",
				"gateway_key", vault.Redacted(secrets.KeyGatewayAPIKey))
		}
	}()

	// --- HTTP ---

	handlers := &daybookhttp.Handlers{
		Directory: directory,
		Catalog:   catalogSvc,
		Bookings:  bookings,
		Payments:  payments,
		Ingest:    ingest,
		Store:     store,
		Hub:       hub,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()

	// Middleware. RequestID runs before the logger so every line carries the
	// request id; Recoverer runs inside the logger so panics still log a 500.
	r.Use(daybookhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(daybookhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(daybookhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	daybookhttp.MountRoutes(r, handlers, daybookhttp.Deps{
		RateLimiter:     limiter,
		Idempotency:     middleware.Idempotency(idemKV),
		Vault:           vault,
		SignatureHeader: cfg.Webhook.SignatureHeader,
	})

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr, "version", daybookhttp.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")
	stopReaper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	// In-flight requests are done; close widget sessions and flush the queue.
	hub.Close()
	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain failed", "error", err)
	}
	return nil
}

// wsOriginPattern converts the configured CORS origin into the fallback
// websocket origin host pattern. "*" and "" allow any origin; tenants with a
// registered embed origin are checked against that instead.
func wsOriginPattern(origin string) string {
	if origin == "" || origin == "*" {
		return ""
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}
