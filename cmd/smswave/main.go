package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/smswave/smswave/internal/analytics"
	"github.com/smswave/smswave/internal/api"
	"github.com/smswave/smswave/internal/carrier"
	"github.com/smswave/smswave/internal/config"
	"github.com/smswave/smswave/internal/dispatch"
	"github.com/smswave/smswave/internal/hub"
	"github.com/smswave/smswave/internal/ratelimit"
	"github.com/smswave/smswave/internal/repo"
	"github.com/smswave/smswave/internal/scheduler"
	"github.com/smswave/smswave/internal/service"
	"github.com/smswave/smswave/internal/tasks"
	"github.com/smswave/smswave/internal/tracker"
	"github.com/smswave/smswave/migrations"
)

const simulatorFailPercent = 5

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	slog.Info("smswave starting",
		"addr", cfg.Server.Address,
		"dispatch_batch", cfg.Dispatch.BatchSize,
		"scheduler_interval", cfg.Scheduler.Interval.String(),
		"redis", cfg.Redis.Enabled,
		"carrier_simulated", cfg.Carrier.Simulated(),
	)

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := runMigrations(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	var limiter ratelimit.Limiter = ratelimit.AllowAll{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.PerNumberHourly, cfg.RateLimit.Window)
	} else {
		slog.Warn("redis disabled, per-number rate limiting is off")
	}

	var gateway carrier.Gateway
	if cfg.Carrier.Simulated() {
		gateway = carrier.NewSimulator(cfg.Carrier.DomesticPrefix, simulatorFailPercent)
	} else {
		gateway = carrier.NewTwilioGateway(
			cfg.Carrier.AccountSID,
			cfg.Carrier.AuthToken,
			cfg.Carrier.FromNumber,
			cfg.Carrier.DomesticPrefix,
		)
	}

	messages := repo.NewPostgresMessageRepo(db)
	recipients := repo.NewPostgresRecipientRepo(db)
	contacts := repo.NewPostgresContactRepo(db)

	registry := hub.NewRegistry()
	track := tracker.New(messages, recipients, registry)
	usage := analytics.New(messages, registry)

	worker := tasks.NewWorker(64, 30*time.Second)
	worker.Start()
	defer worker.Stop()

	engine := dispatch.NewEngine(gateway, limiter, cfg.Dispatch.BatchSize, cfg.Dispatch.BatchDelay)
	orch := service.NewOrchestrator(
		messages,
		recipients,
		engine,
		track,
		contacts,
		registry,
		worker,
		usage,
		cfg.Carrier.ContentMax,
		cfg.Carrier.DomesticPrefix,
	)

	sched, err := scheduler.New(
		cfg.Scheduler.Interval,
		cfg.Scheduler.Interval,
		scheduler.DispatchTick(messages, orch, cfg.Scheduler.BatchSize),
	)
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	h := api.NewHandler(orch, usage, registry, sched, cfg.Auth.JWTSecret, cfg.Carrier.DomesticPrefix)
	ws := hub.NewHandler(registry, cfg.Auth.JWTSecret)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(h, ws)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("http server failed: %v", err)
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
