package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_HappyPath_NoRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("JWT_SECRET", "sekrit")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != "postgres://u:p@localhost:5432/db?sslmode=disable" {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if cfg.Auth.JWTSecret != "sekrit" {
		t.Fatalf("unexpected JWTSecret: %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.RateLimit.PerNumberHourly != 10 {
		t.Fatalf("unexpected rate limit default: %d", cfg.RateLimit.PerNumberHourly)
	}
	if cfg.RateLimit.Window != time.Hour {
		t.Fatalf("unexpected rate window default: %v", cfg.RateLimit.Window)
	}
	if cfg.Dispatch.BatchSize != 10 {
		t.Fatalf("unexpected batch size default: %d", cfg.Dispatch.BatchSize)
	}
	if cfg.Dispatch.BatchDelay != time.Second {
		t.Fatalf("unexpected batch delay default: %v", cfg.Dispatch.BatchDelay)
	}
	if !cfg.Carrier.Simulated() {
		t.Fatalf("expected simulated carrier when no credentials set")
	}
	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_WithRedisAndCarrier(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
	t.Setenv("JWT_SECRET", "sekrit")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CARRIER_ACCOUNT_SID", "AC123")
	t.Setenv("CARRIER_AUTH_TOKEN", "tok")
	t.Setenv("CARRIER_FROM_NUMBER", "+15550001111")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" || cfg.Redis.Password != "secret" || cfg.Redis.DB != 3 {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Carrier.Simulated() {
		t.Fatalf("expected real carrier when credentials set")
	}
	if cfg.Carrier.FromNumber != "+15550001111" {
		t.Fatalf("unexpected FromNumber: %q", cfg.Carrier.FromNumber)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	t.Run("missing POSTGRES_URL", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("JWT_SECRET", "sekrit")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "POSTGRES_URL") {
			t.Fatalf("expected error mentioning POSTGRES_URL, got: %v", err)
		}
	})

	t.Run("missing JWT_SECRET", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")

		_, err := LoadAll()
		if err == nil {
			t.Fatalf("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "JWT_SECRET") {
			t.Fatalf("expected error mentioning JWT_SECRET, got: %v", err)
		}
	})
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid CONTENT_MAX", "CONTENT_MAX", "abc"},
		{"invalid RATE_LIMIT_PER_NUMBER", "RATE_LIMIT_PER_NUMBER", "nope"},
		{"invalid DISPATCH_BATCH_SIZE", "DISPATCH_BATCH_SIZE", "x"},
		{"invalid SCHED_INTERVAL_SECONDS", "SCHED_INTERVAL_SECONDS", "bad"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
			t.Setenv("JWT_SECRET", "sekrit")
			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"batch size <= 0", "DISPATCH_BATCH_SIZE", "0", "DISPATCH_BATCH_SIZE"},
		{"rate cap <= 0", "RATE_LIMIT_PER_NUMBER", "0", "RATE_LIMIT_PER_NUMBER"},
		{"rate window <= 0", "RATE_LIMIT_WINDOW_SECONDS", "0", "RATE_LIMIT_WINDOW_SECONDS"},
		{"content max <= 0", "CONTENT_MAX", "0", "CONTENT_MAX"},
		{"sched interval <= 0", "SCHED_INTERVAL_SECONDS", "0", "SCHED_INTERVAL_SECONDS"},
		{"sched batch <= 0", "SCHED_BATCH_SIZE", "-1", "SCHED_BATCH_SIZE"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")
			t.Setenv("JWT_SECRET", "sekrit")
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("expected joined error to match both, got %v", err)
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"POSTGRES_URL",
		"JWT_SECRET",
		"SERVER_ADDRESS",
		"CONTENT_MAX",
		"RATE_LIMIT_PER_NUMBER",
		"RATE_LIMIT_WINDOW_SECONDS",
		"DISPATCH_BATCH_SIZE",
		"DISPATCH_BATCH_DELAY_MS",
		"SCHED_INTERVAL_SECONDS",
		"SCHED_BATCH_SIZE",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"CARRIER_ACCOUNT_SID",
		"CARRIER_AUTH_TOKEN",
		"CARRIER_FROM_NUMBER",
		"DOMESTIC_PREFIX",
		"FOO",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
