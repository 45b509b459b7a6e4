package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Carrier   CarrierConfig
	RateLimit RateLimitConfig
	Dispatch  DispatchConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type CarrierConfig struct {
	AccountSID     string
	AuthToken      string
	FromNumber     string
	DomesticPrefix string
	ContentMax     int
}

// Simulated reports whether the deterministic simulator should be used
// in place of the real carrier API.
func (c CarrierConfig) Simulated() bool {
	return c.AccountSID == "" || c.AuthToken == ""
}

type RateLimitConfig struct {
	PerNumberHourly int
	Window          time.Duration
}

type DispatchConfig struct {
	BatchSize  int
	BatchDelay time.Duration
}

type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}
	jwtSecret, err := requireEnv("JWT_SECRET")
	if err != nil {
		errs = append(errs, err)
	}

	contentMax, err := getEnvInt("CONTENT_MAX", 1600)
	if err != nil {
		errs = append(errs, err)
	}
	rateCap, err := getEnvInt("RATE_LIMIT_PER_NUMBER", 10)
	if err != nil {
		errs = append(errs, err)
	}
	rateWindow, err := getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 3600)
	if err != nil {
		errs = append(errs, err)
	}
	batchSize, err := getEnvInt("DISPATCH_BATCH_SIZE", 10)
	if err != nil {
		errs = append(errs, err)
	}
	batchDelayMs, err := getEnvInt("DISPATCH_BATCH_DELAY_MS", 1000)
	if err != nil {
		errs = append(errs, err)
	}
	schedInterval, err := getEnvInt("SCHED_INTERVAL_SECONDS", 30)
	if err != nil {
		errs = append(errs, err)
	}
	schedBatch, err := getEnvInt("SCHED_BATCH_SIZE", 20)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Redis: redisCfg,
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
		},
		Carrier: CarrierConfig{
			AccountSID:     os.Getenv("CARRIER_ACCOUNT_SID"),
			AuthToken:      os.Getenv("CARRIER_AUTH_TOKEN"),
			FromNumber:     getEnv("CARRIER_FROM_NUMBER", "+15005550006"),
			DomesticPrefix: getEnv("DOMESTIC_PREFIX", "+1"),
			ContentMax:     contentMax,
		},
		RateLimit: RateLimitConfig{
			PerNumberHourly: rateCap,
			Window:          time.Duration(rateWindow) * time.Second,
		},
		Dispatch: DispatchConfig{
			BatchSize:  batchSize,
			BatchDelay: time.Duration(batchDelayMs) * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			Interval:  time.Duration(schedInterval) * time.Second,
			BatchSize: schedBatch,
		},
	}

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func validate(cfg *Config) []error {
	var errs []error

	if cfg.Dispatch.BatchSize <= 0 {
		errs = append(errs, errors.New("DISPATCH_BATCH_SIZE must be > 0"))
	}
	if cfg.Dispatch.BatchDelay < 0 {
		errs = append(errs, errors.New("DISPATCH_BATCH_DELAY_MS must be >= 0"))
	}
	if cfg.RateLimit.PerNumberHourly <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_NUMBER must be > 0"))
	}
	if cfg.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_SECONDS must be > 0"))
	}
	if cfg.Carrier.ContentMax <= 0 {
		errs = append(errs, errors.New("CONTENT_MAX must be > 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SCHED_BATCH_SIZE must be > 0"))
	}

	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
