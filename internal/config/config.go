package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Run modes for the service binary.
const (
	ModeAPI    = "api"
	ModeWorker = "worker"
	ModeAll    = "all"
)

// Config carries every runtime setting for the service. It is built once in
// main and handed to the components that need it; nothing reads the
// environment after startup.
type Config struct {
	Mode     string
	HTTPAddr string

	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string

	UpstreamBaseURL string
	FaceCascadePath string
	TaggerAddr      string

	WorkerConcurrency int
	WorkerMaxRetry    int

	ResultCacheTTL time.Duration
	JobRecordTTL   time.Duration
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Mode:            getEnv("SERVICE_MODE", ModeAll),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=classify port=5432 sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "http://photos-service:8000"),
		FaceCascadePath: getEnv("FACE_CASCADE_PATH", "./cascade/facefinder"),
		TaggerAddr:      os.Getenv("TAGGER_ADDR"),
	}

	var err error
	if cfg.WorkerConcurrency, err = getEnvInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.WorkerMaxRetry, err = getEnvInt("WORKER_MAX_RETRY", 0); err != nil {
		return nil, err
	}
	if cfg.ResultCacheTTL, err = getEnvDuration("RESULT_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JobRecordTTL, err = getEnvDuration("JOB_RECORD_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	switch cfg.Mode {
	case ModeAPI, ModeWorker, ModeAll:
	default:
		return nil, fmt.Errorf("config: unknown SERVICE_MODE %q", cfg.Mode)
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("config: WORKER_CONCURRENCY must be at least 1, got %d", cfg.WorkerConcurrency)
	}
	if cfg.WorkerMaxRetry < 0 {
		return nil, fmt.Errorf("config: WORKER_MAX_RETRY must not be negative, got %d", cfg.WorkerMaxRetry)
	}

	return cfg, nil
}

// RunsAPI reports whether this process should serve HTTP.
func (c *Config) RunsAPI() bool {
	return c.Mode == ModeAPI || c.Mode == ModeAll
}

// RunsWorker reports whether this process should consume the task queue.
func (c *Config) RunsWorker() bool {
	return c.Mode == ModeWorker || c.Mode == ModeAll
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q", key, value)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration like 10m, got %q", key, value)
	}
	return parsed, nil
}
