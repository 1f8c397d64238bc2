package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the fuzzjobs server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	Analysis  AnalysisConfig
	Artifacts ArtifactConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
	// BaseURL is the externally reachable address workers use to call back.
	BaseURL string
}

// Debug reports whether result parse failures should surface to the caller
// instead of being recorded on the job.
func (s ServerConfig) Debug() bool {
	return s.Env == "development"
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL       string
	StatusTTL time.Duration
}

type DispatchConfig struct {
	Kind               string
	DaemonURL          string
	Queue              string
	Timeout            time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	MaxAttempts        int
}

type AnalysisConfig struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
}

type ArtifactConfig struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Enabled reports whether rendering artifacts go to object storage.
func (a ArtifactConfig) Enabled() bool {
	return a.Bucket != ""
}

type RateLimitConfig struct {
	JobsPerMinute int
}

var validDispatchers = map[string]bool{
	"xmlrpc": true,
	"redis":  true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:    envInt("FUZZJOBS_PORT", 8080),
			Env:     envString("FUZZJOBS_ENV", "development"),
			BaseURL: os.Getenv("SERVER_BASE_URL"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			StatusTTL: envDuration("JOB_STATUS_TTL", 30*time.Minute),
		},
		Dispatch: DispatchConfig{
			Kind:               envString("DISPATCHER", "xmlrpc"),
			DaemonURL:          os.Getenv("BACKEND_DAEMON_URL"),
			Queue:              envString("DISPATCH_QUEUE", "fuzzjobs:dispatch"),
			Timeout:            envDuration("DISPATCH_TIMEOUT", 10*time.Second),
			OutboxPollInterval: envDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			OutboxBatchSize:    envInt("OUTBOX_BATCH_SIZE", 20),
			MaxAttempts:        envInt("OUTBOX_MAX_ATTEMPTS", 10),
		},
		Analysis: AnalysisConfig{
			BaseURL:      envString("ANALYSIS_SERVER_URL", "http://localhost:8080"),
			Timeout:      envDurationSecs("ANALYSIS_TIMEOUT_SECS", 30*time.Second),
			PollInterval: envDuration("ANALYSIS_POLL_INTERVAL", 2*time.Second),
		},
		Artifacts: ArtifactConfig{
			Bucket:       os.Getenv("ARTIFACT_S3_BUCKET"),
			Region:       envString("ARTIFACT_S3_REGION", "us-east-1"),
			Endpoint:     os.Getenv("ARTIFACT_S3_ENDPOINT"),
			UsePathStyle: envBool("ARTIFACT_S3_PATH_STYLE", false),
		},
		RateLimit: RateLimitConfig{
			JobsPerMinute: envInt("RATE_LIMIT_JOBS_PER_MINUTE", 30),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("SERVER_BASE_URL is required")
	}
	if !isHTTPURL(c.Server.BaseURL) {
		return fmt.Errorf("SERVER_BASE_URL must start with http:// or https://, got %q", c.Server.BaseURL)
	}

	if !validDispatchers[c.Dispatch.Kind] {
		return fmt.Errorf("DISPATCHER must be one of xmlrpc, redis; got %q", c.Dispatch.Kind)
	}
	if c.Dispatch.Kind == "xmlrpc" {
		if c.Dispatch.DaemonURL == "" {
			return fmt.Errorf("BACKEND_DAEMON_URL is required when DISPATCHER is xmlrpc")
		}
		if !isHTTPURL(c.Dispatch.DaemonURL) {
			return fmt.Errorf("BACKEND_DAEMON_URL must start with http:// or https://, got %q", c.Dispatch.DaemonURL)
		}
	}

	if c.RateLimit.JobsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_JOBS_PER_MINUTE must be positive, got %d", c.RateLimit.JobsPerMinute)
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
