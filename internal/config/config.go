package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Platform PlatformConfig
	Warmup   WarmupConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	URL string
}

// PlatformConfig holds the platform gateway connection settings.
type PlatformConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	CallTimeout       time.Duration
}

// WarmupConfig holds the engine's scheduling knobs.
type WarmupConfig struct {
	SweepInterval    time.Duration
	SweepParallelism int
	FailureThreshold int
	BatchCheckDelay  time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultPlatformRPS     = 2.0
	defaultPlatformTimeout = 30 * time.Second

	defaultSweepInterval    = 5 * time.Minute
	defaultSweepParallelism = 8
	defaultFailureThreshold = 5
	defaultBatchCheckDelay  = 5 * time.Second
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud platforms set PORT; allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Platform: PlatformConfig{
			BaseURL:           os.Getenv("PLATFORM_GATEWAY_URL"),
			APIKey:            os.Getenv("PLATFORM_GATEWAY_API_KEY"),
			RequestsPerSecond: defaultPlatformRPS,
			CallTimeout:       defaultPlatformTimeout,
		},
		Warmup: WarmupConfig{
			SweepInterval:    defaultSweepInterval,
			SweepParallelism: defaultSweepParallelism,
			FailureThreshold: defaultFailureThreshold,
			BatchCheckDelay:  defaultBatchCheckDelay,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("PLATFORM_REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return Config{}, fmt.Errorf("invalid PLATFORM_REQUESTS_PER_SECOND: must be a positive number")
		}
		cfg.Platform.RequestsPerSecond = rps
	}

	if v := os.Getenv("PLATFORM_CALL_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PLATFORM_CALL_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Platform.CallTimeout = d
	}

	if v := os.Getenv("WARMUP_SWEEP_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WARMUP_SWEEP_INTERVAL_SECONDS: %w", err)
		}
		cfg.Warmup.SweepInterval = d
	}

	if v := os.Getenv("WARMUP_SWEEP_PARALLELISM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid WARMUP_SWEEP_PARALLELISM: must be a positive integer")
		}
		cfg.Warmup.SweepParallelism = n
	}

	if v := os.Getenv("WARMUP_FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid WARMUP_FAILURE_THRESHOLD: must be a positive integer")
		}
		cfg.Warmup.FailureThreshold = n
	}

	if v := os.Getenv("WARMUP_BATCH_CHECK_DELAY_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WARMUP_BATCH_CHECK_DELAY_SECONDS: %w", err)
		}
		cfg.Warmup.BatchCheckDelay = d
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
