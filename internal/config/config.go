// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned by Validate when the Telegram API
// credentials are absent. It is a configuration error, not a run failure.
var ErrMissingCredentials = errors.New("TG_API_ID and TG_API_HASH are required")

// Config holds all application configuration.
type Config struct {
	// database
	DatabaseURL string

	// nats, empty disables listing events
	NatsURL string

	// telegram
	TGApiID      int
	TGApiHash    string
	TGSessionStr string
	TGChannel    string
	TGPublicHost string
	TGRateRPS    float64

	// import
	BatchSize      int
	FetchTimeout   time.Duration
	ImportInterval time.Duration
	DefaultCity    string

	// media
	MediaBackend         string
	MediaDir             string
	MediaGCSBucket       string
	MediaMaxBytes        int64
	MediaDownloadTimeout time.Duration

	// server
	HTTPPort int

	// logging
	LogLevel  string
	LogFile   string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:          getEnv("DATABASE_URL", "sqlite://carfeed.db"),
		NatsURL:              getEnv("NATS_URL", ""),
		TGApiID:              getEnvInt("TG_API_ID", 0),
		TGApiHash:            getEnv("TG_API_HASH", ""),
		TGSessionStr:         getEnv("TG_SESSION_STRING", ""),
		TGChannel:            strings.TrimPrefix(getEnv("TG_CHANNEL", "akibaautovl"), "@"),
		TGPublicHost:         getEnv("TG_PUBLIC_HOST", "t.me"),
		TGRateRPS:            getEnvFloat("TG_RATE_LIMIT_RPS", 2.0),
		BatchSize:            getEnvInt("IMPORT_BATCH_SIZE", 100),
		FetchTimeout:         getEnvSeconds("IMPORT_FETCH_TIMEOUT_SECONDS", 30),
		ImportInterval:       time.Duration(getEnvInt("IMPORT_INTERVAL_MINUTES", 0)) * time.Minute,
		DefaultCity:          getEnv("DEFAULT_CITY", "Владивосток"),
		MediaBackend:         getEnv("MEDIA_BACKEND", "local"),
		MediaDir:             getEnv("MEDIA_DIR", "./media"),
		MediaGCSBucket:       getEnv("MEDIA_GCS_BUCKET", ""),
		MediaMaxBytes:        int64(getEnvInt("MEDIA_MAX_BYTES", 10*1024*1024)),
		MediaDownloadTimeout: getEnvSeconds("MEDIA_DOWNLOAD_TIMEOUT_SECONDS", 60),
		HTTPPort:             getEnvInt("HTTP_PORT", 3100),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              getEnv("LOG_FILE", ""),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
	}

	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100 // telegram api limit
	}

	return cfg, nil
}

// Validate checks the settings every import needs before any connection is opened.
func (c *Config) Validate() error {
	if c.TGApiID == 0 || c.TGApiHash == "" {
		return ErrMissingCredentials
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvSeconds(key string, defaultVal int) time.Duration {
	return time.Duration(getEnvInt(key, defaultVal)) * time.Second
}
