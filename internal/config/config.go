// Package config loads the tool's configuration from environment variables
// and validates it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	Environment string
	DatabaseURL string
	Pipeline    PipelineConfig
	Display     DisplayConfig
	Storage     StorageConfig
	Cache       CacheConfig
	Logging     *LoggingConfig
}

// PipelineConfig sizes the batch pipeline and sets transform defaults.
// Zero worker and queue counts select automatic sizing.
type PipelineConfig struct {
	Workers      int
	LoadQueue    int
	CommitQueue  int
	BufferRetain int64
	DefaultPPI   int
	JPEGQuality  int
}

// DisplayConfig controls terminal styling
type DisplayConfig struct {
	ColorMode   string
	AccentColor string
}

// StorageConfig holds the object storage used to archive originals
type StorageConfig struct {
	ArchiveEnabled  bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
	KeyPrefix       string
}

// CacheConfig holds the Redis/Valkey connection used for progress events
type CacheConfig struct {
	Enabled         bool
	Address         string
	Password        string
	Database        int
	Channel         string
	SummaryTTL      time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load creates a new configuration from environment variables with validation
func Load() (*Config, error) {
	colorMode := getEnv("COLOR_MODE", "auto")
	if _, ok := os.LookupEnv("NO_COLOR"); ok && os.Getenv("COLOR_MODE") == "" {
		colorMode = "never"
	}

	config := &Config{
		Environment: getEnv("GO_ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Pipeline: PipelineConfig{
			Workers:      getEnvInt("RANA_WORKERS", 0),
			LoadQueue:    getEnvInt("RANA_LOAD_QUEUE", 0),
			CommitQueue:  getEnvInt("RANA_COMMIT_QUEUE", 0),
			BufferRetain: parseSize(getEnv("RANA_BUFFER_RETAIN", "32MB")),
			DefaultPPI:   getEnvInt("RANA_DEFAULT_PPI", 144),
			JPEGQuality:  getEnvInt("RANA_JPEG_QUALITY", 90),
		},
		Display: DisplayConfig{
			ColorMode:   colorMode,
			AccentColor: getEnv("ACCENT_COLOR", ""),
		},
		Storage: StorageConfig{
			ArchiveEnabled:  getEnvBool("ARCHIVE_ENABLED", false),
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "originals"),
			UseSSL:          getEnvBool("STORAGE_USE_SSL", false),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			KeyPrefix:       getEnv("STORAGE_KEY_PREFIX", ""),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("PROGRESS_REDIS_ENABLED", false),
			Address:         getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			Database:        getEnvInt("REDIS_DB", 0),
			Channel:         getEnv("REDIS_PROGRESS_CHANNEL", "ranaimg:progress"),
			SummaryTTL:      getEnvDuration("REDIS_SUMMARY_TTL", 24*time.Hour),
			MaxRetries:      getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryBackoff: getEnvDuration("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond),
			MaxRetryBackoff: getEnvDuration("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond),
			DialTimeout:     getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolSize:        getEnvInt("REDIS_POOL_SIZE", 4),
			MinIdleConns:    getEnvInt("REDIS_MIN_IDLE_CONNS", 1),
			PoolTimeout:     getEnvDuration("REDIS_POOL_TIMEOUT", 4*time.Second),
		},
		Logging: &LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	// Validate configuration before returning
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns defaultValue when the variable is unset. A malformed
// value is kept as -1 so that validation reports it.
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return -1
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

// parseSize parses size strings like "10MB", "512KB" into bytes
func parseSize(sizeStr string) int64 {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))

	if strings.HasSuffix(sizeStr, "MB") {
		numStr := strings.TrimSuffix(sizeStr, "MB")
		if num, err := strconv.ParseInt(numStr, 10, 64); err == nil {
			return num * 1024 * 1024
		}
	}

	if strings.HasSuffix(sizeStr, "KB") {
		numStr := strings.TrimSuffix(sizeStr, "KB")
		if num, err := strconv.ParseInt(numStr, 10, 64); err == nil {
			return num * 1024
		}
	}

	if num, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return num
	}

	// Default to 32MB if parsing fails
	return 32 * 1024 * 1024
}

// MustLoad loads configuration and panics on error
func MustLoad() *Config {
	config, err := Load()
	if err != nil {
		panic(err)
	}
	return config
}
