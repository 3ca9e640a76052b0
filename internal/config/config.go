package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/harliandi/go-avif/pkg/avif"
)

// Config holds application configuration
type Config struct {
	Port            int
	MaxUploadMB     int
	TargetSizeKB    int // default byte budget for /convert, 0 = none
	MaxConcurrent   int
	RateLimitPerSec int
	RateLimitBurst  int
	WorkerCount     int
	CacheSize       int // result cache entries, 0 disables the cache
	AvifencPath     string
	AvifdecPath     string
	FallbackFormat  string // jpeg or webp
	Codec           string // forces a codec by name, empty selects automatically
	TrustProxy      bool   // key rate limits by X-Forwarded-For / X-Real-IP
	DefaultPriority avif.Priority
	DefaultStrategy avif.CompressionStrategy
	LogLevel        string
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is read first if present; real
// environment variables take precedence over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		MaxUploadMB:     getEnvInt("MAX_UPLOAD_MB", 20),
		TargetSizeKB:    getEnvInt("TARGET_SIZE_KB", 0),
		MaxConcurrent:   getEnvInt("MAX_CONCURRENT", 50),
		RateLimitPerSec: getEnvInt("RATE_LIMIT", 10),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 20),
		WorkerCount:     getEnvInt("WORKER_COUNT", 4),
		CacheSize:       getEnvInt("CACHE_SIZE", 128),
		AvifencPath:     getEnv("AVIFENC_PATH", ""),
		AvifdecPath:     getEnv("AVIFDEC_PATH", ""),
		FallbackFormat:  strings.ToLower(getEnv("FALLBACK_FORMAT", "jpeg")),
		Codec:           strings.ToLower(getEnv("CODEC", "")),
		TrustProxy:      getEnvBool("TRUST_PROXY", false),
		DefaultPriority: avif.PriorityBalanced,
		DefaultStrategy: avif.Smart,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if v := os.Getenv("DEFAULT_PRIORITY"); v != "" {
		if p, err := avif.ParsePriority(v); err == nil {
			cfg.DefaultPriority = p
		} else {
			slog.Warn("ignoring DEFAULT_PRIORITY", "error", err)
		}
	}
	if v := os.Getenv("DEFAULT_STRATEGY"); v != "" {
		if s, err := avif.ParseCompressionStrategy(v); err == nil {
			cfg.DefaultStrategy = s
		} else {
			slog.Warn("ignoring DEFAULT_STRATEGY", "error", err)
		}
	}
	if cfg.FallbackFormat != "jpeg" && cfg.FallbackFormat != "webp" {
		slog.Warn("unknown FALLBACK_FORMAT, using jpeg", "value", cfg.FallbackFormat)
		cfg.FallbackFormat = "jpeg"
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return cfg
}

// DefaultOptions returns the base encoding options for requests that do not
// name a preset: the configured priority, strategy and byte budget.
func (c *Config) DefaultOptions() avif.EncodingOptions {
	o := avif.FromPriority(c.DefaultPriority)
	o.Strategy = c.DefaultStrategy
	if c.TargetSizeKB > 0 {
		o.MaxSize = avif.Int64(int64(c.TargetSizeKB) * 1024)
	}
	return o
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		slog.Warn("ignoring non-boolean value", "key", key, "value", val)
	}
	return defaultValue
}
