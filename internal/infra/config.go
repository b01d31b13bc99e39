package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	RedisURL    string
	QueueName   string

	// SecretKey signs local upload URLs and the session cookie.
	SecretKey  string
	AdminToken string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	// ProviderTimeout bounds the single long-blocking provider call.
	ProviderTimeout time.Duration

	StorageBackend string // "local" or "s3"
	StoragePath    string
	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string

	DailyCostLimitUSD float64
	UploadURLExpiry   time.Duration
	OutputURLExpiry   time.Duration

	GeoIPDBPath     string
	AllowedOrigins  []string
	RateLimitPerMin int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getEnvInt("DB_MIN_CONNS", 1)),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		QueueName:   getEnv("QUEUE_NAME", "drapestudio:generations"),

		SecretKey:  os.Getenv("SECRET_KEY"),
		AdminToken: os.Getenv("ADMIN_TOKEN"),

		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash-exp-image-generation"),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ProviderTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 120)),

		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),

		DailyCostLimitUSD: getEnvFloat("DAILY_COST_LIMIT_USD", 10.00),
		UploadURLExpiry:   time.Second * time.Duration(getEnvInt("UPLOAD_URL_EXPIRY_SECONDS", 900)),
		OutputURLExpiry:   time.Second * time.Duration(getEnvInt("OUTPUT_URL_EXPIRY_SECONDS", 3600)),

		GeoIPDBPath:     os.Getenv("GEOIP_DB_PATH"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:8080")),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}

	if cfg.StorageBackend != "local" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", cfg.StorageBackend)
	}

	if cfg.StorageBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
