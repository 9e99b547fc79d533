package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	devCallbackSecret = "dev-secret"
	minSecretLength   = 32
)

type Config struct {
	// Server
	Env         string
	Port        string
	FrontendURL string

	// Database
	DBBackend   string
	DatabaseURL string
	SQLitePath  string

	// Auth
	JWTSecret        string
	JWTRefreshSecret string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Object storage
	StorageBackend     string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	S3ForcePathStyle   bool
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	// Analysis workflow
	N8NWebhookURL       string
	N8NWebhookAPIKey    string
	N8NCallbackSecret   string
	N8NCallbackBaseURL  string
	N8NTimeout          time.Duration
	AnalysisStaleAfter  time.Duration
	AnalysisSweepPeriod time.Duration

	UsingDevCallbackSecret bool

	// Logging
	LogLevel  string
	LogFormat string

	parseErrs []error
}

// Load reads the configuration from the process environment. Callers load
// .env files beforehand.
func Load() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("ENV", EnvDevelopment),
		Port:        getEnv("PORT", "3001"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		DBBackend:   strings.ToLower(getEnv("DB_BACKEND", "postgres")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SQLITE_PATH", "restorix.db"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),

		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", "")),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:      getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:  getEnv("S3_SECRET_ACCESS_KEY", ""),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseBucket:     getEnv("SUPABASE_BUCKET", "photos"),

		N8NWebhookURL:     getEnv("N8N_WEBHOOK_URL", ""),
		N8NWebhookAPIKey:  getEnv("N8N_WEBHOOK_API_KEY", ""),
		N8NCallbackSecret: getEnv("N8N_CALLBACK_SECRET", ""),

		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	cfg.N8NCallbackBaseURL = strings.TrimRight(getEnv("N8N_CALLBACK_BASE_URL", "http://localhost:"+cfg.Port), "/")
	cfg.S3ForcePathStyle = cfg.parseBool("S3_FORCE_PATH_STYLE", false)
	cfg.JWTAccessExpiry = cfg.parseDuration("JWT_ACCESS_EXPIRY", "15m")
	cfg.JWTRefreshExpiry = cfg.parseDuration("JWT_REFRESH_EXPIRY", "7d")
	cfg.N8NTimeout = cfg.parseDuration("N8N_TIMEOUT", "30s")
	cfg.AnalysisStaleAfter = cfg.parseDuration("ANALYSIS_STALE_AFTER", "24h")
	cfg.AnalysisSweepPeriod = cfg.parseDuration("ANALYSIS_SWEEP_INTERVAL", "10m")

	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "memory"
		if cfg.Env == EnvProduction {
			cfg.StorageBackend = "s3"
		}
	}
	if cfg.N8NCallbackSecret == "" && cfg.Env != EnvProduction {
		cfg.N8NCallbackSecret = devCallbackSecret
		cfg.UsingDevCallbackSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)

	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("ENV must be one of development, production, test (got %q)", c.Env))
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric (got %q)", c.Port))
	}

	switch c.DBBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when DB_BACKEND=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_BACKEND must be postgres or sqlite (got %q)", c.DBBackend))
	}

	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if len(c.JWTRefreshSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters", minSecretLength))
	}

	if !isURL(c.FrontendURL) {
		errs = append(errs, fmt.Errorf("FRONTEND_URL must be a valid URL (got %q)", c.FrontendURL))
	}
	if c.N8NWebhookURL != "" && !isURL(c.N8NWebhookURL) {
		errs = append(errs, fmt.Errorf("N8N_WEBHOOK_URL must be a valid URL (got %q)", c.N8NWebhookURL))
	}
	if !isURL(c.N8NCallbackBaseURL) {
		errs = append(errs, fmt.Errorf("N8N_CALLBACK_BASE_URL must be a valid URL (got %q)", c.N8NCallbackBaseURL))
	}
	if c.N8NCallbackSecret == "" {
		errs = append(errs, errors.New("N8N_CALLBACK_SECRET is required in production"))
	}

	switch c.StorageBackend {
	case "memory":
		if c.Env == EnvProduction {
			errs = append(errs, errors.New("STORAGE_BACKEND=memory is not allowed in production"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3"))
		}
		if c.S3Endpoint != "" && !isURL(c.S3Endpoint) {
			errs = append(errs, fmt.Errorf("S3_ENDPOINT must be a valid URL (got %q)", c.S3Endpoint))
		}
	case "supabase":
		if !isURL(c.SupabaseURL) {
			errs = append(errs, errors.New("SUPABASE_URL is required when STORAGE_BACKEND=supabase"))
		}
		if c.SupabaseServiceKey == "" {
			errs = append(errs, errors.New("SUPABASE_SERVICE_KEY is required when STORAGE_BACKEND=supabase"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be s3, supabase or memory (got %q)", c.StorageBackend))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// CallbackURL is the externally reachable address of the analysis callback route.
func (c *Config) CallbackURL() string {
	return c.N8NCallbackBaseURL + "/api/webhooks/n8n/analysis-complete"
}

func (c *Config) parseDuration(key, def string) time.Duration {
	d, err := ParseDuration(getEnv(key, def))
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	return d
}

func (c *Config) parseBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.parseErrs = append(c.parseErrs, fmt.Errorf("%s must be a boolean (got %q)", key, raw))
		return def
	}
	return v
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day suffix ("7d").
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

func isURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
