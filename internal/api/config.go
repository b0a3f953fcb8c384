package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"

	// AllowReset enables POST /v1/admin/reset. AdminToken, when set, must be
	// presented as a bearer token on admin routes.
	AllowReset bool
	AdminToken string

	RateLimitApply int // /v1/sync/apply per device per minute (default: 60)
	RateLimitState int // /v1/sync/state per device per minute (default: 120)
	RateLimitOther int // everything else per device per minute (default: 300)

	MaxBatch int // operations accepted per apply request (default: 500)

	CORSAllowedOrigins []string // empty = disabled
}

// LoadConfig reads configuration from environment variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/authority.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",

		RateLimitApply: 60,
		RateLimitState: 120,
		RateLimitOther: 300,

		MaxBatch: 500,
	}

	if v := os.Getenv("CARELOG_SYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("CARELOG_SYNC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CARELOG_SYNC_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("CARELOG_SYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CARELOG_SYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CARELOG_SYNC_ALLOW_RESET"); v == "true" || v == "1" {
		cfg.AllowReset = true
	}
	cfg.AdminToken = os.Getenv("CARELOG_SYNC_ADMIN_TOKEN")

	setPositive(&cfg.RateLimitApply, "CARELOG_SYNC_RATE_LIMIT_APPLY")
	setPositive(&cfg.RateLimitState, "CARELOG_SYNC_RATE_LIMIT_STATE")
	setPositive(&cfg.RateLimitOther, "CARELOG_SYNC_RATE_LIMIT_OTHER")
	setPositive(&cfg.MaxBatch, "CARELOG_SYNC_MAX_BATCH")

	if v := os.Getenv("CARELOG_SYNC_CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	return cfg
}

func setPositive(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
