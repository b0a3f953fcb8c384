package syncconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	clsync "github.com/marcus/carelog/internal/sync"
)

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL        string `json:"url,omitempty"`
	AutoSync   *bool  `json:"auto_sync,omitempty"`   // nil = default true
	MaxRetries *int   `json:"max_retries,omitempty"` // nil = default 3
	RetryDelay string `json:"retry_delay,omitempty"` // duration string, default "1s"
	BatchSize  *int   `json:"batch_size,omitempty"`  // nil = default 50
	AdminToken string `json:"admin_token,omitempty"`
}

// Config is the per-user carelog config stored at ~/.config/carelog/config.json.
type Config struct {
	DeviceID string     `json:"device_id,omitempty"`
	Sync     SyncConfig `json:"sync"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns the config directory, creating it if necessary.
// CARELOG_CONFIG_DIR overrides the default ~/.config/carelog.
func ConfigDir() (string, error) {
	dir := os.Getenv("CARELOG_CONFIG_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".config", "carelog")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads config.json. A missing file yields an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes config.json with 0600 perms since it may hold the admin token.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0600)
}

// GetServerURL returns the authority URL.
// Priority: CARELOG_SYNC_URL env > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("CARELOG_SYNC_URL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetAdminToken returns the bearer token for admin routes.
// Priority: CARELOG_SYNC_ADMIN_TOKEN env > config.json.
func GetAdminToken() string {
	if v := os.Getenv("CARELOG_SYNC_ADMIN_TOKEN"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil {
		return cfg.Sync.AdminToken
	}
	return ""
}

// GetDeviceID returns this machine's device id, generating and persisting
// one on first use.
func GetDeviceID() (string, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return "", err
	}
	if cfg.DeviceID != "" {
		return cfg.DeviceID, nil
	}
	cfg.DeviceID = uuid.NewString()
	if err := SaveConfig(cfg); err != nil {
		return "", fmt.Errorf("save device id: %w", err)
	}
	return cfg.DeviceID, nil
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := strings.ToLower(os.Getenv(envKey))
	switch v {
	case "1", "true":
		b := true
		return &b
	case "0", "false":
		b := false
		return &b
	}
	return nil
}

// GetAutoSyncEnabled returns whether mutations trigger an immediate sync.
// Priority: CARELOG_AUTO_SYNC env > config.json sync.auto_sync > true
func GetAutoSyncEnabled() bool {
	if v := parseBoolEnv("CARELOG_AUTO_SYNC"); v != nil {
		return *v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.AutoSync != nil {
		return *cfg.Sync.AutoSync
	}
	return true
}

// GetSyncOptions returns the retry and batching policy.
// Each field: CARELOG_SYNC_* env > config.json > default.
func GetSyncOptions() clsync.Options {
	opts := clsync.DefaultOptions()
	cfg, err := LoadConfig()
	if err != nil {
		cfg = &Config{}
	}

	if cfg.Sync.MaxRetries != nil && *cfg.Sync.MaxRetries >= 0 {
		opts.MaxRetries = *cfg.Sync.MaxRetries
	}
	if v := os.Getenv("CARELOG_SYNC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.MaxRetries = n
		}
	}

	if cfg.Sync.RetryDelay != "" {
		if d, err := time.ParseDuration(cfg.Sync.RetryDelay); err == nil && d >= 0 {
			opts.RetryDelay = d
		}
	}
	if v := os.Getenv("CARELOG_SYNC_RETRY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			opts.RetryDelay = d
		}
	}

	if cfg.Sync.BatchSize != nil && *cfg.Sync.BatchSize > 0 {
		opts.BatchSize = *cfg.Sync.BatchSize
	}
	if v := os.Getenv("CARELOG_SYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.BatchSize = n
		}
	}
	return opts
}
