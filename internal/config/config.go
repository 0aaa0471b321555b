package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
)

// DefaultBaseURL is the shared vendor API base every tenant can reach.
const DefaultBaseURL = "https://api.devmeter.ai"

type RetrySettings struct {
	MaxAttempts   int     `json:"max_attempts"`
	BaseDelayMs   int     `json:"base_delay_ms"`
	MaxDelayMs    int     `json:"max_delay_ms"`
	BackoffFactor float64 `json:"backoff_factor"`
	Jitter        bool    `json:"jitter"`
}

type Config struct {
	PollIntervalSeconds     int           `json:"poll_interval_seconds"`
	Retry                   RetrySettings `json:"retry"`
	NotificationThresholds  []int         `json:"notification_thresholds"`
	ClipboardWatchTimeoutMs int           `json:"clipboard_watch_timeout_ms"`
	SignInWatchTimeoutMs    int           `json:"signin_watch_timeout_ms"`
	TenantBaseURL           string        `json:"tenant_base_url,omitempty"`
	BaseURL                 string        `json:"base_url"`

	// LegacySessionCookie is the pre-credential-store plaintext cookie key.
	// It is read once at startup, migrated into the credential store, and
	// removed from this file.
	LegacySessionCookie string `json:"session_cookie,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		PollIntervalSeconds: 60,
		Retry: RetrySettings{
			MaxAttempts:   3,
			BaseDelayMs:   500,
			MaxDelayMs:    30000,
			BackoffFactor: 2,
			Jitter:        true,
		},
		NotificationThresholds:  []int{95, 90, 75},
		ClipboardWatchTimeoutMs: 2000,
		SignInWatchTimeoutMs:    300000,
		BaseURL:                 DefaultBaseURL,
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "usagewatch")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "usagewatch")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.clamp()
	return cfg, nil
}

// clamp pulls every knob back into its documented bounds and restores
// defaults for values that make no sense.
func (cfg *Config) clamp() {
	if cfg.PollIntervalSeconds < 1 || cfg.PollIntervalSeconds > 300 {
		cfg.PollIntervalSeconds = 60
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMs <= 0 {
		cfg.Retry.BaseDelayMs = 500
	}
	if cfg.Retry.MaxDelayMs <= 0 {
		cfg.Retry.MaxDelayMs = 30000
	}
	if cfg.Retry.BackoffFactor <= 1 {
		cfg.Retry.BackoffFactor = 2
	}
	if cfg.ClipboardWatchTimeoutMs < 0 || cfg.ClipboardWatchTimeoutMs > 5000 {
		cfg.ClipboardWatchTimeoutMs = 2000
	}
	if cfg.SignInWatchTimeoutMs < 1000 || cfg.SignInWatchTimeoutMs > 300000 {
		cfg.SignInWatchTimeoutMs = 300000
	}
	if len(cfg.NotificationThresholds) == 0 {
		cfg.NotificationThresholds = []int{95, 90, 75}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(cfg.NotificationThresholds)))
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
