package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/backend"
)

// Config holds all runtime configuration parameters
type Config struct {
	EndpointURL   string   `json:"endpoint_url"`
	Backend       string   `json:"backend"`
	DBpediaDomain string   `json:"dbpedia_domain"`
	Seeds         []string `json:"seeds"`
	SeedPattern   string   `json:"seed_pattern"`
	SeedVariable  string   `json:"seed_variable"`

	MaxLevels          int      `json:"max_levels"`
	ConcurrentWorkers  int      `json:"concurrent_workers"`
	RequestTimeoutMs   int      `json:"request_timeout_ms"`
	RetryAttempts      int      `json:"retry_attempts"`
	RetryDelayMs       *int     `json:"retry_delay_ms"`
	RequestsPerSecond  float64  `json:"requests_per_second"`
	MaxFrontier        int      `json:"max_frontier"`
	AcceptLiterals     bool     `json:"accept_literals"`
	MaxFailureFraction *float64 `json:"max_failure_fraction"`

	TrainRatio float64 `json:"train_ratio"`
	SplitSeed  uint64  `json:"split_seed"`

	MaxBodyBytes int    `json:"max_body_bytes"`
	UserAgent    string `json:"user_agent"`
	DBPath       string `json:"db_path"`
	MetricsPath  string `json:"metrics_path"`
	ProgressAddr string `json:"progress_addr"`
}

// LoadConfig reads and validates configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = backend.Default
	}
	if cfg.SeedVariable == "" {
		cfg.SeedVariable = "item"
	}
	if cfg.MaxLevels == 0 {
		cfg.MaxLevels = 2
	}
	if cfg.ConcurrentWorkers == 0 {
		cfg.ConcurrentWorkers = 16
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 30000
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	// Zero is meaningful for these two, so only an absent key takes the default
	if cfg.RetryDelayMs == nil {
		cfg.RetryDelayMs = ptr(1000)
	}
	if cfg.MaxFailureFraction == nil {
		cfg.MaxFailureFraction = ptr(0.5)
	}
	if cfg.TrainRatio == 0 {
		cfg.TrainRatio = 0.8
	}
	if cfg.SplitSeed == 0 {
		cfg.SplitSeed = 1
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "kg-weaver/1.0"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "dataset.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	b, err := backend.Lookup(cfg.Backend, cfg.BackendOptions())
	if err != nil {
		return err
	}
	if cfg.EndpointURL == "" && b.DefaultEndpoint == "" {
		return fmt.Errorf("endpoint_url is required for backend %q", cfg.Backend)
	}
	if cfg.MaxLevels < 1 {
		return fmt.Errorf("max_levels must be >= 1")
	}
	if cfg.ConcurrentWorkers < 1 {
		return fmt.Errorf("concurrent_workers must be >= 1")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	if cfg.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be >= 1")
	}
	if *cfg.RetryDelayMs < 0 {
		return fmt.Errorf("retry_delay_ms must be >= 0")
	}
	if cfg.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be >= 0")
	}
	if cfg.MaxFrontier < 0 {
		return fmt.Errorf("max_frontier must be >= 0")
	}
	if f := *cfg.MaxFailureFraction; f < 0 || f > 1 {
		return fmt.Errorf("max_failure_fraction must be in [0,1]")
	}
	if cfg.TrainRatio <= 0 || cfg.TrainRatio >= 1 {
		return fmt.Errorf("train_ratio must be in the open interval (0,1)")
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be >= 0")
	}
	return nil
}

// BackendOptions returns the per-backend settings
func (c *Config) BackendOptions() backend.Options {
	return backend.Options{DBpediaDomain: c.DBpediaDomain}
}

// Endpoint returns the configured endpoint or the backend's public default
func (c *Config) Endpoint(b backend.Backend) string {
	if c.EndpointURL != "" {
		return c.EndpointURL
	}
	return b.DefaultEndpoint
}

// RequestTimeout returns the per-request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// RetryDelay returns the pause between attempts of one entity
func (c *Config) RetryDelay() time.Duration {
	if c.RetryDelayMs == nil {
		return 0
	}
	return time.Duration(*c.RetryDelayMs) * time.Millisecond
}

// FailureFraction returns the share of failed units above which a level is degraded
func (c *Config) FailureFraction() float64 {
	if c.MaxFailureFraction == nil {
		return 0
	}
	return *c.MaxFailureFraction
}

func ptr[T any](v T) *T {
	return &v
}
