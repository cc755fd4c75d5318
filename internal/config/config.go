// Package config loads the daemon's YAML configuration file, adapted
// from the teacher's gRPC server config loader (same shape: a plain
// struct with yaml tags, loaded with gopkg.in/yaml.v3, defaults filled
// in before use so a missing or partial file still produces a working
// daemon).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full on-disk daemon configuration (§4.8). Every field
// has a zero-value-safe default applied by Default/Load, mirroring the
// teacher's DefaultConfig() convention.
type Config struct {
	// ListenAddr is the UDP address the resolver accepts client queries
	// on.
	ListenAddr string `yaml:"listen_addr"`

	// ACachePath and NSCachePath are the sibling cache files (§6).
	ACachePath  string `yaml:"a_cache_path"`
	NSCachePath string `yaml:"ns_cache_path"`

	// HintsPath is the root hints file (§4.5).
	HintsPath string `yaml:"hints_path"`

	// QueryTimeout bounds each upstream (IP, query) wait.
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// MaxSubResolveDepth bounds glueless NS sub-resolution.
	MaxSubResolveDepth int `yaml:"max_sub_resolve_depth"`

	// MaxOuterIterations bounds the outer delegation-following loop.
	MaxOuterIterations int `yaml:"max_outer_iterations"`

	// NoConnectivityPolicy is "servfail" or "fatal" (§4.3 resolved open
	// question).
	NoConnectivityPolicy string `yaml:"no_connectivity_policy"`

	// RateLimitQPS and RateLimitBurst configure the per-client token
	// bucket (§4.6).
	RateLimitQPS   float64 `yaml:"rate_limit_qps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// RateLimitExemptCIDRs lists client networks (single IPs or CIDRs)
	// that bypass the per-client limiter entirely, e.g. trusted stub
	// resolvers on the operator's own network.
	RateLimitExemptCIDRs []string `yaml:"rate_limit_exempt_cidrs"`

	// MetricsListenAddr serves Prometheus metrics (§4.7). Empty disables
	// the metrics HTTP listener.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
}

// Default returns the configuration a missing/empty config file
// produces.
func Default() Config {
	return Config{
		ListenAddr:           ":5353",
		ACachePath:           "a_records_cache.txt",
		NSCachePath:          "ns_records_cache.txt",
		HintsPath:            "root_servers.txt",
		QueryTimeout:         3 * time.Second,
		MaxSubResolveDepth:   16,
		MaxOuterIterations:   32,
		NoConnectivityPolicy: "servfail",
		RateLimitQPS:         100,
		RateLimitBurst:       200,
		RateLimitExemptCIDRs: []string{"127.0.0.1/32", "::1/128"},
		MetricsListenAddr:    ":9153",
	}
}

// Load reads a YAML config file at path and overlays it onto Default().
// An empty path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot produce a working daemon.
func (c Config) Validate() error {
	switch c.NoConnectivityPolicy {
	case "servfail", "fatal":
	default:
		return fmt.Errorf("no_connectivity_policy must be \"servfail\" or \"fatal\", got %q", c.NoConnectivityPolicy)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}
	if c.MaxSubResolveDepth <= 0 {
		return fmt.Errorf("max_sub_resolve_depth must be positive")
	}
	if c.MaxOuterIterations <= 0 {
		return fmt.Errorf("max_outer_iterations must be positive")
	}
	return nil
}
