package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	Matching    Policy            `json:"matching" yaml:"matching" mapstructure:"matching"`
	Similarity  SimilarityConfig  `json:"similarity" yaml:"similarity" mapstructure:"similarity"`
	Taxonomy    TaxonomyConfig    `json:"taxonomy" yaml:"taxonomy" mapstructure:"taxonomy"`
	Ledger      LedgerConfig      `json:"ledger" yaml:"ledger" mapstructure:"ledger"`
	Cache       CacheConfig       `json:"cache" yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `json:"output" yaml:"output" mapstructure:"output"`
}

// SimilarityConfig selects the root-cause text similarity backend
type SimilarityConfig struct {
	Backend           string  `json:"backend" yaml:"backend" mapstructure:"backend"` // jaccard, edit, openai, ollama
	Model             string  `json:"model,omitempty" yaml:"model,omitempty" mapstructure:"model"`
	APIKey            string  `json:"-" yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string  `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           int     `json:"timeout" yaml:"timeout" mapstructure:"timeout"` // seconds
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size" mapstructure:"burst_size"`
	HTTPProxy         string  `json:"http_proxy,omitempty" yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string  `json:"https_proxy,omitempty" yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`

	HostLimits []HostLimit `json:"host_limits,omitempty" yaml:"host_limits,omitempty" mapstructure:"host_limits"`
}

// HostLimit overrides the request rate for one endpoint host
type HostLimit struct {
	Host              string  `json:"host" yaml:"host" mapstructure:"host"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `json:"burst_size,omitempty" yaml:"burst_size,omitempty" mapstructure:"burst_size"`
}

// TaxonomyConfig points at an external category taxonomy (empty = embedded default)
type TaxonomyConfig struct {
	Path string `json:"path,omitempty" yaml:"path" mapstructure:"path"`
}

// LedgerConfig selects and locates the performance ledger backend
type LedgerConfig struct {
	Backend   string `json:"backend" yaml:"backend" mapstructure:"backend"` // file, sqlite, redis
	Path      string `json:"path" yaml:"path" mapstructure:"path"`
	RedisURL  string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" mapstructure:"redis_url"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty" mapstructure:"key_prefix"`
}

// CacheConfig controls memoization of normalized findings and embeddings
type CacheConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `json:"dir" yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `json:"memory_ttl" yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `json:"disk_ttl" yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig sizes the batch worker pool
type ConcurrencyConfig struct {
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose bool `json:"verbose" yaml:"verbose" mapstructure:"verbose"`
	Pretty  bool `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".shadowscore")

	return &Config{
		Matching: DefaultPolicy(),
		Similarity: SimilarityConfig{
			Backend:           "jaccard",
			Timeout:           30,
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Ledger: LedgerConfig{
			Backend:   "file",
			Path:      filepath.Join(base, "ledger.jsonl"),
			KeyPrefix: "shadowscore",
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       filepath.Join(base, "cache"),
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{Workers: 4},
		Output:      OutputConfig{Pretty: true},
	}
}
