// Package config provides configuration loading and structs for the logsentry server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Index       IndexConfig       `yaml:"index"`
	Detection   DetectionConfig   `yaml:"detection"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Rules       RulesConfig       `yaml:"rules"`
	Watch       WatchConfig       `yaml:"watch"`
}

// LogConfig holds optional rotating log file settings. Empty File logs to stderr only.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// WatchConfig holds baseline directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Category    string   `yaml:"category"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the baseline database and keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of openai, azure, onnx, hashing.
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`

	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureDeployment string `yaml:"azure_deployment"`
	AzureAPIVersion string `yaml:"azure_api_version"`

	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`

	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// RetryConfig bounds retries of embedding requests.
type RetryConfig struct {
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// BreakerConfig configures the circuit breaker in front of the embedding provider.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// IndexConfig selects the similarity index backend.
type IndexConfig struct {
	// Type is memory or opensearch.
	Type       string           `yaml:"type"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
}

// OpenSearchConfig configures the OpenSearch k-NN backend.
type OpenSearchConfig struct {
	Addresses     []string `yaml:"addresses"`
	Username      string   `yaml:"username"`
	PasswordEnv   string   `yaml:"password_env"`
	InsecureTLS   bool     `yaml:"insecure_tls"`
	IndexName     string   `yaml:"index_name"`
	VectorField   string   `yaml:"vector_field"`
	TextField     string   `yaml:"text_field"`
	CategoryField string   `yaml:"category_field"`
	// SpaceType is l2 or cosinesimil.
	SpaceType string `yaml:"space_type"`
	// Engine is faiss or lucene, the engines that filter inside the knn clause.
	Engine   string `yaml:"engine"`
	EFSearch int    `yaml:"ef_search"`
}

// DetectionConfig holds detection defaults.
type DetectionConfig struct {
	K           int               `yaml:"k"`
	ScoreMethod string            `yaml:"score_method"`
	PrintTop    int               `yaml:"print_top"`
	Filters     map[string]string `yaml:"filters"`
	// FallbackThreshold is used when no calibration is available.
	FallbackThreshold float64 `yaml:"fallback_threshold"`
}

// CalibrationConfig holds threshold calibration settings.
type CalibrationConfig struct {
	SampleSize int `yaml:"sample_size"`
	// Quantile in [0, 1]. Zero is treated as unset.
	Quantile         float64       `yaml:"quantile"`
	Seed             int64         `yaml:"seed"`
	Workers          int           `yaml:"workers"`
	QueriesPerSecond float64       `yaml:"queries_per_second"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	OnStartup        *bool         `yaml:"on_startup"`
	Interval         time.Duration `yaml:"interval"`
}

// OnStartupOrDefault returns whether to calibrate when the server starts; defaults to true.
func (c *CalibrationConfig) OnStartupOrDefault() bool {
	if c.OnStartup != nil {
		return *c.OnStartup
	}
	return true
}

// RulesConfig points at the STIX bundle used by the IOC rule layer.
type RulesConfig struct {
	BundlePath string `yaml:"bundle_path"`
	Watch      bool   `yaml:"watch"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and validates.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Rules.BundlePath != "" {
		cfg.Rules.BundlePath = expandPath(cfg.Rules.BundlePath, configDir)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = expandPath(cfg.Log.File, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports settings that would make detection or calibration meaningless.
func (c *Config) Validate() error {
	switch c.Detection.ScoreMethod {
	case "kth", "avg", "max":
	default:
		return fmt.Errorf("detection.score_method %q: must be kth, avg or max", c.Detection.ScoreMethod)
	}
	if c.Detection.K < 1 {
		return fmt.Errorf("detection.k must be >= 1, got %d", c.Detection.K)
	}
	if c.Calibration.SampleSize < 1 {
		return fmt.Errorf("calibration.sample_size must be >= 1, got %d", c.Calibration.SampleSize)
	}
	if c.Calibration.Quantile < 0 || c.Calibration.Quantile > 1 {
		return fmt.Errorf("calibration.quantile must be within [0, 1], got %v", c.Calibration.Quantile)
	}
	switch c.Index.Type {
	case "memory", "opensearch":
	default:
		return fmt.Errorf("index.type %q: must be memory or opensearch", c.Index.Type)
	}
	if c.Index.Type == "opensearch" {
		switch c.Index.OpenSearch.Engine {
		case "faiss", "lucene":
		default:
			return fmt.Errorf("index.opensearch.engine %q: must be faiss or lucene", c.Index.OpenSearch.Engine)
		}
	}
	switch c.Embedding.Provider {
	case "openai", "azure", "onnx", "hashing":
	default:
		return fmt.Errorf("embedding.provider %q: must be openai, azure, onnx or hashing", c.Embedding.Provider)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
