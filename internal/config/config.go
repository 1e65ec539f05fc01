// Package config holds the typed configuration surface for the
// communal brain: storage selection, worker toggles, embedder and
// generator endpoints, and summarizer policy. Values load from a YAML
// file over defaults, with environment overrides applied last.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object, constructed once at startup
// and threaded down to components.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Storage    StorageConfig    `yaml:"storage"`
	Brain      BrainConfig      `yaml:"brain"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig selects and tunes the backends.
type StorageConfig struct {
	// PrimaryBackend is "local", "remote", or "cache".
	PrimaryBackend string `yaml:"primary_backend"`
	LocalDBPath    string `yaml:"local_db_path"`
	EnableWAL      bool   `yaml:"enable_wal"`
	// CacheSize feeds PRAGMA cache_size; negative values are KiB.
	CacheSize int `yaml:"cache_size"`
	// CacheDBPath enables the read-through cache backend when set.
	CacheDBPath string `yaml:"cache_db_path"`
}

// BrainConfig covers façade policy and worker toggles.
type BrainConfig struct {
	EnableSync       bool    `yaml:"enable_sync"`
	SyncInterval     string  `yaml:"sync_interval"`
	EnableSummarizer bool    `yaml:"enable_summarizer"`
	DefaultTopK      int     `yaml:"default_top_k"`
	MinSimilarity    float64 `yaml:"min_similarity"`
}

// SummarizerConfig tunes the background compressor.
type SummarizerConfig struct {
	MaxFileSizeBytes          int64   `yaml:"max_file_size_bytes"`
	MaxAgeDays                int     `yaml:"max_age_days"`
	MonitoringIntervalSeconds int     `yaml:"monitoring_interval_seconds"`
	MaxContextTokens          int     `yaml:"max_context_tokens"`
	MaxSummaryTokens          int     `yaml:"max_summary_tokens"`
	Temperature               float64 `yaml:"temperature"`
	KeepOriginals             bool    `yaml:"keep_originals"`
	Model                     string  `yaml:"model"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama" or "genai".
	Provider   string `yaml:"provider"`
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`
}

// LLMConfig points at an OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig tunes the process logger and the persistent activity
// log.
type LoggingConfig struct {
	Level           string `yaml:"level"`
	Development     bool   `yaml:"development"`
	ActivityLogPath string `yaml:"activity_log_path"`
	MaxLines        int    `yaml:"max_lines"`
	MaxAgeDays      int    `yaml:"max_age_days"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Storage: StorageConfig{
			PrimaryBackend: "local",
			LocalDBPath:    "./data/brain.db",
			EnableWAL:      true,
			CacheSize:      -64000,
		},
		Brain: BrainConfig{
			EnableSync:       false,
			SyncInterval:     "30s",
			EnableSummarizer: false,
			DefaultTopK:      5,
			MinSimilarity:    0.0,
		},
		Summarizer: SummarizerConfig{
			MaxFileSizeBytes:          50 * 1024,
			MaxAgeDays:                7,
			MonitoringIntervalSeconds: 300,
			MaxContextTokens:          6000,
			MaxSummaryTokens:          500,
			Temperature:               0.3,
			KeepOriginals:             true,
			Model:                     "meta-llama/llama-3.3-8b-instruct:free",
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Endpoint:   "http://localhost:11434",
			Model:      "embeddinggemma",
			Dimensions: 768,
			Timeout:    "30s",
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "meta-llama/llama-3.3-8b-instruct:free",
			Timeout: "60s",
		},
		Logging: LoggingConfig{
			Level:           "info",
			ActivityLogPath: "./data/brain_activity.log",
			MaxLines:        1000,
			MaxAgeDays:      7,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an
// error; defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets and paths come from the environment
// without touching the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HIVEBRAIN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("HIVEBRAIN_DB_PATH"); v != "" {
		c.Storage.LocalDBPath = v
	}
	if v := os.Getenv("HIVEBRAIN_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Embedding.APIKey == "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("HIVEBRAIN_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("HIVEBRAIN_ENABLE_SYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Brain.EnableSync = b
		}
	}
	if v := os.Getenv("HIVEBRAIN_ENABLE_SUMMARIZER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Brain.EnableSummarizer = b
		}
	}
	if v := os.Getenv("HIVEBRAIN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	switch c.Storage.PrimaryBackend {
	case "local", "remote", "cache":
	default:
		return fmt.Errorf("unknown primary_backend %q", c.Storage.PrimaryBackend)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Brain.DefaultTopK <= 0 {
		return fmt.Errorf("default_top_k must be positive, got %d", c.Brain.DefaultTopK)
	}
	return nil
}

// SyncInterval parses the sync tick, defaulting to 30s.
func (c *Config) SyncInterval() time.Duration {
	return parseDuration(c.Brain.SyncInterval, 30*time.Second)
}

// EmbeddingTimeout parses the embedder call timeout, defaulting to 30s.
func (c *Config) EmbeddingTimeout() time.Duration {
	return parseDuration(c.Embedding.Timeout, 30*time.Second)
}

// LLMTimeout parses the generator call timeout, defaulting to 60s.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// MonitoringInterval is the summarizer scan cadence.
func (c *Config) MonitoringInterval() time.Duration {
	if c.Summarizer.MonitoringIntervalSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Summarizer.MonitoringIntervalSeconds) * time.Second
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
