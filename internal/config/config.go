// Package config provides configuration loading and structs for the docrag server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Lock      LockConfig      `yaml:"lock"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxUploadBytes bounds the JSON body of an ingest request.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Embedding providers.
const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderONNX   = "onnx"
)

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// Dimensions requests a vector size from providers that support it; 0 uses the model default.
	Dimensions        int           `yaml:"dimensions"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxBatch          int           `yaml:"max_batch"`
	CacheSize         int           `yaml:"cache_size"`
	Timeout           time.Duration `yaml:"timeout"`
	ModelPath         string        `yaml:"model_path"`
	MaxTokens         int           `yaml:"max_tokens"`
}

// ChunkingConfig holds chunk size and overlap, in runes.
type ChunkingConfig struct {
	MaxSize int `yaml:"max_size"`
	Overlap int `yaml:"overlap"`
}

// Vector index backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// IndexConfig selects the vector index backend and collection name.
type IndexConfig struct {
	Backend      string       `yaml:"backend"`
	Name         string       `yaml:"name"`
	SQLitePath   string       `yaml:"sqlite_path"`
	// SnapshotPath persists the memory backend across restarts; empty keeps it volatile.
	SnapshotPath string       `yaml:"snapshot_path"`
	Qdrant       QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds the Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// RetrievalConfig holds result count limits.
type RetrievalConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// LockConfig configures per-source ingestion locking. An empty RedisAddr uses an
// in-process lock.
type LockConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	Wait          time.Duration `yaml:"wait"`
}

// LedgerConfig holds the path of the SQLite source ledger.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry export. An empty Endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
}

// WatchConfig holds spool directory settings.
type WatchConfig struct {
	Directory  string        `yaml:"directory"`
	OwnerID    string        `yaml:"owner_id"`
	Extensions []string      `yaml:"extensions"`
	Debounce   time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, applies environment
// overrides and defaults, and validates the result. An empty path loads defaults only.
// A .env file next to the config file (or in the working directory) is loaded first;
// variables already set in the environment win.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Index.SQLitePath = expandPath(cfg.Index.SQLitePath, configDir)
	cfg.Index.SnapshotPath = expandPath(cfg.Index.SnapshotPath, configDir)
	cfg.Ledger.Path = expandPath(cfg.Ledger.Path, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
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

// ApplyEnv overrides cfg with DOCRAG_* variables and the providers' conventional
// API key variables.
func ApplyEnv(cfg *Config) {
	setString(&cfg.Embedding.Provider, "DOCRAG_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Model, "DOCRAG_EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dimensions, "DOCRAG_EMBEDDING_DIMENSIONS")
	setString(&cfg.Embedding.BaseURL, "DOCRAG_EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.APIKey, "DOCRAG_EMBEDDING_API_KEY")
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case ProviderOpenAI:
			setString(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
		case ProviderGemini:
			setString(&cfg.Embedding.APIKey, "GEMINI_API_KEY")
		}
	}
	setInt(&cfg.Chunking.MaxSize, "DOCRAG_CHUNK_SIZE")
	setInt(&cfg.Chunking.Overlap, "DOCRAG_CHUNK_OVERLAP")
	setString(&cfg.Index.Backend, "DOCRAG_INDEX_BACKEND")
	setString(&cfg.Index.Name, "DOCRAG_INDEX_NAME")
	setString(&cfg.Index.SQLitePath, "DOCRAG_INDEX_SQLITE_PATH")
	setString(&cfg.Index.SnapshotPath, "DOCRAG_INDEX_SNAPSHOT_PATH")
	setString(&cfg.Index.Qdrant.Host, "DOCRAG_QDRANT_HOST")
	setInt(&cfg.Index.Qdrant.Port, "DOCRAG_QDRANT_PORT")
	setString(&cfg.Index.Qdrant.APIKey, "QDRANT_API_KEY")
	setInt(&cfg.Retrieval.DefaultTopK, "DOCRAG_TOP_K")
	setString(&cfg.Lock.RedisAddr, "DOCRAG_REDIS_ADDR")
	setString(&cfg.Lock.RedisPassword, "DOCRAG_REDIS_PASSWORD")
	setString(&cfg.Tracing.Endpoint, "DOCRAG_OTLP_ENDPOINT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate reports configuration errors that would otherwise surface only at first use.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderMock, ProviderOpenAI, ProviderGemini, ProviderONNX:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == ProviderONNX && (c.Embedding.ModelPath == "" || c.Embedding.Dimensions <= 0) {
		return fmt.Errorf("onnx embedding requires model_path and dimensions")
	}
	switch c.Index.Backend {
	case BackendMemory, BackendSQLite, BackendQdrant:
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}
	if c.Chunking.Overlap >= c.Chunking.MaxSize {
		return fmt.Errorf("chunking overlap (%d) must be smaller than max_size (%d)", c.Chunking.Overlap, c.Chunking.MaxSize)
	}
	if c.Retrieval.DefaultTopK > c.Retrieval.MaxTopK {
		return fmt.Errorf("retrieval default_top_k (%d) exceeds max_top_k (%d)", c.Retrieval.DefaultTopK, c.Retrieval.MaxTopK)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
