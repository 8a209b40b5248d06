// Package config loads server configuration from defaults, an optional YAML
// or TOML file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/docindex-mcp/pkg/types"
)

// Environment variables
const (
	EnvConfigFile        = "DOCINDEX_CONFIG"
	EnvDataDir           = "DOCINDEX_DATA_DIR"
	EnvDefaultBase       = "DOCINDEX_DEFAULT_BASE"
	EnvLogLevel          = "DOCINDEX_LOG_LEVEL"
	EnvLogFormat         = "DOCINDEX_LOG_FORMAT"
	EnvChunkSize         = "DOCINDEX_CHUNK_SIZE"
	EnvChunkOverlap      = "DOCINDEX_CHUNK_OVERLAP"
	EnvPageSize          = "DOCINDEX_PAGE_SIZE"
	EnvWorkers           = "DOCINDEX_WORKERS"
	EnvEmbeddingProvider = "DOCINDEX_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "DOCINDEX_EMBEDDING_MODEL"
	EnvEmbeddingBaseURL  = "DOCINDEX_EMBEDDING_BASE_URL"
	EnvEmbeddingDims     = "DOCINDEX_EMBEDDING_DIMENSION"
	EnvEmbedBatchSize    = "DOCINDEX_EMBED_BATCH_SIZE"
	EnvRequestsPerSecond = "DOCINDEX_EMBED_RPS"
	EnvVectorBackend     = "DOCINDEX_VECTOR_BACKEND"
	EnvOTLPEndpoint      = "DOCINDEX_OTLP_ENDPOINT"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvJinaAPIKey        = "JINA_API_KEY"
	EnvQdrantURL         = "QDRANT_URL"
	EnvQdrantAPIKey      = "QDRANT_API_KEY"
)

// Defaults
const (
	DefaultDataDir        = "./data/bases"
	DefaultBase           = "default"
	DefaultChunkSize      = 512
	DefaultChunkOverlap   = 50
	DefaultPageSize       = 3000
	DefaultEmbedBatchSize = 50
	DefaultProvider       = "local"
	DefaultVectorBackend  = "sqlite"
	DefaultQdrantURL      = "http://localhost:6333"
)

var baseNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" toml:"provider"`
	Model             string  `yaml:"model" toml:"model"`
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKey            string  `yaml:"api_key" toml:"api_key"`
	Dimension         int     `yaml:"dimension" toml:"dimension"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size"`
	CacheSize         int     `yaml:"cache_size" toml:"cache_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	MaxAttempts       int     `yaml:"max_attempts" toml:"max_attempts"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant server
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// VectorStoreConfig selects the vector store backend
type VectorStoreConfig struct {
	Backend string       `yaml:"backend" toml:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant" toml:"qdrant"`
}

// ChunkingConfig configures page windows and chunk sizes
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size" toml:"chunk_size"`
	Overlap   int `yaml:"overlap" toml:"overlap"`
	PageSize  int `yaml:"page_size" toml:"page_size"`
}

// Config is the root configuration
type Config struct {
	DataDir       string            `yaml:"data_dir" toml:"data_dir"`
	DefaultBase   string            `yaml:"default_base" toml:"default_base"`
	LogLevel      string            `yaml:"log_level" toml:"log_level"`
	LogFormat     string            `yaml:"log_format" toml:"log_format"`
	Workers       int               `yaml:"workers" toml:"workers"`
	SupportedOnly bool              `yaml:"supported_only" toml:"supported_only"`
	OTLPEndpoint  string            `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	Chunking      ChunkingConfig    `yaml:"chunking" toml:"chunking"`
	Embedding     EmbeddingConfig   `yaml:"embedding" toml:"embedding"`
	VectorStore   VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
}

// Default returns a configuration populated with defaults
func Default() *Config {
	return &Config{
		DataDir:     DefaultDataDir,
		DefaultBase: DefaultBase,
		LogLevel:    "info",
		LogFormat:   "text",
		Workers:     1,
		Chunking: ChunkingConfig{
			ChunkSize: DefaultChunkSize,
			Overlap:   DefaultChunkOverlap,
			PageSize:  DefaultPageSize,
		},
		Embedding: EmbeddingConfig{
			Provider:    DefaultProvider,
			BatchSize:   DefaultEmbedBatchSize,
			CacheSize:   10000,
			MaxAttempts: 1,
			TimeoutSecs: 30,
		},
		VectorStore: VectorStoreConfig{
			Backend: DefaultVectorBackend,
			Qdrant: QdrantConfig{
				URL:         DefaultQdrantURL,
				TimeoutSecs: 30,
			},
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// DOCINDEX_CONFIG is consulted. A missing file is not an error when the path
// came from the environment default; an explicitly named missing file is.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		err := cfg.loadFile(path)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile decodes a YAML or TOML file over the current values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: config file %s must be .yaml, .yml or .toml", types.ErrValidation, path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DataDir = getEnv(EnvDataDir, c.DataDir)
	c.DefaultBase = getEnv(EnvDefaultBase, c.DefaultBase)
	c.LogLevel = getEnv(EnvLogLevel, c.LogLevel)
	c.LogFormat = getEnv(EnvLogFormat, c.LogFormat)
	c.Workers = getEnvInt(EnvWorkers, c.Workers)
	c.OTLPEndpoint = getEnv(EnvOTLPEndpoint, c.OTLPEndpoint)

	c.Chunking.ChunkSize = getEnvInt(EnvChunkSize, c.Chunking.ChunkSize)
	c.Chunking.Overlap = getEnvInt(EnvChunkOverlap, c.Chunking.Overlap)
	c.Chunking.PageSize = getEnvInt(EnvPageSize, c.Chunking.PageSize)

	c.Embedding.Provider = strings.ToLower(getEnv(EnvEmbeddingProvider, c.Embedding.Provider))
	c.Embedding.Model = getEnv(EnvEmbeddingModel, c.Embedding.Model)
	c.Embedding.BaseURL = getEnv(EnvEmbeddingBaseURL, c.Embedding.BaseURL)
	c.Embedding.Dimension = getEnvInt(EnvEmbeddingDims, c.Embedding.Dimension)
	c.Embedding.BatchSize = getEnvInt(EnvEmbedBatchSize, c.Embedding.BatchSize)
	c.Embedding.RequestsPerSecond = getEnvFloat(EnvRequestsPerSecond, c.Embedding.RequestsPerSecond)
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case "openai":
			c.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
		case "jina":
			c.Embedding.APIKey = os.Getenv(EnvJinaAPIKey)
		}
	}

	c.VectorStore.Backend = strings.ToLower(getEnv(EnvVectorBackend, c.VectorStore.Backend))
	c.VectorStore.Qdrant.URL = getEnv(EnvQdrantURL, c.VectorStore.Qdrant.URL)
	c.VectorStore.Qdrant.APIKey = getEnv(EnvQdrantAPIKey, c.VectorStore.Qdrant.APIKey)
}

// Validate checks ranges and names
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", types.ErrValidation)
	}
	if err := ValidateBaseName(c.DefaultBase); err != nil {
		return err
	}
	if c.Chunking.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be >= 1, got %d", types.ErrValidation, c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be >= 0, got %d", types.ErrValidation, c.Chunking.Overlap)
	}
	if c.Chunking.PageSize < 1 {
		return fmt.Errorf("%w: page_size must be >= 1, got %d", types.ErrValidation, c.Chunking.PageSize)
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("%w: embedding batch_size must be >= 1", types.ErrValidation)
	}
	switch c.VectorStore.Backend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("%w: unknown vector backend %q", types.ErrValidation, c.VectorStore.Backend)
	}
	return nil
}

// BaseDir returns <data_dir>/<base>
func (c *Config) BaseDir(base string) string {
	return filepath.Join(c.DataDir, base)
}

// DocumentsDir returns the directory scanned for a base
func (c *Config) DocumentsDir(base string) string {
	return filepath.Join(c.DataDir, base, "documents")
}

// ValidateBaseName rejects names that could escape the data directory
func ValidateBaseName(base string) error {
	if !baseNamePattern.MatchString(base) {
		return fmt.Errorf("%w: invalid knowledge base name %q", types.ErrValidation, base)
	}
	return nil
}

// Save writes the config as YAML or TOML depending on the extension
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
