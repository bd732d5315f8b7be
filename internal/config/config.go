// Package config loads lorerank configuration from defaults, the user
// config file, the project .lorerank.yaml and LORERANK_* environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// ProjectConfigName is the per-project config file.
const ProjectConfigName = ".lorerank.yaml"

// Vector index file formats.
const (
	VectorFormatFaiss    = "faiss"
	VectorFormatSnapshot = "snapshot"
)

// Corpus metadata formats.
const (
	CorpusFormatJSON   = "json"
	CorpusFormatSQLite = "sqlite"
)

// Config is the complete lorerank configuration.
type Config struct {
	Version    int                `yaml:"version" json:"version"`
	Index      IndexConfig        `yaml:"index" json:"index"`
	Search     SearchConfig       `yaml:"search" json:"search"`
	Sections   map[string]float64 `yaml:"sections" json:"sections"`
	Embeddings EmbeddingsConfig   `yaml:"embeddings" json:"embeddings"`
	Server     ServerConfig       `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig    `yaml:"telemetry" json:"telemetry"`
}

// IndexConfig locates the prebuilt artifacts.
type IndexConfig struct {
	// MetadataPath is the passage metadata (JSON array or SQLite database).
	MetadataPath string `yaml:"metadata_path" json:"metadata_path"`

	// VectorPath is the vector index file.
	VectorPath string `yaml:"vector_path" json:"vector_path"`

	// VectorFormat is "faiss" (IndexFlatL2 written by faiss.write_index) or "snapshot".
	VectorFormat string `yaml:"vector_format" json:"vector_format"`

	// CorpusFormat is "json" or "sqlite".
	CorpusFormat string `yaml:"corpus_format" json:"corpus_format"`
}

// SearchConfig configures retrieval and fusion.
type SearchConfig struct {
	VectorTopK  int `yaml:"vector_top_k" json:"vector_top_k"`
	LexicalTopK int `yaml:"lexical_top_k" json:"lexical_top_k"`
	FinalTopK   int `yaml:"final_top_k" json:"final_top_k"`

	// RRFConstant is the RRF smoothing parameter k (default: 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	BM25K1      float64 `yaml:"bm25_k1" json:"bm25_k1"`
	BM25B       float64 `yaml:"bm25_b" json:"bm25_b"`
	BM25Epsilon float64 `yaml:"bm25_epsilon" json:"bm25_epsilon"`

	// Timeout bounds a single search, e.g. "10s". "0" disables it.
	Timeout string `yaml:"timeout" json:"timeout"`
}

// EmbeddingsConfig configures the query embedder.
type EmbeddingsConfig struct {
	Provider      string `yaml:"provider" json:"provider"`
	Model         string `yaml:"model" json:"model"`
	Dimensions    int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url" json:"openai_base_url"`

	// CacheSize bounds the query embedding cache; negative disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`

	// MetricsAddr serves Prometheus /metrics when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// TelemetryConfig configures local query telemetry.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the SQLite file; empty keeps telemetry in memory.
	Path string `yaml:"path" json:"path"`
}

// DefaultSections is the default section weighting table.
func DefaultSections() map[string]float64 {
	return map[string]float64{
		"External links": 0.2,
		"References":     0.3,
		"See also":       0.4,
		"Reception":      1.2,
		"Development":    1.1,
		"Gameplay":       1.1,
		"Controversy":    1.3,
	}
}

// NewConfig returns a configuration with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			MetadataPath: filepath.Join("data", "processed", "hitman_index_mapping.json"),
			VectorPath:   filepath.Join("data", "processed", "hitman_faiss.index"),
			VectorFormat: VectorFormatFaiss,
			CorpusFormat: CorpusFormatJSON,
		},
		Search: SearchConfig{
			VectorTopK:  50,
			LexicalTopK: 50,
			FinalTopK:   5,
			RRFConstant: 60,
			BM25K1:      1.5,
			BM25B:       0.75,
			BM25Epsilon: 0.25,
			Timeout:     "10s",
		},
		Sections: DefaultSections(),
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "all-mpnet-base-v2",
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// GetUserConfigPath returns the user configuration file:
//   - $XDG_CONFIG_HOME/lorerank/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/lorerank/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lorerank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "lorerank", "config.yaml")
	}
	return filepath.Join(home, ".config", "lorerank", "config.yaml")
}

// Load builds the configuration for the project in dir:
//  1. Hardcoded defaults
//  2. User config (GetUserConfigPath)
//  3. Project config (.lorerank.yaml in dir)
//  4. Environment variables (LORERANK_*)
//
// Relative index and telemetry paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML overlays the keys present in a YAML file. Section entries are
// merged into the current table rather than replacing it.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return lerrors.New(lerrors.ErrCodeConfigNotFound, "failed to read config file "+path, err)
	}

	sections := c.Sections
	c.Sections = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		c.Sections = sections
		return lerrors.ConfigError("failed to parse config file "+path, err).
			WithDetail("path", path)
	}
	parsed := c.Sections
	c.Sections = sections
	if c.Sections == nil {
		c.Sections = make(map[string]float64, len(parsed))
	}
	maps.Copy(c.Sections, parsed)
	return nil
}

// applyEnvOverrides applies LORERANK_* variables.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"LORERANK_METADATA_PATH":       &c.Index.MetadataPath,
		"LORERANK_VECTOR_PATH":         &c.Index.VectorPath,
		"LORERANK_VECTOR_FORMAT":       &c.Index.VectorFormat,
		"LORERANK_CORPUS_FORMAT":       &c.Index.CorpusFormat,
		"LORERANK_SEARCH_TIMEOUT":      &c.Search.Timeout,
		"LORERANK_EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"LORERANK_EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"LORERANK_OLLAMA_HOST":         &c.Embeddings.OllamaHost,
		"LORERANK_OPENAI_BASE_URL":     &c.Embeddings.OpenAIBaseURL,
		"LORERANK_LOG_LEVEL":           &c.Server.LogLevel,
		"LORERANK_METRICS_ADDR":        &c.Server.MetricsAddr,
		"LORERANK_TELEMETRY_PATH":      &c.Telemetry.Path,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LORERANK_VECTOR_TOP_K":          &c.Search.VectorTopK,
		"LORERANK_LEXICAL_TOP_K":         &c.Search.LexicalTopK,
		"LORERANK_FINAL_TOP_K":           &c.Search.FinalTopK,
		"LORERANK_RRF_CONSTANT":          &c.Search.RRFConstant,
		"LORERANK_EMBEDDINGS_DIMENSIONS": &c.Embeddings.Dimensions,
	}
	for name, dst := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return lerrors.ConfigError(fmt.Sprintf("%s must be an integer, got %q", name, v), err)
		}
		*dst = n
	}

	if v := os.Getenv("LORERANK_TELEMETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return lerrors.ConfigError(fmt.Sprintf("LORERANK_TELEMETRY_ENABLED must be a boolean, got %q", v), err)
		}
		c.Telemetry.Enabled = b
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	for _, p := range []*string{&c.Index.MetadataPath, &c.Index.VectorPath, &c.Telemetry.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// SearchTimeout parses Search.Timeout. "" and "0" mean no timeout.
func (c *Config) SearchTimeout() (time.Duration, error) {
	switch strings.TrimSpace(c.Search.Timeout) {
	case "", "0":
		return 0, nil
	}
	d, err := time.ParseDuration(c.Search.Timeout)
	if err != nil {
		return 0, lerrors.ConfigError(fmt.Sprintf("search.timeout: invalid duration %q", c.Search.Timeout), err)
	}
	return d, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return lerrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	for name, v := range map[string]int{
		"search.vector_top_k":  c.Search.VectorTopK,
		"search.lexical_top_k": c.Search.LexicalTopK,
		"search.final_top_k":   c.Search.FinalTopK,
	} {
		if v < 0 {
			return invalid("%s must be non-negative, got %d", name, v)
		}
	}
	if c.Search.RRFConstant <= 0 {
		return invalid("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.BM25K1 < 0 || c.Search.BM25B < 0 || c.Search.BM25B > 1 || c.Search.BM25Epsilon < 0 {
		return invalid("bm25 parameters out of range: k1=%v b=%v epsilon=%v",
			c.Search.BM25K1, c.Search.BM25B, c.Search.BM25Epsilon)
	}
	if d, err := c.SearchTimeout(); err != nil {
		return err
	} else if d < 0 {
		return invalid("search.timeout must not be negative, got %s", c.Search.Timeout)
	}

	for name, m := range c.Sections {
		if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return invalid("sections.%s: multiplier must be positive, got %v", name, m)
		}
	}

	switch c.Index.VectorFormat {
	case VectorFormatFaiss, VectorFormatSnapshot:
	default:
		return invalid("index.vector_format must be 'faiss' or 'snapshot', got %q", c.Index.VectorFormat)
	}
	switch c.Index.CorpusFormat {
	case CorpusFormatJSON, CorpusFormatSQLite:
	default:
		return invalid("index.corpus_format must be 'json' or 'sqlite', got %q", c.Index.CorpusFormat)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "openai", "static":
	default:
		return invalid("embeddings.provider must be 'ollama', 'openai' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return invalid("server.transport must be 'stdio', got %q", c.Server.Transport)
	}
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
