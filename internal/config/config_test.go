package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
)

// isolate points the user config at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// --- TS01: Defaults ---

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 50, cfg.Search.VectorTopK)
	assert.Equal(t, 50, cfg.Search.LexicalTopK)
	assert.Equal(t, 5, cfg.Search.FinalTopK)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 1.5, cfg.Search.BM25K1)
	assert.Equal(t, 0.75, cfg.Search.BM25B)
	assert.Equal(t, 0.25, cfg.Search.BM25Epsilon)
	assert.Equal(t, VectorFormatFaiss, cfg.Index.VectorFormat)
	assert.Equal(t, CorpusFormatJSON, cfg.Index.CorpusFormat)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "all-mpnet-base-v2", cfg.Embeddings.Model)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 1.3, cfg.Sections["Controversy"])
	assert.Len(t, cfg.Sections, 7)

	d, err := cfg.SearchTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
	require.NoError(t, cfg.Validate())
}

func TestGetUserConfigPath_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "lorerank", "config.yaml"), GetUserConfigPath())
}

// --- TS02: Precedence ---

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Search.FinalTopK)
	assert.Equal(t, filepath.Join(dir, "data", "processed", "hitman_faiss.index"), cfg.Index.VectorPath)
}

func TestLoad_ProjectOverridesUserOverridesDefaults(t *testing.T) {
	// Given: a user config and a project config that disagree
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	writeFile(t, filepath.Join(xdg, "lorerank", "config.yaml"), `
search:
  final_top_k: 8
  rrf_constant: 30
embeddings:
  provider: static
`)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
search:
  final_top_k: 3
telemetry:
  enabled: false
`)

	// When: loading
	cfg, err := Load(dir)

	// Then: the project wins where both set a key, the user file elsewhere
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Search.FinalTopK)
	assert.Equal(t, 30, cfg.Search.RRFConstant)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 50, cfg.Search.VectorTopK)
}

func TestLoad_SectionsMergeIntoDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), `
sections:
  Plot: 1.15
  References: 0.1
`)

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 1.15, cfg.Sections["Plot"])
	assert.Equal(t, 0.1, cfg.Sections["References"])
	assert.Equal(t, 0.2, cfg.Sections["External links"])
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), "search:\n  final_top_k: 3\n")
	t.Setenv("LORERANK_FINAL_TOP_K", "7")
	t.Setenv("LORERANK_EMBEDDINGS_PROVIDER", "openai")
	t.Setenv("LORERANK_VECTOR_PATH", "/srv/index.snap")
	t.Setenv("LORERANK_VECTOR_FORMAT", "snapshot")
	t.Setenv("LORERANK_TELEMETRY_ENABLED", "false")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.FinalTopK)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "/srv/index.snap", cfg.Index.VectorPath)
	assert.Equal(t, VectorFormatSnapshot, cfg.Index.VectorFormat)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_BadEnvInteger(t *testing.T) {
	isolate(t)
	t.Setenv("LORERANK_VECTOR_TOP_K", "lots")

	_, err := Load(t.TempDir())

	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeConfigInvalid))
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectConfigName), "search: [not, a, map")

	_, err := Load(dir)

	assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeConfigInvalid))
}

// --- TS03: Validation ---

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative vector top k", func(c *Config) { c.Search.VectorTopK = -1 }},
		{"negative final top k", func(c *Config) { c.Search.FinalTopK = -2 }},
		{"zero rrf constant", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"b above one", func(c *Config) { c.Search.BM25B = 1.5 }},
		{"bad timeout", func(c *Config) { c.Search.Timeout = "soon" }},
		{"negative timeout", func(c *Config) { c.Search.Timeout = "-1s" }},
		{"zero multiplier", func(c *Config) { c.Sections["Plot"] = 0 }},
		{"negative multiplier", func(c *Config) { c.Sections["References"] = -0.3 }},
		{"unknown vector format", func(c *Config) { c.Index.VectorFormat = "hnsw" }},
		{"unknown corpus format", func(c *Config) { c.Index.CorpusFormat = "csv" }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "sse" }},
		{"unknown log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.True(t, lerrors.HasCode(err, lerrors.ErrCodeConfigInvalid))
		})
	}
}

func TestSearchTimeout_Disabled(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.Timeout = "0"

	d, err := cfg.SearchTimeout()

	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.FinalTopK = 9
	cfg.Sections["Plot"] = 1.05

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigName)))
	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Search.FinalTopK)
	assert.Equal(t, 1.05, loaded.Sections["Plot"])
}
