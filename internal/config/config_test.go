package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "activerules.db", cfg.Database)
	assert.Equal(t, time.Second, cfg.RefreshInterval)
	assert.Equal(t, 5*time.Minute, cfg.GCInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.False(t, cfg.InMemoryIndex)

	// A persistent index needs a directory.
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	cfg.IndexDir = "idx"
	assert.NoError(t, cfg.Validate())
}

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse([]byte(`
database: /var/lib/arindex/rules.db
index_dir: /var/lib/arindex/index
refresh_interval: 250ms
log_level: debug
concurrency: 4
`), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/arindex/rules.db", cfg.Database)
	assert.Equal(t, "/var/lib/arindex/index", cfg.IndexDir)
	assert.Equal(t, 250*time.Millisecond, cfg.RefreshInterval)
	assert.Equal(t, 5*time.Minute, cfg.GCInterval, "default kept")
	assert.Equal(t, 4, cfg.Concurrency)
	assert.NoError(t, cfg.Validate())
}

func TestParse_YAMLEmpty(t *testing.T) {
	cfg, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_YAMLUnknownField(t *testing.T) {
	_, err := Parse([]byte("databse: x.db\n"), FormatYAML)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := map[string]string{
		"bad log level":     "log_level: verbose\n",
		"zero concurrency":  "concurrency: 0\n",
		"empty database":    "database: \"\"\n",
		"wrong type":        "in_memory_index: sometimes\n",
		"unparsable period": "refresh_interval: soon\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), FormatYAML)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParse_CUE(t *testing.T) {
	cfg, err := Parse([]byte(`
database:         ":memory:"
in_memory_index:  true
refresh_interval: "0"
`), FormatCUE)
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.Database)
	assert.True(t, cfg.InMemoryIndex)
	assert.Zero(t, cfg.RefreshInterval)
	assert.NoError(t, cfg.Validate())
}

func TestParse_CUEUnknownField(t *testing.T) {
	_, err := Parse([]byte(`shards: 3`), FormatCUE)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "arindex.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("in_memory_index: true\n"), 0o644))
	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	assert.True(t, cfg.InMemoryIndex)

	cuePath := filepath.Join(dir, "arindex.cue")
	require.NoError(t, os.WriteFile(cuePath, []byte("sync_writes: true\n"), 0o644))
	cfg, err = Load(cuePath)
	require.NoError(t, err)
	assert.True(t, cfg.SyncWrites)

	_, err = Load(filepath.Join(dir, "arindex.toml"))
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, "WARN", cfg.SlogLevel().String())
}
