package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `database: ledger.db
domain: ledger
service: accounts
public: true
block_parallel: 8
follow_poll_interval: 250ms
handlers:
  add: merge
  reset: replace
schemas:
  add: |
    x: int
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rootstore.yaml", validYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ledger.db", cfg.Database)
	assert.Equal(t, "ledger", cfg.Domain)
	assert.Equal(t, "accounts", cfg.Service)
	assert.Equal(t, "local", cfg.Network, "unset fields keep their defaults")
	assert.True(t, cfg.Public)
	assert.Equal(t, 8, cfg.BlockParallel)
	assert.Equal(t, 500, cfg.StreamPageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.FollowPollInterval)
	assert.Equal(t, map[string]string{"add": "merge", "reset": "replace"}, cfg.Handlers)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rootstore.yaml", validYAML+"blok_parallel: 3\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blok_parallel")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rootstore.yaml", validYAML)
	t.Setenv("ROOTSTORE_DOMAIN", "billing")
	t.Setenv("ROOTSTORE_BLOCK_PARALLEL", "2")
	t.Setenv("ROOTSTORE_FOLLOW_POLL_INTERVAL", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "billing", cfg.Domain)
	assert.Equal(t, 2, cfg.BlockParallel)
	assert.Equal(t, 5*time.Second, cfg.FollowPollInterval)
	assert.Equal(t, "accounts", cfg.Service)
}

func TestLoad_EmptyFileStillNeedsHandlers(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rootstore.yaml", "\n")
	t.Setenv("ROOTSTORE_DOMAIN", "ledger")
	t.Setenv("ROOTSTORE_SERVICE", "accounts")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one handler")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Domain = "ledger"
		cfg.Service = "accounts"
		cfg.Handlers = map[string]string{"add": "merge"}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no database", func(c *Config) { c.Database = " " }, "database is required"},
		{"no domain", func(c *Config) { c.Domain = "" }, "domain is required"},
		{"dotted service", func(c *Config) { c.Service = "a.b" }, "must not contain"},
		{"zero parallel", func(c *Config) { c.BlockParallel = 0 }, "block_parallel"},
		{"zero page size", func(c *Config) { c.StreamPageSize = 0 }, "stream_page_size"},
		{"zero poll", func(c *Config) { c.FollowPollInterval = 0 }, "follow_poll_interval"},
		{"unknown handler", func(c *Config) { c.Handlers["add"] = "sum" }, `unknown handler "sum"`},
		{"schema without handler", func(c *Config) { c.Schemas = map[string]string{"other": "x: int"} }, `schema for "other"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	for _, want := range []string{"database", "domain", "service", "block_parallel", "handler"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSchemaSources_InlineWinsOverDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "add.cue", "x: string\n")
	writeFile(t, dir, "deposit.cue", "amount: int\n")
	writeFile(t, dir, "notes.txt", "ignored")

	cfg := Config{
		SchemaDir: dir,
		Schemas:   map[string]string{"add": "x: int\n"},
	}
	sources, err := cfg.SchemaSources()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"add":     "x: int\n",
		"deposit": "amount: int\n",
	}, sources)
}

func TestSchemaSources_Empty(t *testing.T) {
	sources, err := Config{}.SchemaSources()
	require.NoError(t, err)
	assert.Empty(t, sources)
}
