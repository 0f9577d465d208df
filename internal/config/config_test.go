package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapmigrate/internal/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDir_Defaults(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, DefaultUser, cfg.User)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 256, cfg.Cache.MaxEntries)
	assert.Equal(t, 8, cfg.Merge.FetchConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Merge.FetchTimeout)
	assert.Equal(t, planner.DefaultConfig(), cfg.Planner.PlannerSettings())
	assert.Contains(t, cfg.Tables.Types, "TABLE_OR_VIEW")
	require.NoError(t, cfg.Validate())
}

func TestLoadFromDir_File(t *testing.T) {
	dir := t.TempDir()
	content := `user: alice
storage:
  backend: s3
  s3:
    endpoint: localhost:9000
    bucket: lineage
    use_ssl: false
merge:
  fetch_timeout: 5s
planner:
  naming_max_tables: 5
tables:
  types: [TABLE]
  predicate: node.name.startswith("dbo.")
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileNameAlt), []byte(content), 0o600))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "localhost:9000", cfg.Storage.S3.Endpoint)
	assert.False(t, cfg.Storage.S3.UseSSL)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.Equal(t, 5*time.Second, cfg.Merge.FetchTimeout)
	assert.Equal(t, 5, cfg.Planner.NamingMaxTables)
	assert.Equal(t, 0.5, cfg.Planner.PrefixShareThreshold)
	assert.Equal(t, []string{"TABLE"}, cfg.Tables.Types)
	assert.Equal(t, `node.name.startswith("dbo.")`, cfg.Tables.Predicate)

	os3 := cfg.Storage.S3.ObjectStore()
	assert.Equal(t, "lineage", os3.Bucket)
	assert.Equal(t, "leapmigrate", os3.Prefix)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromDir_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("user: [unclosed"), 0o600))
	_, err := LoadFromDir(dir)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		ApplyDefaults(c)
		return c
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, errSubstr: "unknown storage backend"},
		{name: "s3 without bucket", mutate: func(c *Config) {
			c.Storage.Backend = BackendS3
			c.Storage.S3.Endpoint = "localhost:9000"
		}, errSubstr: "bucket is required"},
		{name: "unknown cache", mutate: func(c *Config) { c.Cache.Backend = "redis" }, errSubstr: "unknown cache backend"},
		{name: "sqlite cache", mutate: func(c *Config) { c.Cache.Backend = BackendSQLite }},
		{name: "unknown output", mutate: func(c *Config) { c.OutputFormat = "xml" }, errSubstr: "unknown output format"},
		{name: "threshold above one", mutate: func(c *Config) { c.Planner.PrefixShareThreshold = 1.5 }, errSubstr: "prefix_share_threshold"},
		{name: "threshold one", mutate: func(c *Config) { c.Planner.PrefixShareThreshold = 1 }},
		{name: "negative threshold", mutate: func(c *Config) { c.Planner.PrefixShareThreshold = -0.1 }, errSubstr: "prefix_share_threshold"},
		{name: "negative cycles", mutate: func(c *Config) { c.Planner.MaxCycles = -1 }, errSubstr: "max_cycles"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Merge.FetchConcurrency = -2 }, errSubstr: "fetch_concurrency"},
		{name: "empty user", mutate: func(c *Config) { c.User = "" }, errSubstr: "user is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errSubstr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}
