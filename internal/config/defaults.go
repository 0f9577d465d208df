package config

import (
	"time"

	"github.com/leapstack-labs/leapmigrate/internal/cache"
	"github.com/leapstack-labs/leapmigrate/internal/merge"
	"github.com/leapstack-labs/leapmigrate/internal/planner"
	"github.com/leapstack-labs/leapmigrate/internal/predicate"
)

// Default configuration values.
const (
	DefaultStateFile      = ".leapmigrate/state.db"
	DefaultUser           = "local"
	DefaultOutput         = "text"
	DefaultStorageBackend = BackendSQLite
	DefaultCacheBackend   = BackendMemory
	DefaultFetchTimeout   = 30 * time.Second
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Output formats.
const (
	OutputText     = "text"
	OutputJSON     = "json"
	OutputMarkdown = "markdown"
)

// Defaults returns the default configuration keyed the way koanf flattens it.
func Defaults() map[string]any {
	p := planner.DefaultConfig()
	return map[string]any{
		"state_path":                     DefaultStateFile,
		"user":                           DefaultUser,
		"verbose":                        false,
		"output":                         DefaultOutput,
		"storage.backend":                DefaultStorageBackend,
		"storage.s3.region":              "us-east-1",
		"storage.s3.use_ssl":             true,
		"storage.s3.prefix":              "leapmigrate",
		"cache.backend":                  DefaultCacheBackend,
		"cache.max_entries":              cache.DefaultMaxEntries,
		"merge.fetch_concurrency":        merge.DefaultConcurrency,
		"merge.fetch_timeout":            DefaultFetchTimeout.String(),
		"planner.naming_max_tables":      p.NamingMaxTables,
		"planner.prefix_share_threshold": p.PrefixShareThreshold,
		"planner.cycle_sample_size":      p.CycleSampleSize,
		"planner.max_cycles":             p.MaxCycles,
		"tables.types":                   append([]string(nil), predicate.DefaultTableTypes...),
		"tables.predicate":               "",
	}
}

// ApplyDefaults fills zero values of c with defaults.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStateFile
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutput
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = DefaultCacheBackend
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = cache.DefaultMaxEntries
	}
	if c.Merge.FetchConcurrency == 0 {
		c.Merge.FetchConcurrency = merge.DefaultConcurrency
	}
	if c.Merge.FetchTimeout == 0 {
		c.Merge.FetchTimeout = DefaultFetchTimeout
	}

	p := planner.DefaultConfig()
	if c.Planner.NamingMaxTables == 0 {
		c.Planner.NamingMaxTables = p.NamingMaxTables
	}
	if c.Planner.PrefixShareThreshold == 0 {
		c.Planner.PrefixShareThreshold = p.PrefixShareThreshold
	}
	if c.Planner.CycleSampleSize == 0 {
		c.Planner.CycleSampleSize = p.CycleSampleSize
	}
	if c.Planner.MaxCycles == 0 {
		c.Planner.MaxCycles = p.MaxCycles
	}
	if len(c.Tables.Types) == 0 {
		c.Tables.Types = append([]string(nil), predicate.DefaultTableTypes...)
	}
}
