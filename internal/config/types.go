// Package config provides shared configuration types for leapmigrate.
// This package is decoupled from CLI concerns so that the engine can be
// built from a Config without going through cobra.
package config

import (
	"time"

	"github.com/leapstack-labs/leapmigrate/internal/objectstore"
	"github.com/leapstack-labs/leapmigrate/internal/planner"
)

// Config holds all configuration options.
type Config struct {
	StatePath    string        `koanf:"state_path"`
	User         string        `koanf:"user"`
	Verbose      bool          `koanf:"verbose"`
	OutputFormat string        `koanf:"output"`
	Storage      StorageConfig `koanf:"storage"`
	Cache        CacheConfig   `koanf:"cache"`
	Merge        MergeConfig   `koanf:"merge"`
	Planner      PlannerConfig `koanf:"planner"`
	Tables       TablesConfig  `koanf:"tables"`
}

// StorageConfig selects where lineage graphs live. The file registry is
// always kept in the SQLite state database.
type StorageConfig struct {
	Backend string   `koanf:"backend"` // sqlite, s3
	S3      S3Config `koanf:"s3"`
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
	Prefix    string `koanf:"prefix"`
}

// CacheConfig selects the merge cache backend.
type CacheConfig struct {
	Backend    string `koanf:"backend"` // memory, sqlite
	MaxEntries int    `koanf:"max_entries"`
}

// MergeConfig tunes lineage fetching.
type MergeConfig struct {
	FetchConcurrency int           `koanf:"fetch_concurrency"`
	FetchTimeout     time.Duration `koanf:"fetch_timeout"`
}

// PlannerConfig holds migration planning policy.
type PlannerConfig struct {
	NamingMaxTables      int     `koanf:"naming_max_tables"`
	PrefixShareThreshold float64 `koanf:"prefix_share_threshold"`
	CycleSampleSize      int     `koanf:"cycle_sample_size"`
	MaxCycles            int     `koanf:"max_cycles"`
}

// TablesConfig decides which nodes count as tables.
type TablesConfig struct {
	Types     []string `koanf:"types"`
	Predicate string   `koanf:"predicate"` // Starlark boolean expression over node
}

// PlannerSettings converts to the planner's configuration.
func (c PlannerConfig) PlannerSettings() planner.Config {
	return planner.Config{
		NamingMaxTables:      c.NamingMaxTables,
		PrefixShareThreshold: c.PrefixShareThreshold,
		CycleSampleSize:      c.CycleSampleSize,
		MaxCycles:            c.MaxCycles,
	}
}

// ObjectStore converts to the object store configuration.
func (c S3Config) ObjectStore() objectstore.Config {
	return objectstore.Config{
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		UseSSL:    c.UseSSL,
		Prefix:    c.Prefix,
	}
}
