package config

import (
	"errors"
	"fmt"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	if c.User == "" {
		errs = append(errs, errors.New("user is required"))
	}

	switch c.OutputFormat {
	case OutputText, OutputJSON, OutputMarkdown:
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q (want text, json or markdown)", c.OutputFormat))
	}

	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendS3:
		if c.Storage.S3.Endpoint == "" {
			errs = append(errs, errors.New("storage.s3.endpoint is required for the s3 backend"))
		}
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries must not be negative"))
	}

	if c.Merge.FetchConcurrency < 0 {
		errs = append(errs, errors.New("merge.fetch_concurrency must not be negative"))
	}
	if c.Merge.FetchTimeout < 0 {
		errs = append(errs, errors.New("merge.fetch_timeout must not be negative"))
	}

	p := c.Planner
	if p.PrefixShareThreshold <= 0 || p.PrefixShareThreshold > 1 {
		errs = append(errs, fmt.Errorf("planner.prefix_share_threshold must be in (0, 1], got %g", p.PrefixShareThreshold))
	}
	if p.NamingMaxTables < 0 {
		errs = append(errs, errors.New("planner.naming_max_tables must not be negative"))
	}
	if p.CycleSampleSize < 0 {
		errs = append(errs, errors.New("planner.cycle_sample_size must not be negative"))
	}
	if p.MaxCycles < 0 {
		errs = append(errs, errors.New("planner.max_cycles must not be negative"))
	}

	return errors.Join(errs...)
}
