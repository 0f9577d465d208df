// Package config provides configuration management for the leapmigrate CLI.
//
// The shared configuration types live in internal/config and are re-exported
// here via type aliases for convenience.
package config

import (
	intconfig "github.com/leapstack-labs/leapmigrate/internal/config"
)

// Config is an alias for the shared configuration.
type Config = intconfig.Config

// Default configuration values, shared with internal/config.
const (
	DefaultStateFile = intconfig.DefaultStateFile
	DefaultUser      = intconfig.DefaultUser
	DefaultOutput    = intconfig.DefaultOutput
)

// EnvPrefix is the prefix of environment variables read by the loader.
const EnvPrefix = "LEAPMIGRATE_"
