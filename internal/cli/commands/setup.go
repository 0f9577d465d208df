package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapmigrate/internal/cache"
	"github.com/leapstack-labs/leapmigrate/internal/cli/config"
	"github.com/leapstack-labs/leapmigrate/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapmigrate/internal/config"
	"github.com/leapstack-labs/leapmigrate/internal/engine"
	"github.com/leapstack-labs/leapmigrate/internal/objectstore"
	"github.com/leapstack-labs/leapmigrate/internal/predicate"
	"github.com/leapstack-labs/leapmigrate/internal/state"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	eng, cleanup, err := createEngine(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Engine:   eng,
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ParseMode(cfg.OutputFormat)),
	}, cleanup, nil
}

// getConfig returns the current configuration, or defaults when none was
// loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg := &config.Config{}
	intconfig.ApplyDefaults(cfg)
	return cfg
}

func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, func(), error) {
	// Ensure state directory exists
	if cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	store := state.NewSQLiteStore(logger.With("component", "state"))
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	var lineages engine.LineageStore = store
	if cfg.Storage.Backend == intconfig.BackendS3 {
		obj, err := objectstore.New(cfg.Storage.S3.ObjectStore(), logger.With("component", "objectstore"))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		lineages = obj
	}

	var backend cache.Backend
	switch cfg.Cache.Backend {
	case intconfig.BackendSQLite:
		backend = state.NewCacheBackend(store)
	default:
		mem, err := cache.NewMemoryBackend(cfg.Cache.MaxEntries)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		backend = mem
	}

	isTable, err := predicate.Build(cfg.Tables.Types, cfg.Tables.Predicate, func(n core.Node, err error) {
		logger.Warn("table predicate failed", "node_id", n.ID, "error", err)
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	eng, err := engine.New(engine.Config{
		Registry:         store,
		Lineages:         lineages,
		CacheBackend:     backend,
		IsTable:          isTable,
		Planner:          cfg.Planner.PlannerSettings(),
		FetchConcurrency: cfg.Merge.FetchConcurrency,
		FetchTimeout:     cfg.Merge.FetchTimeout,
		Logger:           logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}
