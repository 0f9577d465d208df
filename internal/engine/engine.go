// Package engine ties the lineage store, the merge cache and the migration
// planner together. It is the only place that mutates a user's file set, so
// it is also where cache invalidation happens.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmigrate/internal/cache"
	"github.com/leapstack-labs/leapmigrate/internal/merge"
	"github.com/leapstack-labs/leapmigrate/internal/planner"
	"github.com/leapstack-labs/leapmigrate/internal/predicate"
	"github.com/leapstack-labs/leapmigrate/internal/semantics"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// Registry tracks which files a user uploaded and which lineages belong to
// each file.
type Registry interface {
	SaveFile(ctx context.Context, userID string, file core.FileDescriptor) error
	AddLineageRef(ctx context.Context, userID, fileID, lineageID string) error
	ReplaceLineageRefs(ctx context.Context, userID, fileID string, lineageIDs []string) ([]string, error)
	DeleteFile(ctx context.Context, userID, fileID string) ([]string, error)
	ListFiles(ctx context.Context, userID string) ([]core.FileDescriptor, error)
	GetFiles(ctx context.Context, userID string, fileIDs []string) ([]core.FileDescriptor, error)
	GetContentHash(ctx context.Context, userID, fileID string) (string, error)
	SetContentHash(ctx context.Context, userID, fileID, hash string) error
}

// LineageStore holds lineage graphs.
type LineageStore interface {
	merge.Fetcher
	PutLineage(ctx context.Context, userID, lineageID string, g core.LineageGraph) error
	DeleteLineages(ctx context.Context, userID string, lineageIDs []string) error
}

// Config holds engine dependencies.
type Config struct {
	// Registry stores file descriptors (required)
	Registry Registry
	// Lineages stores lineage graphs (required)
	Lineages LineageStore
	// CacheBackend stores merge results (optional, in-memory LRU if nil)
	CacheBackend cache.Backend
	// IsTable recognizes table-like nodes (optional, predicate.Default if nil)
	IsTable semantics.NodePredicate
	// Planner holds planning policy
	Planner planner.Config
	// FetchConcurrency bounds concurrent lineage fetches
	FetchConcurrency int
	// FetchTimeout bounds each lineage fetch
	FetchTimeout time.Duration
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// NewID generates lineage IDs (optional, random UUIDs if nil)
	NewID func() string
}

// Engine runs imports, merges and plans for many users.
type Engine struct {
	registry  Registry
	lineages  LineageStore
	cache     *cache.Cache
	collector *merge.Collector
	merger    *merge.Merger
	planner   *planner.Planner
	logger    *slog.Logger
	newID     func() string
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if cfg.Lineages == nil {
		return nil, errors.New("engine: lineage store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	isTable := cfg.IsTable
	if isTable == nil {
		isTable = predicate.Default()
	}
	backend := cfg.CacheBackend
	if backend == nil {
		mem, err := cache.NewMemoryBackend(cache.DefaultMaxEntries)
		if err != nil {
			return nil, err
		}
		backend = mem
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}

	return &Engine{
		registry: cfg.Registry,
		lineages: cfg.Lineages,
		cache:    cache.New(backend, logger.With("component", "cache")),
		collector: merge.NewCollector(cfg.Lineages, merge.CollectorConfig{
			Concurrency: cfg.FetchConcurrency,
			Timeout:     cfg.FetchTimeout,
			Logger:      logger.With("component", "collector"),
		}),
		merger:  merge.New(isTable),
		planner: planner.New(cfg.Planner, isTable, logger.With("component", "planner")),
		logger:  logger,
		newID:   newID,
	}, nil
}

// ImportResult reports one imported lineage.
type ImportResult struct {
	FileID    string `json:"file_id"`
	LineageID string `json:"lineage_id"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
}

// ImportLineage registers the document's file for userID and stores the
// document as a new lineage of that file.
func (e *Engine) ImportLineage(ctx context.Context, userID string, doc core.LineageDocument) (*ImportResult, error) {
	if doc.FileID == "" {
		return nil, fmt.Errorf("import: %w: document has no file_id", core.ErrMalformedNode)
	}
	g := doc.Graph()
	if err := core.ValidateGraph(g); err != nil {
		return nil, fmt.Errorf("import %s: %w", doc.FileID, err)
	}

	if err := e.registry.SaveFile(ctx, userID, descriptorOf(doc)); err != nil {
		return nil, err
	}

	lineageID := e.newID()
	if err := e.lineages.PutLineage(ctx, userID, lineageID, g); err != nil {
		return nil, err
	}
	if err := e.registry.AddLineageRef(ctx, userID, doc.FileID, lineageID); err != nil {
		return nil, err
	}

	if err := e.invalidate(ctx, userID); err != nil {
		return nil, err
	}

	e.logger.Info("lineage imported",
		"user_id", userID,
		"file_id", doc.FileID,
		"lineage_id", lineageID,
		"nodes", len(g.Nodes),
		"edges", len(g.Edges))

	return &ImportResult{
		FileID:    doc.FileID,
		LineageID: lineageID,
		Nodes:     len(g.Nodes),
		Edges:     len(g.Edges),
	}, nil
}

// ReplaceLineages swaps every lineage of a file for graphs. The file must
// already be registered. It returns the new lineage IDs.
func (e *Engine) ReplaceLineages(ctx context.Context, userID, fileID string, graphs []core.LineageGraph) ([]string, error) {
	for i, g := range graphs {
		if err := core.ValidateGraph(g); err != nil {
			return nil, fmt.Errorf("replace %s lineage %d: %w", fileID, i, err)
		}
	}

	ids := make([]string, len(graphs))
	for i, g := range graphs {
		ids[i] = e.newID()
		if err := e.lineages.PutLineage(ctx, userID, ids[i], g); err != nil {
			return nil, err
		}
	}

	old, err := e.registry.ReplaceLineageRefs(ctx, userID, fileID, ids)
	if err != nil {
		// the new graphs are unreachable now
		_ = e.lineages.DeleteLineages(ctx, userID, ids)
		return nil, err
	}
	if err := e.lineages.DeleteLineages(ctx, userID, old); err != nil {
		e.logger.Warn("failed to delete replaced lineages", "file_id", fileID, "error", err)
	}

	if err := e.invalidate(ctx, userID); err != nil {
		return nil, err
	}

	e.logger.Info("lineages replaced", "user_id", userID, "file_id", fileID, "lineages", len(ids))
	return ids, nil
}

// DeleteFile removes a file and its lineages.
func (e *Engine) DeleteFile(ctx context.Context, userID, fileID string) error {
	old, err := e.registry.DeleteFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if err := e.lineages.DeleteLineages(ctx, userID, old); err != nil {
		e.logger.Warn("failed to delete lineages of removed file", "file_id", fileID, "error", err)
	}

	if err := e.invalidate(ctx, userID); err != nil {
		return err
	}

	e.logger.Info("file deleted", "user_id", userID, "file_id", fileID)
	return nil
}

// ListFiles returns the user's files in upload order.
func (e *Engine) ListFiles(ctx context.Context, userID string) ([]core.FileDescriptor, error) {
	return e.registry.ListFiles(ctx, userID)
}

// Merge returns the merged lineage of fileIDs, or of all the user's files in
// upload order when fileIDs is empty. Results are cached per user and file
// set; includeDerived only changes the presentation.
func (e *Engine) Merge(ctx context.Context, userID string, fileIDs []string, includeDerived bool) (*core.FilteredResponse, error) {
	resp, err := e.mergeFull(ctx, userID, fileIDs)
	if err != nil {
		return nil, err
	}
	return cache.Filter(resp, includeDerived), nil
}

// Plan computes the migration plan over the merged base edges of fileIDs.
func (e *Engine) Plan(ctx context.Context, userID string, fileIDs []string) (*core.MigrationPlan, error) {
	resp, err := e.mergeFull(ctx, userID, fileIDs)
	if err != nil {
		return nil, err
	}
	return e.planner.Plan(core.Graph{Nodes: resp.Nodes, Edges: resp.Edges})
}

// PlanGraph computes the migration plan of an already merged graph.
func (e *Engine) PlanGraph(g core.Graph) (*core.MigrationPlan, error) {
	return e.planner.Plan(g)
}

// InvalidateUser drops every cached merge of userID.
func (e *Engine) InvalidateUser(ctx context.Context, userID string) (int, error) {
	return e.cache.InvalidateUser(ctx, userID)
}

// CacheMetrics returns the merge cache counters.
func (e *Engine) CacheMetrics() cache.MetricsSnapshot {
	return e.cache.Metrics()
}

func (e *Engine) mergeFull(ctx context.Context, userID string, fileIDs []string) (*core.MergeResponse, error) {
	var (
		files []core.FileDescriptor
		err   error
	)
	if len(fileIDs) == 0 {
		files, err = e.registry.ListFiles(ctx, userID)
	} else {
		files, err = e.registry.GetFiles(ctx, userID, fileIDs)
	}
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return &core.MergeResponse{MergeResult: *core.EmptyMergeResult()}, nil
	}

	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.FileID
	}

	return e.cache.GetOrCompute(ctx, userID, ids, func(ctx context.Context) (*core.MergeResult, error) {
		collected, err := e.collector.Collect(ctx, userID, files)
		if err != nil {
			return nil, err
		}
		result, err := e.merger.Merge(collected.Files)
		if err != nil {
			return nil, err
		}
		result.Stats.SkippedLineages = len(collected.Skipped)
		return result, nil
	})
}

func (e *Engine) invalidate(ctx context.Context, userID string) error {
	if _, err := e.cache.InvalidateUser(ctx, userID); err != nil {
		return err
	}
	return nil
}

func descriptorOf(doc core.LineageDocument) core.FileDescriptor {
	name := doc.Filename
	if name == "" {
		name = doc.FileID
	}
	return core.FileDescriptor{FileID: doc.FileID, Filename: name, Dialect: doc.Dialect}
}
