package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Fetcher loads one stored lineage graph.
type Fetcher interface {
	FetchLineage(ctx context.Context, lineageID, userID string) (*core.LineageGraph, error)
}

// FetchError records a lineage that could not be loaded. It is reported in
// CollectResult.Skipped and never aborts a merge.
type FetchError struct {
	LineageID string
	FileID    string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch lineage %s of file %s: %v", e.LineageID, e.FileID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CollectResult holds fetched lineages in file order.
type CollectResult struct {
	Files   []core.FileLineages
	Skipped []FetchError
}

// DefaultConcurrency is the fetch fan-out used when none is configured.
const DefaultConcurrency = 8

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// Concurrency bounds in-flight fetches (default DefaultConcurrency)
	Concurrency int
	// Timeout bounds each fetch; zero means no per-fetch timeout
	Timeout time.Duration
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Collector fetches lineages for many files concurrently while keeping the
// caller's file and lineage order in its output.
type Collector struct {
	fetcher     Fetcher
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewCollector creates a collector over fetcher.
func NewCollector(fetcher Fetcher, cfg CollectorConfig) *Collector {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Collector{
		fetcher:     fetcher,
		concurrency: concurrency,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
}

type slot struct {
	graph *core.LineageGraph
	err   error
}

// Collect fetches every lineage of files. A failed fetch is logged, recorded
// in Skipped and left out of the result. Only cancellation of ctx is
// returned as an error.
func (c *Collector) Collect(ctx context.Context, userID string, files []core.FileDescriptor) (*CollectResult, error) {
	slots := make([][]slot, len(files))
	for i, f := range files {
		slots[i] = make([]slot, len(f.Lineages))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, f := range files {
		for j, ref := range f.Lineages {
			g.Go(func() error {
				graph, err := c.fetch(gctx, ref.LineageID, userID)
				slots[i][j] = slot{graph: graph, err: err}
				return nil
			})
		}
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect lineages: %w", err)
	}

	result := &CollectResult{Files: make([]core.FileLineages, 0, len(files))}
	for i, f := range files {
		fl := core.FileLineages{File: f}
		for j, ref := range f.Lineages {
			s := slots[i][j]
			if s.err == nil && s.graph == nil {
				s.err = errors.New("fetcher returned no graph")
			}
			if s.err != nil {
				c.logger.Warn("skipping lineage",
					"lineage_id", ref.LineageID,
					"file_id", f.FileID,
					"error", s.err)
				result.Skipped = append(result.Skipped, FetchError{
					LineageID: ref.LineageID,
					FileID:    f.FileID,
					Err:       s.err,
				})
				continue
			}
			fl.Lineages = append(fl.Lineages, core.LineageSnapshot{
				LineageID: ref.LineageID,
				Graph:     *s.graph,
			})
		}
		result.Files = append(result.Files, fl)
	}

	c.logger.Debug("lineages collected",
		"user_id", userID,
		"files", len(files),
		"skipped", len(result.Skipped))

	return result, nil
}

func (c *Collector) fetch(ctx context.Context, lineageID, userID string) (*core.LineageGraph, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.fetcher.FetchLineage(ctx, lineageID, userID)
}
