// Package cache provides a read-through, single-flight cache of full merge
// results keyed by user and file set.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"golang.org/x/sync/singleflight"
)

// Backend stores full merge responses. Stored values are immutable
// snapshots: callers never mutate what Get returns.
type Backend interface {
	Get(ctx context.Context, key string) (*core.MergeResponse, bool, error)
	Set(ctx context.Context, key string, resp *core.MergeResponse) error
	// DeletePrefix removes every entry whose key starts with prefix and
	// returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// ComputeFunc produces a fresh merge result on a cache miss.
type ComputeFunc func(ctx context.Context) (*core.MergeResult, error)

const keyNamespace = "merge/"

// UserPrefix returns the key prefix shared by all of a user's entries.
func UserPrefix(userID string) string {
	return keyNamespace + url.PathEscape(userID) + "/"
}

// Key returns the cache key for a user and file set. File order does not
// matter. Presentation options such as derived-edge inclusion are not part
// of the key.
func Key(userID string, fileIDs []string) string {
	sorted := append([]string(nil), fileIDs...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(userID))
	for _, id := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return UserPrefix(userID) + hex.EncodeToString(h.Sum(nil))
}

// Cache wraps a Backend with single-flight computation and per-user
// invalidation.
type Cache struct {
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
	metrics Metrics

	// generations guards against storing results computed before an
	// invalidation of the same user.
	genMu       sync.RWMutex
	generations map[string]uint64
}

// New creates a cache over backend.
func New(backend Backend, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		backend:     backend,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

// GetOrCompute returns the cached full response for (userID, fileIDs) or
// runs compute once per key, stores the full result and returns it. Cache
// hits are marked Cached and never wait for an in-flight computation.
func (c *Cache) GetOrCompute(ctx context.Context, userID string, fileIDs []string, compute ComputeFunc) (*core.MergeResponse, error) {
	key := Key(userID, fileIDs)

	if resp, ok := c.lookup(ctx, key); ok {
		c.metrics.hits.Add(1)
		c.logger.Debug("merge cache hit", "key", key)
		return markCached(resp), nil
	}
	c.metrics.misses.Add(1)
	c.logger.Debug("merge cache miss", "key", key)

	gen := c.generation(userID)
	flightKey := key + "#" + strconv.FormatUint(gen, 10)

	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		// Double-check inside the flight
		if resp, ok := c.lookup(ctx, key); ok {
			return markCached(resp), nil
		}

		start := time.Now()
		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.metrics.computes.Add(1)

		resp := &core.MergeResponse{
			MergeResult:   *result,
			ComputeTimeMS: time.Since(start).Milliseconds(),
		}
		c.store(ctx, userID, gen, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("compute merge: %w", err)
	}

	resp, ok := v.(*core.MergeResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected type from merge flight: got %T", v)
	}
	return resp, nil
}

// Merge is GetOrCompute followed by Filter.
func (c *Cache) Merge(ctx context.Context, userID string, fileIDs []string, includeDerived bool, compute ComputeFunc) (*core.FilteredResponse, error) {
	resp, err := c.GetOrCompute(ctx, userID, fileIDs, compute)
	if err != nil {
		return nil, err
	}
	return Filter(resp, includeDerived), nil
}

// InvalidateUser drops every cached entry of userID. Results still being
// computed for that user are not stored once they finish.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) (int, error) {
	c.genMu.Lock()
	c.generations[userID]++
	c.genMu.Unlock()

	c.metrics.invalidations.Add(1)

	n, err := c.backend.DeletePrefix(ctx, UserPrefix(userID))
	if err != nil {
		c.metrics.backendErrors.Add(1)
		return n, fmt.Errorf("invalidate cache for user %s: %w", userID, err)
	}
	c.logger.Debug("merge cache invalidated", "user_id", userID, "entries", n)
	return n, nil
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache) Metrics() MetricsSnapshot {
	return c.metrics.snapshot()
}

func (c *Cache) lookup(ctx context.Context, key string) (*core.MergeResponse, bool) {
	resp, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.metrics.backendErrors.Add(1)
		c.logger.Warn("merge cache read failed", "key", key, "error", err)
		return nil, false
	}
	return resp, ok && resp != nil
}

func (c *Cache) store(ctx context.Context, userID string, gen uint64, key string, resp *core.MergeResponse) {
	c.genMu.RLock()
	defer c.genMu.RUnlock()

	if c.generations[userID] != gen {
		c.logger.Debug("discarding merge computed before invalidation", "key", key)
		return
	}
	if err := c.backend.Set(ctx, key, resp); err != nil {
		c.metrics.backendErrors.Add(1)
		c.logger.Warn("merge cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) generation(userID string) uint64 {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	return c.generations[userID]
}

func markCached(resp *core.MergeResponse) *core.MergeResponse {
	out := *resp
	out.Cached = true
	return &out
}

// Filter shapes a full response for presentation. With includeDerived the
// edge list is base edges followed by derived file dependency edges,
// otherwise base edges only. resp is not modified.
func Filter(resp *core.MergeResponse, includeDerived bool) *core.FilteredResponse {
	n := len(resp.Edges)
	if includeDerived {
		n += len(resp.FileDependencyEdges)
	}
	edges := make([]core.Edge, 0, n)
	edges = append(edges, resp.Edges...)
	if includeDerived {
		edges = append(edges, resp.FileDependencyEdges...)
	}

	return &core.FilteredResponse{
		Nodes:         resp.Nodes,
		Edges:         edges,
		Provenance:    resp.Provenance,
		Stats:         resp.Stats,
		ComputeTimeMS: resp.ComputeTimeMS,
		Cached:        resp.Cached,
	}
}
