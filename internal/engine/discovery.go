package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"gopkg.in/yaml.v3"
)

// DiscoveryOptions configures a directory import.
type DiscoveryOptions struct {
	ForceFullRefresh bool // Ignore content hashes, re-import everything
}

// DiscoveryResult contains statistics about a discovery run.
type DiscoveryResult struct {
	Total   int
	Changed int
	Skipped int

	// Errors (non-fatal)
	Errors []DiscoveryError

	Duration time.Duration
}

// DiscoveryError represents a non-fatal error during discovery.
type DiscoveryError struct {
	Path    string
	Type    string // "read", "decode", "validation", "save"
	Message string
}

// HasErrors returns true if any errors occurred.
func (r *DiscoveryResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary returns a human-readable summary.
func (r *DiscoveryResult) Summary() string {
	return fmt.Sprintf("Lineage files: %d total (%d changed, %d skipped, %d errors) | Duration: %s",
		r.Total, r.Changed, r.Skipped, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// IsLineageFile reports whether path has a lineage document extension.
func IsLineageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// DecodeDocument parses a lineage document. YAML is used for .yaml and .yml
// paths, JSON otherwise.
func DecodeDocument(path string, data []byte) (core.LineageDocument, error) {
	var doc core.LineageDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return doc, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	if doc.FileID == "" {
		doc.FileID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Discover imports every lineage document under dir. A document whose
// content hash matches the one recorded for its file is skipped; a changed
// document replaces all lineages of its file. The user's cache is
// invalidated once if anything changed.
func (e *Engine) Discover(ctx context.Context, userID, dir string, opts DiscoveryOptions) (*DiscoveryResult, error) {
	start := time.Now()
	result := &DiscoveryResult{}

	e.logger.Info("starting discovery", "user_id", userID, "dir", dir)

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsLineageFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++
		changed, derr := e.discoverFile(ctx, userID, path, opts.ForceFullRefresh)
		if derr != nil {
			result.Errors = append(result.Errors, *derr)
			e.logger.Warn("discovery error", "path", derr.Path, "type", derr.Type, "error", derr.Message)
			continue
		}
		if changed {
			result.Changed++
		} else {
			result.Skipped++
		}
	}

	if result.Changed > 0 {
		if err := e.invalidate(ctx, userID); err != nil {
			return result, err
		}
	}

	result.Duration = time.Since(start)

	e.logger.Info("discovery completed",
		"user_id", userID,
		"total", result.Total,
		"changed", result.Changed,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// DiscoverFile imports a single lineage document the same way Discover does
// and invalidates the user's cache when it changed.
func (e *Engine) DiscoverFile(ctx context.Context, userID, path string) (bool, error) {
	changed, derr := e.discoverFile(ctx, userID, path, false)
	if derr != nil {
		return false, fmt.Errorf("%s: %s: %s", derr.Type, derr.Path, derr.Message)
	}
	if changed {
		if err := e.invalidate(ctx, userID); err != nil {
			return true, err
		}
	}
	return changed, nil
}

func (e *Engine) discoverFile(ctx context.Context, userID, path string, force bool) (bool, *DiscoveryError) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: path comes from WalkDir or the watcher
	if err != nil {
		return false, &DiscoveryError{Path: path, Type: "read", Message: err.Error()}
	}

	doc, err := DecodeDocument(path, content)
	if err != nil {
		return false, &DiscoveryError{Path: path, Type: "decode", Message: err.Error()}
	}
	g := doc.Graph()
	if err := core.ValidateGraph(g); err != nil {
		return false, &DiscoveryError{Path: path, Type: "validation", Message: err.Error()}
	}

	hash := computeHash(content)
	if !force {
		existing, err := e.registry.GetContentHash(ctx, userID, doc.FileID)
		if err == nil && existing == hash {
			return false, nil
		}
	}

	saveErr := func(err error) (bool, *DiscoveryError) {
		return false, &DiscoveryError{Path: path, Type: "save", Message: err.Error()}
	}

	if err := e.registry.SaveFile(ctx, userID, descriptorOf(doc)); err != nil {
		return saveErr(err)
	}
	lineageID := e.newID()
	if err := e.lineages.PutLineage(ctx, userID, lineageID, g); err != nil {
		return saveErr(err)
	}
	old, err := e.registry.ReplaceLineageRefs(ctx, userID, doc.FileID, []string{lineageID})
	if err != nil {
		return saveErr(err)
	}
	if err := e.lineages.DeleteLineages(ctx, userID, old); err != nil {
		e.logger.Warn("failed to delete replaced lineages", "file_id", doc.FileID, "error", err)
	}
	if err := e.registry.SetContentHash(ctx, userID, doc.FileID, hash); err != nil {
		return saveErr(err)
	}

	e.logger.Debug("lineage file imported", "path", path, "file_id", doc.FileID, "lineage_id", lineageID)
	return true, nil
}

func computeHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
