package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapmigrate/internal/cache"
	"github.com/leapstack-labs/leapmigrate/internal/engine"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// Files renders the user's file list.
func (r *Renderer) Files(files []core.FileDescriptor) error {
	if r.mode == ModeJSON {
		return r.JSON(files)
	}
	if len(files) == 0 {
		r.Println("(no files)")
		return nil
	}

	rows := make([]table.Row, 0, len(files))
	for i, f := range files {
		ids := make([]string, len(f.Lineages))
		for j, l := range f.Lineages {
			ids[j] = l.LineageID
		}
		rows = append(rows, table.Row{i + 1, f.FileID, f.Filename, f.Dialect, len(f.Lineages), joinOrDash(ids)})
	}
	r.Header(1, fmt.Sprintf("Files (%d)", len(files)))
	r.Table(table.Row{"#", "File ID", "Filename", "Dialect", "Lineages", "Lineage IDs"}, rows)
	return nil
}

// Imported renders the result of a single import.
func (r *Renderer) Imported(res *engine.ImportResult) error {
	if r.mode == ModeJSON {
		return r.JSON(res)
	}
	r.Success(fmt.Sprintf("Imported %s as lineage %s (%d nodes, %d edges)", res.FileID, res.LineageID, res.Nodes, res.Edges))
	return nil
}

// Discovery renders a directory import.
func (r *Renderer) Discovery(res *engine.DiscoveryResult) error {
	if r.mode == ModeJSON {
		return r.JSON(res)
	}
	r.Header(1, "Import Results")
	r.KeyValue("Total", res.Total)
	r.KeyValue("Changed", res.Changed)
	r.KeyValue("Skipped", res.Skipped)
	r.KeyValue("Duration", res.Duration.Round(time.Millisecond))
	if res.HasErrors() {
		r.Println("")
		rows := make([]table.Row, 0, len(res.Errors))
		for _, e := range res.Errors {
			rows = append(rows, table.Row{e.Path, e.Type, e.Message})
		}
		r.Table(table.Row{"Path", "Type", "Error"}, rows)
	}
	return nil
}

// Merge renders a merge response.
func (r *Renderer) Merge(resp *core.FilteredResponse) error {
	if r.mode == ModeJSON {
		return r.JSON(resp)
	}

	s := resp.Stats
	r.Header(1, "Merged Lineage")
	r.KeyValue("Files", s.FileCount)
	r.KeyValue("Lineages", s.LineageCount)
	r.KeyValue("Nodes", s.NodeCount)
	r.KeyValue("Edges", s.EdgeCount)
	r.KeyValue("File dependencies", s.DerivedEdgeCount)
	r.KeyValue("External tables", s.ExternalTableCount)
	if s.DanglingEdgeCount > 0 {
		r.KeyValue("Dangling edges", s.DanglingEdgeCount)
	}
	if s.SkippedLineages > 0 {
		r.KeyValue("Skipped lineages", s.SkippedLineages)
	}
	r.KeyValue("Cached", resp.Cached)
	r.KeyValue("Compute time", fmt.Sprintf("%dms", resp.ComputeTimeMS))
	r.Println("")

	if len(s.Files) > 0 {
		rows := make([]table.Row, 0, len(s.Files))
		for _, f := range s.Files {
			rows = append(rows, table.Row{f.FileID, f.Filename, f.LineageCount, f.NodeCount, f.EdgeCount})
		}
		r.Header(2, "Files")
		r.Table(table.Row{"File ID", "Filename", "Lineages", "Nodes", "Edges"}, rows)
	}

	var deps []table.Row
	for _, e := range resp.Edges {
		if e.Relationship == core.RelDependsOnFile {
			deps = append(deps, table.Row{e.Source, e.Target, e.ViaTable})
		}
	}
	if len(deps) > 0 {
		r.Header(2, "File Dependencies")
		r.Table(table.Row{"Upstream", "Downstream", "Via Table"}, deps)
	}
	return nil
}

// Plan renders a migration plan.
func (r *Renderer) Plan(plan *core.MigrationPlan) error {
	if r.mode == ModeJSON {
		return r.JSON(plan)
	}

	r.Header(1, "Migration Plan")
	r.KeyValue("Groups", plan.TotalGroups)
	r.KeyValue("Nodes", plan.TotalNodes)
	r.KeyValue("Pre-existing tables", len(plan.PreExistingTables))
	r.KeyValue("Cycles", cycleSummary(plan.CycleInfo))
	r.Println("")

	for _, w := range plan.Warnings {
		r.Warning(w)
	}

	for i, g := range plan.Groups {
		title := fmt.Sprintf("%d. %s (%d files, %d tables)", i+1, g.Name, g.FileCount, g.TableCount)
		if g.HasCycle {
			title += " [cycle]"
		}
		r.Header(2, title)

		rows := make([]table.Row, 0, g.FileCount)
		for _, w := range g.Waves {
			for _, f := range w.Files {
				rows = append(rows, table.Row{
					w.Number,
					f.Name,
					joinOrDash(f.Upstream),
					joinOrDash(f.PreExistingTables),
					f.Rationale,
				})
			}
		}
		r.Table(table.Row{"Wave", "File", "Upstream", "Pre-existing", "Rationale"}, rows)
	}

	if len(plan.PreExistingTables) > 0 {
		rows := make([]table.Row, 0, len(plan.PreExistingTables))
		for _, t := range plan.PreExistingTables {
			rows = append(rows, table.Row{t.Name, t.Type, t.ReferenceCount, joinOrDash(t.ReferencedByFiles)})
		}
		r.Header(2, "Pre-existing Tables")
		r.Table(table.Row{"Table", "Type", "References", "Referenced By"}, rows)
	}

	if plan.HasCycles && len(plan.CycleInfo.Sample) > 0 {
		r.Header(2, "Cycle Sample")
		for _, c := range plan.CycleInfo.Sample {
			if len(c) == 0 {
				continue
			}
			path := append(append([]string(nil), c...), c[0])
			r.Printf("- %s\n", strings.Join(path, " -> "))
		}
		r.Println("")
	}
	return nil
}

// CacheMetrics renders cache counters.
func (r *Renderer) CacheMetrics(m cache.MetricsSnapshot) error {
	if r.mode == ModeJSON {
		return r.JSON(m)
	}
	r.Header(2, "Cache")
	r.KeyValue("Hits", m.Hits)
	r.KeyValue("Misses", m.Misses)
	r.KeyValue("Computes", m.Computes)
	r.KeyValue("Invalidations", m.Invalidations)
	r.KeyValue("Backend errors", m.BackendErrors)
	return nil
}

func cycleSummary(c core.CycleInfo) string {
	switch {
	case c.Count == 0:
		return "none"
	case c.Truncated:
		return fmt.Sprintf("%d+ (truncated)", c.Count)
	default:
		return fmt.Sprintf("%d", c.Count)
	}
}
