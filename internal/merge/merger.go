// Package merge folds per-file lineage graphs into one provenance-tracked
// graph and derives file-to-file dependency edges from shared tables.
package merge

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/leapmigrate/internal/predicate"
	"github.com/leapstack-labs/leapmigrate/internal/semantics"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// Merger merges lineage graphs. It holds no state between calls and is safe
// for concurrent use.
type Merger struct {
	isTable semantics.NodePredicate
}

// New creates a merger using isTable to recognize table-like nodes.
// A nil predicate selects predicate.Default.
func New(isTable semantics.NodePredicate) *Merger {
	if isTable == nil {
		isTable = predicate.Default()
	}
	return &Merger{isTable: isTable}
}

// Merge folds files in the given order. For every node and edge the first
// occurrence decides the shell (name, type, initial properties) and every
// occurrence appends a provenance record. The result is independent of
// anything but the input, so merging the same input twice yields the same
// nodes and edges.
//
// Only graphs that violate the documented node/edge shape produce an error.
func (m *Merger) Merge(files []core.FileLineages) (*core.MergeResult, error) {
	if len(files) == 0 {
		return core.EmptyMergeResult(), nil
	}

	arena := core.NewProvenanceArena()
	f := &fold{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[core.EdgeKey]int),
	}
	stats := core.MergeStats{Files: make([]core.FileStat, 0, len(files))}

	for _, file := range files {
		fs := core.FileStat{
			FileID:       file.File.FileID,
			Filename:     file.File.Filename,
			Dialect:      file.File.Dialect,
			LineageCount: len(file.Lineages),
		}

		for _, lineage := range file.Lineages {
			if err := core.ValidateGraph(lineage.Graph); err != nil {
				return nil, fmt.Errorf("file %s lineage %s: %w", file.File.FileID, lineage.LineageID, err)
			}

			src := arena.Intern(core.Provenance{
				FileID:    file.File.FileID,
				Filename:  file.File.Filename,
				LineageID: lineage.LineageID,
			})
			for _, n := range lineage.Graph.Nodes {
				f.addNode(n, src)
			}
			for _, e := range lineage.Graph.Edges {
				f.addEdge(e, src)
			}

			fs.NodeCount += len(lineage.Graph.Nodes)
			fs.EdgeCount += len(lineage.Graph.Edges)
			stats.LineageCount++
		}

		stats.Files = append(stats.Files, fs)
	}

	stats.ExternalTableCount = m.tagExternalTables(f.nodes, f.edges)
	stats.DanglingEdgeCount = countDangling(f.nodeIndex, f.edges)

	derived := DeriveFileDependencies(f.nodes, f.edges, m.isTable)

	stats.NodeCount = len(f.nodes)
	stats.EdgeCount = len(f.edges)
	stats.FileCount = len(files)
	stats.DerivedEdgeCount = len(derived)

	return &core.MergeResult{
		Nodes:               f.nodes,
		Edges:               f.edges,
		FileDependencyEdges: derived,
		Provenance:          arena.Records(),
		Stats:               stats,
	}, nil
}

type fold struct {
	nodes     []core.Node
	nodeIndex map[string]int
	edges     []core.Edge
	edgeIndex map[core.EdgeKey]int
}

func (f *fold) addNode(n core.Node, src core.SourceID) {
	i, ok := f.nodeIndex[n.ID]
	if !ok {
		f.nodeIndex[n.ID] = len(f.nodes)
		f.nodes = append(f.nodes, core.Node{
			ID:         n.ID,
			Name:       n.Name,
			Type:       n.Type,
			Properties: core.CloneProperties(n.Properties),
			Sources:    []core.SourceID{src},
		})
		return
	}

	shell := &f.nodes[i]
	shell.Properties = fillMissing(shell.Properties, n.Properties)
	shell.Sources = append(shell.Sources, src)
}

func (f *fold) addEdge(e core.Edge, src core.SourceID) {
	key := e.Key()
	i, ok := f.edgeIndex[key]
	if !ok {
		f.edgeIndex[key] = len(f.edges)
		f.edges = append(f.edges, core.Edge{
			Source:       e.Source,
			Target:       e.Target,
			Relationship: e.Relationship,
			Properties:   core.CloneProperties(e.Properties),
			Sources:      []core.SourceID{src},
		})
		return
	}

	shell := &f.edges[i]
	shell.Properties = fillMissing(shell.Properties, e.Properties)
	shell.Sources = append(shell.Sources, src)
}

// fillMissing copies keys from extra that dst does not have yet.
func fillMissing(dst, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return dst
	}
	extra = core.CloneProperties(extra)
	if dst == nil {
		return extra
	}
	for k, v := range extra {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

// tagExternalTables marks every table-like node that no CREATES edge targets.
// It returns the number of such tables.
func (m *Merger) tagExternalTables(nodes []core.Node, edges []core.Edge) int {
	created := make(map[string]bool)
	for _, e := range edges {
		if semantics.IsCreate(e.Relationship) {
			created[e.Target] = true
		}
	}

	count := 0
	for i := range nodes {
		n := &nodes[i]
		if !m.isTable(*n) || created[n.ID] {
			continue
		}
		MarkExternal(n)
		count++
	}
	return count
}

// MarkExternal sets external_creation=true on n and adds the
// external_creation tag once.
func MarkExternal(n *core.Node) {
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	n.Properties[core.PropExternalCreation] = true

	tags := n.Tags()
	if !slices.Contains(tags, core.TagExternalCreation) {
		tags = append(tags, core.TagExternalCreation)
	}
	n.Properties[core.PropTags] = tags
}

// DeriveFileDependencies emits one DEPENDS_ON_FILE edge per
// (creator, reader, table) with creator != reader. Edges are ordered by
// table, creator, then reader.
func DeriveFileDependencies(nodes []core.Node, edges []core.Edge, isTable semantics.NodePredicate) []core.Edge {
	pairs := semantics.BuildTableMaps(nodes, edges, isTable).DependencyPairs()

	derived := make([]core.Edge, 0, len(pairs))
	for _, p := range pairs {
		derived = append(derived, core.Edge{
			Source:       p.Creator,
			Target:       p.Reader,
			Relationship: core.RelDependsOnFile,
			Properties:   map[string]any{"via_table": p.Table},
			ViaTable:     p.Table,
		})
	}
	return derived
}

func countDangling(index map[string]int, edges []core.Edge) int {
	n := 0
	for _, e := range edges {
		_, okS := index[e.Source]
		_, okT := index[e.Target]
		if !okS || !okT {
			n++
		}
	}
	return n
}
