package testutil

import (
	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// IsTable is a table predicate for tests: any non-FILE node is table-like.
func IsTable(n core.Node) bool {
	return n.Type != core.NodeTypeFile && n.Type != ""
}

// FileNode returns a FILE node whose name equals its ID.
func FileNode(id string) core.Node {
	return core.Node{ID: id, Name: id, Type: core.NodeTypeFile}
}

// TableNode returns a TABLE_OR_VIEW node whose name equals its ID.
func TableNode(id string) core.Node {
	return core.Node{ID: id, Name: id, Type: core.NodeTypeTableOrView}
}

// LineageBuilder assembles the lineage of a single file.
type LineageBuilder struct {
	fileID string
	nodes  []core.Node
	edges  []core.Edge
	seen   map[string]bool
}

// NewLineage starts a lineage for fileID. The FILE node is added first.
func NewLineage(fileID string) *LineageBuilder {
	b := &LineageBuilder{fileID: fileID, seen: make(map[string]bool)}
	b.addNode(FileNode(fileID))
	return b
}

func (b *LineageBuilder) addNode(n core.Node) {
	if b.seen[n.ID] {
		return
	}
	b.seen[n.ID] = true
	b.nodes = append(b.nodes, n)
}

// Edge adds an edge from the file to table with the given relationship.
func (b *LineageBuilder) Edge(rel core.Relationship, table string) *LineageBuilder {
	b.addNode(TableNode(table))
	b.edges = append(b.edges, core.Edge{Source: b.fileID, Target: table, Relationship: rel})
	return b
}

// Creates adds a CREATES edge.
func (b *LineageBuilder) Creates(table string) *LineageBuilder {
	return b.Edge(core.RelCreates, table)
}

// Reads adds a READS_FROM edge.
func (b *LineageBuilder) Reads(table string) *LineageBuilder {
	return b.Edge(core.RelReadsFrom, table)
}

// Writes adds a WRITES_TO edge.
func (b *LineageBuilder) Writes(table string) *LineageBuilder {
	return b.Edge(core.RelWritesTo, table)
}

// Graph returns the lineage graph built so far.
func (b *LineageBuilder) Graph() core.LineageGraph {
	return core.LineageGraph{
		Nodes: append([]core.Node(nil), b.nodes...),
		Edges: append([]core.Edge(nil), b.edges...),
	}
}

// Document returns the lineage as an importable document.
func (b *LineageBuilder) Document() core.LineageDocument {
	g := b.Graph()
	return core.LineageDocument{
		FileID:   b.fileID,
		Filename: b.fileID + ".sql",
		Nodes:    g.Nodes,
		Edges:    g.Edges,
	}
}

// FileLineages wraps the lineage as a single-snapshot merge input.
func (b *LineageBuilder) FileLineages() core.FileLineages {
	lineageID := b.fileID + "-lineage"
	return core.FileLineages{
		File: core.FileDescriptor{
			FileID:   b.fileID,
			Filename: b.fileID + ".sql",
			Lineages: []core.LineageRef{{LineageID: lineageID}},
		},
		Lineages: []core.LineageSnapshot{{LineageID: lineageID, Graph: b.Graph()}},
	}
}

// UnionGraph combines lineages into one graph, keeping the first occurrence
// of each node ID and edge key.
func UnionGraph(builders ...*LineageBuilder) core.Graph {
	var g core.Graph
	seenNodes := make(map[string]bool)
	seenEdges := make(map[core.EdgeKey]bool)
	for _, b := range builders {
		for _, n := range b.nodes {
			if !seenNodes[n.ID] {
				seenNodes[n.ID] = true
				g.Nodes = append(g.Nodes, n)
			}
		}
		for _, e := range b.edges {
			if !seenEdges[e.Key()] {
				seenEdges[e.Key()] = true
				g.Edges = append(g.Edges, e)
			}
		}
	}
	return g
}
