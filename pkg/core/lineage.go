package core

import "encoding/json"

// NodeType identifies the kind of a lineage node.
type NodeType string

// Node types recognized by the core. Other table-like types are accepted
// through a table predicate supplied by the caller.
const (
	NodeTypeFile            NodeType = "FILE"
	NodeTypeTableOrView     NodeType = "TABLE_OR_VIEW"
	NodeTypeGlobalTempTable NodeType = "GLOBAL_TEMP_TABLE"
)

// Relationship is the tag carried by a lineage edge.
//
// For every file-to-table relationship the FILE is the edge source and the
// TABLE is the edge target.
type Relationship string

// Relationship tags.
const (
	RelReadsFrom     Relationship = "READS_FROM"
	RelReads         Relationship = "READS"
	RelWritesTo      Relationship = "WRITES_TO"
	RelWrites        Relationship = "WRITES"
	RelCreates       Relationship = "CREATES"
	RelCreatesIndex  Relationship = "CREATES_INDEX"
	RelDeletesFrom   Relationship = "DELETES_FROM"
	RelDrops         Relationship = "DROPS"
	RelDependsOn     Relationship = "DEPENDS_ON"
	RelDependsOnFile Relationship = "DEPENDS_ON_FILE"
)

// Well-known property keys and tags.
const (
	PropExternalCreation = "external_creation"
	PropTags             = "tags"
	TagExternalCreation  = "external_creation"
)

// Node is a vertex of a lineage graph.
type Node struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	Type       NodeType       `json:"type" yaml:"type"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`

	// Sources indexes into the provenance arena of the merge result that owns
	// this node. It is empty for nodes that have not been merged.
	Sources []SourceID `json:"sources,omitempty" yaml:"-"`
}

// UnmarshalJSON decodes a node and normalizes a JSON tags array to
// []string, matching the shape the merger produces.
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if raw, ok := v.Properties[PropTags].([]any); ok {
		v.Properties[PropTags] = tagsOf(map[string]any{PropTags: raw})
	}
	*n = Node(v)
	return nil
}

// IsFile reports whether the node is a FILE node.
func (n Node) IsFile() bool {
	return n.Type == NodeTypeFile
}

// DisplayName returns the node name, falling back to its ID.
func (n Node) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Tags returns the node's tags property as a string slice.
// Tags decoded from JSON arrive as []any and are normalized here.
func (n Node) Tags() []string {
	return tagsOf(n.Properties)
}

// Edge is a typed, directed relationship between two nodes.
type Edge struct {
	Source       string         `json:"source" yaml:"source"`
	Target       string         `json:"target" yaml:"target"`
	Relationship Relationship   `json:"relationship" yaml:"relationship"`
	Properties   map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`

	// ViaTable is set only on derived DEPENDS_ON_FILE edges and names the
	// table that links the creator file to the reader file.
	ViaTable string `json:"via_table,omitempty" yaml:"via_table,omitempty"`

	Sources []SourceID `json:"sources,omitempty" yaml:"-"`
}

// EdgeKey is the identity of a base edge.
type EdgeKey struct {
	Source       string
	Target       string
	Relationship Relationship
}

// Key returns the identity key of the edge.
func (e Edge) Key() EdgeKey {
	return EdgeKey{Source: e.Source, Target: e.Target, Relationship: e.Relationship}
}

// LineageGraph is the node/edge set produced for one lineage of one file.
type LineageGraph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Graph is a node/edge set consumed by the planner.
type Graph = LineageGraph

// LineageRef points at one stored lineage of a file.
type LineageRef struct {
	LineageID string `json:"lineage_id" yaml:"lineage_id"`
}

// FileDescriptor describes an uploaded file and the lineages computed for it.
type FileDescriptor struct {
	FileID   string       `json:"file_id" yaml:"file_id"`
	Filename string       `json:"filename" yaml:"filename"`
	Dialect  string       `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	Lineages []LineageRef `json:"lineages" yaml:"lineages"`
}

// LineageSnapshot is one fetched lineage graph.
type LineageSnapshot struct {
	LineageID string
	Graph     LineageGraph
}

// FileLineages is a file descriptor together with its fetched lineage graphs.
// It is the unit folded by the merger.
type FileLineages struct {
	File     FileDescriptor
	Lineages []LineageSnapshot
}

// LineageDocument is the on-disk form of a single file's lineage, used when
// importing lineage produced by an external parser.
type LineageDocument struct {
	FileID   string `json:"file_id" yaml:"file_id"`
	Filename string `json:"filename" yaml:"filename"`
	Dialect  string `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	Nodes    []Node `json:"nodes" yaml:"nodes"`
	Edges    []Edge `json:"edges" yaml:"edges"`
}

// Graph returns the document's node/edge set.
func (d LineageDocument) Graph() LineageGraph {
	return LineageGraph{Nodes: d.Nodes, Edges: d.Edges}
}

func tagsOf(props map[string]any) []string {
	raw, ok := props[PropTags]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// CloneProperties returns a shallow copy of a property map with any tags
// slice copied as well, so the result can be mutated independently.
func CloneProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	if _, ok := out[PropTags]; ok {
		out[PropTags] = tagsOf(props)
	}
	return out
}
