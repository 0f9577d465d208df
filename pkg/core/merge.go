package core

// FileStat is per-file metadata reported by a merge.
type FileStat struct {
	FileID       string `json:"file_id"`
	Filename     string `json:"filename"`
	Dialect      string `json:"dialect,omitempty"`
	LineageCount int    `json:"lineage_count"`
	NodeCount    int    `json:"node_count"`
	EdgeCount    int    `json:"edge_count"`
}

// MergeStats summarizes a merge.
type MergeStats struct {
	NodeCount          int        `json:"node_count"`
	EdgeCount          int        `json:"edge_count"`
	FileCount          int        `json:"file_count"`
	LineageCount       int        `json:"lineage_count"`
	DerivedEdgeCount   int        `json:"derived_edge_count"`
	ExternalTableCount int        `json:"external_table_count"`
	DanglingEdgeCount  int        `json:"dangling_edge_count"`
	SkippedLineages    int        `json:"skipped_lineages"`
	Files              []FileStat `json:"files"`
}

// MergeResult is the full output of merging many per-file lineage graphs.
// Base edges and derived file dependency edges are kept separate.
type MergeResult struct {
	Nodes               []Node       `json:"nodes"`
	Edges               []Edge       `json:"edges"`
	FileDependencyEdges []Edge       `json:"file_dependency_edges"`
	Provenance          []Provenance `json:"provenance"`
	Stats               MergeStats   `json:"stats"`
}

// SourcesOf resolves a node's or edge's provenance against this result.
func (r *MergeResult) SourcesOf(ids []SourceID) []Provenance {
	return Resolve(r.Provenance, ids)
}

// MergeResponse is the cached form of a merge: the full result plus timing.
type MergeResponse struct {
	MergeResult
	ComputeTimeMS int64 `json:"compute_time_ms"`
	Cached        bool  `json:"cached"`
}

// FilteredResponse is a merge response with derived edges folded into Edges
// or dropped, depending on the caller's request.
type FilteredResponse struct {
	Nodes         []Node       `json:"nodes"`
	Edges         []Edge       `json:"edges"`
	Provenance    []Provenance `json:"provenance"`
	Stats         MergeStats   `json:"stats"`
	ComputeTimeMS int64        `json:"compute_time_ms"`
	Cached        bool         `json:"cached"`
}

// EmptyMergeResult returns the explicit result shape for an empty file list.
func EmptyMergeResult() *MergeResult {
	return &MergeResult{
		Nodes:               []Node{},
		Edges:               []Edge{},
		FileDependencyEdges: []Edge{},
		Provenance:          []Provenance{},
		Stats:               MergeStats{Files: []FileStat{}},
	}
}
