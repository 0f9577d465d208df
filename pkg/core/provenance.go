package core

// SourceID indexes a Provenance record in a ProvenanceArena.
type SourceID int

// Provenance records which file and lineage contributed a node or edge.
type Provenance struct {
	FileID    string `json:"file_id"`
	Filename  string `json:"filename"`
	LineageID string `json:"lineage_id"`
}

// ProvenanceArena interns provenance records so nodes and edges reference
// them by index instead of repeating file names across lineages.
type ProvenanceArena struct {
	records []Provenance
	index   map[Provenance]SourceID
}

// NewProvenanceArena creates an empty arena.
func NewProvenanceArena() *ProvenanceArena {
	return &ProvenanceArena{index: make(map[Provenance]SourceID)}
}

// Intern returns the ID of p, adding it on first sight.
func (a *ProvenanceArena) Intern(p Provenance) SourceID {
	if id, ok := a.index[p]; ok {
		return id
	}
	id := SourceID(len(a.records))
	a.records = append(a.records, p)
	a.index[p] = id
	return id
}

// Len returns the number of interned records.
func (a *ProvenanceArena) Len() int {
	return len(a.records)
}

// Records returns a copy of the interned records in insertion order.
func (a *ProvenanceArena) Records() []Provenance {
	return append([]Provenance(nil), a.records...)
}

// Resolve expands source IDs against a records slice. Out of range IDs are
// skipped.
func Resolve(records []Provenance, ids []SourceID) []Provenance {
	out := make([]Provenance, 0, len(ids))
	for _, id := range ids {
		if int(id) < 0 || int(id) >= len(records) {
			continue
		}
		out = append(out, records[id])
	}
	return out
}
