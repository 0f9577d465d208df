package core

// CircularDependencyRationale is attached to every file of a group whose
// waves could not be layered because of a dependency cycle.
const CircularDependencyRationale = "Circular dependencies detected - manual review required."

// WaveFile is one file scheduled in a migration wave.
type WaveFile struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Upstream          []string `json:"upstream"`
	Downstream        []string `json:"downstream"`
	UpstreamCount     int      `json:"upstream_count"`
	DownstreamCount   int      `json:"downstream_count"`
	PreExistingTables []string `json:"pre_existing_tables"`
	Rationale         string   `json:"rationale"`
}

// Wave is a set of files with every in-group predecessor in an earlier wave.
type Wave struct {
	Number int        `json:"wave"`
	Files  []WaveFile `json:"files"`
}

// MigrationGroup is a connected set of files that share tables.
type MigrationGroup struct {
	Name       string   `json:"name"`
	FileCount  int      `json:"file_count"`
	TableCount int      `json:"table_count"`
	HasCycle   bool     `json:"has_cycle"`
	Waves      []Wave   `json:"waves"`
	Tables     []string `json:"tables"`
}

// PreExistingTable is a table referenced by files but created by none.
type PreExistingTable struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Type              NodeType `json:"type"`
	ReferenceCount    int      `json:"reference_count"`
	ReferencedByFiles []string `json:"referenced_by_files"`
}

// TableUsage counts file edges into one table by category.
type TableUsage struct {
	Reads   int `json:"reads"`
	Writes  int `json:"writes"`
	Deletes int `json:"deletes"`
	Drops   int `json:"drops"`
}

// Total returns the number of referencing edges.
func (u TableUsage) Total() int {
	return u.Reads + u.Writes + u.Deletes + u.Drops
}

// TableDependency summarizes how files use one table.
type TableDependency struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Creators    []string   `json:"creators"`
	Readers     []string   `json:"readers"`
	Writers     []string   `json:"writers"`
	Usage       TableUsage `json:"usage"`
	PreExisting bool       `json:"pre_existing"`
}

// CycleInfo describes dependency cycles found among files.
type CycleInfo struct {
	Count     int        `json:"count"`
	Truncated bool       `json:"truncated"`
	Sample    [][]string `json:"sample"`
}

// MigrationPlan is the ordered migration schedule for a merged graph.
type MigrationPlan struct {
	Groups            []MigrationGroup   `json:"groups"`
	TotalNodes        int                `json:"total_nodes"`
	TotalGroups       int                `json:"total_groups"`
	HasCycles         bool               `json:"has_cycles"`
	CycleInfo         CycleInfo          `json:"cycle_info"`
	PreExistingTables []PreExistingTable `json:"pre_existing_tables"`
	TableDependencies []TableDependency  `json:"table_dependencies"`
	Warnings          []string           `json:"warnings,omitempty"`
}

// EmptyMigrationPlan returns the explicit plan shape for an empty graph.
func EmptyMigrationPlan() *MigrationPlan {
	return &MigrationPlan{
		Groups:            []MigrationGroup{},
		CycleInfo:         CycleInfo{Sample: [][]string{}},
		PreExistingTables: []PreExistingTable{},
		TableDependencies: []TableDependency{},
	}
}
