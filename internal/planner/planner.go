// Package planner computes a migration plan from a merged lineage graph.
//
// Files that touch a common table form a migration group. Inside a group the
// files are layered into waves so that every creator of a table migrates
// before its readers. Cycles never fail planning: a cyclic group collapses
// into a single wave flagged for manual review.
package planner

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapmigrate/internal/dag"
	"github.com/leapstack-labs/leapmigrate/internal/predicate"
	"github.com/leapstack-labs/leapmigrate/internal/semantics"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// Config holds planning policy.
type Config struct {
	// NamingMaxTables is the largest table count for which a group is named
	// after its tables.
	NamingMaxTables int
	// PrefixShareThreshold is the share of table names a common prefix must
	// exceed to name the group "{prefix}_group".
	PrefixShareThreshold float64
	// CycleSampleSize bounds the cycles reported in CycleInfo.Sample.
	// Zero or less uses the default.
	CycleSampleSize int
	// MaxCycles bounds cycle enumeration.
	MaxCycles int
}

// DefaultConfig returns the default planning policy.
func DefaultConfig() Config {
	return Config{
		NamingMaxTables:      3,
		PrefixShareThreshold: 0.5,
		CycleSampleSize:      10,
		MaxCycles:            1000,
	}
}

// Planner builds migration plans. It is stateless and safe for concurrent
// use.
type Planner struct {
	cfg     Config
	isTable semantics.NodePredicate
	logger  *slog.Logger
}

// New creates a planner. A nil isTable selects predicate.Default and a nil
// logger discards output.
func New(cfg Config, isTable semantics.NodePredicate, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if isTable == nil {
		isTable = predicate.Default()
	}
	def := DefaultConfig()
	if cfg.NamingMaxTables <= 0 {
		cfg.NamingMaxTables = def.NamingMaxTables
	}
	if cfg.PrefixShareThreshold <= 0 {
		cfg.PrefixShareThreshold = def.PrefixShareThreshold
	}
	if cfg.CycleSampleSize <= 0 {
		cfg.CycleSampleSize = def.CycleSampleSize
	}
	if cfg.MaxCycles <= 0 {
		cfg.MaxCycles = def.MaxCycles
	}
	return &Planner{cfg: cfg, isTable: isTable, logger: logger}
}

// analysis is the per-call view of the graph shared by the planning steps.
type analysis struct {
	nodes  map[string]core.Node
	files  []string // FILE node IDs in first-seen order
	tables *semantics.TableMaps
	deps   *dag.Graph // creator -> reader, one edge per ordered pair

	preExistingReads map[string][]string // file -> pre-existing tables it reads
}

// Plan computes the migration plan for g. Only derived-free base edges are
// expected; DEPENDS_ON_FILE edges are ignored. Malformed input is the only
// error.
func (p *Planner) Plan(g core.Graph) (*core.MigrationPlan, error) {
	if err := core.ValidateGraph(g); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	a := p.analyze(g)
	plan := core.EmptyMigrationPlan()
	plan.TotalNodes = len(a.files)

	plan.CycleInfo = p.cycleInfo(a)
	plan.HasCycles = plan.CycleInfo.Count > 0

	members := groupMembers(a)
	groups := make([]core.MigrationGroup, len(members))
	for i, m := range members {
		groups[i] = p.buildGroup(a, m)
	}

	order, err := groupOrder(a, members)
	if err != nil {
		p.logger.Warn("group ordering failed, keeping input order", "error", err)
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("group ordering fell back to input order: %v", err))
	}
	for n, i := range order {
		g := groups[i]
		g.Name = p.groupName(g.Tables, n+1)
		plan.Groups = append(plan.Groups, g)
	}
	plan.TotalGroups = len(plan.Groups)

	plan.PreExistingTables = preExistingTables(a)
	plan.TableDependencies = tableDependencies(a)

	if plan.CycleInfo.Truncated {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("cycle enumeration stopped after %d cycles", plan.CycleInfo.Count))
	}

	p.logger.Debug("migration plan computed",
		"files", plan.TotalNodes,
		"groups", plan.TotalGroups,
		"cycles", plan.CycleInfo.Count,
		"pre_existing_tables", len(plan.PreExistingTables))

	return plan, nil
}

func (p *Planner) analyze(g core.Graph) *analysis {
	a := &analysis{
		nodes:            semantics.IndexNodes(g.Nodes),
		tables:           semantics.BuildTableMaps(g.Nodes, g.Edges, p.isTable),
		deps:             dag.NewGraph(),
		preExistingReads: make(map[string][]string),
	}

	seen := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.IsFile() && !seen[n.ID] {
			seen[n.ID] = true
			a.files = append(a.files, n.ID)
			a.deps.AddNode(n.ID, nil)
		}
	}

	for _, pair := range a.tables.DependencyPairs() {
		// pairs never link a file to itself, so AddEdge cannot fail
		_ = a.deps.AddEdge(pair.Creator, pair.Reader)
	}

	for _, t := range a.tables.Tables {
		if !a.tables.IsPreExisting(t) {
			continue
		}
		for _, f := range a.tables.Readers[t].Sorted() {
			a.preExistingReads[f] = append(a.preExistingReads[f], t)
		}
	}

	return a
}

func (p *Planner) cycleInfo(a *analysis) core.CycleInfo {
	cycles, truncated := a.deps.SimpleCycles(p.cfg.MaxCycles)

	info := core.CycleInfo{
		Count:     len(cycles),
		Truncated: truncated,
		Sample:    [][]string{},
	}
	for i, c := range cycles {
		if i >= p.cfg.CycleSampleSize {
			break
		}
		info.Sample = append(info.Sample, a.names(c))
	}
	if truncated {
		p.logger.Warn("cycle enumeration truncated", "limit", p.cfg.MaxCycles)
	}
	return info
}

// groupMembers returns the connected components of the shared-table graph.
// Files that reference no table belong to no group.
func groupMembers(a *analysis) [][]string {
	shared := dag.NewGraph()
	referencing := make(map[string]bool)
	for _, t := range a.tables.Tables {
		for id := range a.tables.FilesReferencing(t) {
			referencing[id] = true
		}
	}
	for _, f := range a.files {
		if referencing[f] {
			shared.AddNode(f, nil)
		}
	}

	for _, t := range a.tables.Tables {
		users := a.tables.FilesReferencing(t).Sorted()
		for _, other := range users[min(1, len(users)):] {
			_ = shared.AddEdge(users[0], other)
		}
	}

	return shared.ConnectedComponents()
}

func (p *Planner) buildGroup(a *analysis, members []string) core.MigrationGroup {
	sub := a.deps.Subgraph(members)

	inGroup := make(map[string]bool, len(members))
	for _, f := range members {
		inGroup[f] = true
	}
	var tableIDs []string
	for _, t := range a.tables.Tables {
		for f := range a.tables.FilesReferencing(t) {
			if inGroup[f] {
				tableIDs = append(tableIDs, t)
				break
			}
		}
	}
	tables := a.sortedNames(tableIDs)

	group := core.MigrationGroup{
		FileCount:  len(members),
		TableCount: len(tables),
		Tables:     tables,
	}

	layers, err := sub.Layers()
	if err != nil {
		p.logger.Warn("cyclic migration group, using a single wave",
			"files", len(members),
			"error", err)
		group.HasCycle = true

		ids := append([]string(nil), members...)
		sort.Strings(ids)
		wave := core.Wave{Number: 1}
		for _, id := range ids {
			wf := a.waveFile(sub, id)
			wf.Rationale = core.CircularDependencyRationale
			wave.Files = append(wave.Files, wf)
		}
		group.Waves = []core.Wave{wave}
		return group
	}

	for i, layer := range layers {
		wave := core.Wave{Number: i + 1}
		for _, id := range layer {
			wf := a.waveFile(sub, id)
			wf.Rationale = rationale(wf.UpstreamCount, len(wf.PreExistingTables))
			wave.Files = append(wave.Files, wf)
		}
		group.Waves = append(group.Waves, wave)
	}
	return group
}

func (a *analysis) waveFile(sub *dag.Graph, id string) core.WaveFile {
	upstream := a.sortedNames(sub.GetParents(id))
	downstream := a.sortedNames(sub.GetChildren(id))
	pre := a.sortedNames(a.preExistingReads[id])

	return core.WaveFile{
		ID:                id,
		Name:              a.name(id),
		Upstream:          upstream,
		Downstream:        downstream,
		UpstreamCount:     len(upstream),
		DownstreamCount:   len(downstream),
		PreExistingTables: pre,
	}
}

func rationale(upstream, preExisting int) string {
	switch {
	case upstream == 0 && preExisting == 0:
		return "No dependencies"
	case upstream == 0:
		return fmt.Sprintf("No file dependencies; reads %d pre-existing table(s)", preExisting)
	case preExisting > 0:
		return fmt.Sprintf("Depends on %d upstream file(s) and reads %d pre-existing table(s)", upstream, preExisting)
	default:
		return fmt.Sprintf("Depends on %d upstream file(s)", upstream)
	}
}

// groupOrder orders groups so that a group holding a creator precedes any
// group holding one of its readers. On a cycle between groups the input
// order is returned together with the error.
func groupOrder(a *analysis, members [][]string) ([]int, error) {
	inputOrder := make([]int, len(members))
	for i := range inputOrder {
		inputOrder[i] = i
	}

	groupOf := make(map[string]int)
	for i, m := range members {
		for _, f := range m {
			groupOf[f] = i
		}
	}

	gg := dag.NewGraph()
	for i := range members {
		gg.AddNode(groupID(i), i)
	}
	for _, creator := range a.files {
		from, ok := groupOf[creator]
		if !ok {
			continue
		}
		for _, reader := range a.deps.GetChildren(creator) {
			to, ok := groupOf[reader]
			if !ok || to == from {
				continue
			}
			_ = gg.AddEdge(groupID(from), groupID(to))
		}
	}

	sorted, err := gg.TopologicalSort()
	if err != nil {
		return inputOrder, err
	}

	order := make([]int, 0, len(sorted))
	for _, n := range sorted {
		order = append(order, n.Data.(int))
	}
	return order, nil
}

func groupID(i int) string {
	return fmt.Sprintf("%08d", i)
}

func preExistingTables(a *analysis) []core.PreExistingTable {
	out := []core.PreExistingTable{}
	for _, t := range a.tables.Tables {
		if !a.tables.IsPreExisting(t) {
			continue
		}
		n := a.nodes[t]
		out = append(out, core.PreExistingTable{
			ID:                t,
			Name:              n.DisplayName(),
			Type:              n.Type,
			ReferenceCount:    a.tables.Usage[t].Total(),
			ReferencedByFiles: a.sortedNames(a.tables.FilesReferencing(t).Sorted()),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ReferenceCount != out[j].ReferenceCount {
			return out[i].ReferenceCount > out[j].ReferenceCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func tableDependencies(a *analysis) []core.TableDependency {
	out := make([]core.TableDependency, 0, len(a.tables.Tables))
	for _, t := range a.tables.Tables {
		out = append(out, core.TableDependency{
			ID:          t,
			Name:        a.name(t),
			Creators:    a.sortedNames(a.tables.Creators[t].Sorted()),
			Readers:     a.sortedNames(a.tables.Readers[t].Sorted()),
			Writers:     a.sortedNames(a.tables.Writers[t].Sorted()),
			Usage:       a.tables.Usage[t],
			PreExisting: a.tables.IsPreExisting(t),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func (a *analysis) name(id string) string {
	if n, ok := a.nodes[id]; ok {
		return n.DisplayName()
	}
	return id
}

func (a *analysis) names(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = a.name(id)
	}
	return out
}

func (a *analysis) sortedNames(ids []string) []string {
	out := a.names(ids)
	sort.Strings(out)
	return out
}
