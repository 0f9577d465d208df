package planner

import (
	"log/slog"
	"testing"

	"github.com/leapstack-labs/leapmigrate/internal/dag"
	"github.com/leapstack-labs/leapmigrate/internal/testutil"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plan(t *testing.T, builders ...*testutil.LineageBuilder) *core.MigrationPlan {
	t.Helper()
	p := New(DefaultConfig(), testutil.IsTable, testutil.NewTestLogger(t))
	result, err := p.Plan(testutil.UnionGraph(builders...))
	require.NoError(t, err)
	return result
}

func waveIDs(g core.MigrationGroup) [][]string {
	out := make([][]string, 0, len(g.Waves))
	for _, w := range g.Waves {
		var ids []string
		for _, f := range w.Files {
			ids = append(ids, f.ID)
		}
		out = append(out, ids)
	}
	return out
}

func TestPlan_CreatorBeforeReader(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("FileA").Creates("TableX"),
		testutil.NewLineage("FileB").Reads("TableX"),
	)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, [][]string{{"FileA"}, {"FileB"}}, waveIDs(g))
	assert.Equal(t, 1, g.Waves[0].Number)
	assert.Equal(t, 2, g.Waves[1].Number)

	b := g.Waves[1].Files[0]
	assert.Equal(t, 1, b.UpstreamCount)
	assert.Equal(t, []string{"FileA"}, b.Upstream)
	assert.Equal(t, "Depends on 1 upstream file(s)", b.Rationale)

	a := g.Waves[0].Files[0]
	assert.Equal(t, []string{"FileB"}, a.Downstream)
	assert.Equal(t, "No dependencies", a.Rationale)

	assert.Empty(t, result.PreExistingTables)
	assert.False(t, result.HasCycles)
	assert.Equal(t, 2, result.TotalNodes)
	assert.Equal(t, 1, result.TotalGroups)
	assert.Equal(t, "TableX", g.Name)
}

func TestPlan_PreExistingTable(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("FileC").Reads("TableY"),
	)

	require.Len(t, result.PreExistingTables, 1)
	pe := result.PreExistingTables[0]
	assert.Equal(t, "TableY", pe.ID)
	assert.Equal(t, []string{"FileC"}, pe.ReferencedByFiles)
	assert.Equal(t, 1, pe.ReferenceCount)

	require.Len(t, result.Groups, 1)
	c := result.Groups[0].Waves[0].Files[0]
	assert.Equal(t, []string{"TableY"}, c.PreExistingTables)
	assert.Equal(t, "No file dependencies; reads 1 pre-existing table(s)", c.Rationale)
}

func TestPlan_MultipleCreators(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("FileD").Creates("TableZ"),
		testutil.NewLineage("FileE").Creates("TableZ"),
		testutil.NewLineage("FileF").Reads("TableZ"),
	)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.Equal(t, 3, g.FileCount)
	assert.Equal(t, [][]string{{"FileD", "FileE"}, {"FileF"}}, waveIDs(g))
	assert.Equal(t, 2, g.Waves[1].Files[0].UpstreamCount)
}

func TestPlan_CycleCollapsesToOneWave(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("FileG").Creates("tg").Reads("th"),
		testutil.NewLineage("FileH").Creates("th").Reads("tg"),
	)

	assert.True(t, result.HasCycles)
	assert.Equal(t, 1, result.CycleInfo.Count)
	assert.Equal(t, [][]string{{"FileG", "FileH"}}, result.CycleInfo.Sample)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	assert.True(t, g.HasCycle)
	require.Len(t, g.Waves, 1)
	assert.ElementsMatch(t, []string{"FileG", "FileH"}, waveIDs(g)[0])
	for _, f := range g.Waves[0].Files {
		assert.Equal(t, core.CircularDependencyRationale, f.Rationale)
	}
}

func TestPlan_CyclicWaveSortedByID(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("z").Creates("t1").Reads("t3"),
		testutil.NewLineage("m").Creates("t2").Reads("t1"),
		testutil.NewLineage("a").Creates("t3").Reads("t2"),
	)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	require.True(t, g.HasCycle)
	assert.Equal(t, [][]string{{"a", "m", "z"}}, waveIDs(g))
}

func TestNew_ZeroConfigUsesDefaults(t *testing.T) {
	p := New(Config{}, testutil.IsTable, nil)
	assert.Equal(t, DefaultConfig(), p.cfg)

	result, err := p.Plan(testutil.UnionGraph(
		testutil.NewLineage("FileG").Creates("tg").Reads("th"),
		testutil.NewLineage("FileH").Creates("th").Reads("tg"),
	))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"FileG", "FileH"}}, result.CycleInfo.Sample)
}

func TestPlan_CyclicGroupIsLogged(t *testing.T) {
	logger, rec := testutil.NewRecordingLogger(slog.LevelWarn)
	p := New(DefaultConfig(), testutil.IsTable, logger)

	_, err := p.Plan(testutil.UnionGraph(
		testutil.NewLineage("FileG").Creates("tg").Reads("th"),
		testutil.NewLineage("FileH").Creates("th").Reads("tg"),
	))
	require.NoError(t, err)

	assert.True(t, rec.Contains("cyclic migration group", "files=2"), "got %v", rec.Lines())
	assert.False(t, rec.Contains("group ordering failed"))
}

func TestPlan_UpstreamAndPreExistingRationale(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("a").Creates("x"),
		testutil.NewLineage("b").Reads("x").Reads("raw"),
	)

	b := result.Groups[0].Waves[1].Files[0]
	assert.Equal(t, "Depends on 1 upstream file(s) and reads 1 pre-existing table(s)", b.Rationale)
}

func TestPlan_IsolatedFilesHaveNoGroup(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("lonely"),
		testutil.NewLineage("a").Creates("x"),
		testutil.NewLineage("b").Reads("y"),
	)

	assert.Equal(t, 3, result.TotalNodes)
	require.Len(t, result.Groups, 2)
	for _, g := range result.Groups {
		for _, ids := range waveIDs(g) {
			assert.NotContains(t, ids, "lonely")
		}
	}
}

func TestPlan_GroupsPartitionReferencingFiles(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("a").Creates("orders"),
		testutil.NewLineage("b").Reads("orders").Creates("summary"),
		testutil.NewLineage("c").Reads("summary"),
		testutil.NewLineage("d").Writes("audit"),
		testutil.NewLineage("e").Reads("audit"),
	)

	seen := make(map[string]int)
	for _, g := range result.Groups {
		for _, ids := range waveIDs(g) {
			for _, id := range ids {
				seen[id]++
			}
		}
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1}, seen)

	require.Len(t, result.Groups, 2)
	assert.Equal(t, [][]string{{"a"}, {"b"}, {"c"}}, waveIDs(result.Groups[0]))
	assert.Equal(t, [][]string{{"d", "e"}}, waveIDs(result.Groups[1]), "writers are not creators")
}

func TestPlan_WavesRespectPredecessors(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("load").Creates("raw"),
		testutil.NewLineage("stage1").Reads("raw").Creates("s1"),
		testutil.NewLineage("stage2").Reads("raw").Creates("s2"),
		testutil.NewLineage("mart").Reads("s1").Reads("s2").Creates("m"),
		testutil.NewLineage("report").Reads("m").Reads("raw"),
	)

	require.Len(t, result.Groups, 1)
	g := result.Groups[0]
	waveOf := make(map[string]int)
	for _, w := range g.Waves {
		for _, f := range w.Files {
			waveOf[f.Name] = w.Number
		}
	}
	for _, w := range g.Waves {
		for _, f := range w.Files {
			for _, up := range f.Upstream {
				assert.Less(t, waveOf[up], w.Number, "%s must come after %s", f.Name, up)
			}
		}
	}
	assert.Equal(t, 4, len(g.Waves))
}

func TestPlan_PreExistingInvariant(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("a").Creates("x").Reads("ext1"),
		testutil.NewLineage("b").Reads("x").Writes("ext2").Reads("ext1"),
		testutil.NewLineage("c").Edge(core.RelDrops, "ext3"),
	)

	var ids []string
	for _, pe := range result.PreExistingTables {
		ids = append(ids, pe.ID)
	}
	assert.Equal(t, []string{"ext1", "ext2", "ext3"}, ids, "sorted by reference count then name")
	assert.NotContains(t, ids, "x")
	assert.Equal(t, 2, result.PreExistingTables[0].ReferenceCount)
}

func TestPlan_TableDependencies(t *testing.T) {
	result := plan(t,
		testutil.NewLineage("a").Creates("x"),
		testutil.NewLineage("b").Reads("x").Writes("x"),
	)

	require.Len(t, result.TableDependencies, 1)
	td := result.TableDependencies[0]
	assert.Equal(t, []string{"a"}, td.Creators)
	assert.Equal(t, []string{"b"}, td.Readers)
	assert.Equal(t, []string{"a", "b"}, td.Writers)
	assert.Equal(t, core.TableUsage{Reads: 1, Writes: 2}, td.Usage)
	assert.False(t, td.PreExisting)
}

func TestPlan_IgnoresDerivedEdges(t *testing.T) {
	g := testutil.UnionGraph(
		testutil.NewLineage("a").Creates("x"),
		testutil.NewLineage("b").Reads("x"),
	)
	g.Edges = append(g.Edges, core.Edge{Source: "b", Target: "a", Relationship: core.RelDependsOnFile, ViaTable: "x"})

	result, err := New(DefaultConfig(), testutil.IsTable, nil).Plan(g)
	require.NoError(t, err)
	assert.False(t, result.HasCycles)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, waveIDs(result.Groups[0]))
}

func TestPlan_Empty(t *testing.T) {
	result, err := New(DefaultConfig(), nil, nil).Plan(core.Graph{})
	require.NoError(t, err)
	assert.Equal(t, core.EmptyMigrationPlan(), result)
}

func TestPlan_Malformed(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil).Plan(core.Graph{Nodes: []core.Node{{ID: "x"}}})
	assert.ErrorIs(t, err, core.ErrMalformedNode)
}

func TestPlan_CycleSampleBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CycleSampleSize = 1
	cfg.MaxCycles = 2

	g := testutil.UnionGraph(
		testutil.NewLineage("a").Creates("ta").Reads("tb").Reads("tc"),
		testutil.NewLineage("b").Creates("tb").Reads("ta").Reads("tc"),
		testutil.NewLineage("c").Creates("tc").Reads("ta").Reads("tb"),
	)
	result, err := New(cfg, testutil.IsTable, testutil.NewTestLogger(t)).Plan(g)
	require.NoError(t, err)

	assert.True(t, result.HasCycles)
	assert.Equal(t, 2, result.CycleInfo.Count)
	assert.True(t, result.CycleInfo.Truncated)
	assert.Len(t, result.CycleInfo.Sample, 1)
	assert.NotEmpty(t, result.Warnings)
}

func TestGroupOrder(t *testing.T) {
	a := &analysis{files: []string{"a", "b"}, deps: dag.NewGraph()}
	a.deps.AddNode("a", nil)
	a.deps.AddNode("b", nil)
	require.NoError(t, a.deps.AddEdge("a", "b"))

	order, err := groupOrder(a, [][]string{{"b"}, {"a"}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, order, "creator group goes first")

	require.NoError(t, a.deps.AddEdge("b", "a"))
	order, err = groupOrder(a, [][]string{{"b"}, {"a"}})
	assert.ErrorIs(t, err, dag.ErrCycle)
	assert.Equal(t, []int{0, 1}, order, "cycle keeps input order")
}
