package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapmigrate/internal/state"
	"github.com/leapstack-labs/leapmigrate/internal/testutil"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenLineages fails fetches of selected lineage IDs.
type brokenLineages struct {
	*state.SQLiteStore
	broken map[string]bool
}

func (b *brokenLineages) FetchLineage(ctx context.Context, lineageID, userID string) (*core.LineageGraph, error) {
	if b.broken[lineageID] {
		return nil, errors.New("storage unavailable")
	}
	return b.SQLiteStore.FetchLineage(ctx, lineageID, userID)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("lin-%d", n)
	}
}

func setupEngine(t *testing.T) (*Engine, *state.SQLiteStore) {
	t.Helper()
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	e, err := New(Config{
		Registry:     store,
		Lineages:     store,
		IsTable:      testutil.IsTable,
		FetchTimeout: 5 * time.Second,
		Logger:       testutil.NewTestLogger(t),
		NewID:        sequentialIDs(),
	})
	require.NoError(t, err)
	return e, store
}

func importAll(t *testing.T, e *Engine, user string, builders ...*testutil.LineageBuilder) {
	t.Helper()
	for _, b := range builders {
		_, err := e.ImportLineage(context.Background(), user, b.Document())
		require.NoError(t, err)
	}
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	store := state.NewSQLiteStore(nil)
	_, err = New(Config{Registry: store})
	require.Error(t, err)

	_, err = New(Config{Registry: store, Lineages: store})
	require.NoError(t, err)
}

func TestImportLineage(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	res, err := e.ImportLineage(ctx, "u1", testutil.NewLineage("a").Creates("t").Document())
	require.NoError(t, err)
	assert.Equal(t, "a", res.FileID)
	assert.Equal(t, "lin-1", res.LineageID)
	assert.Equal(t, 2, res.Nodes)
	assert.Equal(t, 1, res.Edges)

	files, err := e.ListFiles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.sql", files[0].Filename)
	assert.Equal(t, []core.LineageRef{{LineageID: "lin-1"}}, files[0].Lineages)

	others, err := e.ListFiles(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestImportLineage_Malformed(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	_, err := e.ImportLineage(ctx, "u1", core.LineageDocument{})
	require.ErrorIs(t, err, core.ErrMalformedNode)

	doc := testutil.NewLineage("a").Creates("t").Document()
	doc.Edges[0].Relationship = ""
	_, err = e.ImportLineage(ctx, "u1", doc)
	require.ErrorIs(t, err, core.ErrMalformedEdge)

	files, err := e.ListFiles(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, files, "rejected documents are not registered")
}

func TestMerge_DerivesFileDependencies(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	importAll(t, e, "u1",
		testutil.NewLineage("a").Creates("t"),
		testutil.NewLineage("b").Reads("t"),
	)

	full, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.False(t, full.Cached)
	assert.Equal(t, 2, full.Stats.FileCount)
	assert.Equal(t, 1, full.Stats.DerivedEdgeCount)

	var derived []core.Edge
	for _, edge := range full.Edges {
		if edge.Relationship == core.RelDependsOnFile {
			derived = append(derived, edge)
		}
	}
	require.Len(t, derived, 1)
	assert.Equal(t, "a", derived[0].Source)
	assert.Equal(t, "b", derived[0].Target)
	assert.Equal(t, "t", derived[0].ViaTable)

	base, err := e.Merge(ctx, "u1", nil, false)
	require.NoError(t, err)
	assert.True(t, base.Cached, "derived flag does not change the cache key")
	assert.Len(t, base.Edges, 2)
	for _, edge := range base.Edges {
		assert.NotEqual(t, core.RelDependsOnFile, edge.Relationship)
	}

	m := e.CacheMetrics()
	assert.Equal(t, uint64(1), m.Hits)
	assert.Equal(t, uint64(1), m.Computes)
}

func TestMerge_Empty(t *testing.T) {
	e, _ := setupEngine(t)

	resp, err := e.Merge(context.Background(), "nobody", nil, true)
	require.NoError(t, err)
	assert.NotNil(t, resp.Nodes)
	assert.Empty(t, resp.Nodes)
	assert.Empty(t, resp.Edges)
	assert.Equal(t, uint64(0), e.CacheMetrics().Computes)
}

func TestMerge_UnknownFile(t *testing.T) {
	e, _ := setupEngine(t)
	importAll(t, e, "u1", testutil.NewLineage("a").Creates("t"))

	_, err := e.Merge(context.Background(), "u1", []string{"a", "missing"}, false)
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestMerge_SubsetFollowsRequestOrder(t *testing.T) {
	e, _ := setupEngine(t)
	importAll(t, e, "u1",
		testutil.NewLineage("a").Creates("t"),
		testutil.NewLineage("b").Reads("t"),
		testutil.NewLineage("c").Reads("u"),
	)

	resp, err := e.Merge(context.Background(), "u1", []string{"b", "a"}, false)
	require.NoError(t, err)
	require.Len(t, resp.Stats.Files, 2)
	assert.Equal(t, "b", resp.Stats.Files[0].FileID)
	assert.Equal(t, "a", resp.Stats.Files[1].FileID)
}

func TestMutationsInvalidateCache(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	importAll(t, e, "u1",
		testutil.NewLineage("a").Creates("t"),
		testutil.NewLineage("b").Reads("t"),
	)

	first, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	importAll(t, e, "u1", testutil.NewLineage("c").Reads("t"))
	second, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.False(t, second.Cached, "upload invalidates")
	assert.Equal(t, 2, second.Stats.DerivedEdgeCount)

	require.NoError(t, e.DeleteFile(ctx, "u1", "c"))
	third, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.False(t, third.Cached, "delete invalidates")
	assert.Equal(t, 1, third.Stats.DerivedEdgeCount)

	_, err = e.ReplaceLineages(ctx, "u1", "b", []core.LineageGraph{testutil.NewLineage("b").Reads("other").Graph()})
	require.NoError(t, err)
	fourth, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.False(t, fourth.Cached, "re-lineage invalidates")
	assert.Equal(t, 0, fourth.Stats.DerivedEdgeCount)
}

func TestReplaceLineages(t *testing.T) {
	e, store := setupEngine(t)
	ctx := context.Background()
	importAll(t, e, "u1", testutil.NewLineage("a").Creates("t"))

	ids, err := e.ReplaceLineages(ctx, "u1", "a", []core.LineageGraph{
		testutil.NewLineage("a").Creates("t").Graph(),
		testutil.NewLineage("a").Reads("s").Graph(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"lin-2", "lin-3"}, ids)

	_, err = store.FetchLineage(ctx, "lin-1", "u1")
	require.ErrorIs(t, err, state.ErrNotFound, "replaced lineage is deleted")

	resp, err := e.Merge(ctx, "u1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Stats.LineageCount)
}

func TestReplaceLineages_UnknownFile(t *testing.T) {
	e, store := setupEngine(t)
	ctx := context.Background()

	_, err := e.ReplaceLineages(ctx, "u1", "ghost", []core.LineageGraph{testutil.NewLineage("ghost").Graph()})
	require.ErrorIs(t, err, state.ErrNotFound)

	_, err = store.FetchLineage(ctx, "lin-1", "u1")
	require.ErrorIs(t, err, state.ErrNotFound, "orphaned graph is cleaned up")
}

func TestDeleteFile_Unknown(t *testing.T) {
	e, _ := setupEngine(t)
	err := e.DeleteFile(context.Background(), "u1", "ghost")
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestMerge_SkipsUnavailableLineages(t *testing.T) {
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	lineages := &brokenLineages{SQLiteStore: store, broken: map[string]bool{"lin-2": true}}
	e, err := New(Config{
		Registry: store,
		Lineages: lineages,
		IsTable:  testutil.IsTable,
		Logger:   testutil.NewTestLogger(t),
		NewID:    sequentialIDs(),
	})
	require.NoError(t, err)
	importAll(t, e, "u1",
		testutil.NewLineage("a").Creates("t"),
		testutil.NewLineage("b").Reads("t"),
	)

	resp, err := e.Merge(context.Background(), "u1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Stats.SkippedLineages)
	assert.Equal(t, 0, resp.Stats.DerivedEdgeCount)
}

func TestPlan(t *testing.T) {
	e, _ := setupEngine(t)
	importAll(t, e, "u1",
		testutil.NewLineage("a").Creates("t"),
		testutil.NewLineage("b").Reads("t").Reads("raw"),
	)

	plan, err := e.Plan(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, plan.TotalGroups)
	require.Len(t, plan.Groups[0].Waves, 2)
	assert.Equal(t, "a", plan.Groups[0].Waves[0].Files[0].ID)
	assert.Equal(t, "b", plan.Groups[0].Waves[1].Files[0].ID)
	require.Len(t, plan.PreExistingTables, 1)
	assert.Equal(t, "raw", plan.PreExistingTables[0].Name)
	assert.False(t, plan.HasCycles)
}

func TestPlan_CycleSampleWithDefaultPlannerConfig(t *testing.T) {
	e, _ := setupEngine(t)
	importAll(t, e, "u1",
		testutil.NewLineage("g").Creates("tg").Reads("th"),
		testutil.NewLineage("h").Creates("th").Reads("tg"),
		testutil.NewLineage("k").Reads("tg").Reads("p"),
	)

	plan, err := e.Plan(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.True(t, plan.HasCycles)
	assert.Equal(t, 1, plan.CycleInfo.Count)
	assert.Equal(t, [][]string{{"g", "h"}}, plan.CycleInfo.Sample)
}

func TestMerge_SQLiteCacheHitMatchesFirstMerge(t *testing.T) {
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	e, err := New(Config{
		Registry:     store,
		Lineages:     store,
		CacheBackend: state.NewCacheBackend(store),
		IsTable:      testutil.IsTable,
		Logger:       testutil.NewTestLogger(t),
		NewID:        sequentialIDs(),
	})
	require.NoError(t, err)
	ctx := context.Background()
	importAll(t, e, "u1",
		testutil.NewLineage("FileA").Creates("TableX"),
		testutil.NewLineage("FileB").Reads("TableX").Reads("TableY"),
	)

	first, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	second, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Edges, second.Edges)

	for _, n := range second.Nodes {
		if n.ID == "TableY" {
			assert.Equal(t, []string{core.TagExternalCreation}, n.Properties[core.PropTags])
		}
	}
}

func TestPlan_Empty(t *testing.T) {
	e, _ := setupEngine(t)
	plan, err := e.Plan(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Groups)
	assert.Equal(t, 0, plan.TotalNodes)
}

func TestInvalidateUser(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	importAll(t, e, "u1", testutil.NewLineage("a").Creates("t"))

	_, err := e.Merge(ctx, "u1", nil, false)
	require.NoError(t, err)

	n, err := e.InvalidateUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp, err := e.Merge(ctx, "u1", nil, false)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
}

func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		data   string
		fileID string
		nodes  int
		edges  int
	}{
		{
			name:   "json",
			path:   "a.json",
			data:   `{"file_id":"f1","filename":"f1.sql","nodes":[{"id":"f1","type":"FILE"},{"id":"t","type":"TABLE_OR_VIEW"}],"edges":[{"source":"f1","target":"t","relationship":"CREATES"}]}`,
			fileID: "f1",
			nodes:  2,
			edges:  1,
		},
		{
			name: "yaml",
			path: "dir/b.yaml",
			data: `file_id: f2
nodes:
  - id: f2
    type: FILE
edges: []
`,
			fileID: "f2",
			nodes:  1,
		},
		{
			name:   "file id from name",
			path:   "dir/orders.yml",
			data:   "nodes: []\nedges: []\n",
			fileID: "orders",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := DecodeDocument(tt.path, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.fileID, doc.FileID)
			assert.Len(t, doc.Nodes, tt.nodes)
			assert.Len(t, doc.Edges, tt.edges)
		})
	}

	_, err := DecodeDocument("bad.json", []byte("{"))
	require.Error(t, err)
}

func TestIsLineageFile(t *testing.T) {
	assert.True(t, IsLineageFile("a.json"))
	assert.True(t, IsLineageFile("a.YAML"))
	assert.True(t, IsLineageFile("a.yml"))
	assert.False(t, IsLineageFile("a.sql"))
}

const ordersDoc = `{"file_id":"orders","filename":"orders.sql","nodes":[{"id":"orders","type":"FILE"},{"id":"t_orders","type":"TABLE_OR_VIEW"}],"edges":[{"source":"orders","target":"t_orders","relationship":"CREATES"}]}`

const reportYAML = `file_id: report
filename: report.sql
nodes:
  - {id: report, type: FILE}
  - {id: t_orders, type: TABLE_OR_VIEW}
edges:
  - {source: report, target: t_orders, relationship: READS_FROM}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDiscover(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "orders.json"), ordersDoc)
	writeFile(t, filepath.Join(dir, "nested", "report.yaml"), reportYAML)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".hidden", "x.json"), ordersDoc)

	result, err := e.Discover(ctx, "u1", dir, DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Changed)
	assert.False(t, result.HasErrors())
	assert.Contains(t, result.Summary(), "2 total")

	resp, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Stats.DerivedEdgeCount)

	again, err := e.Discover(ctx, "u1", dir, DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Changed)
	assert.Equal(t, 2, again.Skipped)

	cached, err := e.Merge(ctx, "u1", nil, true)
	require.NoError(t, err)
	assert.True(t, cached.Cached, "unchanged discovery keeps the cache")

	forced, err := e.Discover(ctx, "u1", dir, DiscoveryOptions{ForceFullRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, forced.Changed)

	files, err := e.ListFiles(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	for _, f := range files {
		assert.Len(t, f.Lineages, 1, "rediscovery replaces lineages of %s", f.FileID)
	}
}

func TestDiscover_ReportsBadFiles(t *testing.T) {
	e, _ := setupEngine(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "good.json"), ordersDoc)
	writeFile(t, filepath.Join(dir, "broken.json"), "{not json")
	writeFile(t, filepath.Join(dir, "invalid.yaml"), "file_id: x\nnodes:\n  - {id: '', type: FILE}\n")

	result, err := e.Discover(context.Background(), "u1", dir, DiscoveryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Changed)
	require.Len(t, result.Errors, 2)

	types := []string{result.Errors[0].Type, result.Errors[1].Type}
	assert.ElementsMatch(t, []string{"decode", "validation"}, types)
}

func TestDiscover_MissingDir(t *testing.T) {
	e, _ := setupEngine(t)
	_, err := e.Discover(context.Background(), "u1", filepath.Join(t.TempDir(), "nope"), DiscoveryOptions{})
	require.Error(t, err)
}

func TestDiscoverFile(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.json")
	writeFile(t, path, ordersDoc)

	changed, err := e.DiscoverFile(ctx, "u1", path)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = e.DiscoverFile(ctx, "u1", path)
	require.NoError(t, err)
	assert.False(t, changed)

	writeFile(t, path, "{")
	_, err = e.DiscoverFile(ctx, "u1", path)
	require.Error(t, err)
}
