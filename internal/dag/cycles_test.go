package dag

import (
	"reflect"
	"testing"
)

func buildGraph(nodes []string, edges [][2]string) *Graph {
	g := NewGraph()
	for _, n := range nodes {
		g.AddNode(n, nil)
	}
	for _, e := range edges {
		_ = g.AddEdge(e[0], e[1])
	}
	return g
}

func TestGraph_SimpleCycles(t *testing.T) {
	tests := []struct {
		name      string
		nodes     []string
		edges     [][2]string
		limit     int
		want      [][]string
		truncated bool
	}{
		{
			name:  "acyclic",
			nodes: []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}},
			want:  nil,
		},
		{
			name:  "two node cycle",
			nodes: []string{"g", "h"},
			edges: [][2]string{{"g", "h"}, {"h", "g"}},
			want:  [][]string{{"g", "h"}},
		},
		{
			name:  "shared node",
			nodes: []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "b"}},
			want:  [][]string{{"a", "b"}, {"b", "c"}},
		},
		{
			name:  "triangle with chord",
			nodes: []string{"a", "b", "c"},
			edges: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a", "c"}},
			want:  [][]string{{"a", "b", "c"}, {"a", "c"}},
		},
		{
			name:      "limit reached",
			nodes:     []string{"a", "b", "c"},
			edges:     [][2]string{{"a", "b"}, {"b", "a"}, {"b", "c"}, {"c", "b"}},
			limit:     1,
			want:      [][]string{{"a", "b"}},
			truncated: true,
		},
		{
			name:  "limit equal to count",
			nodes: []string{"g", "h"},
			edges: [][2]string{{"g", "h"}, {"h", "g"}},
			limit: 1,
			want:  [][]string{{"g", "h"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildGraph(tt.nodes, tt.edges)
			got, truncated := g.SimpleCycles(tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SimpleCycles() = %v, want %v", got, tt.want)
			}
			if truncated != tt.truncated {
				t.Errorf("truncated = %v, want %v", truncated, tt.truncated)
			}
		})
	}
}

func TestGraph_ConnectedComponents(t *testing.T) {
	g := buildGraph(
		[]string{"a", "b", "c", "d", "e"},
		[][2]string{{"b", "a"}, {"d", "c"}},
	)

	got := g.ConnectedComponents()
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConnectedComponents() = %v, want %v", got, want)
	}
}

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind()
	uf.Union("a", "b")
	uf.Union("c", "d")
	uf.Union("b", "d")
	uf.Add("e")

	if uf.Find("a") != uf.Find("c") {
		t.Error("expected a and c in the same set")
	}
	if uf.Find("e") == uf.Find("a") {
		t.Error("expected e to stay separate")
	}
}
