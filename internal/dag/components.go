package dag

// UnionFind is a disjoint-set forest over string keys.
type UnionFind struct {
	parent map[string]string
	rank   map[string]int
}

// NewUnionFind creates an empty disjoint-set forest.
func NewUnionFind() *UnionFind {
	return &UnionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

// Add registers id as a singleton set if it is not known yet.
func (u *UnionFind) Add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

// Find returns the representative of id's set, adding id if needed.
func (u *UnionFind) Find(id string) string {
	u.Add(id)
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// path compression
	for id != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

// Union merges the sets containing a and b.
func (u *UnionFind) Union(a, b string) {
	ra, rb := u.Find(a), u.Find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// ConnectedComponents returns the weakly connected components of the graph,
// ignoring edge direction. Components are ordered by the insertion position
// of their first node and members keep insertion order.
func (g *Graph) ConnectedComponents() [][]string {
	uf := NewUnionFind()
	for _, id := range g.order {
		uf.Add(id)
	}
	for _, id := range g.order {
		for _, child := range g.edges[id] {
			uf.Union(id, child)
		}
	}

	slot := make(map[string]int)
	var components [][]string
	for _, id := range g.order {
		root := uf.Find(id)
		i, ok := slot[root]
		if !ok {
			i = len(components)
			slot[root] = i
			components = append(components, nil)
		}
		components[i] = append(components[i], id)
	}
	return components
}
