package dag

import "sort"

// SimpleCycles enumerates elementary cycles with Johnson's algorithm.
// Each cycle is listed once, starting at its smallest node ID, and the
// search visits nodes and children in sorted order so results are stable.
//
// At most limit cycles are returned; truncated is true when more exist.
// A limit <= 0 means no bound.
func (g *Graph) SimpleCycles(limit int) (cycles [][]string, truncated bool) {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	adj := make(map[string][]string, len(ids))
	for _, id := range ids {
		children := append([]string(nil), g.edges[id]...)
		sort.Strings(children)
		adj[id] = children
	}

	stop := false
	for s, start := range ids {
		if stop {
			break
		}
		scc := g.componentOf(start, s, index, adj)
		if len(scc) < 2 {
			continue
		}

		blocked := make(map[string]bool, len(scc))
		blockedBy := make(map[string]map[string]bool, len(scc))
		var stack []string

		var unblock func(v string)
		unblock = func(v string) {
			blocked[v] = false
			for w := range blockedBy[v] {
				delete(blockedBy[v], w)
				if blocked[w] {
					unblock(w)
				}
			}
		}

		var circuit func(v string) bool
		circuit = func(v string) bool {
			found := false
			stack = append(stack, v)
			blocked[v] = true

			for _, w := range adj[v] {
				if stop {
					break
				}
				if !scc[w] {
					continue
				}
				if w == start {
					if limit > 0 && len(cycles) == limit {
						truncated = true
						stop = true
						break
					}
					cycles = append(cycles, append([]string(nil), stack...))
					found = true
				} else if !blocked[w] && circuit(w) {
					found = true
				}
			}

			if found {
				unblock(v)
			} else {
				for _, w := range adj[v] {
					if !scc[w] {
						continue
					}
					if blockedBy[w] == nil {
						blockedBy[w] = make(map[string]bool)
					}
					blockedBy[w][v] = true
				}
			}

			stack = stack[:len(stack)-1]
			return found
		}

		circuit(start)
	}

	return cycles, truncated
}

// componentOf returns the strongly connected component containing start
// in the subgraph induced by nodes whose index is >= minIndex.
func (g *Graph) componentOf(start string, minIndex int, index map[string]int, adj map[string][]string) map[string]bool {
	inRange := func(id string) bool { return index[id] >= minIndex }

	forward := reach(start, func(id string) []string { return adj[id] }, inRange)
	backward := reach(start, func(id string) []string { return g.parents[id] }, inRange)

	scc := make(map[string]bool)
	for id := range forward {
		if backward[id] {
			scc[id] = true
		}
	}
	return scc
}

func reach(start string, next func(string) []string, allowed func(string) bool) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, n := range next(id) {
			if !seen[n] && allowed(n) {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return seen
}
