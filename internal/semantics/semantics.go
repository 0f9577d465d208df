// Package semantics classifies lineage relationships and derives which files
// create, read and write each table.
//
// The file is always the edge source and the table is always the edge target.
package semantics

import (
	"sort"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// Category groups relationship tags by their effect on the target table.
type Category int

// Relationship categories.
const (
	CategoryNone Category = iota
	CategoryRead
	CategoryWrite
	CategoryDestructive
	CategoryDrop
	CategoryGeneric
)

var categoryNames = [...]string{"none", "read", "write", "destructive", "drop", "generic"}

func (c Category) String() string {
	if int(c) < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Classify returns the category of a relationship tag.
func Classify(rel core.Relationship) Category {
	switch rel {
	case core.RelReadsFrom, core.RelReads:
		return CategoryRead
	case core.RelWritesTo, core.RelWrites, core.RelCreates, core.RelCreatesIndex:
		return CategoryWrite
	case core.RelDeletesFrom:
		return CategoryDestructive
	case core.RelDrops:
		return CategoryDrop
	case core.RelDependsOn:
		return CategoryGeneric
	default:
		return CategoryNone
	}
}

// IsModification reports whether the category changes the target table:
// write, destructive or drop.
func (c Category) IsModification() bool {
	return c == CategoryWrite || c == CategoryDestructive || c == CategoryDrop
}

// IsCreate reports whether the relationship creates its target table.
func IsCreate(rel core.Relationship) bool {
	return rel == core.RelCreates
}

// NodePredicate decides whether a node is table-like.
type NodePredicate func(core.Node) bool

// FileTableEdge is a base edge whose source is a FILE node and whose target
// is a table-like node.
type FileTableEdge struct {
	File     string
	Table    string
	Category Category
	Creates  bool
}

// FileTableEdges returns every edge linking a FILE source to a table target,
// in input order. Edges referencing a missing node are ignored.
func FileTableEdges(nodes map[string]core.Node, edges []core.Edge, isTable NodePredicate) []FileTableEdge {
	out := make([]FileTableEdge, 0, len(edges))
	for _, e := range edges {
		src, ok := nodes[e.Source]
		if !ok || !src.IsFile() {
			continue
		}
		dst, ok := nodes[e.Target]
		if !ok || !isTable(dst) {
			continue
		}
		cat := Classify(e.Relationship)
		if cat == CategoryNone {
			continue
		}
		out = append(out, FileTableEdge{
			File:     e.Source,
			Table:    e.Target,
			Category: cat,
			Creates:  IsCreate(e.Relationship),
		})
	}
	return out
}

// IndexNodes builds an ID lookup. Later duplicates do not replace the first.
func IndexNodes(nodes []core.Node) map[string]core.Node {
	idx := make(map[string]core.Node, len(nodes))
	for _, n := range nodes {
		if _, ok := idx[n.ID]; !ok {
			idx[n.ID] = n
		}
	}
	return idx
}

// Set is a set of node IDs.
type Set map[string]struct{}

func (s Set) add(id string) {
	s[id] = struct{}{}
}

// Has reports membership.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TableMaps holds table -> file ID sets per role.
//
// Readers are files with a read edge to the table; writers are files with
// any modifying edge (write, destructive, drop); creators are files with a
// CREATES edge. Creators are always writers too.
type TableMaps struct {
	Creators map[string]Set
	Readers  map[string]Set
	Writers  map[string]Set
	Usage    map[string]core.TableUsage

	// Tables lists every table referenced by a file, in first-seen order.
	Tables []string
}

// BuildTableMaps derives the creator/reader/writer maps and usage counts.
func BuildTableMaps(nodes []core.Node, edges []core.Edge, isTable NodePredicate) *TableMaps {
	idx := IndexNodes(nodes)
	tm := &TableMaps{
		Creators: make(map[string]Set),
		Readers:  make(map[string]Set),
		Writers:  make(map[string]Set),
		Usage:    make(map[string]core.TableUsage),
	}

	for _, fe := range FileTableEdges(idx, edges, isTable) {
		if _, seen := tm.Usage[fe.Table]; !seen {
			tm.Tables = append(tm.Tables, fe.Table)
		}
		usage := tm.Usage[fe.Table]

		switch fe.Category {
		case CategoryRead:
			usage.Reads++
			setFor(tm.Readers, fe.Table).add(fe.File)
		case CategoryWrite:
			usage.Writes++
			setFor(tm.Writers, fe.Table).add(fe.File)
		case CategoryDestructive:
			usage.Deletes++
			setFor(tm.Writers, fe.Table).add(fe.File)
		case CategoryDrop:
			usage.Drops++
			setFor(tm.Writers, fe.Table).add(fe.File)
		}
		if fe.Creates {
			setFor(tm.Creators, fe.Table).add(fe.File)
		}

		tm.Usage[fe.Table] = usage
	}

	return tm
}

// FilesReferencing returns every file that creates, reads or writes table.
func (tm *TableMaps) FilesReferencing(table string) Set {
	out := make(Set)
	for _, m := range []map[string]Set{tm.Creators, tm.Readers, tm.Writers} {
		for id := range m[table] {
			out.add(id)
		}
	}
	return out
}

// IsPreExisting reports whether a referenced table has no creator.
func (tm *TableMaps) IsPreExisting(table string) bool {
	if len(tm.Creators[table]) > 0 {
		return false
	}
	return len(tm.Readers[table]) > 0 || len(tm.Writers[table]) > 0
}

// DependencyPair is a creator -> reader link through one table.
type DependencyPair struct {
	Creator string
	Reader  string
	Table   string
}

// DependencyPairs lists every (creator, reader, table) triple with
// creator != reader, ordered by table, creator, then reader.
func (tm *TableMaps) DependencyPairs() []DependencyPair {
	tables := make([]string, 0, len(tm.Creators))
	for t := range tm.Creators {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var out []DependencyPair
	for _, t := range tables {
		readers := tm.Readers[t]
		if len(readers) == 0 {
			continue
		}
		for _, c := range tm.Creators[t].Sorted() {
			for _, r := range readers.Sorted() {
				if c == r {
					continue
				}
				out = append(out, DependencyPair{Creator: c, Reader: r, Table: t})
			}
		}
	}
	return out
}

func setFor(m map[string]Set, key string) Set {
	s, ok := m[key]
	if !ok {
		s = make(Set)
		m[key] = s
	}
	return s
}
