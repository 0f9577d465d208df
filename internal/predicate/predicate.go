// Package predicate decides which lineage nodes are table-like.
//
// The core recognizes only FILE nodes itself. Everything else is classified by
// a predicate: a fixed set of node types by default, optionally narrowed or
// widened by a Starlark expression evaluated against each node.
package predicate

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmigrate/internal/semantics"
	starctx "github.com/leapstack-labs/leapmigrate/internal/starlark"
	"github.com/leapstack-labs/leapmigrate/pkg/core"
)

// DefaultTableTypes are the node types treated as tables when no
// configuration is given.
var DefaultTableTypes = []string{
	string(core.NodeTypeTableOrView),
	string(core.NodeTypeGlobalTempTable),
	"TEMP_TABLE",
	"VIEW",
	"TABLE",
}

// Func reports whether a node is table-like.
type Func = semantics.NodePredicate

// Default returns the predicate over DefaultTableTypes.
func Default() Func {
	return TypeSet(DefaultTableTypes...)
}

// TypeSet returns a predicate matching nodes whose type is one of types,
// ignoring case.
// FILE nodes never match.
func TypeSet(types ...string) Func {
	set := make(map[core.NodeType]bool, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		set[core.NodeType(strings.ToUpper(t))] = true
	}
	return func(n core.Node) bool {
		typ := core.NodeType(strings.ToUpper(string(n.Type)))
		return typ != core.NodeTypeFile && set[typ]
	}
}

// Starlark compiles a boolean Starlark expression over `node` into a
// predicate. The expression sees node.id, node.name, node.type, node.tags and
// node.properties, for example:
//
//	node.type in ("TABLE", "VIEW") and not node.name.startswith("tmp_")
//
// Evaluation errors make the node non-table and are reported to onError
// when it is non-nil. FILE nodes never match.
func Starlark(expr string, onError func(core.Node, error)) (Func, error) {
	prog, err := starctx.CompileNodeExpr("is_table", expr)
	if err != nil {
		return nil, fmt.Errorf("table predicate: %w", err)
	}

	return func(n core.Node) bool {
		if n.IsFile() {
			return false
		}
		ok, err := prog.EvalBool(n)
		if err != nil {
			if onError != nil {
				onError(n, err)
			}
			return false
		}
		return ok
	}, nil
}

// Build returns the predicate described by configuration: the type set when
// expr is empty, otherwise the Starlark expression.
func Build(types []string, expr string, onError func(core.Node, error)) (Func, error) {
	if strings.TrimSpace(expr) != "" {
		return Starlark(expr, onError)
	}
	if len(types) == 0 {
		return Default(), nil
	}
	return TypeSet(types...), nil
}
