package starlark

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// DefaultMaxSteps bounds a single node evaluation.
const DefaultMaxSteps = 100_000

// ErrEmptyExpr is returned when compiling a blank expression.
var ErrEmptyExpr = errors.New("empty expression")

// Program is a compiled Starlark expression over a single lineage node.
// It is safe for concurrent use: every call runs on its own thread.
type Program struct {
	name     string
	fn       *starlark.Function
	maxSteps uint64
}

// CompileNodeExpr wraps expr in a one-argument function taking `node` and
// compiles it. The name shows up in Starlark error messages.
func CompileNodeExpr(name, expr string) (*Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrEmptyExpr
	}

	src := "def " + name + "(node):\n    return (" + expr + ")\n"
	thread := newThread("compile:" + name)
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, name+".star", src, nil)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	fn, ok := globals[name].(*starlark.Function)
	if !ok {
		return nil, fmt.Errorf("compile %s: function not defined", name)
	}
	globals.Freeze()

	return &Program{name: name, fn: fn, maxSteps: DefaultMaxSteps}, nil
}

// SetMaxSteps changes the per-call execution step budget. Zero means unbounded.
func (p *Program) SetMaxSteps(steps uint64) {
	p.maxSteps = steps
}

// Eval runs the program against n and returns the raw result.
func (p *Program) Eval(n core.Node) (starlark.Value, error) {
	arg, err := NodeValue(n)
	if err != nil {
		return nil, err
	}

	thread := newThread(p.name + ":" + n.ID)
	if p.maxSteps > 0 {
		thread.SetMaxExecutionSteps(p.maxSteps)
	}

	out, err := starlark.Call(thread, p.fn, starlark.Tuple{arg}, nil)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s on node %q: %w", p.name, n.ID, err)
	}
	return out, nil
}

// EvalBool runs the program and reports the truth value of its result.
func (p *Program) EvalBool(n core.Node) (bool, error) {
	out, err := p.Eval(n)
	if err != nil {
		return false, err
	}
	return bool(out.Truth()), nil
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: func(*starlark.Thread, string) {},
	}
}
