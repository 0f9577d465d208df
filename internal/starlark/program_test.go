package starlark

import (
	"sync"
	"testing"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestCompileNodeExpr(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{name: "valid", expr: `node.type == "TABLE"`},
		{name: "blank", expr: "  ", wantErr: "empty expression"},
		{name: "syntax error", expr: "node.type ==", wantErr: "compile is_table"},
		{name: "unknown global", expr: "missing(node)", wantErr: "undefined: missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompileNodeExpr("is_table", tt.expr)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}

	_, err := CompileNodeExpr("is_table", "")
	assert.ErrorIs(t, err, ErrEmptyExpr)
}

func TestProgram_Eval(t *testing.T) {
	p, err := CompileNodeExpr("label", `node.name + "@" + node.type`)
	require.NoError(t, err)

	out, err := p.Eval(core.Node{ID: "t1", Name: "orders", Type: core.NodeTypeTableOrView})
	require.NoError(t, err)
	assert.Equal(t, starlark.String("orders@TABLE_OR_VIEW"), out)
}

func TestProgram_EvalBool(t *testing.T) {
	p, err := CompileNodeExpr("is_table", `node.properties.get("schema") == "dbo"`)
	require.NoError(t, err)

	ok, err := p.EvalBool(core.Node{ID: "a", Properties: map[string]any{"schema": "dbo"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.EvalBool(core.Node{ID: "b"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProgram_RuntimeErrorNamesNode(t *testing.T) {
	p, err := CompileNodeExpr("is_table", `node.properties["schema"] == "dbo"`)
	require.NoError(t, err)

	_, err = p.EvalBool(core.Node{ID: "dbo.orders"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "dbo.orders"`)
}

func TestProgram_StepLimit(t *testing.T) {
	p, err := CompileNodeExpr("is_table", `len([x for x in range(1000000)]) > 0`)
	require.NoError(t, err)
	p.SetMaxSteps(1000)

	_, err = p.EvalBool(core.Node{ID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
}

func TestProgram_ConcurrentEval(t *testing.T) {
	p, err := CompileNodeExpr("is_table", `node.name.startswith("t")`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := p.EvalBool(core.Node{ID: "x", Name: "table"})
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
