package pydevd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/pydevd-mcp/internal/protocol"
	"github.com/ctagard/pydevd-mcp/internal/pydevd/pydevdtest"
)

func TestExpressionPath(t *testing.T) {
	table := NewValueTable("t1", "f1")
	cfg := table.Add(NoParent, Value{Name: "cfg", IsContainer: true})
	servers := table.Add(cfg, Value{Name: "servers", IsContainer: true})
	first := table.Add(servers, Value{Name: "0", IsContainer: true})
	host := table.Add(first, Value{Name: "'host' (4371283)"})
	expr := table.Add(NoParent, Value{Name: "data[1:]", TempName: TempVarPrefix + "7", IsContainer: true})
	item := table.Add(expr, Value{Name: "2"})

	assert.Equal(t, "cfg", table.ExpressionPath(cfg))
	assert.Equal(t, "cfg.servers", table.ExpressionPath(servers))
	assert.Equal(t, "cfg.servers[0]", table.ExpressionPath(first))
	assert.Equal(t, "cfg.servers[0]['host']", table.ExpressionPath(host))
	assert.Equal(t, TempVarPrefix+"7[2]", table.ExpressionPath(item))
	assert.Equal(t, "", table.ExpressionPath(99))
}

func TestValueTableChildrenAndBounds(t *testing.T) {
	table := NewValueTable("t1", "f1")
	root := table.Add(NoParent, Value{Name: "a"})
	child := table.Add(root, Value{Name: "b"})
	orphan := table.Add(42, Value{Name: "c"})

	assert.Equal(t, []int{root, orphan}, table.Children(NoParent))
	assert.Equal(t, []int{child}, table.Children(root))

	v, ok := table.Get(orphan)
	require.True(t, ok)
	assert.Equal(t, NoParent, v.Parent, "an unknown parent makes the node a root")
	_, ok = table.Get(-1)
	assert.False(t, ok)
	assert.Equal(t, 3, table.Len())
	assert.Len(t, table.Nodes(), 3)
}

func TestFrameVariablesAndExpand(t *testing.T) {
	engine, fake, rec := connectEngine(t, EngineOptions{})
	ctx := context.Background()

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdGetFrame, req.Code)
		assert.Equal(t, []string{"t1", "f1", ScopeFrame}, req.Fields)
		fake.Reply(req, pydevdtest.VarsPayload(t,
			protocol.Var{Name: "count", Type: "int", Value: "3"},
			protocol.Var{Name: "opts", Type: "dict", Value: "{...}", IsContainer: true},
		))
	}()
	table, err := engine.FrameVariables(ctx, "t1", "f1")
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	cached, err := engine.FrameVariables(ctx, "t1", "f1")
	require.NoError(t, err)
	assert.Same(t, table, cached, "the table is fetched once per suspend")

	none, err := engine.ExpandValue(ctx, table, 0)
	require.NoError(t, err)
	assert.Empty(t, none, "scalars have no children")

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdGetVariable, req.Code)
		assert.Equal(t, []string{"t1", "f1", ScopeExpression, "opts"}, req.Fields)
		fake.Reply(req, pydevdtest.VarsPayload(t, protocol.Var{Name: "'debug' (1)", Type: "bool", Value: "True"}))
	}()
	children, err := engine.ExpandValue(ctx, table, 1)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "opts['debug']", table.ExpressionPath(children[0]))

	// A new suspend discards the snapshot.
	fake.ThreadEvent(protocol.CmdThreadSuspend, pydevdtest.SuspendedThread("t1", protocol.CmdStepOver, mainFrame(5)))
	rec.wait(t, "suspended")
	go func() {
		req := fake.Next()
		fake.Reply(req, pydevdtest.VarsPayload(t, protocol.Var{Name: "count", Value: "4"}))
	}()
	fresh, err := engine.FrameVariables(ctx, "t1", "f1")
	require.NoError(t, err)
	assert.NotSame(t, table, fresh)
}

func TestChildrenUsesTempBinding(t *testing.T) {
	engine, fake, _ := connectEngine(t, EngineOptions{})
	ctx := context.Background()

	go func() {
		req := fake.Next()
		fake.Reply(req, pydevdtest.VarsPayload(t, protocol.Var{Name: "x", Value: "[1]", IsContainer: true}))
	}()
	v, err := engine.Evaluate(ctx, "t1", "f1", "make()")
	require.NoError(t, err)

	go func() {
		req := fake.Next()
		assert.Equal(t, []string{"t1", "f1", ScopeExpression, v.TempName}, req.Fields)
		fake.Reply(req, pydevdtest.VarsPayload(t, protocol.Var{Name: "0", Value: "1"}))
	}()
	children, err := engine.Children(ctx, "t1", "f1", "make()")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "1", children[0].Value)
}

func TestGetArrayAndChangeVariable(t *testing.T) {
	engine, fake, _ := connectEngine(t, EngineOptions{})
	ctx := context.Background()

	_, err := engine.GetArray(ctx, GetArray{ThreadID: "t1", FrameID: "f1", Expression: "m", Rows: -1})
	require.Error(t, err)

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdGetArray, req.Code)
		payload, _ := protocol.MarshalDocument(&protocol.Document{Array: &protocol.Array{
			Slice: "m", Rows: 1, Cols: 2, Format: "%d", Type: "int64",
			Cells: []protocol.ArrayCell{{Row: 0, Col: 0, Value: "1"}, {Row: 0, Col: 1, Value: "2"}},
		}})
		fake.Reply(req, payload)
	}()
	chunk, err := engine.GetArray(ctx, GetArray{ThreadID: "t1", FrameID: "f1", Expression: "m", RowOffset: 3, Rows: 1, Cols: 2, Format: "%d"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}}, chunk.Data)
	assert.Equal(t, 3, chunk.RowOffset)

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdChangeVariable, req.Code)
		fake.Reply(req, pydevdtest.VarsPayload(t, protocol.Var{Name: "count", Type: "int", Value: "10"}))
	}()
	v, err := engine.ChangeVariable(ctx, "t1", "f1", "count", "10")
	require.NoError(t, err)
	assert.Equal(t, "10", v.Value)
}
