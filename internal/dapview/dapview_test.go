package dapview

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/protocol"
	"github.com/ctagard/pydevd-mcp/internal/pydevd"
	"github.com/ctagard/pydevd-mcp/internal/pydevd/pydevdtest"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

func testContext() context.Context {
	logger := pslog.NewWithOptions(&nopWriter{}, pslog.Options{NoColor: true})
	return pslog.ContextWithLogger(context.Background(), logger)
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestThreadHandlesAreStable(t *testing.T) {
	h := NewHandles()
	a := h.ThreadRef("pid_1_id_1")
	b := h.ThreadRef("pid_1_id_2")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, h.ThreadRef("pid_1_id_1"))

	id, ok := h.ThreadID(b)
	require.True(t, ok)
	assert.Equal(t, "pid_1_id_2", id)

	h.ThreadKilled("pid_1_id_2")
	_, ok = h.ThreadID(b)
	assert.False(t, ok)
	assert.NotEqual(t, b, h.ThreadRef("pid_1_id_2"), "handles are never reused")
}

func TestFrameAndVariableHandlesResetOnStop(t *testing.T) {
	h := NewHandles()
	info := pydevd.ThreadInfo{
		ID:    "t1",
		State: pydevd.StateSuspended,
		Frames: []pydevd.StackFrame{
			{ThreadID: "t1", ID: "140", Name: "handler", File: "/app/views.py", Line: 12},
			{ThreadID: "t1", ID: "141", Name: "<module>", Line: 3},
		},
	}
	frames := h.StackFrames(info)
	require.Len(t, frames, 2)
	assert.Equal(t, "handler", frames[0].Name)
	assert.Equal(t, 12, frames[0].Line)
	assert.Equal(t, &dap.Source{Name: "views.py", Path: "/app/views.py"}, frames[0].Source)
	assert.Nil(t, frames[1].Source)

	thread, frame, ok := h.Frame(frames[0].Id)
	require.True(t, ok)
	assert.Equal(t, "t1", thread)
	assert.Equal(t, "140", frame)

	table := pydevd.NewValueTable("t1", "140")
	ref := h.VariableRef(table, table.Add(pydevd.NoParent, pydevd.Value{Name: "req", IsContainer: true}))

	h.ThreadSuspended(info, true)
	_, _, ok = h.Frame(frames[0].Id)
	assert.False(t, ok)
	_, _, ok = h.Variable(ref)
	assert.False(t, ok)
}

func TestVariables(t *testing.T) {
	h := NewHandles()
	table := pydevd.NewValueTable("t1", "f1")
	count := table.Add(pydevd.NoParent, pydevd.Value{Name: "count", Type: "int", Value: "3"})
	opts := table.Add(pydevd.NoParent, pydevd.Value{Name: "opts", Type: "dict", Value: "{...}", IsContainer: true})
	ret := table.Add(pydevd.NoParent, pydevd.Value{Name: "compute", Value: "7", IsReturnValue: true})
	debug := table.Add(opts, pydevd.Value{Name: "'debug' (1)", Type: "bool", Value: "True"})

	vars := h.Variables(table, []int{count, opts, ret, 99})
	require.Len(t, vars, 3)
	assert.Equal(t, dap.Variable{Name: "count", Type: "int", Value: "3", EvaluateName: "count"}, vars[0])
	assert.NotZero(t, vars[1].VariablesReference)
	assert.Equal(t, "property", vars[2].PresentationHint.Kind)

	gotTable, idx, ok := h.Variable(vars[1].VariablesReference)
	require.True(t, ok)
	assert.Same(t, table, gotTable)
	assert.Equal(t, opts, idx)

	child := h.Variables(table, []int{debug})
	assert.Equal(t, "opts['debug']", child[0].EvaluateName)
}

func TestEvaluationKeepsTempBinding(t *testing.T) {
	h := NewHandles()
	res := h.Evaluation("t1", "f1", "data[1:]", pydevd.Value{
		Name: "data[1:]", Type: "list", Value: "[2, 3]", IsContainer: true, TempName: pydevd.TempVarPrefix + "5",
	})
	assert.Equal(t, "[2, 3]", res.Result)
	require.NotZero(t, res.VariablesReference)

	table, idx, ok := h.Variable(res.VariablesReference)
	require.True(t, ok)
	assert.Equal(t, pydevd.TempVarPrefix+"5", table.ExpressionPath(idx))

	scalar := h.Evaluation("t1", "f1", "1+1", pydevd.Value{Value: "2", Type: "int"})
	assert.Zero(t, scalar.VariablesReference)
}

func TestStopReason(t *testing.T) {
	cases := map[protocol.Code]string{
		protocol.CmdSetBreak:            "breakpoint",
		protocol.CmdRunToLine:           "breakpoint",
		protocol.CmdStepOver:            "step",
		protocol.CmdStepIntoMyCode:      "step",
		protocol.CmdSetNextStatement:    "goto",
		protocol.CmdStepCaughtException: "exception",
		protocol.CmdAddExceptionBreak:   "exception",
		protocol.CmdThreadSuspend:       "pause",
		protocol.CmdShowConsole:         "console",
		0:                               "",
	}
	for code, want := range cases {
		assert.Equal(t, want, StopReason(code), code.String())
	}

	h := NewHandles()
	ev := h.StoppedEvent(pydevd.ThreadInfo{ID: "t1", StopReason: protocol.CmdSetBreak, Message: "hit"}, true)
	assert.Equal(t, dap.StoppedEventBody{Reason: "breakpoint", Description: "hit", ThreadId: h.ThreadRef("t1"), AllThreadsStopped: true}, ev)
}

func TestOutput(t *testing.T) {
	now := time.Now()
	lines := Output([]pydevd.OutputEntry{
		{Seq: 1, Time: now, Kind: pydevd.OutputStdout, Text: "ok\n"},
		{Seq: 2, Time: now, Kind: pydevd.OutputStderr, Text: "warn\n"},
	})
	assert.Equal(t, []types.OutputLine{
		{Seq: 1, Time: now, Category: "stdout", Text: "ok\n"},
		{Seq: 2, Time: now, Category: "stderr", Text: "warn\n"},
	}, lines)
}

func TestSnapshot(t *testing.T) {
	ctx := testContext()
	fake := pydevdtest.New(t)

	sm := pydevd.NewSessionManager(ctx, 1, 0)
	t.Cleanup(sm.Close)
	session, err := sm.CreateSession(types.SessionModeAttach, "")
	require.NoError(t, err)

	h := NewHandles()
	snap := h.Snapshot(ctx, session, SnapshotOptions{Variables: true})
	assert.Equal(t, types.SessionStatusInitializing, snap.Status)
	assert.Empty(t, snap.Threads)

	engine := pydevd.NewEngine(ctx, pydevd.NewClientTransport(ctx, fake.Addr(), 0, 0), pydevd.EngineOptions{})
	engine.AddListener(h)
	_, err = engine.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, sm.SetSessionEngine(session.ID, engine))

	fake.ThreadEvent(protocol.CmdThreadCreate, protocol.Thread{ID: "t2", Name: "Worker"})
	fake.ThreadEvent(protocol.CmdThreadSuspend, pydevdtest.SuspendedThread("t1", protocol.CmdSetBreak,
		protocol.StackFrame{ID: "f1", Name: "main", File: "/app/main.py", Line: 9},
		protocol.StackFrame{ID: "f0", Name: "<module>", File: "/app/main.py", Line: 20},
	))
	require.Eventually(t, func() bool {
		return session.Status() == types.SessionStatusStopped && len(engine.Threads()) == 2
	}, pydevdtest.WaitTimeout, 10*time.Millisecond)

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdGetFrame, req.Code)
		fake.Reply(req, pydevdtest.VarsPayload(t, protocol.Var{Name: "x", Type: "int", Value: "1"}))
	}()
	snap = h.Snapshot(ctx, session, SnapshotOptions{Variables: true, MaxFrames: 1})

	assert.Equal(t, types.SessionStatusStopped, snap.Status)
	assert.Equal(t, "breakpoint", snap.StopReason)
	assert.Equal(t, h.ThreadRef("t1"), snap.FocusedThread)
	assert.Len(t, snap.Threads, 2)
	require.Len(t, snap.Stacks, 1, "only suspended threads have stacks")
	stack := snap.Stacks[h.ThreadRef("t1")]
	require.Len(t, stack, 1)
	assert.Equal(t, 9, stack[0].Line)
	assert.Equal(t, []dap.Variable{{Name: "x", Type: "int", Value: "1", EvaluateName: "x"}}, snap.Variables[stack[0].Id])
}

func TestBreakpoints(t *testing.T) {
	bps := Breakpoints([]pydevd.Breakpoint{{ID: 3, File: "/app/main.py", Line: 12}})
	assert.Equal(t, []dap.Breakpoint{{
		Id:       3,
		Verified: true,
		Line:     12,
		Source:   &dap.Source{Name: "main.py", Path: "/app/main.py"},
	}}, bps)
	assert.NotNil(t, Breakpoints(nil))
}
