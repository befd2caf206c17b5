package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/config"
	"github.com/ctagard/pydevd-mcp/internal/protocol"
	"github.com/ctagard/pydevd-mcp/internal/pydevd/pydevdtest"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T, configure func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Protocol.ResponseTimeout = pydevdtest.WaitTimeout
	cfg.Protocol.ConnectRetries = 0
	if configure != nil {
		configure(cfg)
	}
	logger := pslog.NewWithOptions(discard{}, pslog.Options{NoColor: true})
	s := NewServer(pslog.ContextWithLogger(context.Background(), logger), cfg)
	t.Cleanup(s.Close)
	return s
}

func call(t *testing.T, handler server.ToolHandlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	content, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return content.Text
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.False(t, res.IsError, text(t, res))
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	return out
}

func mainFrame(line int) protocol.StackFrame {
	return protocol.StackFrame{ID: "f1", Name: "main", File: "/app/main.py", Line: line}
}

// attach connects a session to a fake interpreter and consumes the frames
// sent while starting it.
func attach(t *testing.T, s *Server) (string, *pydevdtest.Interpreter) {
	t.Helper()
	fake := pydevdtest.New(t)
	res := call(t, s.handleDebugAttach, map[string]any{
		"port":        float64(fake.Port()),
		"breakpoints": `{"/app/main.py": [{"line": 3, "condition": "x > 0"}]}`,
	})
	out := decode(t, res)
	assert.Equal(t, "3.2.3", out["interpreterVersion"])

	set := fake.Next()
	assert.Equal(t, protocol.CmdSetBreak, set.Code)
	assert.Equal(t, "3", set.Field(3))
	assert.Equal(t, protocol.CmdRun, fake.Next().Code)
	return out["sessionId"].(string), fake
}

func waitSessionStopped(t *testing.T, s *Server, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		session, err := s.sessionManager.GetSession(sessionID)
		return err == nil && session.Status() == types.SessionStatusStopped
	}, pydevdtest.WaitTimeout, 10*time.Millisecond)
}

func TestAttachInspectAndStep(t *testing.T) {
	s := newTestServer(t, nil)
	sessionID, fake := attach(t, s)

	list := decode(t, call(t, s.handleDebugListSessions, nil))
	require.Len(t, list["sessions"], 1)

	fake.ThreadEvent(protocol.CmdThreadSuspend, pydevdtest.SuspendedThread("t1", protocol.CmdSetBreak, mainFrame(3)))
	waitSessionStopped(t, s, sessionID)

	snap := decode(t, call(t, s.handleDebugSnapshot, map[string]any{
		"sessionId":       sessionID,
		"expandVariables": false,
	}))
	assert.Equal(t, "breakpoint", snap["stopReason"])
	assert.Len(t, snap["threads"], 1)

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdEvaluateExpression, req.Code)
		assert.Equal(t, "x", req.Field(3))
		fake.Reply(req, pydevdtest.VarsPayload(t, protocol.Var{Name: "x", Type: "int", Value: "2"}))
	}()
	eval := decode(t, call(t, s.handleDebugEvaluate, map[string]any{
		"sessionId":  sessionID,
		"expression": "x",
	}))
	assert.Equal(t, "2", eval["result"])
	assert.Equal(t, "int", eval["type"])

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdStepOver, req.Code)
		assert.Equal(t, []string{"t1"}, req.Fields)
		fake.ThreadEvent(protocol.CmdThreadSuspend, pydevdtest.SuspendedThread("t1", protocol.CmdStepOver, mainFrame(4)))
	}()
	step := decode(t, call(t, s.handleDebugStep, map[string]any{
		"sessionId": sessionID,
		"type":      "over",
	}))
	assert.Equal(t, "stopped", step["status"])
	stack := step["stack"].([]any)
	require.NotEmpty(t, stack)
	assert.EqualValues(t, 4, stack[0].(map[string]any)["line"])
	assert.Equal(t, "step", step["stopped"].(map[string]any)["reason"])

	fake.Event(protocol.CmdWriteToConsole, "1", "hello\n")
	require.Eventually(t, func() bool {
		out := decode(t, call(t, s.handleDebugOutput, map[string]any{"sessionId": sessionID}))
		return len(out["output"].([]any)) == 1
	}, pydevdtest.WaitTimeout, 10*time.Millisecond)

	done := decode(t, call(t, s.handleDebugDisconnect, map[string]any{"sessionId": sessionID}))
	assert.Equal(t, "disconnected", done["status"])
	res := call(t, s.handleDebugSnapshot, map[string]any{"sessionId": sessionID})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "not found")
}

func TestBreakpointsReplaceFileSet(t *testing.T) {
	s := newTestServer(t, nil)
	sessionID, fake := attach(t, s)

	out := decode(t, call(t, s.handleDebugBreakpoints, map[string]any{
		"sessionId":   sessionID,
		"path":        "/app/main.py",
		"breakpoints": `[{"line": 7, "suspendPolicy": "all"}]`,
		"exceptions":  `["ValueError"]`,
	}))

	remove := fake.Next()
	assert.Equal(t, protocol.CmdRemoveBreak, remove.Code, "line 3 is no longer wanted")
	set := fake.Next()
	assert.Equal(t, protocol.CmdSetBreak, set.Code)
	assert.Equal(t, "7", set.Field(3))
	assert.Equal(t, "ALL", set.Field(5))
	exc := fake.Next()
	assert.Equal(t, protocol.CmdAddExceptionBreak, exc.Code)
	assert.Equal(t, "ValueError", exc.Field(0))

	bps := out["breakpoints"].([]any)
	require.Len(t, bps, 1)
	assert.EqualValues(t, 7, bps[0].(map[string]any)["line"])
	assert.Equal(t, []any{"ValueError"}, out["exceptions"])

	res := call(t, s.handleDebugBreakpoints, map[string]any{
		"sessionId":   sessionID,
		"path":        "/app/main.py",
		"breakpoints": `[{"line": 0}]`,
	})
	assert.True(t, res.IsError)
}

func TestRunToLineReturnsLocals(t *testing.T) {
	s := newTestServer(t, nil)
	sessionID, fake := attach(t, s)

	go func() {
		set := fake.Next()
		assert.Equal(t, protocol.CmdSetBreak, set.Code)
		assert.Equal(t, "12", set.Field(3))
		resume := fake.Next()
		assert.Equal(t, protocol.CmdThreadRun, resume.Code)
		fake.ThreadEvent(protocol.CmdThreadSuspend, pydevdtest.SuspendedThread("t1", protocol.CmdSetBreak, mainFrame(12)))

		remove := fake.Next()
		assert.Equal(t, protocol.CmdRemoveBreak, remove.Code, "the temporary breakpoint goes on stop")
		frame := fake.Next()
		assert.Equal(t, protocol.CmdGetFrame, frame.Code)
		fake.Reply(frame, pydevdtest.VarsPayload(t, protocol.Var{Name: "total", Type: "int", Value: "42"}))
	}()

	out := decode(t, call(t, s.handleDebugRunToLine, map[string]any{
		"sessionId": sessionID,
		"path":      "/app/main.py",
		"line":      float64(12),
	}))
	assert.Equal(t, "stopped", out["status"])
	locals := out["locals"].([]any)
	require.Len(t, locals, 1)
	assert.Equal(t, "total", locals[0].(map[string]any)["name"])
	assert.Equal(t, "42", locals[0].(map[string]any)["value"])
}

func TestSetVariableByFrameLocal(t *testing.T) {
	s := newTestServer(t, nil)
	sessionID, fake := attach(t, s)
	fake.ThreadEvent(protocol.CmdThreadSuspend, pydevdtest.SuspendedThread("t1", protocol.CmdSetBreak, mainFrame(3)))
	waitSessionStopped(t, s, sessionID)

	go func() {
		frame := fake.Next()
		assert.Equal(t, protocol.CmdGetFrame, frame.Code)
		fake.Reply(frame, pydevdtest.VarsPayload(t, protocol.Var{Name: "count", Type: "int", Value: "1"}))
		change := fake.Next()
		assert.Equal(t, protocol.CmdChangeVariable, change.Code)
		fake.Reply(change, pydevdtest.VarsPayload(t, protocol.Var{Name: "count", Type: "int", Value: "5"}))
	}()
	out := decode(t, call(t, s.handleDebugSetVariable, map[string]any{
		"sessionId": sessionID,
		"name":      "count",
		"value":     "5",
	}))
	assert.Equal(t, "5", out["value"])
}

func TestPermissionsAndValidation(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.AllowExecute = false
		cfg.AllowSpawn = false
	})

	res := call(t, s.handleDebugLaunch, map[string]any{"program": "main.py"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "spawn is not permitted")

	res = call(t, s.handleDebugEvaluate, map[string]any{"sessionId": "x", "expression": "1"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "evaluate is not permitted")

	res = call(t, s.handleDebugSnapshot, map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "sessionId")

	res = call(t, s.handleDebugAttach, map[string]any{"port": float64(70000)})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "port")
}

func TestLaunchNeedsProgram(t *testing.T) {
	s := newTestServer(t, nil)

	res := call(t, s.handleDebugLaunch, map[string]any{"args": `["a"]`})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "program")

	res = call(t, s.handleDebugLaunch, map[string]any{"program": "main.py", "args": `not json`})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), `parameter "args" is not valid JSON`)
	assert.Empty(t, s.sessionManager.ListSessions(), "nothing is created for bad arguments")
}

func TestAttachFromLaunchConfiguration(t *testing.T) {
	s := newTestServer(t, nil)
	fake := pydevdtest.New(t)

	workspace := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workspace, ".vscode"), 0o755))
	launchJSON := fmt.Sprintf(`{
  "version": "0.2.0",
  "configurations": [
    {"type": "python", "request": "launch", "name": "Run", "program": "${workspaceFolder}/main.py"},
    {"type": "python", "request": "attach", "name": "Attach", "connect": {"host": "127.0.0.1", "port": %d}}
  ]
}`, fake.Port())
	require.NoError(t, os.WriteFile(filepath.Join(workspace, ".vscode", "launch.json"), []byte(launchJSON), 0o644))

	res := call(t, s.handleDebugAttach, map[string]any{"workspace": workspace, "configName": "Run"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "use debug_launch")

	res = call(t, s.handleDebugAttach, map[string]any{"workspace": workspace, "configName": "Missing"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "Available configurations: Run, Attach")

	out := decode(t, call(t, s.handleDebugAttach, map[string]any{"workspace": workspace, "configName": "Attach"}))
	assert.Equal(t, fmt.Sprintf("127.0.0.1:%d", fake.Port()), out["address"])
	assert.Equal(t, protocol.CmdRun, fake.Next().Code)
}

func TestInterpreterTooOldEndsSession(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Python.MinVersion = "9.0"
	})
	fake := pydevdtest.New(t)

	res := call(t, s.handleDebugAttach, map[string]any{"port": float64(fake.Port())})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "older than the minimum")
	assert.Empty(t, s.sessionManager.ListSessions())
}

func TestVariablesArrayContinueAndPause(t *testing.T) {
	s := newTestServer(t, nil)
	sessionID, fake := attach(t, s)

	fake.ThreadEvent(protocol.CmdThreadSuspend, pydevdtest.SuspendedThread("t1", protocol.CmdSetBreak, mainFrame(3)))
	waitSessionStopped(t, s, sessionID)

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdGetFrame, req.Code)
		fake.Reply(req, pydevdtest.VarsPayload(t,
			protocol.Var{Name: "items", Type: "list", Value: "[1, 2]", IsContainer: true},
			protocol.Var{Name: "n", Type: "int", Value: "2"},
		))
	}()
	locals := decode(t, call(t, s.handleDebugVariables, map[string]any{"sessionId": sessionID}))
	vars := locals["variables"].([]any)
	require.Len(t, vars, 2)
	items := vars[0].(map[string]any)
	assert.Equal(t, "items", items["name"])
	ref, ok := items["variablesReference"].(float64)
	require.True(t, ok, "containers get a handle")
	assert.Positive(t, ref)
	assert.EqualValues(t, 0, vars[1].(map[string]any)["variablesReference"], "scalars have no handle")

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdGetVariable, req.Code)
		fake.Reply(req, pydevdtest.VarsPayload(t,
			protocol.Var{Name: "0", Type: "int", Value: "1"},
			protocol.Var{Name: "1", Type: "int", Value: "2"},
		))
	}()
	children := decode(t, call(t, s.handleDebugVariables, map[string]any{
		"sessionId":          sessionID,
		"variablesReference": ref,
	}))
	require.Len(t, children["variables"], 2)

	res := call(t, s.handleDebugVariables, map[string]any{"sessionId": sessionID, "variablesReference": float64(9999)})
	assert.True(t, res.IsError)

	go func() {
		req := fake.Next()
		assert.Equal(t, protocol.CmdGetArray, req.Code)
		assert.Equal(t, "matrix", req.Field(8))
		assert.Equal(t, "2", req.Field(5), "rows")
		payload, err := protocol.MarshalDocument(&protocol.Document{Array: &protocol.Array{
			Slice: "matrix", Rows: 1, Cols: 2,
			Cells: []protocol.ArrayCell{{Row: 0, Col: 0, Value: "1.5"}, {Row: 0, Col: 1, Value: "2.5"}},
		}})
		assert.NoError(t, err)
		fake.Reply(req, payload)
	}()
	chunk := decode(t, call(t, s.handleDebugGetArray, map[string]any{
		"sessionId":  sessionID,
		"expression": "matrix",
		"rows":       float64(2),
		"cols":       float64(2),
	}))
	assert.Equal(t, []any{[]any{"1.5", "2.5"}}, chunk["data"])

	cont := decode(t, call(t, s.handleDebugContinue, map[string]any{"sessionId": sessionID}))
	assert.Equal(t, "running", cont["status"])
	assert.Equal(t, true, cont["allThreadsContinued"])
	run := fake.Next()
	assert.Equal(t, protocol.CmdThreadRun, run.Code)
	assert.Equal(t, []string{"*"}, run.Fields)

	pause := decode(t, call(t, s.handleDebugPause, map[string]any{"sessionId": sessionID}))
	assert.Equal(t, "pausing", pause["status"])
	suspend := fake.Next()
	assert.Equal(t, protocol.CmdThreadSuspend, suspend.Code)
	assert.Equal(t, []string{"*"}, suspend.Fields)
}
