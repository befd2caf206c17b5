package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/pydevd-mcp/internal/dapview"
	"github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/protocol"
	"github.com/ctagard/pydevd-mcp/internal/pydevd"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

const (
	defaultStepTimeout    = 10 * time.Second
	defaultRunToLineWait  = 30 * time.Second
	defaultArrayDimension = 20
	stoppedStackDepth     = 5
)

// handleDebugBreakpoints replaces the line breakpoints of one file and/or
// the exception breakpoint list.
func (s *Server) handleDebugBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path := request.GetString("path", "")
	exceptionsJSON := request.GetString("exceptions", "")
	if path == "" && exceptionsJSON == "" {
		return mcp.NewToolResultError(errors.MissingParameter("path",
			"Provide 'path' with 'breakpoints' for line breakpoints, or 'exceptions' for exception breakpoints.").Error()), nil
	}

	result := map[string]interface{}{}
	if path != "" {
		breakpointsJSON, err := request.RequireString("breakpoints")
		if err != nil {
			return mcp.NewToolResultError(errors.MissingParameter("breakpoints",
				"Provide a JSON array of breakpoints, e.g. [{\"line\": 10}]. Use [] to clear the file.").Error()), nil
		}
		var reqs []types.BreakpointRequest
		if err := json.Unmarshal([]byte(breakpointsJSON), &reqs); err != nil {
			return mcp.NewToolResultError(errors.InvalidJSON("breakpoints", err, `[{"line": 10}, {"line": 25, "condition": "x > 3"}]`).Error()), nil
		}
		for _, req := range reqs {
			if req.Line <= 0 {
				return mcp.NewToolResultError(errors.InvalidParameter("line", req.Line, "a 1-based line number").Error()), nil
			}
		}
		result["path"] = path
		result["breakpoints"] = dapview.Breakpoints(setFileBreakpoints(engine, path, reqs))
	}

	if exceptionsJSON != "" {
		var names []string
		if err := json.Unmarshal([]byte(exceptionsJSON), &names); err != nil {
			return mcp.NewToolResultError(errors.InvalidJSON("exceptions", err, `["ValueError", "KeyError"]`).Error()), nil
		}
		setExceptionBreakpoints(engine, names)
		result["exceptions"] = engine.ExceptionBreakpoints()
	}

	return jsonResult(result)
}

// setFileBreakpoints makes reqs the complete set of line breakpoints in
// path. Temporary run-to-line breakpoints are left alone.
func setFileBreakpoints(engine *pydevd.Engine, path string, reqs []types.BreakpointRequest) []pydevd.Breakpoint {
	wanted := make(map[int]bool, len(reqs))
	for _, req := range reqs {
		wanted[req.Line] = true
	}
	for _, bp := range engine.Breakpoints() {
		if bp.File == path && !bp.Temporary && !wanted[bp.Line] {
			engine.RemoveBreakpoint(bp.File, bp.Line)
		}
	}

	installed := make([]pydevd.Breakpoint, 0, len(reqs))
	for _, req := range reqs {
		installed = append(installed, engine.SetBreakpoint(pydevd.Breakpoint{
			Kind:          pydevd.BreakpointKind(req.Kind),
			File:          path,
			Line:          req.Line,
			FuncName:      req.FuncName,
			Condition:     req.Condition,
			LogExpression: req.LogMessage,
			Policy:        pydevd.ParseSuspendPolicy(req.SuspendPolicy),
		}))
	}
	return installed
}

// setExceptionBreakpoints makes names the complete set of exception
// breakpoints, each breaking on uncaught exceptions.
func setExceptionBreakpoints(engine *pydevd.Engine, names []string) {
	for _, existing := range engine.ExceptionBreakpoints() {
		if !slices.Contains(names, existing) {
			engine.RemoveExceptionBreakpoint(existing)
		}
	}
	current := engine.ExceptionBreakpoints()
	for _, name := range names {
		if name == "" || slices.Contains(current, name) {
			continue
		}
		engine.AddExceptionBreakpoint(pydevd.AddExceptionBreakpoint{Exception: name, NotifyUnhandled: true})
	}
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	stepType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("type", "Step type: 'over', 'into', 'out' or 'intoMyCode'.").Error()), nil
	}
	if stepType == "intoMyCode" {
		stepType = "into-my-code"
	}
	mode, ok := protocol.ParseStepMode(stepType)
	if !ok || mode == protocol.StepResume {
		return mcp.NewToolResultError(errors.InvalidParameter("type", stepType, "'over', 'into', 'out', or 'intoMyCode'").Error()), nil
	}

	threadID, err := state.thread(request, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if threadID == "" {
		focused, ok := stoppedThread(engine)
		if !ok {
			return mcp.NewToolResultError(errors.ThreadNotSuspended("").Error()), nil
		}
		threadID = focused.ID
	}
	info, ok := engine.Thread(threadID)
	if !ok {
		return mcp.NewToolResultError(errors.ThreadNotFound(threadID).Error()), nil
	}
	if info.State != pydevd.StateSuspended {
		return mcp.NewToolResultError(errors.ThreadNotSuspended(threadID).Error()), nil
	}

	timeout := secondsArg(request, "timeout", defaultStepTimeout)
	stopped := state.stops.next()
	engine.Resume(threadID, mode)

	outcome, err := waitForStop(ctx, engine, stopped, timeout)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := state.waitResult(outcome, timeout)
	result["type"] = mode.String()
	return jsonResult(result)
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	threadID, err := state.thread(request, pydevd.AllThreads)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine.Resume(threadID, protocol.StepResume)

	return jsonResult(map[string]interface{}{
		"status":              "running",
		"allThreadsContinued": threadID == pydevd.AllThreads,
	})
}

func (s *Server) handleDebugPause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	threadID, err := state.thread(request, pydevd.AllThreads)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if threadID == pydevd.AllThreads {
		engine.SuspendAll()
	} else {
		engine.Suspend(threadID)
	}

	return jsonResult(map[string]interface{}{
		"status": "pausing",
		"hint":   "Use debug_snapshot to see where the program stopped.",
	})
}

func (s *Server) handleDebugSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanModifyVariables() {
		return mcp.NewToolResultError(errors.PermissionDenied("modify", string(s.config.Mode)).Error()), nil
	}

	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_set_variable")

	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	table, parent, err := state.container(ctx, engine, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	children := table.Children(pydevd.NoParent)
	if parent != pydevd.NoParent {
		if children, err = engine.ExpandValue(ctx, table, parent); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	path := ""
	for _, i := range children {
		v, _ := table.Get(i)
		if v.Name == name || table.ExpressionPath(i) == name {
			path = table.ExpressionPath(i)
			break
		}
	}
	if path == "" {
		return mcp.NewToolResultError(errors.InvalidParameter("name", name, "a variable listed by debug_variables for this container").Error()), nil
	}

	v, err := engine.ChangeVariable(ctx, table.ThreadID, table.FrameID, path, value)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(dap.SetVariableResponseBody{Value: v.Value, Type: v.Type})
}

func (s *Server) handleDebugRunToLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_run_to_line")

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := request.RequireFloat("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if line < 1 {
		return mcp.NewToolResultError(errors.InvalidParameter("line", line, "a 1-based line number").Error()), nil
	}
	threadID, err := state.thread(request, pydevd.AllThreads)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timeout := secondsArg(request, "timeout", defaultRunToLineWait)
	stopped := state.stops.next()
	bp := engine.RunToLine(threadID, path, int(line))

	outcome, err := waitForStop(ctx, engine, stopped, timeout)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := state.waitResult(outcome, timeout)
	result["path"] = bp.File
	result["line"] = bp.Line
	if outcome != waitStopped {
		return jsonResult(result)
	}

	// Locals of the frame the program stopped in.
	info := state.stops.lastStop()
	if top, ok := info.TopFrame(); ok {
		table, err := engine.FrameVariables(ctx, info.ID, top.ID)
		if err == nil {
			result["locals"] = state.handles.Variables(table, table.Children(pydevd.NoParent))
		}
	}
	return jsonResult(result)
}

func (s *Server) handleDebugGetArray(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_get_array")

	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	threadID, frameID, err := state.frame(engine, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	chunk, err := engine.GetArray(ctx, pydevd.GetArray{
		ThreadID:   threadID,
		FrameID:    frameID,
		Expression: expression,
		RowOffset:  int(request.GetFloat("rowOffset", 0)),
		ColOffset:  int(request.GetFloat("colOffset", 0)),
		Rows:       int(request.GetFloat("rows", defaultArrayDimension)),
		Cols:       int(request.GetFloat("cols", defaultArrayDimension)),
		Format:     request.GetString("format", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(chunk)
}

// waitResult reports how a wait for a stop ended.
func (st *sessionState) waitResult(outcome waitOutcome, timeout time.Duration) map[string]interface{} {
	switch outcome {
	case waitStopped:
		result := st.stoppedThread(st.stops.lastStop(), stoppedStackDepth)
		result["status"] = string(types.SessionStatusStopped)
		return result
	case waitDetached:
		return map[string]interface{}{
			"status":  string(types.SessionStatusTerminated),
			"message": "the program ended or the debugger disconnected",
		}
	default:
		return map[string]interface{}{
			"status":  string(types.SessionStatusRunning),
			"message": fmt.Sprintf("no stop within %s; use debug_pause or debug_snapshot", timeout),
		}
	}
}

func secondsArg(request mcp.CallToolRequest, name string, def time.Duration) time.Duration {
	seconds := request.GetFloat(name, 0)
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}
