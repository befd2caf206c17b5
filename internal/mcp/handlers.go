package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"
	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/dapview"
	"github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/launchconfig"
	"github.com/ctagard/pydevd-mcp/internal/pydevd"
	"github.com/ctagard/pydevd-mcp/internal/version"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

const defaultStackDepth = 10

// Session Management Handlers

func (s *Server) handleDebugLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanSpawn() {
		return mcp.NewToolResultError(errors.PermissionDenied("spawn", string(s.config.Mode)).Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_launch")

	req, err := launchRequestFromArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if configName := request.GetString("configName", ""); configName != "" {
		cfg, err := s.resolveConfig(request, configName)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !cfg.IsLaunchRequest() {
			return mcp.NewToolResultError(errors.ConfigInvalid(configName, "this is an attach configuration, use debug_attach instead").Error()), nil
		}
		req = cfg.LaunchRequest()
	}
	if req.Program == "" && req.Module == "" {
		return mcp.NewToolResultError(errors.MissingParameter("program",
			"Provide 'program' (a script path), 'module', or 'configName' referencing a launch.json configuration.").Error()), nil
	}

	breakpoints, err := parseBreakpointMap(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	target := req.Program
	if target == "" {
		target = req.Module
	}
	session, err := s.sessionManager.CreateSession(types.SessionModeLaunch, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	proc, err := s.launcher.Launch(ctx, req)
	if err != nil {
		_ = s.sessionManager.TerminateSession(session.ID, false)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.sessionManager.SetSessionProcess(session.ID, proc.Cmd, proc.Stdin()); err != nil {
		_ = proc.Engine.Close()
		_ = proc.Cmd.Process.Kill()
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.bindEngine(session, proc.Engine, proc.Version); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state := s.track(session)
	s.start(ctx, state, breakpoints, req.StopOnEntry)

	pslog.Ctx(ctx).Info("mcp.session.launched", "session", session.ID, "program", target, "pid", proc.PID(), "pydevd", proc.Version)
	return jsonResult(map[string]interface{}{
		"sessionId":          session.ID,
		"status":             string(session.Status()),
		"pid":                proc.PID(),
		"python":             proc.Python,
		"interpreterVersion": proc.Version,
		"program":            target,
	})
}

func (s *Server) handleDebugAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanAttach() {
		return mcp.NewToolResultError(errors.PermissionDenied("attach", string(s.config.Mode)).Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_attach")

	req := types.AttachRequest{Host: request.GetString("host", "127.0.0.1")}
	if port, err := request.RequireFloat("port"); err == nil {
		req.Port = int(port)
	}
	if configName := request.GetString("configName", ""); configName != "" {
		cfg, err := s.resolveConfig(request, configName)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !cfg.IsAttachRequest() {
			return mcp.NewToolResultError(errors.ConfigInvalid(configName, "this is a launch configuration, use debug_launch instead").Error()), nil
		}
		req = cfg.AttachRequest()
	}
	if req.Port <= 0 || req.Port > 65535 {
		return mcp.NewToolResultError(errors.InvalidParameter("port", req.Port, "the TCP port the pydevd server listens on (1-65535)").Error()), nil
	}

	breakpoints, err := parseBreakpointMap(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	address := net.JoinHostPort(req.Host, strconv.Itoa(req.Port))
	session, err := s.sessionManager.CreateSession(types.SessionModeAttach, address)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	protocolCfg := s.config.Protocol
	transport := pydevd.NewClientTransport(ctx, address, protocolCfg.ConnectRetries, protocolCfg.ConnectDelay)
	engine := pydevd.NewEngine(ctx, transport, pydevd.EngineOptions{
		ResponseTimeout: protocolCfg.ResponseTimeout,
		OutputLines:     s.config.OutputLines,
	})
	pydevdVersion, err := engine.Connect(ctx)
	if err != nil {
		_ = engine.Close()
		_ = s.sessionManager.TerminateSession(session.ID, false)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.bindEngine(session, engine, pydevdVersion); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state := s.track(session)
	s.start(ctx, state, breakpoints, false)

	pslog.Ctx(ctx).Info("mcp.session.attached", "session", session.ID, "address", address, "pydevd", pydevdVersion)
	return jsonResult(map[string]interface{}{
		"sessionId":          session.ID,
		"status":             string(session.Status()),
		"address":            address,
		"interpreterVersion": pydevdVersion,
	})
}

// bindEngine attaches a connected engine to its session after checking the
// interpreter version. A too old interpreter ends the session.
func (s *Server) bindEngine(session *pydevd.Session, engine *pydevd.Engine, pydevdVersion string) error {
	if err := s.sessionManager.SetSessionEngine(session.ID, engine); err != nil {
		_ = engine.Close()
		return err
	}
	if err := version.CheckInterpreter(pydevdVersion, s.config.Python.MinVersion); err != nil {
		_ = s.sessionManager.TerminateSession(session.ID, true)
		return err
	}
	return nil
}

// start installs the initial breakpoints and lets the program run.
func (s *Server) start(ctx context.Context, state *sessionState, breakpoints map[string][]types.BreakpointRequest, stopOnEntry bool) {
	engine := state.session.Engine()
	for path, bps := range breakpoints {
		setFileBreakpoints(engine, path, bps)
	}
	engine.Run()
	if stopOnEntry {
		engine.SuspendAll()
	}
	pslog.Ctx(ctx).Debug("mcp.session.started", "session", state.session.ID, "breakpointFiles", len(breakpoints), "stopOnEntry", stopOnEntry)
}

func (s *Server) handleDebugDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	terminateDebuggee := request.GetBool("terminateDebuggee", false)

	if err := s.sessionManager.TerminateSession(sessionID, terminateDebuggee); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.forget(sessionID)

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessionManager.ListSessions()

	result := make([]types.SessionInfo, len(sessions))
	for i, session := range sessions {
		result[i] = session.GetInfo()
	}

	return jsonResult(map[string]interface{}{
		"sessions": result,
	})
}

// Inspection Handlers

func (s *Server) handleDebugSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_snapshot")

	opts := dapview.SnapshotOptions{
		Variables: request.GetBool("expandVariables", true),
		MaxFrames: int(request.GetFloat("maxStackDepth", defaultStackDepth)),
	}
	return jsonResult(state.handles.Snapshot(ctx, state.session, opts))
}

func (s *Server) handleDebugVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_variables")

	table, parent, err := state.container(ctx, engine, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	children := table.Children(pydevd.NoParent)
	if parent != pydevd.NoParent {
		children, err = engine.ExpandValue(ctx, table, parent)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	return jsonResult(map[string]interface{}{
		"variables": state.handles.Variables(table, children),
	})
}

// handleDebugEvaluate consolidates single and batch expression evaluation
// and the statement, console and stdin contexts.
func (s *Server) handleDebugEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanEvaluate() {
		return mcp.NewToolResultError(errors.PermissionDenied("evaluate", string(s.config.Mode)).Error()), nil
	}

	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	engine, err := state.connected()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ctx = s.toolContext(ctx, "debug_evaluate")

	evalContext := request.GetString("context", "watch")

	// stdin needs no frame: the text goes to the program, not the debugger
	if evalContext == "stdin" {
		text, err := request.RequireString("expression")
		if err != nil {
			return mcp.NewToolResultError(errors.MissingParameter("expression", "Provide the text to write to the program's standard input.").Error()), nil
		}
		if err := state.session.WriteInput(text + "\n"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{"status": "sent", "bytes": len(text) + 1})
	}

	threadID, frameID, err := state.frame(engine, request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Check for batch mode first
	if expressionsJSON := request.GetString("expressions", ""); expressionsJSON != "" {
		var expressions []string
		if err := json.Unmarshal([]byte(expressionsJSON), &expressions); err != nil {
			return mcp.NewToolResultError(errors.InvalidJSON("expressions", err, `["x", "y", "len(arr)"]`).Error()), nil
		}

		results := make([]map[string]interface{}, len(expressions))
		for i, expr := range expressions {
			v, err := engine.Evaluate(ctx, threadID, frameID, expr)
			if err != nil {
				results[i] = map[string]interface{}{
					"expression": expr,
					"error":      err.Error(),
				}
				continue
			}
			eval := state.handles.Evaluation(threadID, frameID, expr, v)
			results[i] = map[string]interface{}{
				"expression":         expr,
				"result":             eval.Result,
				"type":               eval.Type,
				"variablesReference": eval.VariablesReference,
			}
		}

		return jsonResult(map[string]interface{}{
			"evaluations": results,
			"frameId":     state.handles.FrameRef(threadID, frameID),
		})
	}

	// Single expression mode
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("expression",
			"Provide either 'expression' for a single evaluation (e.g., \"x + y\") or 'expressions' for batch evaluation (e.g., [\"x\", \"y\"]).").Error()), nil
	}

	var v pydevd.Value
	switch evalContext {
	case "watch", "hover":
		v, err = engine.Evaluate(ctx, threadID, frameID, expression)
	case "repl":
		v, err = engine.Exec(ctx, threadID, frameID, expression)
	case "console":
		more, err := engine.ConsoleExec(ctx, threadID, frameID, expression)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]interface{}{"more": more})
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("context", evalContext, "'watch', 'hover', 'repl', 'console' or 'stdin'").Error()), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(state.handles.Evaluation(threadID, frameID, expression, v))
}

func (s *Server) handleDebugOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state, err := s.getSessionState(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := state.session.Engine().Output()
	since := int64(request.GetFloat("since", 0))
	return jsonResult(map[string]interface{}{
		"output": dapview.Output(out.Since(since)),
		"last":   out.Last(),
	})
}

// Helpers

func (s *Server) getSessionState(request mcp.CallToolRequest) (*sessionState, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, errors.MissingParameter("sessionId", "Provide the sessionId returned from debug_launch or debug_attach. Use debug_list_sessions to see active sessions.")
	}
	return s.state(sessionID)
}

// stoppedThread returns the focused thread, or the first stopped thread when
// nothing has focus.
func stoppedThread(engine *pydevd.Engine) (pydevd.ThreadInfo, bool) {
	if info, ok := engine.FocusedThread(); ok {
		return info, true
	}
	for _, t := range engine.Threads() {
		if t.State == pydevd.StateSuspended {
			return t, true
		}
	}
	return pydevd.ThreadInfo{}, false
}

// frame resolves the frameId argument, defaulting to the top frame of the
// focused thread, or of any stopped thread when nothing has focus.
func (st *sessionState) frame(engine *pydevd.Engine, request mcp.CallToolRequest) (threadID, frameID string, err error) {
	if ref, err := request.RequireFloat("frameId"); err == nil {
		threadID, frameID, ok := st.handles.Frame(int(ref))
		if !ok {
			return "", "", errors.InvalidParameter("frameId", int(ref), "a frame id from the current stop (see debug_snapshot)")
		}
		return threadID, frameID, nil
	}

	info, ok := stoppedThread(engine)
	if !ok {
		return "", "", errors.ThreadNotSuspended("")
	}
	top, ok := info.TopFrame()
	if !ok {
		return "", "", errors.ThreadNotSuspended(info.ID)
	}
	return info.ID, top.ID, nil
}

// thread resolves the threadId argument; def is returned when it is absent.
func (st *sessionState) thread(request mcp.CallToolRequest, def string) (string, error) {
	ref, err := request.RequireFloat("threadId")
	if err != nil {
		return def, nil
	}
	id, ok := st.handles.ThreadID(int(ref))
	if !ok {
		return "", errors.ThreadNotFound(strconv.Itoa(int(ref)))
	}
	return id, nil
}

// container resolves variablesReference to a value table node, or frameId
// (default: the focused frame) to the root of the frame's table.
func (st *sessionState) container(ctx context.Context, engine *pydevd.Engine, request mcp.CallToolRequest) (*pydevd.ValueTable, int, error) {
	if ref, err := request.RequireFloat("variablesReference"); err == nil {
		table, index, ok := st.handles.Variable(int(ref))
		if !ok {
			return nil, 0, errors.InvalidParameter("variablesReference", int(ref), "a variablesReference from the current stop (see debug_snapshot)")
		}
		return table, index, nil
	}
	threadID, frameID, err := st.frame(engine, request)
	if err != nil {
		return nil, 0, err
	}
	table, err := engine.FrameVariables(ctx, threadID, frameID)
	if err != nil {
		return nil, 0, err
	}
	return table, pydevd.NoParent, nil
}

// resolveConfig loads and resolves a named launch.json configuration,
// applying direct tool arguments as overrides.
func (s *Server) resolveConfig(request mcp.CallToolRequest, configName string) (*launchconfig.Configuration, error) {
	workspace := request.GetString("workspace", "")
	configPath := request.GetString("configPath", "")

	var lj *launchconfig.LaunchJSON
	var err error
	switch {
	case configPath != "":
		lj, err = launchconfig.LoadFromPath(configPath)
	case workspace != "":
		lj, configPath, err = launchconfig.LoadAndDiscover(workspace)
	default:
		return nil, errors.MissingParameter("workspace", "Provide 'workspace' or 'configPath' when using configName.")
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigNotFound, fmt.Sprintf("failed to load launch.json: %v", err),
			"Check that the workspace contains .vscode/launch.json or pass configPath.", err)
	}

	cfg, err := launchconfig.FindConfiguration(lj, configName)
	if err != nil {
		return nil, err
	}

	resCtx := &launchconfig.ResolutionContext{WorkspaceFolder: workspace}
	if resCtx.WorkspaceFolder == "" {
		resCtx.WorkspaceFolder = launchconfig.GetWorkspaceFolder(configPath)
	}
	if inputValuesJSON := request.GetString("inputValues", ""); inputValuesJSON != "" {
		var inputValues map[string]string
		if err := json.Unmarshal([]byte(inputValuesJSON), &inputValues); err != nil {
			return nil, errors.InvalidJSON("inputValues", err, `{"testFile": "test_main.py"}`)
		}
		resCtx.InputValues = inputValues
	}

	if cfg.IsLaunchRequest() {
		overrides, err := launchRequestFromArgs(request)
		if err != nil {
			return nil, err
		}
		cfg = launchconfig.MergeOverrides(cfg, overrides)
	}

	resolved, err := launchconfig.Resolve(cfg, resCtx)
	if err != nil {
		if missingErr, ok := launchconfig.IsMissingInputsError(err); ok {
			return nil, errors.MissingParameter("inputValues",
				fmt.Sprintf("launch.json needs values for %v. Provide them via the inputValues parameter.", missingErr.Inputs))
		}
		return nil, err
	}
	return resolved, nil
}

func launchRequestFromArgs(request mcp.CallToolRequest) (types.LaunchRequest, error) {
	req := types.LaunchRequest{
		Program:      request.GetString("program", ""),
		Module:       request.GetString("module", ""),
		Cwd:          request.GetString("cwd", ""),
		Python:       request.GetString("python", request.GetString("pythonPath", "")),
		StopOnEntry:  request.GetBool("stopOnEntry", false),
		Multiprocess: request.GetBool("multiprocess", false),
	}
	if raw := request.GetString("args", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Args); err != nil {
			return req, errors.InvalidJSON("args", err, `["--verbose", "input.txt"]`)
		}
	}
	if raw := request.GetString("env", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Env); err != nil {
			return req, errors.InvalidJSON("env", err, `{"DEBUG": "1"}`)
		}
	}
	return req, nil
}

func parseBreakpointMap(request mcp.CallToolRequest) (map[string][]types.BreakpointRequest, error) {
	raw := request.GetString("breakpoints", "")
	if raw == "" {
		return nil, nil
	}
	var bps map[string][]types.BreakpointRequest
	if err := json.Unmarshal([]byte(raw), &bps); err != nil {
		return nil, errors.InvalidJSON("breakpoints", err, `{"/app/main.py": [{"line": 10}, {"line": 25, "condition": "x > 3"}]}`)
	}
	return bps, nil
}

// stoppedThread describes the thread a wait ended on, with its top frames.
func (st *sessionState) stoppedThread(info pydevd.ThreadInfo, maxFrames int) map[string]interface{} {
	frames := st.handles.StackFrames(info)
	if maxFrames > 0 && len(frames) > maxFrames {
		frames = frames[:maxFrames]
	}
	if frames == nil {
		frames = []dap.StackFrame{}
	}
	return map[string]interface{}{
		"stopped": st.handles.StoppedEvent(info, false),
		"stack":   frames,
	}
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
