package pydevd

import (
	"context"
	"strings"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

// Version performs the handshake and records the interpreter version.
func (e *Engine) Version(ctx context.Context) (string, error) {
	version, err := request(ctx, e, Version{}, ParseVersion)
	if err != nil {
		return "", err
	}
	e.versionMu.Lock()
	e.interpreterVersion = version
	e.versionMu.Unlock()
	return version, nil
}

// Run lets the program start once breakpoints are installed.
func (e *Engine) Run() {
	e.Execute(Run{})
}

// ListThreads asks the interpreter for its live threads. Threads it had not
// announced yet are registered when the reply is read.
func (e *Engine) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	if _, err := request(ctx, e, ListThreads{}, ParseThreadList); err != nil {
		return nil, err
	}
	return e.threads.list(), nil
}

// SetBreakpoint installs bp and returns it with its assigned id. A breakpoint
// already present on the same line is replaced.
func (e *Engine) SetBreakpoint(bp Breakpoint) Breakpoint {
	added, old, replaced := e.breakpoints.add(bp)
	if replaced {
		e.Execute(RemoveBreakpoint{Kind: old.Kind, File: old.File, ID: old.ID})
	}
	e.Execute(SetBreakpoint{Breakpoint: added})
	e.logger.Debug("pydevd.breakpoint.set", "id", added.ID, "file", added.File, "line", added.Line, "temporary", added.Temporary)
	return added
}

// RemoveBreakpoint removes the breakpoint at file:line.
func (e *Engine) RemoveBreakpoint(file string, line int) bool {
	bp, ok := e.breakpoints.remove(file, line)
	if !ok {
		return false
	}
	e.Execute(RemoveBreakpoint{Kind: bp.Kind, File: bp.File, ID: bp.ID})
	return true
}

// Breakpoints lists installed breakpoints, temporary ones included.
func (e *Engine) Breakpoints() []Breakpoint {
	return e.breakpoints.list()
}

// AddExceptionBreakpoint installs an exception breakpoint.
func (e *Engine) AddExceptionBreakpoint(cmd AddExceptionBreakpoint) {
	e.breakpoints.addException(cmd)
	e.Execute(cmd)
}

// RemoveExceptionBreakpoint removes an exception breakpoint by exception type.
func (e *Engine) RemoveExceptionBreakpoint(exception string) bool {
	if !e.breakpoints.removeException(exception) {
		return false
	}
	e.Execute(RemoveExceptionBreakpoint{Exception: exception})
	return true
}

// ExceptionBreakpoints lists the exception types with breakpoints.
func (e *Engine) ExceptionBreakpoints() []string {
	return e.breakpoints.exceptionNames()
}

// Evaluate evaluates an expression in a frame. Eligible results are bound to
// a temp variable so that their children can be expanded later without
// re-evaluating the expression.
func (e *Engine) Evaluate(ctx context.Context, threadID, frameID, expression string) (Value, error) {
	cmd := Evaluate{ThreadID: threadID, FrameID: frameID, Expression: expression}
	created := false
	if CanSaveToTemp(expression) {
		cmd.TempName, created = e.tempVars.nameFor(threadID, frameID, expression)
	}

	v, err := request(ctx, e, cmd, ParseSingleVar)
	if err != nil || v.IsErrorOnEval {
		if created {
			e.tempVars.forget(threadID, frameID, expression)
		}
		if err != nil {
			return Value{}, err
		}
		return valueFromXML(v, NoParent), dbgerrors.RemoteFault(cmd.Code().String(), v.Value).
			WithDetails("expression", expression)
	}

	val := valueFromXML(v, NoParent)
	val.TempName = cmd.TempName
	if val.Name == "" {
		val.Name = expression
	}
	return val, nil
}

// EvaluateAsync evaluates in the background and reports the outcome to done.
func (e *Engine) EvaluateAsync(ctx context.Context, threadID, frameID, expression string, done func(Value, error)) {
	go func() {
		v, err := e.Evaluate(ctx, threadID, frameID, expression)
		done(v, err)
	}()
}

// Exec runs a statement in a frame.
func (e *Engine) Exec(ctx context.Context, threadID, frameID, statement string) (Value, error) {
	cmd := Evaluate{ThreadID: threadID, FrameID: frameID, Expression: statement, Execute: true}
	v, err := request(ctx, e, cmd, ParseSingleVar)
	if err != nil {
		return Value{}, err
	}
	e.discardValues(threadID)
	return valueFromXML(v, NoParent), nil
}

// FrameVariables returns the variable table of a frame, fetching it on first use.
func (e *Engine) FrameVariables(ctx context.Context, threadID, frameID string) (*ValueTable, error) {
	e.valuesMu.Lock()
	if t, ok := e.values[threadID][frameID]; ok {
		e.valuesMu.Unlock()
		return t, nil
	}
	e.valuesMu.Unlock()

	vars, err := request(ctx, e, GetFrame{ThreadID: threadID, FrameID: frameID}, ParseVars)
	if err != nil {
		return nil, err
	}
	table := NewValueTable(threadID, frameID)
	table.addVars(NoParent, vars)

	e.valuesMu.Lock()
	frames, ok := e.values[threadID]
	if !ok {
		frames = make(map[string]*ValueTable)
		e.values[threadID] = frames
	}
	frames[frameID] = table
	e.valuesMu.Unlock()
	return table, nil
}

// ExpandValue loads the children of node idx into table and returns their indexes.
func (e *Engine) ExpandValue(ctx context.Context, table *ValueTable, idx int) ([]int, error) {
	node, ok := table.Get(idx)
	if !ok {
		return nil, dbgerrors.InvalidParameter("index", idx, "an index into the variable table")
	}
	if !node.IsContainer {
		return nil, nil
	}
	if existing := table.Children(idx); len(existing) > 0 {
		return existing, nil
	}

	cmd := GetVariable{
		ThreadID: table.ThreadID,
		FrameID:  table.FrameID,
		Scope:    ScopeExpression,
		Path:     []string{table.ExpressionPath(idx)},
	}
	vars, err := request(ctx, e, cmd, ParseVars)
	if err != nil {
		return nil, err
	}
	return table.addVars(idx, vars), nil
}

// Children evaluates the children of an expression directly, for values that
// are not part of a frame table.
func (e *Engine) Children(ctx context.Context, threadID, frameID, expression string) ([]Value, error) {
	path := expression
	if name, ok := e.tempVars.lookup(threadID, frameID, expression); ok {
		path = name
	}
	cmd := GetVariable{ThreadID: threadID, FrameID: frameID, Scope: ScopeExpression, Path: []string{path}}
	vars, err := request(ctx, e, cmd, ParseVars)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(vars))
	for i, v := range vars {
		out[i] = valueFromXML(v, NoParent)
	}
	return out, nil
}

// GetArray fetches a rectangular slice of a container.
func (e *Engine) GetArray(ctx context.Context, cmd GetArray) (*ArrayChunk, error) {
	if cmd.Rows < 0 || cmd.Cols < 0 || cmd.RowOffset < 0 || cmd.ColOffset < 0 {
		return nil, dbgerrors.InvalidParameter("shape", []int{cmd.RowOffset, cmd.ColOffset, cmd.Rows, cmd.Cols}, "non-negative offsets and sizes")
	}
	return request(ctx, e, cmd, func(frame protocol.Frame) (*ArrayChunk, error) {
		return ParseArrayChunk(frame, cmd.RowOffset, cmd.ColOffset)
	})
}

// ChangeVariable assigns value to the variable at path and returns its new state.
func (e *Engine) ChangeVariable(ctx context.Context, threadID, frameID, path, value string) (Value, error) {
	v, err := request(ctx, e, ChangeVariable{ThreadID: threadID, FrameID: frameID, Path: path, Value: value}, ParseSingleVar)
	if err != nil {
		return Value{}, err
	}
	e.discardValues(threadID)
	if v.IsErrorOnEval {
		return valueFromXML(v, NoParent), dbgerrors.RemoteFault(protocol.CmdChangeVariable.String(), v.Value)
	}
	return valueFromXML(v, NoParent), nil
}

// Resume resumes or steps a thread (AllThreads resumes everything).
func (e *Engine) Resume(threadID string, mode protocol.StepMode) {
	if threadID == AllThreads {
		e.threads.mu.Lock()
		e.threads.suspendAll = false
		e.threads.mu.Unlock()
	}
	e.Execute(Resume{ThreadID: threadID, Mode: mode})
}

// Suspend pauses one thread.
func (e *Engine) Suspend(threadID string) {
	e.Execute(Suspend{ThreadID: threadID})
}

// SuspendAll pauses every thread; threads created meanwhile are paused as they appear.
func (e *Engine) SuspendAll() {
	e.threads.mu.Lock()
	e.threads.suspendAll = true
	e.threads.mu.Unlock()
	e.Execute(Suspend{ThreadID: AllThreads})
}

// SuspendOthers pauses every running thread except threadID.
func (e *Engine) SuspendOthers(threadID string) {
	for _, t := range e.threads.list() {
		if t.ID != threadID && t.State == StateRunning {
			e.Execute(Suspend{ThreadID: t.ID})
		}
	}
}

// SmartStepInto steps into the named call on the current line.
func (e *Engine) SmartStepInto(threadID, frameID, funcName string) {
	e.Execute(SmartStepInto{ThreadID: threadID, FrameID: frameID, FuncName: funcName})
}

// RunToLine resumes a thread until it reaches file:line, using a temporary
// breakpoint that is removed on the next suspend.
func (e *Engine) RunToLine(threadID, file string, line int) Breakpoint {
	bp := e.SetBreakpoint(Breakpoint{File: file, Line: line, Temporary: true})
	e.Resume(threadID, protocol.StepResume)
	return bp
}

// SetNextStatement moves the instruction pointer of a suspended thread.
func (e *Engine) SetNextStatement(threadID string, line int, funcName string) {
	e.Execute(SetNextStatement{ThreadID: threadID, Line: line, FuncName: funcName})
}

// LoadSource returns the source of a file as the interpreter sees it.
func (e *Engine) LoadSource(ctx context.Context, file string) (string, error) {
	return request(ctx, e, LoadSource{File: file}, ParseText)
}

// Completions lists completion proposals for prefix in a frame.
func (e *Engine) Completions(ctx context.Context, threadID, frameID, prefix string) ([]protocol.Completion, error) {
	return request(ctx, e, GetCompletions{ThreadID: threadID, FrameID: frameID, Prefix: prefix}, ParseCompletionList)
}

// Description returns the documentation of an expression.
func (e *Engine) Description(ctx context.Context, threadID, frameID, expression string) (string, error) {
	return request(ctx, e, GetDescription{ThreadID: threadID, FrameID: frameID, Expression: expression}, ParseText)
}

// ShowReturnValues toggles return value reporting.
func (e *Engine) ShowReturnValues(enabled bool) {
	e.Execute(ShowReturnValues{Enabled: enabled})
}

// LoadFullValue fetches untruncated values of several expressions.
func (e *Engine) LoadFullValue(ctx context.Context, threadID, frameID string, expressions []string) ([]Value, error) {
	vars, err := request(ctx, e, LoadFullValue{ThreadID: threadID, FrameID: frameID, Expressions: expressions}, ParseVars)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(vars))
	for i, v := range vars {
		out[i] = valueFromXML(v, NoParent)
	}
	return out, nil
}

// Referrers lists the objects referring to the value of expression.
func (e *Engine) Referrers(ctx context.Context, threadID, frameID, expression string) ([]Value, error) {
	vars, err := request(ctx, e, GetReferrers{ThreadID: threadID, FrameID: frameID, Expression: expression}, ParseVars)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(vars))
	for i, v := range vars {
		out[i] = valueFromXML(v, NoParent)
	}
	return out, nil
}

// ConsoleExec runs a line in the interactive console of a frame. more is true
// when the console needs further input to complete the statement.
func (e *Engine) ConsoleExec(ctx context.Context, threadID, frameID, line string) (bool, error) {
	text, err := request(ctx, e, ConsoleExec{ThreadID: threadID, FrameID: frameID, Line: line}, ParseText)
	if err != nil {
		return false, err
	}
	e.discardValues(threadID)
	return strings.EqualFold(strings.TrimSpace(text), "true"), nil
}

// Exit asks the interpreter to terminate the debugged program.
func (e *Engine) Exit() {
	e.Execute(Exit{})
}
