package pydevd

import (
	"runtime"
	"strconv"
	"strings"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

// ProtocolVersion is announced in the version handshake.
const ProtocolVersion = "1.1"

// AllThreads addresses every thread in suspend and resume commands.
const AllThreads = "*"

// Scope prefixes understood by frame-scoped commands.
const (
	ScopeFrame      = "FRAME"
	ScopeGlobal     = "GLOBAL"
	ScopeExpression = "EXPRESSION"
)

// Command is one protocol verb. The set of implementations is closed.
type Command interface {
	Code() protocol.Code
	// Fields returns the ordered payload, scope prefix first.
	Fields() []string
	ExpectsResponse() bool
	isCommand()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func noneIfEmpty(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

// Version is the mandatory first command of every session.
type Version struct {
	Protocol string
	Platform string
}

func (Version) isCommand()            {}
func (Version) Code() protocol.Code   { return protocol.CmdVersion }
func (Version) ExpectsResponse() bool { return true }
func (c Version) Fields() []string {
	proto := c.Protocol
	if proto == "" {
		proto = ProtocolVersion
	}
	platform := c.Platform
	if platform == "" {
		platform = "UNIX"
		if runtime.GOOS == "windows" {
			platform = "WINDOWS"
		}
	}
	return []string{proto, platform, "ID"}
}

// ParseVersion returns the interpreter version carried by the handshake reply.
func ParseVersion(frame protocol.Frame) (string, error) {
	v := strings.TrimSpace(frame.Payload())
	if v == "" {
		return "", dbgerrors.ProtocolError("empty version reply", nil)
	}
	return v, nil
}

// Run tells the interpreter that configuration is done and the program may start.
type Run struct{}

func (Run) isCommand()            {}
func (Run) Code() protocol.Code   { return protocol.CmdRun }
func (Run) ExpectsResponse() bool { return false }
func (Run) Fields() []string      { return nil }

// ListThreads asks for every live thread.
type ListThreads struct{}

func (ListThreads) isCommand()            {}
func (ListThreads) Code() protocol.Code   { return protocol.CmdListThreads }
func (ListThreads) ExpectsResponse() bool { return true }
func (ListThreads) Fields() []string      { return nil }

// ParseThreadList converts a thread list reply.
func ParseThreadList(frame protocol.Frame) ([]ThreadInfo, error) {
	doc, err := protocol.ParseDocument(frame.Payload())
	if err != nil {
		return nil, dbgerrors.ProtocolError("thread list", err)
	}
	out := make([]ThreadInfo, 0, len(doc.Threads))
	for _, t := range doc.Threads {
		out = append(out, threadFromXML(t, StateRunning))
	}
	return out, nil
}

// SetBreakpoint installs a line breakpoint. Condition and LogExpression are
// free-form and may span lines.
type SetBreakpoint struct {
	Breakpoint Breakpoint
}

func (SetBreakpoint) isCommand()            {}
func (SetBreakpoint) Code() protocol.Code   { return protocol.CmdSetBreak }
func (SetBreakpoint) ExpectsResponse() bool { return false }
func (c SetBreakpoint) Fields() []string {
	bp := c.Breakpoint
	return []string{
		strconv.Itoa(bp.ID),
		string(bp.kind()),
		bp.File,
		strconv.Itoa(bp.Line),
		noneIfEmpty(bp.FuncName),
		bp.Policy.String(),
		noneIfEmpty(protocol.EncodeExpression(bp.Condition)),
		noneIfEmpty(protocol.EncodeExpression(bp.LogExpression)),
	}
}

// RemoveBreakpoint removes a previously installed breakpoint by id.
type RemoveBreakpoint struct {
	Kind BreakpointKind
	File string
	ID   int
}

func (RemoveBreakpoint) isCommand()            {}
func (RemoveBreakpoint) Code() protocol.Code   { return protocol.CmdRemoveBreak }
func (RemoveBreakpoint) ExpectsResponse() bool { return false }
func (c RemoveBreakpoint) Fields() []string {
	kind := c.Kind
	if kind == "" {
		kind = KindPythonLine
	}
	return []string{string(kind), c.File, strconv.Itoa(c.ID)}
}

// AddExceptionBreakpoint suspends when an exception of the given type is raised.
type AddExceptionBreakpoint struct {
	Exception       string
	Condition       string
	LogExpression   string
	NotifyHandled   bool
	NotifyUnhandled bool
	IgnoreLibraries bool
}

func (AddExceptionBreakpoint) isCommand()            {}
func (AddExceptionBreakpoint) Code() protocol.Code   { return protocol.CmdAddExceptionBreak }
func (AddExceptionBreakpoint) ExpectsResponse() bool { return false }
func (c AddExceptionBreakpoint) Fields() []string {
	return []string{
		c.Exception,
		noneIfEmpty(protocol.EncodeExpression(c.Condition)),
		noneIfEmpty(protocol.EncodeExpression(c.LogExpression)),
		boolField(c.NotifyHandled),
		boolField(c.NotifyUnhandled),
		boolField(c.IgnoreLibraries),
	}
}

// RemoveExceptionBreakpoint removes an exception breakpoint.
type RemoveExceptionBreakpoint struct {
	Exception string
}

func (RemoveExceptionBreakpoint) isCommand()            {}
func (RemoveExceptionBreakpoint) Code() protocol.Code   { return protocol.CmdRemoveExceptionBreak }
func (RemoveExceptionBreakpoint) ExpectsResponse() bool { return false }
func (c RemoveExceptionBreakpoint) Fields() []string    { return []string{c.Exception} }

// Evaluate evaluates (or, with Execute, runs) an expression in a frame. When
// TempName is set the interpreter binds the result to that name.
type Evaluate struct {
	ThreadID   string
	FrameID    string
	Expression string
	Execute    bool
	TempName   string
}

func (Evaluate) isCommand()            {}
func (Evaluate) ExpectsResponse() bool { return true }
func (c Evaluate) Code() protocol.Code {
	if c.Execute {
		return protocol.CmdExecExpression
	}
	return protocol.CmdEvaluateExpression
}
func (c Evaluate) Fields() []string {
	fields := []string{c.ThreadID, c.FrameID, ScopeFrame, c.Expression, boolField(c.Execute)}
	if c.TempName != "" {
		fields = append(fields, c.TempName)
	}
	return fields
}

// GetFrame lists the variables of a frame.
type GetFrame struct {
	ThreadID string
	FrameID  string
}

func (GetFrame) isCommand()            {}
func (GetFrame) Code() protocol.Code   { return protocol.CmdGetFrame }
func (GetFrame) ExpectsResponse() bool { return true }
func (c GetFrame) Fields() []string    { return []string{c.ThreadID, c.FrameID, ScopeFrame} }

// GetVariable lists the children of a value. With ScopeExpression, Path holds
// a single evaluable expression; otherwise it is the attribute chain.
type GetVariable struct {
	ThreadID string
	FrameID  string
	Scope    string
	Path     []string
}

func (GetVariable) isCommand()            {}
func (GetVariable) Code() protocol.Code   { return protocol.CmdGetVariable }
func (GetVariable) ExpectsResponse() bool { return true }
func (c GetVariable) Fields() []string {
	scope := c.Scope
	if scope == "" {
		scope = ScopeFrame
	}
	return append([]string{c.ThreadID, c.FrameID, scope}, c.Path...)
}

// ParseVars converts a reply carrying value nodes.
func ParseVars(frame protocol.Frame) ([]protocol.Var, error) {
	vars, err := protocol.ParseVariables(frame.Payload())
	if err != nil {
		return nil, dbgerrors.ProtocolError("variables", err)
	}
	return vars, nil
}

// ParseSingleVar converts an evaluation reply, which carries exactly one node.
func ParseSingleVar(frame protocol.Frame) (protocol.Var, error) {
	vars, err := ParseVars(frame)
	if err != nil {
		return protocol.Var{}, err
	}
	if len(vars) == 0 {
		return protocol.Var{}, dbgerrors.ProtocolError("evaluation reply carries no value", nil)
	}
	return vars[0], nil
}

// GetArray requests a rectangular slice of a container.
type GetArray struct {
	ThreadID   string
	FrameID    string
	Expression string
	RowOffset  int
	ColOffset  int
	Rows       int
	Cols       int
	Format     string
}

func (GetArray) isCommand()            {}
func (GetArray) Code() protocol.Code   { return protocol.CmdGetArray }
func (GetArray) ExpectsResponse() bool { return true }
func (c GetArray) Fields() []string {
	format := c.Format
	if format == "" {
		format = "%"
	}
	return []string{
		c.ThreadID, c.FrameID, ScopeFrame,
		strconv.Itoa(c.RowOffset), strconv.Itoa(c.ColOffset),
		strconv.Itoa(c.Rows), strconv.Itoa(c.Cols),
		format, c.Expression,
	}
}

// ArrayChunk is one slice of a container, Data indexed [row][col] relative to
// the requested offsets.
type ArrayChunk struct {
	Slice     string     `json:"slice"`
	RowOffset int        `json:"rowOffset"`
	ColOffset int        `json:"colOffset"`
	Rows      int        `json:"rows"`
	Cols      int        `json:"cols"`
	Format    string     `json:"format,omitempty"`
	Type      string     `json:"type,omitempty"`
	Max       string     `json:"max,omitempty"`
	Min       string     `json:"min,omitempty"`
	Data      [][]string `json:"data"`
}

// ParseArrayChunk converts a get-array reply. Cells outside the announced
// shape are rejected.
func ParseArrayChunk(frame protocol.Frame, rowOffset, colOffset int) (*ArrayChunk, error) {
	arr, err := protocol.ParseArray(frame.Payload())
	if err != nil {
		return nil, dbgerrors.ProtocolError("array", err)
	}
	if arr.Rows < 0 || arr.Cols < 0 {
		return nil, dbgerrors.ProtocolError("array with negative shape", nil)
	}
	chunk := &ArrayChunk{
		Slice:     arr.Slice,
		RowOffset: rowOffset,
		ColOffset: colOffset,
		Rows:      arr.Rows,
		Cols:      arr.Cols,
		Format:    arr.Format,
		Type:      arr.Type,
		Max:       arr.Max,
		Min:       arr.Min,
		Data:      make([][]string, arr.Rows),
	}
	for r := range chunk.Data {
		chunk.Data[r] = make([]string, arr.Cols)
	}
	for _, cell := range arr.Cells {
		if cell.Row < 0 || cell.Row >= arr.Rows || cell.Col < 0 || cell.Col >= arr.Cols {
			return nil, dbgerrors.ProtocolError("array cell out of range", nil).
				WithDetails("row", cell.Row).WithDetails("col", cell.Col)
		}
		chunk.Data[cell.Row][cell.Col] = cell.Value
	}
	return chunk, nil
}

// ChangeVariable assigns a new value to the variable at Path.
type ChangeVariable struct {
	ThreadID string
	FrameID  string
	Path     string
	Value    string
}

func (ChangeVariable) isCommand()            {}
func (ChangeVariable) Code() protocol.Code   { return protocol.CmdChangeVariable }
func (ChangeVariable) ExpectsResponse() bool { return true }
func (c ChangeVariable) Fields() []string {
	return []string{c.ThreadID, c.FrameID, ScopeExpression, c.Path, c.Value}
}

// Resume resumes or steps a thread.
type Resume struct {
	ThreadID string
	Mode     protocol.StepMode
}

func (Resume) isCommand()            {}
func (Resume) ExpectsResponse() bool { return false }
func (c Resume) Code() protocol.Code { return c.Mode.Code() }
func (c Resume) Fields() []string    { return []string{c.ThreadID} }

// Suspend pauses a thread, or every thread with AllThreads.
type Suspend struct {
	ThreadID string
}

func (Suspend) isCommand()            {}
func (Suspend) Code() protocol.Code   { return protocol.CmdThreadSuspend }
func (Suspend) ExpectsResponse() bool { return false }
func (c Suspend) Fields() []string    { return []string{c.ThreadID} }

// SmartStepInto steps into a specific call on the current line.
type SmartStepInto struct {
	ThreadID string
	FrameID  string
	FuncName string
}

func (SmartStepInto) isCommand()            {}
func (SmartStepInto) Code() protocol.Code   { return protocol.CmdSmartStepInto }
func (SmartStepInto) ExpectsResponse() bool { return false }
func (c SmartStepInto) Fields() []string    { return []string{c.ThreadID, c.FrameID, c.FuncName} }

// SetNextStatement moves the instruction pointer of a suspended thread.
type SetNextStatement struct {
	ThreadID string
	Line     int
	FuncName string
}

func (SetNextStatement) isCommand()            {}
func (SetNextStatement) Code() protocol.Code   { return protocol.CmdSetNextStatement }
func (SetNextStatement) ExpectsResponse() bool { return false }
func (c SetNextStatement) Fields() []string {
	return []string{c.ThreadID, strconv.Itoa(c.Line), noneIfEmpty(c.FuncName)}
}

// LoadSource fetches the source text of a file as the interpreter sees it.
type LoadSource struct {
	File string
}

func (LoadSource) isCommand()            {}
func (LoadSource) Code() protocol.Code   { return protocol.CmdLoadSource }
func (LoadSource) ExpectsResponse() bool { return true }
func (c LoadSource) Fields() []string    { return []string{c.File} }

// ParseText returns the raw text payload of a reply.
func ParseText(frame protocol.Frame) (string, error) {
	return frame.Payload(), nil
}

// GetCompletions asks for completion proposals of a partial expression.
type GetCompletions struct {
	ThreadID string
	FrameID  string
	Prefix   string
}

func (GetCompletions) isCommand()            {}
func (GetCompletions) Code() protocol.Code   { return protocol.CmdGetCompletions }
func (GetCompletions) ExpectsResponse() bool { return true }
func (c GetCompletions) Fields() []string {
	return []string{c.ThreadID, c.FrameID, ScopeFrame, c.Prefix}
}

// ParseCompletionList converts a completions reply.
func ParseCompletionList(frame protocol.Frame) ([]protocol.Completion, error) {
	comps, err := protocol.ParseCompletions(frame.Payload())
	if err != nil {
		return nil, dbgerrors.ProtocolError("completions", err)
	}
	return comps, nil
}

// GetDescription asks for the documentation of an expression.
type GetDescription struct {
	ThreadID   string
	FrameID    string
	Expression string
}

func (GetDescription) isCommand()            {}
func (GetDescription) Code() protocol.Code   { return protocol.CmdGetDescription }
func (GetDescription) ExpectsResponse() bool { return true }
func (c GetDescription) Fields() []string {
	return []string{c.ThreadID, c.FrameID, c.Expression}
}

// ShowReturnValues toggles reporting of function return values in frames.
type ShowReturnValues struct {
	Enabled bool
}

func (ShowReturnValues) isCommand()            {}
func (ShowReturnValues) Code() protocol.Code   { return protocol.CmdShowReturnValues }
func (ShowReturnValues) ExpectsResponse() bool { return false }
func (c ShowReturnValues) Fields() []string {
	return []string{"CMD_SHOW_RETURN_VALUES", boolField(c.Enabled)}
}

// LoadFullValue fetches untruncated values for several expressions.
type LoadFullValue struct {
	ThreadID    string
	FrameID     string
	Expressions []string
}

func (LoadFullValue) isCommand()            {}
func (LoadFullValue) Code() protocol.Code   { return protocol.CmdLoadFullValue }
func (LoadFullValue) ExpectsResponse() bool { return true }
func (c LoadFullValue) Fields() []string {
	return append([]string{c.ThreadID, c.FrameID, ScopeFrame}, c.Expressions...)
}

// GetReferrers lists the objects referring to the value of an expression. It
// is a custom operation executed by the interpreter-side referrers helper.
type GetReferrers struct {
	ThreadID   string
	FrameID    string
	Expression string
}

const (
	referrersModule = "from _pydevd_bundle.pydevd_referrers import get_referrer_info"
	referrersFunc   = "get_referrer_info"
)

func (GetReferrers) isCommand()            {}
func (GetReferrers) Code() protocol.Code   { return protocol.CmdRunCustomOperation }
func (GetReferrers) ExpectsResponse() bool { return true }
func (c GetReferrers) Fields() []string {
	return []string{c.ThreadID, c.FrameID, ScopeExpression, c.Expression, "EXEC", referrersModule, referrersFunc}
}

// ConsoleExec runs one line of input in the interactive console of a frame.
type ConsoleExec struct {
	ThreadID string
	FrameID  string
	Line     string
}

func (ConsoleExec) isCommand()            {}
func (ConsoleExec) Code() protocol.Code   { return protocol.CmdConsoleExec }
func (ConsoleExec) ExpectsResponse() bool { return true }
func (c ConsoleExec) Fields() []string {
	return []string{c.ThreadID, c.FrameID, ScopeFrame, c.Line}
}

// Exit asks the interpreter to stop debugging and terminate.
type Exit struct{}

func (Exit) isCommand()            {}
func (Exit) Code() protocol.Code   { return protocol.CmdExit }
func (Exit) ExpectsResponse() bool { return false }
func (Exit) Fields() []string      { return nil }
