// Package dapview presents pydevd engine state in Debug Adapter Protocol
// shapes. pydevd identifies threads and frames with strings and variables
// by expression path; DAP clients expect integer handles, which Handles
// allocates per session.
package dapview

import (
	"path/filepath"
	"sync"

	"github.com/google/go-dap"

	"github.com/ctagard/pydevd-mcp/internal/protocol"
	"github.com/ctagard/pydevd-mcp/internal/pydevd"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

type frameKey struct {
	thread string
	frame  string
}

type varRef struct {
	table *pydevd.ValueTable
	index int
}

// Handles maps pydevd identifiers to DAP integer handles. Thread handles
// are stable for the session; frame and variable handles are reset when a
// thread suspends or resumes because pydevd frame ids and value snapshots
// only hold for one stop.
type Handles struct {
	pydevd.NopListener

	mu sync.Mutex

	threadRefs map[string]int
	threadIDs  map[int]string
	frameRefs  map[frameKey]int
	frames     map[int]frameKey
	vars       map[int]varRef
	next       int
}

// NewHandles creates an empty handle table. Register it as an engine
// listener so stale frame and variable handles are dropped.
func NewHandles() *Handles {
	h := &Handles{
		threadRefs: make(map[string]int),
		threadIDs:  make(map[int]string),
	}
	h.resetLocked()
	return h
}

func (h *Handles) resetLocked() {
	h.frameRefs = make(map[frameKey]int)
	h.frames = make(map[int]frameKey)
	h.vars = make(map[int]varRef)
}

// alloc returns the next handle. Handles are shared across kinds and
// never reused, so a stale handle can not name a different object.
func (h *Handles) alloc() int {
	h.next++
	return h.next
}

// ThreadRef returns the handle of a pydevd thread id.
func (h *Handles) ThreadRef(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ref, ok := h.threadRefs[id]; ok {
		return ref
	}
	ref := h.alloc()
	h.threadRefs[id] = ref
	h.threadIDs[ref] = id
	return ref
}

// ThreadID resolves a thread handle.
func (h *Handles) ThreadID(ref int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.threadIDs[ref]
	return id, ok
}

// FrameRef returns the handle of a frame of a suspended thread.
func (h *Handles) FrameRef(threadID, frameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := frameKey{threadID, frameID}
	if ref, ok := h.frameRefs[key]; ok {
		return ref
	}
	ref := h.alloc()
	h.frameRefs[key] = ref
	h.frames[ref] = key
	return ref
}

// Frame resolves a frame handle to its thread and frame ids.
func (h *Handles) Frame(ref int) (threadID, frameID string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key, ok := h.frames[ref]
	return key.thread, key.frame, ok
}

// VariableRef returns the handle of a container node in a value table.
func (h *Handles) VariableRef(table *pydevd.ValueTable, index int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ref := h.alloc()
	h.vars[ref] = varRef{table, index}
	return ref
}

// Variable resolves a variable handle.
func (h *Handles) Variable(ref int) (*pydevd.ValueTable, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.vars[ref]
	return v.table, v.index, ok
}

func (h *Handles) ThreadSuspended(pydevd.ThreadInfo, bool) { h.reset() }
func (h *Handles) ThreadResumed(pydevd.ThreadInfo)         { h.reset() }

func (h *Handles) ThreadKilled(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ref, ok := h.threadRefs[id]; ok {
		delete(h.threadRefs, id)
		delete(h.threadIDs, ref)
	}
}

func (h *Handles) reset() {
	h.mu.Lock()
	h.resetLocked()
	h.mu.Unlock()
}

// Thread converts a thread.
func (h *Handles) Thread(info pydevd.ThreadInfo) dap.Thread {
	name := info.Name
	if name == "" {
		name = info.ID
	}
	return dap.Thread{Id: h.ThreadRef(info.ID), Name: name}
}

// Threads converts a thread list.
func (h *Handles) Threads(infos []pydevd.ThreadInfo) []dap.Thread {
	threads := make([]dap.Thread, 0, len(infos))
	for _, info := range infos {
		threads = append(threads, h.Thread(info))
	}
	return threads
}

// StackFrames converts the frames of a suspended thread, innermost first.
func (h *Handles) StackFrames(info pydevd.ThreadInfo) []dap.StackFrame {
	frames := make([]dap.StackFrame, 0, len(info.Frames))
	for _, f := range info.Frames {
		frame := dap.StackFrame{
			Id:     h.FrameRef(info.ID, f.ID),
			Name:   f.Name,
			Line:   f.Line,
			Column: 1,
		}
		if f.File != "" {
			frame.Source = &dap.Source{Name: filepath.Base(f.File), Path: f.File}
		}
		frames = append(frames, frame)
	}
	return frames
}

// Variables converts value table nodes. Containers get a handle that
// expands them; scalars get 0.
func (h *Handles) Variables(table *pydevd.ValueTable, indexes []int) []dap.Variable {
	vars := make([]dap.Variable, 0, len(indexes))
	for _, i := range indexes {
		v, ok := table.Get(i)
		if !ok {
			continue
		}
		vars = append(vars, h.variable(table, i, v))
	}
	return vars
}

func (h *Handles) variable(table *pydevd.ValueTable, index int, v pydevd.Value) dap.Variable {
	out := dap.Variable{
		Name:         v.Name,
		Value:        v.Value,
		Type:         v.Type,
		EvaluateName: table.ExpressionPath(index),
	}
	if v.IsContainer {
		out.VariablesReference = h.VariableRef(table, index)
	}
	if v.IsReturnValue {
		out.PresentationHint = &dap.VariablePresentationHint{Kind: "property", Attributes: []string{"readOnly"}}
	}
	return out
}

// Evaluation converts an evaluation result. The result is rooted in its own
// one-node table so a container result can be expanded by handle.
func (h *Handles) Evaluation(threadID, frameID, expression string, v pydevd.Value) types.EvaluateResult {
	result := types.EvaluateResult{Result: v.Value, Type: v.Type, Expression: expression}
	if v.IsContainer {
		table := pydevd.NewValueTable(threadID, frameID)
		v.Name = expression
		result.VariablesReference = h.VariableRef(table, table.Add(pydevd.NoParent, v))
	}
	return result
}

// StopReason maps a pydevd stop reason to the DAP stopped-event reason.
func StopReason(code protocol.Code) string {
	switch code {
	case protocol.CmdSetBreak, protocol.CmdRunToLine:
		return "breakpoint"
	case protocol.CmdStepInto, protocol.CmdStepOver, protocol.CmdStepReturn,
		protocol.CmdStepIntoMyCode, protocol.CmdSmartStepInto:
		return "step"
	case protocol.CmdSetNextStatement:
		return "goto"
	case protocol.CmdAddExceptionBreak, protocol.CmdStepCaughtException:
		return "exception"
	case protocol.CmdThreadSuspend:
		return "pause"
	case protocol.CmdShowConsole:
		return "console"
	case 0:
		return ""
	default:
		return "pause"
	}
}

// StoppedEvent builds the DAP stopped event for a suspended thread.
func (h *Handles) StoppedEvent(info pydevd.ThreadInfo, allStopped bool) dap.StoppedEventBody {
	return dap.StoppedEventBody{
		Reason:            StopReason(info.StopReason),
		Description:       info.Message,
		ThreadId:          h.ThreadRef(info.ID),
		AllThreadsStopped: allStopped,
	}
}

// OutputCategory maps an output stream to a DAP output category.
func OutputCategory(kind pydevd.OutputKind) string {
	if kind == pydevd.OutputStderr {
		return "stderr"
	}
	return "stdout"
}

// Output converts buffered console output.
func Output(entries []pydevd.OutputEntry) []types.OutputLine {
	lines := make([]types.OutputLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, types.OutputLine{
			Seq:      e.Seq,
			Time:     e.Time,
			Category: OutputCategory(e.Kind),
			Text:     e.Text,
		})
	}
	return lines
}

// Breakpoints converts installed line breakpoints. pydevd does not confirm
// breakpoints, so every installed breakpoint is reported verified.
func Breakpoints(bps []pydevd.Breakpoint) []dap.Breakpoint {
	out := make([]dap.Breakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, dap.Breakpoint{
			Id:       bp.ID,
			Verified: true,
			Line:     bp.Line,
			Source:   &dap.Source{Name: filepath.Base(bp.File), Path: bp.File},
		})
	}
	return out
}
