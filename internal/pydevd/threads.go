package pydevd

import (
	"sort"
	"strconv"
	"sync"

	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

// ThreadState is the lifecycle state of a debuggee thread.
type ThreadState int

const (
	StateRunning ThreadState = iota
	StateSuspended
	StateKilled
)

func (s ThreadState) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateKilled:
		return "killed"
	default:
		return "running"
	}
}

func (s ThreadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StackFrame is a read-only snapshot of one frame, rebuilt on every suspend.
type StackFrame struct {
	ThreadID string `json:"threadId"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// ThreadInfo is a snapshot of one thread. Values handed out are never mutated.
type ThreadInfo struct {
	ID         string        `json:"id"`
	Name       string        `json:"name,omitempty"`
	State      ThreadState   `json:"state"`
	StopReason protocol.Code `json:"stopReason,omitempty"`
	Message    string        `json:"message,omitempty"`
	Frames     []StackFrame  `json:"frames,omitempty"`
}

// TopFrame returns the innermost frame of a suspended thread.
func (t ThreadInfo) TopFrame() (StackFrame, bool) {
	if len(t.Frames) == 0 {
		return StackFrame{}, false
	}
	return t.Frames[0], true
}

func threadFromXML(t protocol.Thread, state ThreadState) ThreadInfo {
	info := ThreadInfo{
		ID:         t.ID,
		Name:       t.Name,
		State:      state,
		StopReason: protocol.Code(t.StopReason),
		Message:    t.Message,
	}
	if len(t.Frames) > 0 {
		info.Frames = make([]StackFrame, len(t.Frames))
		for i, f := range t.Frames {
			info.Frames[i] = StackFrame{ThreadID: t.ID, ID: f.ID, Name: f.Name, File: f.File, Line: f.Line}
		}
	}
	return info
}

// threadRegistry holds ThreadInfo snapshots keyed by id. Reads are lock-free;
// writes happen on the reader goroutine.
type threadRegistry struct {
	threads sync.Map // string -> ThreadInfo

	// mu guards focus and suspendAll.
	mu         sync.Mutex
	focus      string
	suspendAll bool
}

func (r *threadRegistry) get(id string) (ThreadInfo, bool) {
	v, ok := r.threads.Load(id)
	if !ok {
		return ThreadInfo{}, false
	}
	return v.(ThreadInfo), true
}

func (r *threadRegistry) put(info ThreadInfo) {
	r.threads.Store(info.ID, info)
}

func (r *threadRegistry) remove(id string) {
	r.threads.Delete(id)
}

// list returns every thread ordered by id.
func (r *threadRegistry) list() []ThreadInfo {
	var out []ThreadInfo
	r.threads.Range(func(_, v any) bool {
		out = append(out, v.(ThreadInfo))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *threadRegistry) anySuspended(except string) bool {
	found := false
	r.threads.Range(func(k, v any) bool {
		if k.(string) != except && v.(ThreadInfo).State == StateSuspended {
			found = true
			return false
		}
		return true
	})
	return found
}

// handleThreadEvent drives the state machine from a thread lifecycle frame.
func (e *Engine) handleThreadEvent(frame protocol.Frame) {
	switch frame.Code {
	case protocol.CmdThreadCreate:
		e.onThreadCreate(frame)
	case protocol.CmdThreadSuspend:
		e.onThreadSuspend(frame, false)
	case protocol.CmdShowConsole:
		e.onThreadSuspend(frame, true)
	case protocol.CmdThreadRun:
		e.onThreadResume(frame)
	case protocol.CmdThreadKill:
		e.onThreadKill(frame)
	}
}

func (e *Engine) onThreadCreate(frame protocol.Frame) {
	threads, err := protocol.ParseThreads(frame.Payload())
	if err != nil {
		e.logger.Warn("pydevd.thread.create.malformed", "err", err)
		return
	}

	e.threads.mu.Lock()
	suspendAll := e.threads.suspendAll
	e.threads.mu.Unlock()

	for _, t := range threads {
		info := threadFromXML(t, StateRunning)
		info.Frames = nil
		e.threads.put(info)
		e.logger.Debug("pydevd.thread.created", "thread", info.ID, "name", info.Name)
		if suspendAll {
			e.Execute(Suspend{ThreadID: info.ID})
		}
	}
}

func (e *Engine) onThreadSuspend(frame protocol.Frame, console bool) {
	threads, err := protocol.ParseThreads(frame.Payload())
	if err != nil {
		e.logger.Warn("pydevd.thread.suspend.malformed", "err", err)
		return
	}

	for _, temp := range e.breakpoints.takeTemporary() {
		e.Execute(RemoveBreakpoint{Kind: temp.Kind, File: temp.File, ID: temp.ID})
	}

	for _, t := range threads {
		info := threadFromXML(t, StateSuspended)
		if prev, ok := e.threads.get(info.ID); ok && info.Name == "" {
			info.Name = prev.Name
		}
		e.discardValues(info.ID)

		e.threads.mu.Lock()
		// Focus moves only when the session was not already suspended.
		focus := !e.threads.anySuspended(info.ID)
		if focus {
			e.threads.focus = info.ID
		}
		e.threads.put(info)
		policyAll := e.hitSuspendAllBreakpoint(info)
		if policyAll {
			e.threads.suspendAll = true
		}
		e.threads.mu.Unlock()

		e.logger.Debug("pydevd.thread.suspended", "thread", info.ID, "reason", info.StopReason.String(), "focus", focus)

		if policyAll {
			for _, other := range e.threads.list() {
				if other.ID != info.ID && other.State == StateRunning {
					e.Execute(Suspend{ThreadID: other.ID})
				}
			}
		}

		if console {
			e.notify(func(l Listener) { l.ConsoleShown(info) })
		} else {
			e.notify(func(l Listener) { l.ThreadSuspended(info, focus) })
		}
	}
}

// hitSuspendAllBreakpoint reports whether the thread stopped on a breakpoint
// installed with the ALL policy.
func (e *Engine) hitSuspendAllBreakpoint(info ThreadInfo) bool {
	if info.StopReason != protocol.CmdSetBreak {
		return false
	}
	top, ok := info.TopFrame()
	if !ok {
		return false
	}
	bp, ok := e.breakpoints.lookup(top.File, top.Line)
	return ok && bp.Policy == SuspendAll
}

func (e *Engine) onThreadResume(frame protocol.Frame) {
	id := frame.Field(0)
	if id == "" {
		e.logger.Warn("pydevd.thread.resume.malformed", "fields", len(frame.Fields))
		return
	}

	info, ok := e.threads.get(id)
	if !ok {
		info = ThreadInfo{ID: id}
	}
	info.State = StateRunning
	info.Frames = nil
	info.Message = ""
	if reason, err := strconv.Atoi(frame.Field(1)); err == nil {
		info.StopReason = protocol.Code(reason)
	}
	e.discardValues(id)

	e.threads.mu.Lock()
	e.threads.put(info)
	if e.threads.focus == id {
		e.threads.focus = ""
	}
	if !e.threads.anySuspended("") {
		e.threads.suspendAll = false
	}
	e.threads.mu.Unlock()

	e.logger.Debug("pydevd.thread.resumed", "thread", id)
	e.notify(func(l Listener) { l.ThreadResumed(info) })
}

// registerListedThreads records threads from a list reply that were never
// announced. It runs on the reader goroutine, so a kill that follows the
// reply on the wire always wins.
func (e *Engine) registerListedThreads(frame protocol.Frame) {
	threads, err := ParseThreadList(frame)
	if err != nil {
		return
	}
	e.threads.mu.Lock()
	defer e.threads.mu.Unlock()
	for _, t := range threads {
		if _, ok := e.threads.get(t.ID); !ok {
			e.threads.put(t)
		}
	}
}

func (e *Engine) onThreadKill(frame protocol.Frame) {
	id := frame.Field(0)
	if id == "" {
		e.logger.Warn("pydevd.thread.kill.malformed", "fields", len(frame.Fields))
		return
	}

	e.discardValues(id)
	e.tempVars.take(id)

	e.threads.mu.Lock()
	e.threads.remove(id)
	if e.threads.focus == id {
		e.threads.focus = ""
	}
	var announce ThreadInfo
	reannounce := false
	if e.threads.focus == "" {
		for _, t := range e.threads.list() {
			if t.State == StateSuspended {
				announce, reannounce = t, true
				e.threads.focus = t.ID
				break
			}
		}
	}
	e.threads.mu.Unlock()

	e.logger.Debug("pydevd.thread.killed", "thread", id)
	e.notify(func(l Listener) { l.ThreadKilled(id) })
	if reannounce {
		e.logger.Debug("pydevd.thread.reannounced", "thread", announce.ID)
		e.notify(func(l Listener) { l.ThreadSuspended(announce, true) })
	}
}

// Threads returns a snapshot of every known thread.
func (e *Engine) Threads() []ThreadInfo {
	return e.threads.list()
}

// Thread returns the snapshot of one thread.
func (e *Engine) Thread(id string) (ThreadInfo, bool) {
	return e.threads.get(id)
}

// FocusedThread returns the thread holding the current position, if any.
func (e *Engine) FocusedThread() (ThreadInfo, bool) {
	e.threads.mu.Lock()
	id := e.threads.focus
	e.threads.mu.Unlock()
	if id == "" {
		return ThreadInfo{}, false
	}
	return e.threads.get(id)
}

// SuspendedAll reports whether the session is under an all-threads suspend.
func (e *Engine) SuspendedAll() bool {
	e.threads.mu.Lock()
	defer e.threads.mu.Unlock()
	return e.threads.suspendAll
}

// AnySuspended reports whether at least one thread is stopped.
func (e *Engine) AnySuspended() bool {
	return e.threads.anySuspended("")
}
