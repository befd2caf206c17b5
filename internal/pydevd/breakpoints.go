package pydevd

import (
	"sort"
	"sync"
)

// BreakpointKind is the interpreter-side breakpoint type.
type BreakpointKind string

const (
	KindPythonLine BreakpointKind = "python-line"
	KindDjangoLine BreakpointKind = "django-line"
	KindJinja2Line BreakpointKind = "jinja2-line"
)

// SuspendPolicy selects which threads stop when a breakpoint is hit.
type SuspendPolicy int

const (
	// SuspendThread stops only the thread that hit the breakpoint.
	SuspendThread SuspendPolicy = iota
	// SuspendAll stops every thread.
	SuspendAll
)

func (p SuspendPolicy) String() string {
	if p == SuspendAll {
		return "ALL"
	}
	return "NONE"
}

func (p SuspendPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParseSuspendPolicy maps "all"/"ALL" to SuspendAll; anything else is SuspendThread.
func ParseSuspendPolicy(s string) SuspendPolicy {
	switch s {
	case "all", "ALL":
		return SuspendAll
	}
	return SuspendThread
}

// Breakpoint is a line breakpoint as installed in the interpreter.
type Breakpoint struct {
	ID            int            `json:"id"`
	Kind          BreakpointKind `json:"kind"`
	File          string         `json:"file"`
	Line          int            `json:"line"`
	FuncName      string         `json:"funcName,omitempty"`
	Condition     string         `json:"condition,omitempty"`
	LogExpression string         `json:"logExpression,omitempty"`
	Policy        SuspendPolicy  `json:"policy"`
	Temporary     bool           `json:"temporary,omitempty"`
}

func (b Breakpoint) kind() BreakpointKind {
	if b.Kind == "" {
		return KindPythonLine
	}
	return b.Kind
}

type lineKey struct {
	file string
	line int
}

// breakpointRegistry tracks installed breakpoints. Temporary breakpoints are
// removed on the next suspend of any thread.
type breakpointRegistry struct {
	mu         sync.Mutex
	nextID     int
	persistent map[lineKey]Breakpoint
	temporary  map[lineKey]Breakpoint
	exceptions map[string]AddExceptionBreakpoint
}

func newBreakpointRegistry() *breakpointRegistry {
	return &breakpointRegistry{
		persistent: make(map[lineKey]Breakpoint),
		temporary:  make(map[lineKey]Breakpoint),
		exceptions: make(map[string]AddExceptionBreakpoint),
	}
}

// add assigns an id and records bp, returning the breakpoint it replaces, if any.
func (r *breakpointRegistry) add(bp Breakpoint) (Breakpoint, Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	bp.ID = r.nextID
	bp.Kind = bp.kind()

	key := lineKey{bp.File, bp.Line}
	set := r.persistent
	if bp.Temporary {
		set = r.temporary
	}
	old, replaced := set[key]
	set[key] = bp
	return bp, old, replaced
}

func (r *breakpointRegistry) remove(file string, line int) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lineKey{file, line}
	if bp, ok := r.persistent[key]; ok {
		delete(r.persistent, key)
		return bp, true
	}
	if bp, ok := r.temporary[key]; ok {
		delete(r.temporary, key)
		return bp, true
	}
	return Breakpoint{}, false
}

// takeTemporary empties the temporary set and returns what it held.
func (r *breakpointRegistry) takeTemporary() []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.temporary) == 0 {
		return nil
	}
	out := make([]Breakpoint, 0, len(r.temporary))
	for key, bp := range r.temporary {
		out = append(out, bp)
		delete(r.temporary, key)
	}
	return out
}

// lookup returns the breakpoint installed at file:line, temporary ones included.
func (r *breakpointRegistry) lookup(file string, line int) (Breakpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lineKey{file, line}
	if bp, ok := r.persistent[key]; ok {
		return bp, true
	}
	bp, ok := r.temporary[key]
	return bp, ok
}

func (r *breakpointRegistry) list() []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Breakpoint, 0, len(r.persistent)+len(r.temporary))
	for _, bp := range r.persistent {
		out = append(out, bp)
	}
	for _, bp := range r.temporary {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *breakpointRegistry) addException(c AddExceptionBreakpoint) {
	r.mu.Lock()
	r.exceptions[c.Exception] = c
	r.mu.Unlock()
}

func (r *breakpointRegistry) removeException(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.exceptions[name]
	delete(r.exceptions, name)
	return ok
}

func (r *breakpointRegistry) exceptionNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.exceptions))
	for name := range r.exceptions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
