package pydevd

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// TempVarPrefix prefixes every synthetic binding created in the debuggee.
const TempVarPrefix = "__py_debug_temp_var_"

// CanSaveToTemp reports whether an evaluation result should be bound to a
// temporary name. Plain identifiers, multi-line input and existing temporaries
// are evaluated directly.
func CanSaveToTemp(expression string) bool {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false
	}
	if strings.ContainsAny(expression, "\r\n") {
		return false
	}
	if strings.HasPrefix(expression, TempVarPrefix) {
		return false
	}
	return !isIdentifier(expression)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func newTempName() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(err)
	}
	return TempVarPrefix + strconv.FormatUint(uint64(binary.BigEndian.Uint32(b[:])), 10)
}

// tempVarRegistry maps thread -> frame -> expression -> temp name.
type tempVarRegistry struct {
	mu      sync.Mutex
	threads map[string]map[string]map[string]string
}

func newTempVarRegistry() *tempVarRegistry {
	return &tempVarRegistry{threads: make(map[string]map[string]map[string]string)}
}

// nameFor returns the temp name bound to expression in the frame, creating
// one on first use. created reports whether the name is new.
func (r *tempVarRegistry) nameFor(threadID, frameID, expression string) (name string, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames, ok := r.threads[threadID]
	if !ok {
		frames = make(map[string]map[string]string)
		r.threads[threadID] = frames
	}
	exprs, ok := frames[frameID]
	if !ok {
		exprs = make(map[string]string)
		frames[frameID] = exprs
	}
	if name, ok := exprs[expression]; ok {
		return name, false
	}
	name = newTempName()
	exprs[expression] = name
	return name, true
}

// forget drops a binding that the interpreter never created.
func (r *tempVarRegistry) forget(threadID, frameID, expression string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exprs := r.threads[threadID][frameID]
	if exprs == nil {
		return
	}
	delete(exprs, expression)
}

// lookup returns the temp name already bound to expression, if any.
func (r *tempVarRegistry) lookup(threadID, frameID, expression string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.threads[threadID][frameID][expression]
	return name, ok
}

// take removes every binding of a thread and returns the names per frame, sorted.
func (r *tempVarRegistry) take(threadID string) map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames, ok := r.threads[threadID]
	if !ok {
		return nil
	}
	delete(r.threads, threadID)

	out := make(map[string][]string, len(frames))
	for frameID, exprs := range frames {
		if len(exprs) == 0 {
			continue
		}
		names := make([]string, 0, len(exprs))
		for _, name := range exprs {
			names = append(names, name)
		}
		sort.Strings(names)
		out[frameID] = names
	}
	return out
}

func (r *tempVarRegistry) threadIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.threads))
	for id := range r.threads {
		ids = append(ids, id)
	}
	return ids
}

func (r *tempVarRegistry) count(threadID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, exprs := range r.threads[threadID] {
		n += len(exprs)
	}
	return n
}

// deleteStatement renders the cleanup statement for a set of names.
func deleteStatement(names []string) string {
	return "del " + strings.Join(names, ", ")
}
