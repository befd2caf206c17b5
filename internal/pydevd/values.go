package pydevd

import (
	"strings"
	"sync"

	"github.com/ctagard/pydevd-mcp/internal/protocol"
)

// NoParent marks a root node of a ValueTable.
const NoParent = -1

// Value is one node of a variable tree. Parent is an index into the owning
// table, NoParent for roots.
type Value struct {
	Name          string `json:"name"`
	Type          string `json:"type,omitempty"`
	Qualifier     string `json:"qualifier,omitempty"`
	Value         string `json:"value"`
	IsContainer   bool   `json:"isContainer,omitempty"`
	IsReturnValue bool   `json:"isReturnValue,omitempty"`
	IsError       bool   `json:"isError,omitempty"`
	Shape         string `json:"shape,omitempty"`
	Parent        int    `json:"parent"`
	TempName      string `json:"tempName,omitempty"`
}

func valueFromXML(v protocol.Var, parent int) Value {
	return Value{
		Name:          v.Name,
		Type:          v.Type,
		Qualifier:     v.Qualifier,
		Value:         v.Value,
		IsContainer:   v.IsContainer,
		IsReturnValue: v.IsRetVal,
		IsError:       v.IsErrorOnEval,
		Shape:         v.Shape,
		Parent:        parent,
	}
}

// ValueTable is a snapshot of the variables of one frame, stored flat. It is
// discarded when its thread suspends or resumes again.
type ValueTable struct {
	ThreadID string
	FrameID  string

	mu    sync.RWMutex
	nodes []Value
}

// NewValueTable creates an empty table for a frame.
func NewValueTable(threadID, frameID string) *ValueTable {
	return &ValueTable{ThreadID: threadID, FrameID: frameID}
}

// Add appends a node under parent and returns its index.
func (t *ValueTable) Add(parent int, v Value) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(parent, v)
}

func (t *ValueTable) addLocked(parent int, v Value) int {
	if parent < NoParent || parent >= len(t.nodes) {
		parent = NoParent
	}
	v.Parent = parent
	t.nodes = append(t.nodes, v)
	return len(t.nodes) - 1
}

func (t *ValueTable) addVars(parent int, vars []protocol.Var) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := make([]int, 0, len(vars))
	for _, v := range vars {
		idx = append(idx, t.addLocked(parent, valueFromXML(v, parent)))
	}
	return idx
}

// Len returns the number of nodes.
func (t *ValueTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Get returns the node at i.
func (t *ValueTable) Get(i int) (Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.nodes) {
		return Value{}, false
	}
	return t.nodes[i], true
}

// Children returns the indexes of the direct children of i, NoParent for roots.
func (t *ValueTable) Children(i int) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []int
	for idx, n := range t.nodes {
		if n.Parent == i {
			out = append(out, idx)
		}
	}
	return out
}

// Nodes returns a copy of every node.
func (t *ValueTable) Nodes() []Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Value, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// ExpressionPath rebuilds an evaluable expression for node i: identifiers are
// joined as attributes, anything else is subscripted. A root bound to a temp
// name starts the path from that name.
func (t *ValueTable) ExpressionPath(i int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 || i >= len(t.nodes) {
		return ""
	}

	var chain []int
	for idx := i; idx != NoParent; idx = t.nodes[idx].Parent {
		chain = append(chain, idx)
	}

	var sb strings.Builder
	for k := len(chain) - 1; k >= 0; k-- {
		n := t.nodes[chain[k]]
		if k == len(chain)-1 {
			if n.TempName != "" {
				sb.WriteString(n.TempName)
			} else {
				sb.WriteString(n.Name)
			}
			continue
		}
		name := childKey(n.Name)
		if isIdentifier(name) {
			sb.WriteByte('.')
			sb.WriteString(name)
		} else {
			sb.WriteByte('[')
			sb.WriteString(name)
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// childKey strips the " (id)" suffix the interpreter appends to dict keys.
func childKey(name string) string {
	if i := strings.LastIndex(name, " ("); i > 0 && strings.HasSuffix(name, ")") {
		return name[:i]
	}
	return name
}
