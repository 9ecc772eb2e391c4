// Package scope tracks the lexical frames of a running program, the closures
// they leave behind, and when the heap should be collected.
package scope

import (
	"fmt"

	"tricolor/pkg/heap"
	"tricolor/pkg/stack"
	"tricolor/pkg/value"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultThreshold is the number of live heap records above which frame
// retirement may trigger a collection.
const DefaultThreshold = 64

// Manager owns the live frame stack and the table of captured closures. The
// bottom frame is the global frame and is never removed.
type Manager struct {
	heap      *heap.Heap
	frames    *stack.Stack[*Frame]
	closures  map[uuid.UUID]*Frame
	threshold int
	policy    RootPolicy
}

type Option func(*Manager)

// WithThreshold sets the heap length that must be exceeded before frame
// retirement collects.
func WithThreshold(n int) Option {
	return func(m *Manager) { m.threshold = n }
}

// WithRootPolicy sets the policy every new frame uses to compute its roots.
func WithRootPolicy(p RootPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// NewManager creates a Manager over h with a single global frame. A nil h
// gets a fresh heap.
func NewManager(h *heap.Heap, opts ...Option) *Manager {
	if h == nil {
		h = heap.New()
	}

	m := &Manager{
		heap:      h,
		closures:  make(map[uuid.UUID]*Frame),
		threshold: DefaultThreshold,
	}
	for _, o := range opts {
		o(m)
	}

	if m.policy == nil {
		m.policy = m.VisibleRoots
	}

	m.frames = stack.NewStack(m.newFrame(TagCall, uuid.Nil))
	return m
}

func (m *Manager) newFrame(tag Tag, capture uuid.UUID) *Frame {
	return newFrame(tag, capture, m.heap, m.policy)
}

// Heap returns the shared heap.
func (m *Manager) Heap() *heap.Heap {
	return m.heap
}

// HeapLen returns the number of live heap records.
func (m *Manager) HeapLen() int {
	return m.heap.Len()
}

// Threshold returns the collection threshold.
func (m *Manager) Threshold() int {
	return m.threshold
}

// Depth returns the number of live frames, the global frame included.
func (m *Manager) Depth() int {
	return m.frames.Size()
}

// ClosureCount returns the number of persisted closures.
func (m *Manager) ClosureCount() int {
	return len(m.closures)
}

// Closure returns the frame persisted under capture.
func (m *Manager) Closure(capture uuid.UUID) (*Frame, bool) {
	f, ok := m.closures[capture]
	return f, ok
}

// Current returns the top frame.
func (m *Manager) Current() *Frame {
	f, ok := m.frames.Peek()
	if !ok {
		panic("scope: frame stack is empty")
	}
	return f
}

// Global returns the bottom frame.
func (m *Manager) Global() *Frame {
	f, ok := m.frames.At(0)
	if !ok {
		panic("scope: frame stack is empty")
	}
	return f
}

// PushScope enters a block, or a function call when isCall is set.
func (m *Manager) PushScope(isCall bool) {
	tag := TagBlock
	if isCall {
		tag = TagCall
	}
	m.frames.Push(m.newFrame(tag, uuid.Nil))
}

// PushClosureScope re-enters a returned function by moving its captured frame
// back onto the stack.
func (m *Manager) PushClosureScope(capture uuid.UUID) error {
	f, ok := m.closures[capture]
	if !ok {
		return fmt.Errorf("enter closure %s: %w", capture, ErrUnknownClosure)
	}

	delete(m.closures, capture)
	m.frames.Push(f)
	return nil
}

// PopScope retires the top frame. With a non-nil capture the frame's pointer
// bindings are persisted as a closure under that identity; otherwise they pass
// to the new top frame. When collect is set and the heap has outgrown the
// threshold, the new top frame collects.
//
// Popping the global frame runs a final collection and returns
// ErrScopeUnderflow, leaving the global frame in place.
func (m *Manager) PopScope(capture uuid.UUID, collect bool) error {
	top, ok := m.frames.Pop()
	if !ok {
		return ErrScopeUnderflow
	}

	if m.frames.Size() == 0 {
		freed := top.Collect()
		m.frames.Push(top)
		log.Debug("Popped global scope", "freed", freed, "live", m.heap.Len())
		return ErrScopeUnderflow
	}

	switch {
	case capture != uuid.Nil:
		cf := m.newFrame(TagClosure, capture)
		if top.tag == TagClosure && top.capture != capture {
			top.shareInto(cf)
			m.closures[top.capture] = top
		} else {
			top.TransferInto(cf)
		}
		m.closures[capture] = cf
		log.Debug("Captured closure", "capture", capture, "bindings", cf.Len())

	case top.tag == TagClosure:
		m.closures[top.capture] = top

	default:
		top.TransferInto(m.Current())
	}

	if collect && m.heap.Len() > m.threshold {
		freed := m.Current().Collect()
		log.Debug("Collected on scope exit", "threshold", m.threshold, "freed", freed)
	}
	return nil
}

// RenameClosure re-keys the closure stored under from to to.
func (m *Manager) RenameClosure(from, to uuid.UUID) bool {
	f, ok := m.closures[from]
	if !ok {
		return false
	}

	delete(m.closures, from)
	f.capture = to
	m.closures[to] = f
	return true
}

// Collect forces a collection from the top frame's roots.
func (m *Manager) Collect() int {
	return m.Current().Collect()
}

// Alloc binds v in the top frame. A payload whose identity is already
// resident is aliased rather than allocated again.
func (m *Manager) Alloc(v value.Value, p value.Payload) (uuid.UUID, error) {
	if p != nil && m.heap.Contains(v.ID) {
		m.Current().BindVar(v)
		return v.ID, nil
	}
	return m.Current().PushVar(v, p)
}

// Load finds the binding for id, climbing from the top frame until a call
// boundary, then checking the global frame once.
func (m *Manager) Load(id uuid.UUID) (value.Value, value.Payload, error) {
	frames := m.frames.Array()

walk:
	for i := len(frames) - 1; i >= 0; i-- {
		v, p, out := frames[i].GetVar(id)
		switch out {
		case Found:
			return v, p, nil
		case Boundary:
			break walk
		case Unreachable:
			panic(fmt.Sprintf("scope: %s is bound but not in the heap", id))
		}
	}

	v, p, out := frames[0].GetVar(id)
	switch out {
	case Found:
		return v, p, nil
	case Unreachable:
		panic(fmt.Sprintf("scope: %s is bound but not in the heap", id))
	}
	return value.Value{}, nil, &LoadError{ID: id}
}

// Store writes v over its existing binding using the same traversal as Load.
// A pointer's payload p goes to the heap from the first frame checked, so any
// resident object can be updated; an identity the heap lacks fails the store.
// Hard errors stop the climb immediately.
func (m *Manager) Store(v value.Value, p value.Payload) error {
	frames := m.frames.Array()

walk:
	for i := len(frames) - 1; i >= 0; i-- {
		out, err := frames[i].UpdateVar(v, p)
		if err != nil {
			return err
		}
		switch out {
		case Found:
			return nil
		case Boundary:
			break walk
		}
	}

	out, err := frames[0].UpdateVar(v, p)
	if err != nil {
		return err
	}
	if out == Found {
		return nil
	}
	return &StoreError{Value: v, Payload: p}
}
