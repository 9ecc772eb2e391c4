package scope

import (
	"errors"
	"fmt"
	"sort"

	"tricolor/pkg/heap"
	"tricolor/pkg/value"

	"github.com/google/uuid"
)

// Tag decides how lookups that miss a frame continue.
type Tag int

const (
	TagCall Tag = iota
	TagBlock
	TagClosure
)

func (t Tag) String() string {
	switch t {
	case TagCall:
		return "call"
	case TagBlock:
		return "block"
	case TagClosure:
		return "closure"
	default:
		return fmt.Sprintf("Tag(%d)", int(t))
	}
}

// Outcome is the result of looking an identity up in a single frame.
type Outcome int

const (
	Found       Outcome = iota
	CheckParent         // absent here, retry on the enclosing frame
	Boundary            // absent here and the frame is opaque to nested scopes
	Unreachable         // bound here but missing from the heap
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case CheckParent:
		return "check parent"
	case Boundary:
		return "boundary"
	case Unreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Frame holds the bindings of one lexical activation. Pointer payloads live
// in the shared heap; the frame only records the binding.
type Frame struct {
	tag     Tag
	capture uuid.UUID // set for TagClosure
	heap    *heap.Heap
	locals  map[uuid.UUID]value.Value
	roots   func() value.IDSet
}

// NewFrame creates a frame tagged tag over h. The policy computes the frame's
// root set when it collects; nil roots the frame's own pointer bindings.
func NewFrame(tag Tag, h *heap.Heap, policy RootPolicy) *Frame {
	return newFrame(tag, uuid.Nil, h, policy)
}

// NewClosureFrame creates a frame holding the bindings captured under capture.
func NewClosureFrame(capture uuid.UUID, h *heap.Heap, policy RootPolicy) *Frame {
	return newFrame(TagClosure, capture, h, policy)
}

func newFrame(tag Tag, capture uuid.UUID, h *heap.Heap, policy RootPolicy) *Frame {
	if policy == nil {
		policy = bindingRoots
	}

	f := &Frame{
		tag:     tag,
		capture: capture,
		heap:    h,
		locals:  make(map[uuid.UUID]value.Value),
	}
	f.roots = func() value.IDSet { return policy(f) }
	return f
}

// Tag returns the frame's boundary tag.
func (f *Frame) Tag() Tag {
	return f.tag
}

// Capture returns the capture identity of a closure frame, or uuid.Nil.
func (f *Frame) Capture() uuid.UUID {
	return f.capture
}

// Len returns the number of local bindings.
func (f *Frame) Len() int {
	return len(f.locals)
}

// Bindings returns the local bindings ordered by identity.
func (f *Frame) Bindings() []value.Value {
	out := make([]value.Value, 0, len(f.locals))
	for _, v := range f.locals {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// PushVar binds v in this frame, first allocating p in the heap when v is a
// pointer.
func (f *Frame) PushVar(v value.Value, p value.Payload) (uuid.UUID, error) {
	if v.IsPointer() {
		if p == nil {
			return uuid.Nil, fmt.Errorf("push %s: %w", v, ErrMissingPayload)
		}
		if _, err := f.heap.Allocate(v.ID, p); err != nil {
			return uuid.Nil, fmt.Errorf("push %s: %w", v, err)
		}
	}

	f.locals[v.ID] = v
	return v.ID, nil
}

// BindVar binds a pointer whose payload is already resident, making this
// frame another owner of the allocation.
func (f *Frame) BindVar(v value.Value) {
	f.locals[v.ID] = v
}

// GetVar looks id up in this frame only.
func (f *Frame) GetVar(id uuid.UUID) (value.Value, value.Payload, Outcome) {
	v, ok := f.locals[id]
	if !ok {
		return value.Value{}, nil, f.miss()
	}
	if !v.IsPointer() {
		return v, nil, Found
	}

	p, ok := f.heap.Find(id)
	if !ok {
		return value.Value{}, nil, Unreachable
	}
	return v, p, Found
}

// UpdateVar stores v over its binding. An immediate must be bound in this
// frame; a miss reports CheckParent or Boundary like GetVar. A pointer's
// payload is updated in the heap whichever frame binds it, so children of
// bound objects and bindings of enclosing calls can be written; the local
// binding is refreshed only when this frame holds it. A pointer identity the
// heap does not know reports Boundary, as no frame could accept it.
func (f *Frame) UpdateVar(v value.Value, p value.Payload) (Outcome, error) {
	cur, ok := f.locals[v.ID]
	if !v.IsPointer() {
		if !ok {
			return f.miss(), nil
		}
		f.locals[v.ID] = v
		return Found, nil
	}

	if p == nil {
		return Found, fmt.Errorf("store %s: %w", v, ErrMissingPayload)
	}

	if ok && !cur.IsPointer() && !f.heap.Contains(v.ID) {
		// immediate binding becoming a pointer
		if _, err := f.heap.Allocate(v.ID, p); err != nil {
			return Found, fmt.Errorf("store %s: %w", v, err)
		}
		f.locals[v.ID] = v
		return Found, nil
	}

	err := f.heap.Update(v.ID, p)
	switch {
	case err == nil:
		if ok {
			f.locals[v.ID] = v
		}
		return Found, nil
	case errors.Is(err, heap.ErrUnknownIdentity) && !ok:
		return Boundary, nil
	case errors.Is(err, heap.ErrUnknownIdentity):
		return Found, fmt.Errorf("store %s: %w: %w", v, ErrBadStore, err)
	default:
		return Found, fmt.Errorf("store %s: %w", v, err)
	}
}

func (f *Frame) miss() Outcome {
	if f.tag == TagBlock {
		return CheckParent
	}
	return Boundary
}

// TransferInto moves every pointer binding into dest, which becomes their
// owner. Immediate bindings are dropped.
func (f *Frame) TransferInto(dest *Frame) {
	for id, v := range f.locals {
		if v.IsPointer() {
			dest.locals[id] = v
		}
	}
	clear(f.locals)
}

// shareInto copies every pointer binding into dest, leaving f intact.
func (f *Frame) shareInto(dest *Frame) {
	for id, v := range f.locals {
		if v.IsPointer() {
			dest.locals[id] = v
		}
	}
}

// Collect runs a full collection from this frame's root set and returns the
// number of heap records discarded.
func (f *Frame) Collect() int {
	return f.heap.Collect(f.roots())
}

// Roots returns the identities the frame's policy currently treats as roots.
func (f *Frame) Roots() value.IDSet {
	return f.roots()
}
