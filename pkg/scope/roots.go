package scope

import "tricolor/pkg/value"

// RootPolicy computes the heap identities directly reachable from the
// bindings visible in f. A frame binds its policy once, at creation.
type RootPolicy func(f *Frame) value.IDSet

// bindingRoots collects the pointers bound in f itself. A binding reassigned
// to an immediate no longer counts. It is the whole root set only for a frame
// built outside a Manager.
func bindingRoots(f *Frame) value.IDSet {
	out := make(value.IDSet, len(f.locals))
	for id, v := range f.locals {
		if v.IsPointer() {
			out.Add(id)
		}
	}
	return out
}

// VisibleRoots unions the pointer bindings of f, every live frame and every
// persisted closure, so a collection started from any one frame never
// reclaims an object another owner still binds.
func (m *Manager) VisibleRoots(f *Frame) value.IDSet {
	out := bindingRoots(f)
	for _, live := range m.frames.Array() {
		out.Union(bindingRoots(live))
	}
	for _, c := range m.closures {
		out.Union(bindingRoots(c))
	}
	return out
}
