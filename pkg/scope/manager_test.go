package scope_test

import (
	"errors"
	"testing"

	"tricolor/pkg/heap"
	"tricolor/pkg/scope"
	"tricolor/pkg/value"

	"github.com/google/uuid"
)

func TestPushPopScope(t *testing.T) {
	m := scope.NewManager(nil)
	m.PushScope(false)
	if m.Depth() != 2 {
		t.Fatalf("depth %d, want 2", m.Depth())
	}
	if m.Current().Tag() != scope.TagBlock {
		t.Errorf("tag %s, want block", m.Current().Tag())
	}
	if err := m.PopScope(uuid.Nil, false); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if m.Depth() != 1 {
		t.Errorf("depth %d, want 1", m.Depth())
	}
}

func TestPopGlobalScope(t *testing.T) {
	m := scope.NewManager(nil)
	s, p := makeStr("global")
	m.Alloc(s, p)
	garbage := value.NewPointer("garbage")
	m.Heap().Allocate(garbage.ID, &value.String{Text: "garbage"})

	err := m.PopScope(uuid.Nil, false)
	if !errors.Is(err, scope.ErrScopeUnderflow) {
		t.Fatalf("expected ErrScopeUnderflow, got %v", err)
	}

	if m.Depth() != 1 {
		t.Errorf("depth %d, want the global frame kept", m.Depth())
	}
	if m.HeapLen() != 1 {
		t.Errorf("heap len %d, want 1 after final collection", m.HeapLen())
	}
	if _, _, err := m.Load(s.ID); err != nil {
		t.Errorf("global binding lost: %v", err)
	}
}

func TestAlloc(t *testing.T) {
	m := scope.NewManager(nil)
	m.Alloc(makeNum(1), nil)
	m.PushScope(false)
	m.Alloc(makeNum(2), nil)
	if !m.Heap().IsEmpty() {
		t.Errorf("immediates reached the heap, len %d", m.HeapLen())
	}
}

func TestAllocAliases(t *testing.T) {
	m := scope.NewManager(nil)
	s, p := makeStr("shared")
	if _, err := m.Alloc(s, p); err != nil {
		t.Fatalf("alloc: %v", err)
	}

	m.PushScope(true)
	if _, err := m.Alloc(s, p); err != nil {
		t.Fatalf("alias: %v", err)
	}
	if m.HeapLen() != 1 {
		t.Errorf("heap len %d, want 1", m.HeapLen())
	}
	if _, _, out := m.Current().GetVar(s.ID); out != scope.Found {
		t.Errorf("alias not bound in call frame: %s", out)
	}
}

func TestAllocMissingPayload(t *testing.T) {
	m := scope.NewManager(nil)
	if _, err := m.Alloc(value.NewPointer("x"), nil); !errors.Is(err, scope.ErrMissingPayload) {
		t.Errorf("expected ErrMissingPayload, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	m := scope.NewManager(nil)
	id, err := m.Alloc(makeNum(1), nil)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}

	v, p, err := m.Load(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if v.Kind != value.KindNumber || v.Num != 1 {
		t.Errorf("value %s, want 1", v)
	}
	if p != nil {
		t.Errorf("immediate loaded a payload %v", p)
	}
}

func TestLoadFail(t *testing.T) {
	m := scope.NewManager(nil)
	id := uuid.New()

	_, _, err := m.Load(id)
	var le *scope.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	if le.ID != id {
		t.Errorf("error id %s, want %s", le.ID, id)
	}
	if !errors.Is(err, scope.ErrLoadFailed) {
		t.Error("LoadError does not match ErrLoadFailed")
	}
}

func TestLoadAcrossScopes(t *testing.T) {
	tests := []struct {
		name    string
		isCall  bool
		wantErr bool
	}{
		{"nested call cannot see caller locals", true, true},
		{"nested block sees enclosing locals", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := scope.NewManager(nil)
			m.PushScope(true)
			x, p := makeStr("x")
			id, _ := m.Alloc(x, p)

			m.PushScope(tt.isCall)
			v, got, err := m.Load(id)

			if tt.wantErr {
				if !errors.Is(err, scope.ErrLoadFailed) {
					t.Fatalf("expected ErrLoadFailed, got %v", err)
				}
				if !m.Heap().Contains(id) {
					t.Error("x should still be live")
				}
				return
			}
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if v.ID != x.ID || !v.IsPointer() {
				t.Errorf("value %s, want %s", v, x)
			}
			if got == nil {
				t.Error("pointer loaded without payload")
			}
		})
	}
}

func TestLoadFallsBackToGlobal(t *testing.T) {
	m := scope.NewManager(nil)
	g, _ := m.Alloc(makeNum(7), nil)

	m.PushScope(true)
	m.PushScope(true)
	v, _, err := m.Load(g)
	if err != nil {
		t.Fatalf("global fallback failed: %v", err)
	}
	if v.Num != 7 {
		t.Errorf("num %g, want 7", v.Num)
	}
}

func TestStore(t *testing.T) {
	m := scope.NewManager(nil)
	m.PushScope(false)
	id, _ := m.Alloc(makeNum(1), nil)

	v, _, _ := m.Load(id)
	v.Num = 2
	if err := m.Store(v, nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, _, _ := m.Load(id)
	if got.Num != 2 {
		t.Errorf("num %g, want 2", got.Num)
	}
}

func TestStoreFail(t *testing.T) {
	m := scope.NewManager(nil)
	x := makeNum(1)

	err := m.Store(x, nil)
	var se *scope.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if se.Value.ID != x.ID {
		t.Errorf("error carries %s, want %s", se.Value, x)
	}
}

func TestStoreAcrossScopes(t *testing.T) {
	tests := []struct {
		name    string
		isCall  bool
		wantErr bool
	}{
		{"store to parent through block", false, false},
		{"store to parent across call boundary", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := scope.NewManager(nil)
			m.PushScope(true)
			id, _ := m.Alloc(makeNum(1), nil)
			x, _, _ := m.Load(id)

			m.PushScope(tt.isCall)
			x.Num = 5
			err := m.Store(x, nil)

			if tt.wantErr && !errors.Is(err, scope.ErrStoreFailed) {
				t.Errorf("expected ErrStoreFailed, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("store: %v", err)
			}
		})
	}
}

func TestStoreHardErrorAborts(t *testing.T) {
	m := scope.NewManager(nil)
	s, p := makeStr("s")
	m.Alloc(s, p)
	m.PushScope(false)

	err := m.Store(s, &value.Symbol{Name: "s"})
	if !errors.Is(err, heap.ErrPayloadKindMismatch) {
		t.Fatalf("expected ErrPayloadKindMismatch, got %v", err)
	}
	if errors.Is(err, scope.ErrStoreFailed) {
		t.Error("hard error reported as an ordinary store miss")
	}
}

func TestStoreToGlobalFromCall(t *testing.T) {
	m := scope.NewManager(nil)
	id, _ := m.Alloc(makeNum(1), nil)
	m.PushScope(true)

	v, _, _ := m.Load(id)
	v.Num = 3
	if err := m.Store(v, nil); err != nil {
		t.Fatalf("store through global fallback: %v", err)
	}
	m.PopScope(uuid.Nil, false)
	got, _, _ := m.Load(id)
	if got.Num != 3 {
		t.Errorf("num %g, want 3", got.Num)
	}
}

func TestStoreChildObject(t *testing.T) {
	m := scope.NewManager(nil)
	inner, innerP := makeObj(t, m.Heap(), entry{key: "x", v: makeNum(1)})
	outer, outerP := makeObj(t, m.Heap(), entry{key: "inner", v: inner, payload: innerP})
	if _, err := m.Alloc(outer, outerP); err != nil {
		t.Fatalf("alloc outer: %v", err)
	}

	next := value.NewObject(nil)
	next.Set("x", makeNum(2))
	if err := m.Store(inner, next); err != nil {
		t.Fatalf("store child: %v", err)
	}

	p, _ := m.Heap().Find(inner.ID)
	x, _ := p.(*value.Object).Get("x")
	if x.Num != 2 {
		t.Errorf("x %g, want 2", x.Num)
	}
	if m.Global().Len() != 1 {
		t.Errorf("global len %d, child store added a binding", m.Global().Len())
	}
}

func TestStorePointerFromCall(t *testing.T) {
	m := scope.NewManager(nil)
	m.PushScope(true)
	o, oP := makeObj(t, m.Heap(), entry{key: "n", v: makeNum(1)})
	m.Alloc(o, oP)

	m.PushScope(true)
	next := value.NewObject(nil)
	next.Set("n", makeNum(7))
	if err := m.Store(o, next); err != nil {
		t.Fatalf("store from nested call: %v", err)
	}
	if m.Current().Len() != 0 {
		t.Errorf("callee len %d, store bound the caller's object", m.Current().Len())
	}

	m.PopScope(uuid.Nil, false)
	_, p, err := m.Load(o.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n, _ := p.(*value.Object).Get("n"); n.Num != 7 {
		t.Errorf("n %g, want 7", n.Num)
	}
}

func TestStoreUnknownPointer(t *testing.T) {
	m := scope.NewManager(nil)
	m.PushScope(true)
	s, p := makeStr("nowhere")

	err := m.Store(s, p)
	if !errors.Is(err, scope.ErrStoreFailed) {
		t.Fatalf("expected ErrStoreFailed, got %v", err)
	}
	if errors.Is(err, scope.ErrBadStore) {
		t.Error("unknown identity reported as ErrBadStore")
	}
	if m.HeapLen() != 0 {
		t.Errorf("failed store allocated, heap len %d", m.HeapLen())
	}
}

func TestPushClosureScope(t *testing.T) {
	m := scope.NewManager(nil)
	m.PushScope(true)
	fn, fnP := makeFn("f")
	m.Alloc(fn, fnP)

	if err := m.PopScope(fn.Capture, false); err != nil {
		t.Fatalf("pop capturing: %v", err)
	}
	if m.ClosureCount() != 1 {
		t.Fatalf("closures %d, want 1", m.ClosureCount())
	}

	if err := m.PushClosureScope(fn.Capture); err != nil {
		t.Fatalf("push closure: %v", err)
	}
	if m.ClosureCount() != 0 {
		t.Errorf("closures %d, want 0", m.ClosureCount())
	}
	if m.Current().Tag() != scope.TagClosure || m.Current().Capture() != fn.Capture {
		t.Errorf("top frame %s/%s, want closure %s", m.Current().Tag(), m.Current().Capture(), fn.Capture)
	}
	if _, _, err := m.Load(fn.ID); err != nil {
		t.Errorf("captured binding not visible: %v", err)
	}

	if err := m.PopScope(uuid.Nil, false); err != nil {
		t.Fatalf("pop closure: %v", err)
	}
	if m.ClosureCount() != 1 {
		t.Errorf("closures %d after leaving closure, want 1", m.ClosureCount())
	}
	if m.Global().Len() != 0 {
		t.Errorf("closure bindings leaked into the caller: %d", m.Global().Len())
	}
}

func TestPushClosureScopeUnknown(t *testing.T) {
	m := scope.NewManager(nil)
	if err := m.PushClosureScope(uuid.New()); !errors.Is(err, scope.ErrUnknownClosure) {
		t.Errorf("expected ErrUnknownClosure, got %v", err)
	}
}

func TestNestedClosureCapture(t *testing.T) {
	m := scope.NewManager(nil)
	m.PushScope(true)
	outer, outerP := makeFn("outer")
	m.Alloc(outer, outerP)
	m.PopScope(outer.Capture, false)

	m.PushClosureScope(outer.Capture)
	inner, innerP := makeFn("inner")
	m.Alloc(inner, innerP)
	m.PopScope(inner.Capture, false)

	if m.ClosureCount() != 2 {
		t.Fatalf("closures %d, want 2", m.ClosureCount())
	}
	of, _ := m.Closure(outer.Capture)
	inf, _ := m.Closure(inner.Capture)
	if of.Len() != 2 || inf.Len() != 2 {
		t.Errorf("outer %d bindings, inner %d, want 2 each", of.Len(), inf.Len())
	}
}

func TestRenameClosure(t *testing.T) {
	m := scope.NewManager(nil)
	m.PushScope(true)
	fn, fnP := makeFn("f")
	m.Alloc(fn, fnP)
	m.PopScope(fn.Capture, false)

	renamed := uuid.New()
	if !m.RenameClosure(fn.Capture, renamed) {
		t.Fatal("rename of a stored closure failed")
	}
	if _, ok := m.Closure(fn.Capture); ok {
		t.Error("old capture still present")
	}
	f, ok := m.Closure(renamed)
	if !ok {
		t.Fatal("renamed capture missing")
	}
	if f.Capture() != renamed {
		t.Errorf("frame capture %s, want %s", f.Capture(), renamed)
	}
	if m.RenameClosure(uuid.New(), uuid.New()) {
		t.Error("rename of an unknown closure succeeded")
	}
	if err := m.PushClosureScope(renamed); err != nil {
		t.Errorf("enter renamed closure: %v", err)
	}
}

func TestClosureBindingsSurviveCollection(t *testing.T) {
	m := scope.NewManager(nil, scope.WithThreshold(0))
	m.PushScope(true)
	fn, fnP := makeFn("f")
	m.Alloc(fn, fnP)
	s, sP := makeStr("captured")
	m.Alloc(s, sP)
	m.PopScope(fn.Capture, true)

	if m.HeapLen() != 2 {
		t.Errorf("heap len %d, want captured bindings kept", m.HeapLen())
	}
}

// TestTransferStackWithCollection allocates three numbers and an object with
// a string child, then retires the frame with collection requested.
func TestTransferStackWithCollection(t *testing.T) {
	tests := []struct {
		name      string
		overwrite bool
		wantLen   int
	}{
		{"object keeps its string", false, 2},
		{"overwritten string is reclaimed", true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := scope.NewManager(nil, scope.WithThreshold(0))
			m.PushScope(false)
			m.PushScope(true)

			m.Alloc(makeNum(0), nil)
			m.Alloc(makeNum(1), nil)
			m.Alloc(makeNum(2), nil)

			sv, sp := makeStr("test")
			o, op := makeObj(t, m.Heap(),
				entry{key: "true", v: makeNum(1)},
				entry{key: "false", v: sv, payload: sp},
			)
			id, err := m.Alloc(o, op)
			if err != nil {
				t.Fatalf("alloc object: %v", err)
			}
			if m.HeapLen() != 2 {
				t.Fatalf("heap len %d, want 2", m.HeapLen())
			}

			if tt.overwrite {
				v, p, err := m.Load(id)
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				p.(*value.Object).Set("false", makeNum(-1))
				if err := m.Store(v, p); err != nil {
					t.Fatalf("store: %v", err)
				}
				if m.HeapLen() != 2 {
					t.Fatalf("heap len %d before pop, want 2", m.HeapLen())
				}
			}

			if err := m.PopScope(uuid.Nil, true); err != nil {
				t.Fatalf("pop: %v", err)
			}
			if m.Current().Len() != 1 {
				t.Errorf("parent owns %d bindings, want 1", m.Current().Len())
			}
			if m.HeapLen() != tt.wantLen {
				t.Errorf("heap len %d, want %d", m.HeapLen(), tt.wantLen)
			}
			if !m.Heap().Contains(id) {
				t.Error("object was reclaimed")
			}
		})
	}
}

func TestCollectionThreshold(t *testing.T) {
	const threshold = 8
	m := scope.NewManager(nil, scope.WithThreshold(threshold))

	for round := 0; round < 20; round++ {
		m.PushScope(true)
		s, p := makeStr("tmp")
		m.Alloc(s, p)
		// drop the binding so the string becomes garbage once retired
		m.Store(makeNumWithID(s), nil)

		lenBefore := m.HeapLen()
		collectionsBefore := m.Heap().Stats().Collections
		m.PopScope(uuid.Nil, true)

		ran := m.Heap().Stats().Collections > collectionsBefore
		if lenBefore <= threshold && ran {
			t.Fatalf("round %d: collected with heap len %d <= %d", round, lenBefore, threshold)
		}
		if lenBefore > threshold && !ran {
			t.Fatalf("round %d: no collection with heap len %d > %d", round, lenBefore, threshold)
		}
	}

	if m.HeapLen() > threshold+1 {
		t.Errorf("heap len %d never came back under the threshold", m.HeapLen())
	}
}

func TestCollectionNotRequested(t *testing.T) {
	m := scope.NewManager(nil, scope.WithThreshold(0))
	m.PushScope(true)
	garbage := value.NewPointer("g")
	m.Heap().Allocate(garbage.ID, &value.String{Text: "g"})
	m.PopScope(uuid.Nil, false)

	if m.Heap().Stats().Collections != 0 {
		t.Error("collection ran without being requested")
	}
	if m.Collect() != 1 {
		t.Error("forced collection did not reclaim garbage")
	}
}

func TestDefaultThreshold(t *testing.T) {
	m := scope.NewManager(nil)
	if m.Threshold() != scope.DefaultThreshold || scope.DefaultThreshold != 64 {
		t.Errorf("threshold %d, want 64", m.Threshold())
	}
}

func TestCollectKeepsOuterFrames(t *testing.T) {
	m := scope.NewManager(nil, scope.WithThreshold(0))
	g, gP := makeStr("global")
	m.Alloc(g, gP)

	m.PushScope(true)
	m.PushScope(true)
	m.PopScope(uuid.Nil, true)

	if !m.Heap().Contains(g.ID) {
		t.Error("collection from an inner frame reclaimed a global binding")
	}
}

func TestLoadGlobalAfterRetirement(t *testing.T) {
	m := scope.NewManager(nil, scope.WithThreshold(0))
	g, gP := makeStr("global")
	m.Alloc(g, gP)

	m.PushScope(true)
	m.PushScope(true)
	m.PopScope(uuid.Nil, true)
	m.PopScope(uuid.Nil, true)

	_, p, err := m.Load(g.ID)
	if err != nil {
		t.Fatalf("load global: %v", err)
	}
	if p.(*value.String).Text != "global" {
		t.Errorf("payload %v, want global", p)
	}
}

func TestRootPolicyOption(t *testing.T) {
	var m *scope.Manager
	calls := 0
	m = scope.NewManager(nil, scope.WithThreshold(0), scope.WithRootPolicy(func(f *scope.Frame) value.IDSet {
		calls++
		return m.VisibleRoots(f)
	}))
	g, gP := makeStr("global")
	m.Alloc(g, gP)

	m.PushScope(true)
	m.PopScope(uuid.Nil, true)

	if calls != 1 {
		t.Errorf("policy called %d times, want 1", calls)
	}
	if _, _, err := m.Load(g.ID); err != nil {
		t.Errorf("load global: %v", err)
	}
}

// makeNumWithID returns an immediate that rebinds v's identity.
func makeNumWithID(v value.Value) value.Value {
	n := makeNum(0)
	n.ID = v.ID
	return n
}
