package scope_test

import (
	"testing"

	"tricolor/pkg/heap"
	"tricolor/pkg/value"
)

type entry struct {
	key     string
	v       value.Value
	payload value.Payload
}

func makeNum(n float64) value.Value {
	return value.NewNumber("", n)
}

func makeStr(s string) (value.Value, value.Payload) {
	return value.NewPointer(s), &value.String{Text: s}
}

func makeFn(name string) (value.Value, value.Payload) {
	v := value.NewClosure(name)
	return v, &value.Function{Name: name, Capture: v.Capture}
}

// makeObj builds an object from entries, allocating the payload of every
// pointer entry into h first.
func makeObj(t *testing.T, h *heap.Heap, entries ...entry) (value.Value, value.Payload) {
	t.Helper()
	o := value.NewObject(nil)
	for _, e := range entries {
		if e.v.IsPointer() {
			if _, err := h.Allocate(e.v.ID, e.payload); err != nil {
				t.Fatalf("allocate %s: %v", e.key, err)
			}
		}
		o.Set(e.key, e.v)
	}
	return value.NewPointer("obj"), o
}
