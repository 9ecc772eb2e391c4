package value

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type Kind int

const (
	KindUndefined Kind = iota
	KindNumber
	KindBool
	KindPointer
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindPointer:
		return "pointer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value describes one variable binding. Copies of a Value share its ID, and the
// ID (not the contents) is what makes two values the same object.
type Value struct {
	Kind    Kind
	ID      uuid.UUID // identity, also the heap key for pointer kinds
	Name    string    // source name, if any
	Capture uuid.UUID // closures only; distinct from ID
	Num     float64
	Bool    bool
}

// NewUndefined creates a new undefined Value with a fresh identity.
func NewUndefined(name string) Value {
	return Value{Kind: KindUndefined, ID: uuid.New(), Name: name}
}

// NewNumber creates a new number Value with a fresh identity.
func NewNumber(name string, n float64) Value {
	return Value{Kind: KindNumber, ID: uuid.New(), Name: name, Num: n}
}

// NewBool creates a new boolean Value with a fresh identity.
func NewBool(name string, b bool) Value {
	return Value{Kind: KindBool, ID: uuid.New(), Name: name, Bool: b}
}

// NewPointer creates a new pointer Value. Its payload lives in the heap under
// the returned value's ID.
func NewPointer(name string) Value {
	return Value{Kind: KindPointer, ID: uuid.New(), Name: name}
}

// NewClosure creates a pointer Value for a function literal together with the
// capture identity used to key its retired scope.
func NewClosure(name string) Value {
	v := NewPointer(name)
	v.Capture = uuid.New()
	return v
}

// IsPointer reports whether the value's body lives in the heap.
func (v Value) IsPointer() bool {
	return v.Kind == KindPointer
}

// IsClosure reports whether the value carries a capture identity.
func (v Value) IsClosure() bool {
	return v.Capture != uuid.Nil
}

func (v Value) String() string {
	name := v.Name
	if name == "" {
		name = "_"
	}
	switch v.Kind {
	case KindNumber:
		return fmt.Sprintf("%s=%g", name, v.Num)
	case KindBool:
		return fmt.Sprintf("%s=%t", name, v.Bool)
	case KindPointer:
		return fmt.Sprintf("%s=&%s", name, v.ID)
	default:
		return name + "=undefined"
	}
}

// IDSet is a set of identities.
type IDSet map[uuid.UUID]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...uuid.UUID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

func (s IDSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Union adds every member of o to s.
func (s IDSet) Union(o IDSet) {
	for id := range o {
		s[id] = struct{}{}
	}
}

// Sorted returns the members in a stable order.
func (s IDSet) Sorted() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
