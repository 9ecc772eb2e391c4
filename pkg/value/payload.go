package value

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type PayloadKind int

const (
	PayloadObject PayloadKind = iota
	PayloadString
	PayloadSymbol
	PayloadFunction
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadObject:
		return "object"
	case PayloadString:
		return "string"
	case PayloadSymbol:
		return "symbol"
	case PayloadFunction:
		return "function"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Payload is the heap-resident body of a pointer Value. The set of variants is
// closed: *Object, *String, *Symbol and *Function.
type Payload interface {
	Kind() PayloadKind
	// Clone returns a copy that shares no mutable state with the receiver.
	Clone() Payload
	payload()
}

// Object maps keys to child values.
type Object struct {
	Entries map[string]Value
}

// String is a heap string.
type String struct {
	Text string
}

// Symbol is an interned name.
type Symbol struct {
	Name string
}

// Function describes a function literal. Capture keys the scope it closed
// over in the closures table.
type Function struct {
	Name    string
	Params  []string
	Capture uuid.UUID
}

// NewObject creates an Object holding a copy of entries.
func NewObject(entries map[string]Value) *Object {
	o := &Object{Entries: make(map[string]Value, len(entries))}
	for k, v := range entries {
		o.Entries[k] = v
	}
	return o
}

// Set stores v under key, replacing any previous entry.
func (o *Object) Set(key string, v Value) {
	if o.Entries == nil {
		o.Entries = make(map[string]Value)
	}
	o.Entries[key] = v
}

// Get returns the entry under key.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.Entries[key]
	return v, ok
}

// Delete removes the entry under key.
func (o *Object) Delete(key string) {
	delete(o.Entries, key)
}

// Keys returns the entry keys in sorted order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.Entries))
	for k := range o.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Children returns the heap identities the object references directly.
func (o *Object) Children() IDSet {
	out := make(IDSet)
	for _, v := range o.Entries {
		if v.IsPointer() {
			out.Add(v.ID)
		}
	}
	return out
}

func (o *Object) Kind() PayloadKind { return PayloadObject }
func (o *Object) Clone() Payload    { return NewObject(o.Entries) }
func (o *Object) payload()          {}

func (o *Object) String() string {
	parts := make([]string, 0, len(o.Entries))
	for _, k := range o.Keys() {
		parts = append(parts, fmt.Sprintf("%s: %s", k, o.Entries[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s *String) Kind() PayloadKind { return PayloadString }
func (s *String) Clone() Payload    { return &String{Text: s.Text} }
func (s *String) payload()          {}
func (s *String) String() string    { return fmt.Sprintf("%q", s.Text) }

func (s *Symbol) Kind() PayloadKind { return PayloadSymbol }
func (s *Symbol) Clone() Payload    { return &Symbol{Name: s.Name} }
func (s *Symbol) payload()          {}
func (s *Symbol) String() string    { return "Symbol(" + s.Name + ")" }

func (f *Function) Kind() PayloadKind { return PayloadFunction }

func (f *Function) Clone() Payload {
	return &Function{
		Name:    f.Name,
		Params:  append([]string(nil), f.Params...),
		Capture: f.Capture,
	}
}

func (f *Function) payload() {}

func (f *Function) String() string {
	return fmt.Sprintf("function %s(%s)", f.Name, strings.Join(f.Params, ", "))
}

// Children returns the identities p references. Only objects have children.
func Children(p Payload) IDSet {
	switch p := p.(type) {
	case *Object:
		return p.Children()
	default:
		return nil
	}
}
