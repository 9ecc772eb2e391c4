// Package dump encodes heap snapshots as CBOR for offline inspection.
package dump

import (
	"fmt"
	"io"
	"time"

	"tricolor/pkg/heap"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dump: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Record is one heap record as written to a dump.
type Record struct {
	ID       string   `cbor:"1,keyasint"`
	Kind     string   `cbor:"2,keyasint"`
	Color    string   `cbor:"3,keyasint"`
	Children []string `cbor:"4,keyasint,omitempty"`
}

// Dump is a heap snapshot plus the collector statistics at the time it was
// taken.
type Dump struct {
	Taken       time.Time `cbor:"1,keyasint"`
	Collections int       `cbor:"2,keyasint"`
	Freed       int       `cbor:"3,keyasint"`
	Peak        int       `cbor:"4,keyasint"`
	Records     []Record  `cbor:"5,keyasint"`
}

// Take captures the current state of h.
func Take(h *heap.Heap) *Dump {
	stats := h.Stats()
	d := &Dump{
		Taken:       time.Now().UTC(),
		Collections: stats.Collections,
		Freed:       stats.Freed,
		Peak:        stats.Peak,
	}
	for _, e := range h.Snapshot() {
		r := Record{
			ID:    e.ID.String(),
			Kind:  e.Kind.String(),
			Color: e.Color.String(),
		}
		for _, c := range e.Children {
			r.Children = append(r.Children, c.String())
		}
		d.Records = append(d.Records, r)
	}
	return d
}

// Marshal serializes d to CBOR bytes.
func Marshal(d *Dump) ([]byte, error) {
	return encMode.Marshal(d)
}

// Unmarshal deserializes a Dump from CBOR bytes.
func Unmarshal(data []byte) (*Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("dump: unmarshal: %w", err)
	}
	return &d, nil
}

// Write takes a snapshot of h and writes it to w.
func Write(w io.Writer, h *heap.Heap) error {
	data, err := Marshal(Take(h))
	if err != nil {
		return fmt.Errorf("dump: marshal: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("dump: write: %w", err)
	}
	return nil
}
