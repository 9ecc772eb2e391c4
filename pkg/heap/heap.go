// Package heap owns the payloads of pointer values and reclaims the ones that
// can no longer be reached, using tri-color mark and sweep.
package heap

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"tricolor/pkg/value"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

type Color int

const (
	White Color = iota
	Grey
	Black
)

func (c Color) String() string {
	switch c {
	case White:
		return "white"
	case Grey:
		return "grey"
	case Black:
		return "black"
	default:
		return fmt.Sprintf("Color(%d)", int(c))
	}
}

type record struct {
	payload value.Payload
	color   Color
}

// Stats summarises the collections a heap has run.
type Stats struct {
	Collections  int           // completed mark/sweep cycles
	Freed        int           // records discarded over the heap's lifetime
	LastFreed    int           // records discarded by the last sweep
	LastDuration time.Duration // wall time of the last collection
	Peak         int           // largest number of live records seen
}

// Heap maps identities to payloads. It is not safe for concurrent use; a
// single Manager drives it.
type Heap struct {
	records map[uuid.UUID]*record
	grey    []uuid.UUID // worklist of identities colored grey
	marked  bool        // a mark phase ran since the last sweep
	stats   Stats
}

// New creates an empty Heap.
func New() *Heap {
	return &Heap{
		records: make(map[uuid.UUID]*record),
		grey:    make([]uuid.UUID, 0, 16),
	}
}

// Allocate stores p under id.
func (h *Heap) Allocate(id uuid.UUID, p value.Payload) (uuid.UUID, error) {
	if p == nil {
		return uuid.Nil, fmt.Errorf("allocate %s: %w", id, ErrNilPayload)
	}
	if _, ok := h.records[id]; ok {
		return uuid.Nil, fmt.Errorf("allocate %s: %w", id, ErrDuplicateIdentity)
	}

	h.records[id] = &record{payload: p.Clone(), color: White}
	if n := len(h.records); n > h.stats.Peak {
		h.stats.Peak = n
	}
	return id, nil
}

// Find returns a copy of the payload stored under id.
func (h *Heap) Find(id uuid.UUID) (value.Payload, bool) {
	r, ok := h.records[id]
	if !ok {
		return nil, false
	}
	return r.payload.Clone(), true
}

// Contains reports whether id is resident.
func (h *Heap) Contains(id uuid.UUID) bool {
	_, ok := h.records[id]
	return ok
}

// Update replaces the payload under id. The payload variant of an identity
// never changes once allocated.
func (h *Heap) Update(id uuid.UUID, p value.Payload) error {
	r, ok := h.records[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrUnknownIdentity)
	}
	if p == nil || p.Kind() != r.payload.Kind() {
		return fmt.Errorf("update %s (%s): %w", id, r.payload.Kind(), ErrPayloadKindMismatch)
	}

	r.payload = p.Clone()
	return nil
}

// Color returns the current color of id.
func (h *Heap) Color(id uuid.UUID) (Color, bool) {
	r, ok := h.records[id]
	if !ok {
		return White, false
	}
	return r.color, true
}

// MarkRoots colors every white root black and queues its white children as
// grey. Roots that are not resident (immediates) are ignored.
func (h *Heap) MarkRoots(roots value.IDSet) {
	h.marked = true
	for id := range roots {
		r, ok := h.records[id]
		if !ok || r.color != White {
			continue
		}
		r.color = Black
		h.shade(r)
	}
}

// Mark drains the grey worklist until no grey identities remain.
func (h *Heap) Mark() {
	h.marked = true
	for len(h.grey) > 0 {
		n := len(h.grey) - 1
		id := h.grey[n]
		h.grey = h.grey[:n]

		r, ok := h.records[id]
		if !ok || r.color != Grey {
			continue
		}
		r.color = Black
		h.shade(r)
	}
}

// shade colors the white children of r grey and queues them.
func (h *Heap) shade(r *record) {
	for child := range value.Children(r.payload) {
		c, ok := h.records[child]
		if !ok {
			log.Warn("Dangling child reference", "child", child)
			continue
		}
		if c.color == White {
			c.color = Grey
			h.grey = append(h.grey, child)
		}
	}
}

// Sweep discards every white record and resets survivors to white. It
// returns the number of records discarded. Without a mark phase since the
// previous sweep there is nothing to decide, and Sweep does nothing.
func (h *Heap) Sweep() int {
	if !h.marked {
		return 0
	}

	freed := 0
	for id, r := range h.records {
		if r.color == White {
			delete(h.records, id)
			freed++
			continue
		}
		r.color = White
	}
	h.grey = h.grey[:0]
	h.marked = false

	h.stats.LastFreed = freed
	h.stats.Freed += freed
	return freed
}

// Collect runs a full stop-the-world cycle from roots and returns the number
// of records discarded.
func (h *Heap) Collect(roots value.IDSet) int {
	start := time.Now()
	before := len(h.records)

	h.MarkRoots(roots)
	h.Mark()
	freed := h.Sweep()

	h.stats.Collections++
	h.stats.LastDuration = time.Since(start)
	log.Debug("Collected heap", "roots", len(roots), "before", before, "freed", freed, "live", len(h.records))
	return freed
}

// Len returns the number of resident records.
func (h *Heap) Len() int {
	return len(h.records)
}

// IsEmpty reports whether no records are resident.
func (h *Heap) IsEmpty() bool {
	return len(h.records) == 0
}

// Stats returns the collection statistics.
func (h *Heap) Stats() Stats {
	return h.stats
}

// Entry describes one resident record.
type Entry struct {
	ID       uuid.UUID
	Kind     value.PayloadKind
	Color    Color
	Children []uuid.UUID
}

// Snapshot lists the resident records ordered by identity.
func (h *Heap) Snapshot() []Entry {
	out := make([]Entry, 0, len(h.records))
	for id, r := range h.records {
		out = append(out, Entry{
			ID:       id,
			Kind:     r.payload.Kind(),
			Color:    r.color,
			Children: value.Children(r.payload).Sorted(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

var (
	ErrNilPayload          = errors.New("nil payload")
	ErrDuplicateIdentity   = errors.New("identity already allocated")
	ErrUnknownIdentity     = errors.New("identity not allocated")
	ErrPayloadKindMismatch = errors.New("payload kind mismatch")
)
