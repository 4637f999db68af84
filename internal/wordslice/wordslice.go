// Package wordslice implements the repacker's per-rotation word-slice: the
// handle that keeps a batch of dictionary IDs alive for as long as any
// packet batch, report tick, or snapshot built from them is still held
// (spec.md §4.2 step 3, §4.5 reclamation).
package wordslice

import "sync/atomic"

// Slice is a bag of dictionary IDs registered by a single repacker thread
// during one rotation window, plus an external reference count tracking how
// many downstream consumers (packet batches, and transitively the report
// ticks/snapshots built from them) still need those IDs to stay resolvable.
//
// A Slice is single-writer: only the repacker thread that owns it calls
// Register, normally while the slice is still "current". AddRef/Release are
// called concurrently by whichever goroutines hold a downstream reference.
type Slice struct {
	ids  []uint32
	refs atomic.Int64
}

// New returns an empty, unreferenced slice.
func New() *Slice {
	return &Slice{}
}

// Register records that id was resolved (cache miss, fresh global reference
// acquired) during this slice's lifetime.
func (s *Slice) Register(id uint32) {
	s.ids = append(s.ids, id)
}

// IDs returns the dictionary IDs registered into this slice, one entry per
// Register call, in call order.
func (s *Slice) IDs() []uint32 {
	return s.ids
}

// AddRef records an additional downstream holder and returns s for chaining.
func (s *Slice) AddRef() *Slice {
	s.refs.Add(1)
	return s
}

// Release drops one downstream holder.
func (s *Slice) Release() {
	s.refs.Add(-1)
}

// RefCount returns the current external reference count. A sealed slice
// with RefCount() == 0 has no remaining downstream holder and is eligible
// for the repacker's reap pass to release its dictionary references.
func (s *Slice) RefCount() int64 {
	return s.refs.Load()
}
