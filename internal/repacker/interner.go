package repacker

import (
	"sync"

	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/wordslice"
)

// threadInterner is one repacker thread's dictionary cache plus its current
// word-slice. It is not safe for concurrent use: each repacker thread owns
// exactly one.
//
// The cache's lifetime is tied to the current slice's lifetime rather than
// persisting across rotations: on rotate, a fresh empty cache is opened
// alongside the fresh slice. This keeps the bound the spec describes ("at
// most one global-dictionary call per distinct string per repacker thread
// per sealed-slice lifetime") exact, and collapses what would otherwise be
// a three-way (slice, cache, dictionary) refcount dance into a single
// external refcount on the slice itself: reaping a sealed slice whose
// external refcount has reached zero is sufficient to know every word it
// registered can have its global reference dropped, since no other cache
// could still be holding it.
type threadInterner struct {
	dict    *dictionary.Dictionary
	current *wordslice.Slice
	local   map[string]uint32
}

func newThreadInterner(dict *dictionary.Dictionary) *threadInterner {
	return &threadInterner{
		dict:    dict,
		current: wordslice.New(),
		local:   make(map[string]uint32),
	}
}

// Intern resolves s to a dictionary ID, registering a fresh global
// reference on first sight this rotation.
func (ti *threadInterner) Intern(s string) uint32 {
	id, _ := ti.InternHashed(s)
	return id
}

// InternHashed resolves s to a dictionary ID and its precomputed hash, for
// bloom probing.
func (ti *threadInterner) InternHashed(s string) (uint32, uint64) {
	if s == "" {
		return dictionary.EmptyID, 0
	}

	if id, ok := ti.local[s]; ok {
		hash, _ := ti.dict.HashOf(id)
		return id, hash
	}

	h := ti.dict.GetOrAddRef(s)
	ti.local[s] = h.ID
	ti.current.Register(h.ID)
	return h.ID, h.Hash
}

// rotate seals the current slice and opens a fresh one with an empty
// cache, returning the sealed slice so the caller can track it for
// reaping.
func (ti *threadInterner) rotate() *wordslice.Slice {
	sealed := ti.current
	ti.current = wordslice.New()
	ti.local = make(map[string]uint32)
	return sealed
}

// reaper tracks sealed-but-not-yet-reaped slices for one repacker thread
// and releases their dictionary references once nothing downstream holds
// them anymore.
type reaper struct {
	mu     sync.Mutex
	dict   *dictionary.Dictionary
	sealed []*wordslice.Slice
}

func newReaper(dict *dictionary.Dictionary) *reaper {
	return &reaper{dict: dict}
}

func (r *reaper) track(s *wordslice.Slice) {
	r.mu.Lock()
	r.sealed = append(r.sealed, s)
	r.mu.Unlock()
}

// reap releases dictionary references for every tracked slice whose
// external refcount has dropped to zero, and forgets those slices.
func (r *reaper) reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.sealed[:0]
	reaped := 0
	for _, s := range r.sealed {
		if s.RefCount() > 0 {
			kept = append(kept, s)
			continue
		}
		for _, id := range s.IDs() {
			r.dict.EraseWordRef(id)
		}
		reaped++
	}
	r.sealed = kept
	return reaped
}
