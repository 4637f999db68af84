// Package dictionary implements the sharded, thread-safe string<->ID
// dictionary described in spec.md §4.5: a dense shared structure mapping
// interned strings to monotonic integer IDs (and back), with a global
// reference count per entry that gates reclamation.
package dictionary

import (
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// EmptyID is the reserved ID for the empty string; it is never issued to a
// real word and carries no reference count.
const EmptyID uint32 = 0

// Handle is returned by GetOrAddRef: an ID together with a stable view of
// its backing string, valid for as long as the caller holds a reference
// (directly, or transitively through a word-slice it was registered into).
type Handle struct {
	ID   uint32
	Text string
	Hash uint64
}

type word struct {
	id       uint32
	text     string
	hash     uint64
	refcount int64
	pinned   bool
}

type shard struct {
	mu      sync.RWMutex
	byText  map[string]*word
	byID    map[uint32]*word
	freeIDs []uint32
}

// Dictionary is the shared, sharded word table.
type Dictionary struct {
	shards    []*shard
	shardBits uint

	idMu   sync.Mutex
	nextID uint32
}

// New creates a dictionary with the given number of shards, which must be a
// power of two (panics otherwise).
func New(nShards int) *Dictionary {
	if nShards <= 0 || nShards&(nShards-1) != 0 {
		panic("dictionary: shard count must be a power of two")
	}

	d := &Dictionary{
		shards: make([]*shard, nShards),
		nextID: 1,
	}
	for i := range d.shards {
		d.shards[i] = &shard{
			byText: make(map[string]*word),
			byID:   make(map[uint32]*word),
		}
	}

	bits := uint(0)
	for 1<<bits < nShards {
		bits++
	}
	d.shardBits = bits

	return d
}

// hashString returns a well-distributed 64-bit hash of s, normalizing to
// NFC first so that byte-distinct but visually-identical strings collapse
// to the same dictionary entry.
func hashString(s string) uint64 {
	normalized := norm.NFC.String(s)
	sum := blake2b.Sum256([]byte(normalized))
	return binary.LittleEndian.Uint64(sum[:8])
}

func (d *Dictionary) shardFor(hash uint64) *shard {
	idx := hash >> (64 - d.shardBits)
	return d.shards[idx]
}

func (d *Dictionary) allocID() uint32 {
	d.idMu.Lock()
	defer d.idMu.Unlock()

	id := d.nextID
	d.nextID++
	return id
}

func (d *Dictionary) takeFreeID(s *shard) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.freeIDs) == 0 {
		return 0, false
	}

	n := len(s.freeIDs) - 1
	id := s.freeIDs[n]
	s.freeIDs = s.freeIDs[:n]
	return id, true
}

func (d *Dictionary) newID(s *shard) uint32 {
	if id, ok := d.takeFreeID(s); ok {
		return id
	}
	return d.allocID()
}

// GetOrAdd returns the (new or existing) ID for s without affecting its
// reference count. Use this when the caller already holds, or is about to
// separately acquire, a reference.
func (d *Dictionary) GetOrAdd(s string) uint32 {
	if s == "" {
		return EmptyID
	}
	s = norm.NFC.String(s)

	h := hashString(s)
	sh := d.shardFor(h)

	sh.mu.RLock()
	if w, ok := sh.byText[s]; ok {
		sh.mu.RUnlock()
		return w.id
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if w, ok := sh.byText[s]; ok {
		return w.id
	}

	id := d.newID(sh)
	w := &word{id: id, text: s, hash: h}
	sh.byText[s] = w
	sh.byID[id] = w
	return id
}

// GetOrAddRef returns a handle for s and increments its global reference
// count (creating the entry with refcount 1 if it did not already exist).
func (d *Dictionary) GetOrAddRef(s string) Handle {
	if s == "" {
		return Handle{ID: EmptyID}
	}
	s = norm.NFC.String(s)

	h := hashString(s)
	sh := d.shardFor(h)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.byText[s]
	if !ok {
		id := d.newID(sh)
		w = &word{id: id, text: s, hash: h}
		sh.byText[s] = w
		sh.byID[id] = w
	}
	w.refcount++

	return Handle{ID: w.id, Text: w.text, Hash: w.hash}
}

// GetWord performs a reverse lookup. It returns ("", false) for ID 0 or an
// unknown/reclaimed ID. Callers must hold a reference (directly or via a
// word-slice) to be guaranteed a live result.
func (d *Dictionary) GetWord(id uint32) (string, bool) {
	if id == EmptyID {
		return "", false
	}

	for _, sh := range d.shards {
		sh.mu.RLock()
		w, ok := sh.byID[id]
		sh.mu.RUnlock()
		if ok {
			return w.text, true
		}
	}

	return "", false
}

// EraseWordRef decrements id's global reference count; at zero the slot is
// freed and the ID becomes eligible for reuse. A no-op for pinned
// (name-word) entries and for unknown IDs.
func (d *Dictionary) EraseWordRef(id uint32) {
	if id == EmptyID {
		return
	}

	for _, sh := range d.shards {
		sh.mu.Lock()
		w, ok := sh.byID[id]
		if !ok {
			sh.mu.Unlock()
			continue
		}
		if w.pinned {
			sh.mu.Unlock()
			return
		}

		w.refcount--
		if w.refcount <= 0 {
			delete(sh.byText, w.text)
			delete(sh.byID, id)
			sh.freeIDs = append(sh.freeIDs, id)
		}
		sh.mu.Unlock()
		return
	}
}

// AddNameWord interns a permanent tag-name word: it is never reclaimed by
// EraseWordRef, and its hash is precomputed for bloom probing.
func (d *Dictionary) AddNameWord(s string) Handle {
	s = norm.NFC.String(s)
	h := hashString(s)
	sh := d.shardFor(h)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.byText[s]
	if !ok {
		id := d.newID(sh)
		w = &word{id: id, text: s, hash: h}
		sh.byText[s] = w
		sh.byID[id] = w
	}
	w.pinned = true

	return Handle{ID: w.id, Text: w.text, Hash: w.hash}
}

// HashOf returns the precomputed hash for an already-interned word, used to
// probe blooms without rehashing. ok is false for an unknown ID.
func (d *Dictionary) HashOf(id uint32) (hash uint64, ok bool) {
	if id == EmptyID {
		return 0, false
	}
	for _, sh := range d.shards {
		sh.mu.RLock()
		w, found := sh.byID[id]
		sh.mu.RUnlock()
		if found {
			return w.hash, true
		}
	}
	return 0, false
}

// Size returns the number of live entries across all shards.
func (d *Dictionary) Size() int {
	n := 0
	for _, sh := range d.shards {
		sh.mu.RLock()
		n += len(sh.byText)
		sh.mu.RUnlock()
	}
	return n
}

// MemoryUsed estimates bytes held by the dictionary: hash-table bucket
// overhead plus the interned string bytes themselves.
func (d *Dictionary) MemoryUsed() (hashBytes, stringBytes uint64) {
	const perEntryOverhead = 64 // map bucket + pointer + refcount/bookkeeping, estimated

	for _, sh := range d.shards {
		sh.mu.RLock()
		hashBytes += uint64(len(sh.byText)) * perEntryOverhead
		for s := range sh.byText {
			stringBytes += uint64(len(s))
		}
		sh.mu.RUnlock()
	}
	return hashBytes, stringBytes
}
