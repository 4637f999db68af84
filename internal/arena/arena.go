// Package arena implements the bump-allocator pool described in spec.md §5:
// each batch owns an arena of fixed-size blocks, with a spill list for
// oversize allocations, and the whole arena is released en bloc when the
// owning batch's reference count drops to zero.
//
// Unlike the original nmpa_s (which hands out raw pointers into mmap'd
// blocks), this arena hands out copied Go strings/byte slices backed by
// pooled slabs: it keeps the "batch owns its memory, freed in bulk" shape
// and the allocation-count savings of bump allocation, without manual
// pointer arithmetic or unsafe aliasing across batch boundaries.
package arena

import "sync"

// DefaultBlockSize is used when a Pool is constructed without an explicit
// block size.
const DefaultBlockSize = 64 * 1024

// Pool recycles fixed-size blocks across arenas so that short-lived batches
// don't churn the allocator.
type Pool struct {
	blockSize int
	sp        sync.Pool
}

// NewPool creates a block pool with the given block size.
func NewPool(blockSize int) *Pool {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}

	p := &Pool{blockSize: blockSize}
	p.sp.New = func() any {
		b := make([]byte, blockSize)
		return &b
	}

	return p
}

func (p *Pool) get() []byte {
	b := p.sp.Get().(*[]byte)
	return (*b)[:0]
}

func (p *Pool) put(b []byte) {
	if cap(b) != p.blockSize {
		return
	}

	p.sp.Put(&b)
}

// Arena is a bump allocator over pooled blocks, with a spill list for
// allocations larger than half a block.
type Arena struct {
	pool    *Pool
	cur     []byte
	blocks  [][]byte
	spill   [][]byte
	written int
}

// New creates an arena drawing blocks from pool.
func New(pool *Pool) *Arena {
	return &Arena{pool: pool}
}

// AllocBytes returns n zeroed bytes carved out of the arena's current block,
// a freshly pooled block, or the spill list for oversize requests.
func (a *Arena) AllocBytes(n int) []byte {
	if n > a.pool.blockSize/2 {
		b := make([]byte, n)
		a.spill = append(a.spill, b)
		a.written += n
		return b
	}

	if len(a.cur)+n > cap(a.cur) {
		if cap(a.cur) > 0 {
			a.blocks = append(a.blocks, a.cur)
		}
		a.cur = a.pool.get()
	}

	start := len(a.cur)
	a.cur = a.cur[:start+n]
	a.written += n
	b := a.cur[start : start+n : start+n]
	clear(b) // pooled blocks are reused, so the carved bytes may be stale
	return b
}

// CopyBytes copies src into a fresh arena-owned slice.
func (a *Arena) CopyBytes(src []byte) []byte {
	dst := a.AllocBytes(len(src))
	copy(dst, src)
	return dst
}

// CopyString copies s into arena-owned memory and returns a Go string built
// from that copy; the string conversion allocates its own backing array.
func (a *Arena) CopyString(s string) string {
	if s == "" {
		return ""
	}

	dst := a.AllocBytes(len(s))
	copy(dst, s)
	return string(dst)
}

// BytesWritten returns the total number of bytes handed out by this arena,
// used by memory estimators.
func (a *Arena) BytesWritten() int {
	return a.written
}

// Release returns all blocks owned by this arena to the pool. It must only
// be called once, when the owning batch's reference count reaches zero.
func (a *Arena) Release() {
	if cap(a.cur) > 0 {
		a.blocks = append(a.blocks, a.cur)
	}

	for _, b := range a.blocks {
		a.pool.put(b)
	}

	a.blocks = nil
	a.spill = nil
	a.cur = nil
}
