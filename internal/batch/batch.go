// Package batch implements the two batch shapes that flow through the
// pipeline (spec.md §5): a collector-owned RawBatch of undecoded datagrams,
// and a repacker-owned, reference-counted PacketBatch of resolved packets
// that downstream report hosts fan out over and report ticks can outlive.
package batch

import (
	"sync/atomic"

	"github.com/pinba-platform/pinba2/internal/arena"
	"github.com/pinba-platform/pinba2/internal/packet"
	"github.com/pinba-platform/pinba2/internal/wordslice"
)

// RawBatch is a collector-sealed group of raw UDP datagram payloads, copied
// into an arena so the network read buffer can be reused immediately.
// Ownership is single-consumer: exactly one repacker thread decodes it and
// then releases its arena, so no refcount is needed.
type RawBatch struct {
	Arena      *arena.Arena
	Datagrams  [][]byte
	ReceivedAt int64 // unix nanos, stamped by the collector thread
}

// NewRawBatch creates an empty batch drawing from pool.
func NewRawBatch(pool *arena.Pool) *RawBatch {
	return &RawBatch{Arena: arena.New(pool)}
}

// Add copies datagram into the batch's arena and records it.
func (b *RawBatch) Add(datagram []byte) {
	b.Datagrams = append(b.Datagrams, b.Arena.CopyBytes(datagram))
}

// Len returns the number of datagrams sealed into this batch.
func (b *RawBatch) Len() int {
	return len(b.Datagrams)
}

// Release returns the batch's arena to its pool. Call exactly once, after
// every datagram has been decoded.
func (b *RawBatch) Release() {
	b.Arena.Release()
	b.Datagrams = nil
}

// PacketBatch is a repacker-sealed group of validated, dictionary-resolved
// packets. It is reference-counted: the coordinator's fan-out to report
// hosts, and any report tick that retains it past that fan-out, each hold a
// reference. The backing arena and the word-slice reference acquired at
// seal time are released together when the last reference drops.
type PacketBatch struct {
	Arena   *arena.Arena
	Slice   *wordslice.Slice
	Packets []*packet.Packet

	refs atomic.Int64
}

// NewPacketBatch seals a batch of packets built from arena, attaching a
// reference to the repacker's current word-slice so every dictionary ID
// referenced by these packets stays resolvable for as long as the batch (or
// anything that retains it) lives. The initial reference belongs to the
// caller (normally the coordinator's fan-out step).
func NewPacketBatch(a *arena.Arena, slice *wordslice.Slice, packets []*packet.Packet) *PacketBatch {
	b := &PacketBatch{
		Arena:   a,
		Slice:   slice.AddRef(),
		Packets: packets,
	}
	b.refs.Store(1)
	return b
}

// AddRef records an additional holder (e.g. a report tick retaining the
// batch past its fan-out lifetime) and returns b for chaining.
func (b *PacketBatch) AddRef() *PacketBatch {
	b.refs.Add(1)
	return b
}

// Release drops a reference; at zero it frees the arena and releases the
// word-slice reference acquired at seal time.
func (b *PacketBatch) Release() {
	if b.refs.Add(-1) == 0 {
		b.Arena.Release()
		b.Slice.Release()
	}
}
