package report

import (
	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/dictionary"
)

// slot is one window position: the rows accumulated during that interval,
// plus the packet batches that contributed to it. Retaining the batches
// (rather than just their rows) is what keeps each batch's word-slice
// reference alive for as long as any dictionary ID in these rows might
// still be read (spec.md §4.5, "every report tick inherits that reference
// when it accepts the batch").
type slot struct {
	agg      *Aggregator
	retained map[*batch.PacketBatch]struct{}
}

func newSlot(cfg *Config, dict *dictionary.Dictionary) *slot {
	return &slot{
		agg:      NewAggregator(cfg, dict),
		retained: make(map[*batch.PacketBatch]struct{}),
	}
}

func (s *slot) retain(b *batch.PacketBatch) {
	if _, ok := s.retained[b]; ok {
		return
	}
	s.retained[b] = struct{}{}
	b.AddRef()
}

func (s *slot) release() {
	for b := range s.retained {
		b.Release()
	}
	s.retained = nil
}

// History is a fixed-size ring of time slots implementing one of two
// strategies (spec.md §4.4):
//
//   - Windowed: a running total is maintained incrementally. A slot's
//     counters are added when Advance seals it and subtracted when the
//     ring later evicts it; the open slot is not part of the total. Histograms are merge-only: an evicted slot's
//     histogram mass is never subtracted from the running total, trading
//     windowed exactness for O(1) eviction (a deliberate choice recorded
//     alongside this package; HDR-style histograms have no cheap exact
//     subtract).
//   - General: no running total is kept; GeneralSnapshot merges every live
//     slot from scratch on demand.
type History struct {
	cfg  *Config
	dict *dictionary.Dictionary

	slots  []*slot
	cur    int
	filled int

	// total is only populated and maintained for Windowed histories.
	total map[Key]*Row
}

// NewHistory creates a history ring with cfg.WindowSize slots.
func NewHistory(cfg *Config, dict *dictionary.Dictionary) *History {
	n := cfg.WindowSize
	if n < 1 {
		n = 1
	}

	h := &History{cfg: cfg, dict: dict, slots: make([]*slot, n)}
	for i := range h.slots {
		h.slots[i] = newSlot(cfg, dict)
	}
	if cfg.Strategy == Windowed {
		h.total = make(map[Key]*Row)
	}

	return h
}

// Dict returns the dictionary this history resolves keys against.
func (h *History) Dict() *dictionary.Dictionary {
	return h.dict
}

// Current returns the open (not yet sealed) slot's aggregator.
func (h *History) Current() *Aggregator {
	return h.slots[h.cur].agg
}

// RetainCurrent records b as a contributor to the current slot, so its
// word-slice reference is held for the slot's (and later, any snapshot's)
// lifetime.
func (h *History) RetainCurrent(b *batch.PacketBatch) {
	h.slots[h.cur].retain(b)
}

// Advance seals the current slot, folding it into the running total (for
// Windowed histories), evicts the slot the ring is about to overwrite, and
// opens a fresh current slot.
func (h *History) Advance() {
	sealed := h.slots[h.cur]

	if h.cfg.Strategy == Windowed {
		for k, r := range sealed.agg.Rows() {
			h.addToTotal(k, r)
		}
	}

	next := (h.cur + 1) % len(h.slots)
	if h.filled >= len(h.slots)-1 {
		evicted := h.slots[next]
		if h.cfg.Strategy == Windowed {
			for k, r := range evicted.agg.Rows() {
				h.subtractFromTotal(k, r)
			}
		}
		evicted.release()
	} else {
		h.filled++
	}

	h.slots[next] = newSlot(h.cfg, h.dict)
	h.cur = next
}

func (h *History) addToTotal(k Key, r *Row) {
	t, ok := h.total[k]
	if !ok {
		t = &Row{}
		h.total[k] = t
	}
	t.merge(r)
}

func (h *History) subtractFromTotal(k Key, r *Row) {
	t, ok := h.total[k]
	if !ok {
		return
	}
	t.Requests -= r.Requests
	t.Timers -= r.Timers
	t.TimeSum -= r.TimeSum
	t.RuUtimeSum -= r.RuUtimeSum
	t.RuStimeSum -= r.RuStimeSum
	t.DocSizeSum -= r.DocSizeSum
	t.MemFootprintSum -= r.MemFootprintSum
	// t.Hist is intentionally left untouched: histograms merge-only.
}

// WindowedTotal returns the Windowed strategy's running total rows.
// Callers must not mutate the returned map. Only valid when
// cfg.Strategy == Windowed.
func (h *History) WindowedTotal() map[Key]*Row {
	return h.total
}

// GeneralSnapshot merges every live slot's rows from scratch, used by the
// General strategy (and available for Windowed histories as a
// cross-check).
func (h *History) GeneralSnapshot() map[Key]*Row {
	out := make(map[Key]*Row)
	for _, s := range h.slots {
		for k, r := range s.agg.Rows() {
			t, ok := out[k]
			if !ok {
				t = &Row{}
				out[k] = t
			}
			t.merge(r)
		}
	}
	return out
}
