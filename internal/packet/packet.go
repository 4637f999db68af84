// Package packet builds validated, dictionary-resolved packets from decoded
// wire records (spec.md §4.2a), and carries the fixed-size blooms used to
// prune timer-tag lookups in by_timer reports.
package packet

import "github.com/pinba-platform/pinba2/internal/bloom"

// Interner resolves a string to a dictionary ID, registering a fresh global
// reference on first sight within the caller's current rotation window.
// Implemented by the repacker using its dictionary + word-slice + per-slice
// cache (spec.md §4.2 step 2).
type Interner interface {
	Intern(s string) uint32
	InternHashed(s string) (id uint32, hash uint64)
}

// Tag is a resolved name/value pair.
type Tag struct {
	NameID  uint32
	ValueID uint32
}

// Timer is a resolved timer measurement within a packet.
type Timer struct {
	HitCount uint32
	Value    float64
	RuUtime  float64
	RuStime  float64
	Tags     []Tag
	Bloom    bloom.Timer
}

// Packet is a fully validated, dictionary-resolved request record, ready to
// be folded into report aggregators.
type Packet struct {
	HostID   uint32
	ServerID uint32
	ScriptID uint32
	SchemaID uint32
	Status   uint32

	ReqTime float64
	RuUtime float64
	RuStime float64

	DocSize      uint64
	MemFootprint uint64

	Tags   []Tag
	Timers []Timer
	Bloom  bloom.Packet

	// SeqNum is assigned by the repacker: a monotonically increasing
	// sequence number used by by_timer aggregation to deduplicate a
	// packet's request-count contribution across its many timers
	// (spec.md §4.4, req_count dedup).
	SeqNum uint64
}

// clampNonNegative maps negative durations (clock skew, agent bugs) to
// zero rather than corrupting sums/histograms with negative mass.
func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Source is the decoded-record view Build operates on. It is satisfied by a
// small adapter over wire.Record so this package has no import-time
// dependency on the wire decoder's internal layout.
type Source struct {
	Hostname, ServerName, ScriptName, Schema string
	Status                                   uint32
	ReqTime, RuUtime, RuStime                float64
	DocSize, MemFootprint                    uint64
	TagNames, TagValues                      []string
	Timers                                   []SourceTimer
}

// SourceTimer is one timer entry from the decoded record, with tag
// name/value strings already resolved from the record's intra-record
// dictionary by the caller.
type SourceTimer struct {
	HitCount           uint32
	Value              float64
	RuUtime, RuStime   float64
	TagNames, TagValues []string
}

// Build validates src and resolves every string through interner, producing
// a Packet ready for aggregation. An empty hostname is the one
// unconditionally-fatal validation failure (spec.md §4.2a); malformed tag
// pairs (mismatched name/value slice lengths) are dropped individually
// rather than failing the whole packet.
func Build(src *Source, interner Interner) (*Packet, bool) {
	if src.Hostname == "" {
		return nil, false
	}

	p := &Packet{
		HostID:       interner.Intern(src.Hostname),
		ServerID:     interner.Intern(src.ServerName),
		ScriptID:     interner.Intern(src.ScriptName),
		SchemaID:     interner.Intern(src.Schema),
		Status:       src.Status,
		ReqTime:      clampNonNegative(src.ReqTime),
		RuUtime:      clampNonNegative(src.RuUtime),
		RuStime:      clampNonNegative(src.RuStime),
		DocSize:      src.DocSize,
		MemFootprint: src.MemFootprint,
	}

	n := len(src.TagNames)
	if len(src.TagValues) < n {
		n = len(src.TagValues)
	}
	p.Tags = make([]Tag, 0, n)
	for i := 0; i < n; i++ {
		p.Tags = append(p.Tags, Tag{
			NameID:  interner.Intern(src.TagNames[i]),
			ValueID: interner.Intern(src.TagValues[i]),
		})
	}

	p.Timers = make([]Timer, 0, len(src.Timers))
	for _, st := range src.Timers {
		tm := Timer{
			HitCount: st.HitCount,
			Value:    clampNonNegative(st.Value),
			RuUtime:  clampNonNegative(st.RuUtime),
			RuStime:  clampNonNegative(st.RuStime),
		}

		tn := len(st.TagNames)
		if len(st.TagValues) < tn {
			tn = len(st.TagValues)
		}
		tm.Tags = make([]Tag, 0, tn)
		for i := 0; i < tn; i++ {
			nameID, nameHash := interner.InternHashed(st.TagNames[i])
			valueID, valueHash := interner.InternHashed(st.TagValues[i])
			tm.Tags = append(tm.Tags, Tag{NameID: nameID, ValueID: valueID})
			tm.Bloom.AddHashed(nameHash)
			tm.Bloom.AddHashed(valueHash)
			p.Bloom.AddHashed(nameHash)
			p.Bloom.AddHashed(valueHash)
		}

		p.Timers = append(p.Timers, tm)
	}

	return p, true
}
