// Package report implements the three report kinds (spec.md §4.3, §4.4):
// by_packet (one row total), by_request (keyed on packet-level fields), and
// by_timer (keyed on timer tags, with bloom-pruned lookups and per-packet
// request-count dedup).
package report

import (
	"fmt"
	"time"

	"github.com/pinba-platform/pinba2/internal/bloom"
	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/histogram"
	"github.com/pinba-platform/pinba2/internal/packet"
)

// Kind identifies which of the three report shapes a Config describes.
type Kind int

const (
	ByPacket Kind = iota
	ByRequest
	ByTimer
)

func (k Kind) String() string {
	switch k {
	case ByPacket:
		return "by_packet"
	case ByRequest:
		return "by_request"
	case ByTimer:
		return "by_timer"
	default:
		return "unknown"
	}
}

// UnmarshalYAML lets report configs name a kind as "by_packet"/"by_request"/
// "by_timer" in the YAML document instead of a raw integer.
func (k *Kind) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "by_packet":
		*k = ByPacket
	case "by_request":
		*k = ByRequest
	case "by_timer":
		*k = ByTimer
	default:
		return fmt.Errorf("report: unknown kind %q", s)
	}
	return nil
}

// MarshalYAML renders a Kind as its string form.
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// HistoryStrategy selects how a report's rolling window is maintained.
type HistoryStrategy int

const (
	// Windowed incrementally adds/subtracts counters as slots enter and
	// leave the window, and merges (never subtracts) histograms.
	Windowed HistoryStrategy = iota
	// General recomputes the window from scratch on every snapshot by
	// merging all live slots on demand.
	General
)

// UnmarshalYAML lets history strategies be named "windowed"/"general" in
// the YAML document instead of a raw integer.
func (s *HistoryStrategy) UnmarshalYAML(unmarshal func(any) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	switch str {
	case "windowed", "":
		*s = Windowed
	case "general":
		*s = General
	default:
		return fmt.Errorf("report: unknown history strategy %q", str)
	}
	return nil
}

// MarshalYAML renders a HistoryStrategy as its string form.
func (s HistoryStrategy) MarshalYAML() (any, error) {
	if s == General {
		return "general", nil
	}
	return "windowed", nil
}

// MaxKeyFields is the largest number of fields a report key may carry
// (spec.md §4.4): some combination of packet-level fields and tag names.
const MaxKeyFields = 7

// Config describes one configured report.
type Config struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`

	// RequestFields names packet-level fields (in order) that make up the
	// key for by_request reports: any of "host", "server", "script",
	// "schema", "status".
	RequestFields []string `yaml:"request_fields,omitempty"`

	// TagNames names the request/timer tags (in order) that make up the key
	// for by_timer reports, and that extend a by_request key after its
	// RequestFields: a by_request packet missing one of these required
	// tags is dropped rather than folded under a partial key.
	TagNames []string `yaml:"tag_names,omitempty"`

	HistogramEnabled bool            `yaml:"histogram_enabled"`
	HistogramConfig  histogram.Config `yaml:"histogram,omitempty"`

	SlotDuration time.Duration    `yaml:"slot_duration"`
	WindowSize   int              `yaml:"window_size"`
	Strategy     HistoryStrategy  `yaml:"strategy"`

	Filters []Filter `yaml:"filters,omitempty"`
}

// Row is one aggregated key's accumulated counters.
type Row struct {
	Requests        uint64
	Timers          uint64
	TimeSum         float64
	RuUtimeSum      float64
	RuStimeSum      float64
	DocSizeSum      uint64
	MemFootprintSum uint64
	Hist            *histogram.Histogram

	lastSeqNum uint64
	sawSeq     bool
}

func newRow(cfg *Config) *Row {
	r := &Row{}
	if cfg.HistogramEnabled {
		r.Hist = histogram.New(cfg.HistogramConfig)
	}
	return r
}

// merge folds other's counters into r, merging (never subtracting)
// histograms so windowed eviction cannot under-report percentiles.
func (r *Row) merge(other *Row) {
	r.Requests += other.Requests
	r.Timers += other.Timers
	r.TimeSum += other.TimeSum
	r.RuUtimeSum += other.RuUtimeSum
	r.RuStimeSum += other.RuStimeSum
	r.DocSizeSum += other.DocSizeSum
	r.MemFootprintSum += other.MemFootprintSum
	if other.Hist != nil {
		if r.Hist == nil {
			r.Hist = other.Hist
			return
		}
		r.Hist.Merge(other.Hist)
	}
}

// Key identifies one aggregated row: up to MaxKeyFields dictionary IDs (or
// resolved enum values for fields like status), in the order the report's
// Config names them. It is comparable so it can be used directly as a map
// key.
type Key struct {
	Fields [MaxKeyFields]uint32
	N      int
}

func newKey(values ...uint32) Key {
	var k Key
	k.N = len(values)
	copy(k.Fields[:], values)
	return k
}

// Filter restricts which packets (or timers) contribute to a report.
// A packet (or timer) passes only if it carries TagName with exactly
// TagValue; every configured filter must pass.
type Filter struct {
	TagName  string `yaml:"tag_name"`
	TagValue string `yaml:"tag_value"`
}

func requestField(p *packet.Packet, field string) uint32 {
	switch field {
	case "host":
		return p.HostID
	case "server":
		return p.ServerID
	case "script":
		return p.ScriptID
	case "schema":
		return p.SchemaID
	case "status":
		return p.Status
	default:
		return 0
	}
}

func tagValue(tags []packet.Tag, nameID uint32) (uint32, bool) {
	for _, t := range tags {
		if t.NameID == nameID {
			return t.ValueID, true
		}
	}
	return 0, false
}

// Aggregator accumulates packets into rows over one time slot, per the
// report's Config. It is not safe for concurrent use; the report host
// serializes access per slot.
type Aggregator struct {
	cfg      *Config
	dict     *dictionary.Dictionary
	tagNames []uint32 // dictionary IDs for cfg.TagNames, resolved once via AddNameWord
	tagProbe bloom.Packet
	timerProbe bloom.Timer

	rows map[Key]*Row
}

// NewAggregator creates an aggregator for cfg, interning its tag names as
// permanent name-words so ids stay stable for the report's lifetime.
func NewAggregator(cfg *Config, dict *dictionary.Dictionary) *Aggregator {
	a := &Aggregator{cfg: cfg, dict: dict, rows: make(map[Key]*Row)}

	for _, name := range cfg.TagNames {
		h := dict.AddNameWord(name)
		a.tagNames = append(a.tagNames, h.ID)
		a.tagProbe.AddHashed(h.Hash)
		a.timerProbe.AddHashed(h.Hash)
	}

	return a
}

// Rows exposes the current accumulated rows, keyed by Key. Callers must not
// mutate the returned map.
func (a *Aggregator) Rows() map[Key]*Row {
	return a.rows
}

func (a *Aggregator) rowFor(k Key) *Row {
	r, ok := a.rows[k]
	if !ok {
		r = newRow(a.cfg)
		a.rows[k] = r
	}
	return r
}

func (a *Aggregator) matchesFilters(tags []packet.Tag) bool {
	for _, f := range a.cfg.Filters {
		nameID := a.dict.GetOrAdd(f.TagName)
		valueID, ok := tagValue(tags, nameID)
		if !ok || a.dict.GetOrAdd(f.TagValue) != valueID {
			return false
		}
	}
	return true
}

// Add folds one packet into the aggregator according to cfg.Kind.
func (a *Aggregator) Add(p *packet.Packet, seqNum uint64) {
	switch a.cfg.Kind {
	case ByPacket:
		a.addByPacket(p)
	case ByRequest:
		a.addByRequest(p)
	case ByTimer:
		a.addByTimer(p, seqNum)
	}
}

func (a *Aggregator) addByPacket(p *packet.Packet) {
	if !a.matchesFilters(p.Tags) {
		return
	}
	r := a.rowFor(Key{})
	r.Requests++
	r.TimeSum += p.ReqTime
	r.RuUtimeSum += p.RuUtime
	r.RuStimeSum += p.RuStime
	r.DocSizeSum += p.DocSize
	r.MemFootprintSum += p.MemFootprint
	if r.Hist != nil {
		r.Hist.RecordValue(int64(p.ReqTime * 1e6))
	}
}

func (a *Aggregator) addByRequest(p *packet.Packet) {
	if !a.matchesFilters(p.Tags) {
		return
	}

	values := make([]uint32, 0, len(a.cfg.RequestFields)+len(a.tagNames))
	for _, f := range a.cfg.RequestFields {
		values = append(values, requestField(p, f))
	}
	for _, nameID := range a.tagNames {
		v, ok := tagValue(p.Tags, nameID)
		if !ok {
			return // required request-tag key part absent: drop the packet
		}
		values = append(values, v)
	}
	k := newKey(values...)

	r := a.rowFor(k)
	r.Requests++
	r.TimeSum += p.ReqTime
	r.RuUtimeSum += p.RuUtime
	r.RuStimeSum += p.RuStime
	r.DocSizeSum += p.DocSize
	r.MemFootprintSum += p.MemFootprint
	if r.Hist != nil {
		r.Hist.RecordValue(int64(p.ReqTime * 1e6))
	}
}

func (a *Aggregator) addByTimer(p *packet.Packet, seqNum uint64) {
	if len(a.tagNames) == 0 {
		return
	}
	if !p.Bloom.Contains(a.tagProbe) {
		return
	}

	for _, tm := range p.Timers {
		if !tm.Bloom.Contains(a.timerProbe) {
			continue
		}
		if !a.matchesFilters(tm.Tags) {
			continue
		}

		values := make([]uint32, 0, len(a.tagNames))
		ok := true
		for _, nameID := range a.tagNames {
			v, found := tagValue(tm.Tags, nameID)
			if !found {
				ok = false
				break
			}
			values = append(values, v)
		}
		if !ok {
			continue
		}

		k := newKey(values...)
		r := a.rowFor(k)
		r.Timers += uint64(tm.HitCount)
		r.TimeSum += tm.Value
		r.RuUtimeSum += tm.RuUtime
		r.RuStimeSum += tm.RuStime
		if r.Hist != nil {
			r.Hist.RecordValue(int64(tm.Value * 1e6))
		}

		if !r.sawSeq || r.lastSeqNum != seqNum {
			r.Requests++
			r.lastSeqNum = seqNum
			r.sawSeq = true
		}
	}
}
