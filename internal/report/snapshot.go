package report

import (
	"strconv"

	"github.com/pinba-platform/pinba2/internal/dictionary"
)

// SnapshotRow is one row of a prepared, read-only snapshot: the key fields
// resolved back to strings, plus the row's counters and (if enabled)
// histogram.
type SnapshotRow struct {
	Fields []string
	Row    Row
}

// Snapshot is a point-in-time, dictionary-resolved view of a report's
// current window, built for the control-plane get_report_snapshot
// operation (spec.md §3).
type Snapshot struct {
	Name  string
	Kind  Kind
	Rows  []SnapshotRow
}

func fieldNames(cfg *Config) []string {
	switch cfg.Kind {
	case ByRequest:
		names := make([]string, 0, len(cfg.RequestFields)+len(cfg.TagNames))
		names = append(names, cfg.RequestFields...)
		names = append(names, cfg.TagNames...)
		return names
	case ByTimer:
		return cfg.TagNames
	default:
		return nil
	}
}

// Prepare builds a Snapshot from rows, resolving each key's dictionary IDs
// back to their original strings via dict.
func Prepare(cfg *Config, dict *dictionary.Dictionary, rows map[Key]*Row) Snapshot {
	names := fieldNames(cfg)

	snap := Snapshot{Name: cfg.Name, Kind: cfg.Kind, Rows: make([]SnapshotRow, 0, len(rows))}
	for k, r := range rows {
		fields := make([]string, k.N)
		for i := 0; i < k.N; i++ {
			if cfg.Kind == ByRequest && i < len(names) && names[i] == "status" {
				fields[i] = statusString(k.Fields[i])
				continue
			}
			s, ok := dict.GetWord(k.Fields[i])
			if !ok {
				s = "?"
			}
			fields[i] = s
		}
		snap.Rows = append(snap.Rows, SnapshotRow{Fields: fields, Row: *r})
	}

	return snap
}

func statusString(code uint32) string {
	return strconv.FormatUint(uint64(code), 10)
}

// Percentile returns the value-at-percentile for row's histogram, or 0 if
// histograms are disabled for this report.
func (r *Row) Percentile(p float64) float64 {
	if r.Hist == nil {
		return 0
	}
	return float64(r.Hist.ValueAtPercentile(p)) / 1e6
}

// Mean returns the mean request time for row, or 0 if it has no requests.
func (r *Row) Mean() float64 {
	if r.Requests == 0 {
		return 0
	}
	return r.TimeSum / float64(r.Requests)
}
