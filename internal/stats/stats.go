// Package stats composes the engine-wide statistics surface (spec.md §6)
// out of each pipeline stage's own counters.
package stats

import (
	"github.com/pinba-platform/pinba2/internal/collector"
	"github.com/pinba-platform/pinba2/internal/coordinator"
	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/repacker"
)

// EngineStats is a point-in-time read of every stage's counters plus the
// shared dictionary's size, used by both the control-plane stats operation
// and the Prometheus exporter.
type EngineStats struct {
	DatagramsReceived int64
	CollectorDrops    int64
	CollectorErrors   int64

	DatagramsDecoded int64
	DecodeErrors     int64
	PacketsDropped   int64
	SlicesReaped     int64

	RepackerBatchesSealed  int64
	RepackerBatchesDropped int64

	BatchesFanned  int64
	BatchesDropped int64

	DictionaryEntries     int
	DictionaryHashBytes   uint64
	DictionaryStringBytes uint64
}

// Source composes the stage handles an EngineStats snapshot is read from.
type Source struct {
	Collector   *collector.Pool
	Repacker    *repacker.Pool
	Coordinator *coordinator.Coordinator
	Dict        *dictionary.Dictionary
}

// Snapshot reads every stage's counters into one EngineStats value.
func Snapshot(s Source) EngineStats {
	var out EngineStats

	if s.Collector != nil {
		out.DatagramsReceived = s.Collector.Stats.DatagramsReceived.Load()
		out.CollectorDrops = s.Collector.Stats.BatchesDropped.Load()
		out.CollectorErrors = s.Collector.Stats.ReadErrors.Load()
	}

	if s.Repacker != nil {
		out.DatagramsDecoded = s.Repacker.Stats.DatagramsDecoded.Load()
		out.DecodeErrors = s.Repacker.Stats.DecodeErrors.Load()
		out.PacketsDropped = s.Repacker.Stats.PacketsDropped.Load()
		out.SlicesReaped = s.Repacker.Stats.SlicesReaped.Load()
		out.RepackerBatchesSealed = s.Repacker.Stats.BatchesSealed.Load()
		out.RepackerBatchesDropped = s.Repacker.Stats.BatchesDropped.Load()
	}

	if s.Coordinator != nil {
		out.BatchesFanned = s.Coordinator.Stats.BatchesFanned.Load()
		out.BatchesDropped = s.Coordinator.Stats.BatchesDropped.Load()
	}

	if s.Dict != nil {
		out.DictionaryEntries = s.Dict.Size()
		hashBytes, stringBytes := s.Dict.MemoryUsed()
		out.DictionaryHashBytes = hashBytes
		out.DictionaryStringBytes = stringBytes
	}

	return out
}
