package repacker

import (
	"github.com/pinba-platform/pinba2/internal/packet"
	"github.com/pinba-platform/pinba2/internal/wire"
)

// toSource expands a decoded wire record's dictionary-indexed tags and
// per-timer tag runs into the plain-string shape packet.Build expects.
func toSource(r *wire.Record) *packet.Source {
	src := &packet.Source{
		Hostname:     r.Hostname,
		ServerName:   r.ServerName,
		ScriptName:   r.ScriptName,
		Schema:       r.Schema,
		Status:       r.Status,
		ReqTime:      r.RequestTime,
		RuUtime:      r.RuUtime,
		RuStime:      r.RuStime,
		DocSize:      r.DocumentSize,
		MemFootprint: r.MemoryFootprint,
	}

	src.TagNames = make([]string, len(r.TagName))
	for i, idx := range r.TagName {
		src.TagNames[i] = r.Word(idx)
	}
	src.TagValues = make([]string, len(r.TagValue))
	for i, idx := range r.TagValue {
		src.TagValues[i] = r.Word(idx)
	}

	src.Timers = make([]packet.SourceTimer, 0, len(r.TimerHitCount))
	tagOffset := 0
	for i := range r.TimerHitCount {
		tagCount := 0
		if i < len(r.TimerTagCount) {
			tagCount = int(r.TimerTagCount[i])
		}

		tm := packet.SourceTimer{
			HitCount: uint32(r.TimerHitCount[i]),
		}
		if i < len(r.TimerValue) {
			tm.Value = r.TimerValue[i]
		}
		if i < len(r.TimerRuUtime) {
			tm.RuUtime = r.TimerRuUtime[i]
		}
		if i < len(r.TimerRuStime) {
			tm.RuStime = r.TimerRuStime[i]
		}

		end := tagOffset + tagCount
		if end > len(r.TimerTagName) {
			end = len(r.TimerTagName)
		}
		for j := tagOffset; j < end; j++ {
			tm.TagNames = append(tm.TagNames, r.Word(r.TimerTagName[j]))
			if j < len(r.TimerTagValue) {
				tm.TagValues = append(tm.TagValues, r.Word(r.TimerTagValue[j]))
			}
		}
		tagOffset = end

		src.Timers = append(src.Timers, tm)
	}

	return src
}
