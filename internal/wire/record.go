// Package wire decodes the Pinba UDP telemetry record (spec.md §6) using
// the low-level protowire primitives directly: the wire schema itself is
// out of scope, only the decoded record shape matters, so there is no
// generated .pb.go here, just a hand-rolled field-by-field walk.
package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldHostname        = 1
	fieldServerName      = 2
	fieldScriptName      = 3
	fieldDictionary      = 4
	fieldStatus          = 5
	fieldRequestTime     = 6
	fieldRuUtime         = 7
	fieldRuStime         = 8
	fieldDocumentSize    = 9
	fieldMemoryFootprint = 10
	fieldSchema          = 11
	fieldTagName         = 12
	fieldTagValue        = 13
	fieldTimerHitCount   = 14
	fieldTimerValue      = 15
	fieldTimerRuUtime    = 16
	fieldTimerRuStime    = 17
	fieldTimerTagCount   = 18
	fieldTimerTagName    = 19
	fieldTimerTagValue   = 20
)

// Record is the decoded shape of one UDP datagram: a self-contained
// intra-record dictionary plus index arrays referencing it, matching the
// on-wire encoding. Decode allocates one string per bytes field it keeps
// (string fields and dictionary entries).
type Record struct {
	Hostname   string
	ServerName string
	ScriptName string
	Schema     string
	Status     uint32

	RequestTime float64
	RuUtime     float64
	RuStime     float64

	DocumentSize    uint64
	MemoryFootprint uint64

	// Dictionary holds strings referenced by index from TagName/TagValue and
	// TimerTagName/TimerTagValue below.
	Dictionary []string

	TagName  []uint32
	TagValue []uint32

	TimerHitCount []uint64
	TimerValue    []float64
	TimerRuUtime  []float64
	TimerRuStime  []float64

	// TimerTagCount[i] is the number of tag pairs belonging to timer i;
	// TimerTagName/TimerTagValue are flattened across all timers and must be
	// split using the prefix sums of TimerTagCount.
	TimerTagCount  []uint32
	TimerTagName   []uint32
	TimerTagValue  []uint32
}

// Reset clears r for reuse, retaining backing arrays to avoid reallocating
// on every decode in a hot decode loop.
func (r *Record) Reset() {
	r.Hostname, r.ServerName, r.ScriptName, r.Schema = "", "", "", ""
	r.Status = 0
	r.RequestTime, r.RuUtime, r.RuStime = 0, 0, 0
	r.DocumentSize, r.MemoryFootprint = 0, 0
	r.Dictionary = r.Dictionary[:0]
	r.TagName = r.TagName[:0]
	r.TagValue = r.TagValue[:0]
	r.TimerHitCount = r.TimerHitCount[:0]
	r.TimerValue = r.TimerValue[:0]
	r.TimerRuUtime = r.TimerRuUtime[:0]
	r.TimerRuStime = r.TimerRuStime[:0]
	r.TimerTagCount = r.TimerTagCount[:0]
	r.TimerTagName = r.TimerTagName[:0]
	r.TimerTagValue = r.TimerTagValue[:0]
}

// Decode parses data into r, which must have been Reset (or be zero-valued).
func Decode(data []byte, r *Record) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("wire: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("wire: bad varint field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := r.setVarint(int32(num), v); err != nil {
				return err
			}

		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return fmt.Errorf("wire: bad fixed32 field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := r.setFloat(int32(num), float64(math.Float32frombits(v))); err != nil {
				return err
			}

		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("wire: bad bytes field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if err := r.setBytes(int32(num), v); err != nil {
				return err
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("wire: bad field %d of type %d: %w", num, typ, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return nil
}

func (r *Record) setVarint(field int32, v uint64) error {
	switch field {
	case fieldStatus:
		r.Status = uint32(v)
	case fieldDocumentSize:
		r.DocumentSize = v
	case fieldMemoryFootprint:
		r.MemoryFootprint = v
	case fieldTagName:
		r.TagName = append(r.TagName, uint32(v))
	case fieldTagValue:
		r.TagValue = append(r.TagValue, uint32(v))
	case fieldTimerHitCount:
		r.TimerHitCount = append(r.TimerHitCount, v)
	case fieldTimerTagCount:
		r.TimerTagCount = append(r.TimerTagCount, uint32(v))
	case fieldTimerTagName:
		r.TimerTagName = append(r.TimerTagName, uint32(v))
	case fieldTimerTagValue:
		r.TimerTagValue = append(r.TimerTagValue, uint32(v))
	default:
		// Unknown varint field: ignore, matching the original's tolerance
		// of newer agent versions sending fields this decoder predates.
	}
	return nil
}

func (r *Record) setFloat(field int32, v float64) error {
	switch field {
	case fieldRequestTime:
		r.RequestTime = v
	case fieldRuUtime:
		r.RuUtime = v
	case fieldRuStime:
		r.RuStime = v
	case fieldTimerValue:
		r.TimerValue = append(r.TimerValue, v)
	case fieldTimerRuUtime:
		r.TimerRuUtime = append(r.TimerRuUtime, v)
	case fieldTimerRuStime:
		r.TimerRuStime = append(r.TimerRuStime, v)
	}
	return nil
}

func (r *Record) setBytes(field int32, v []byte) error {
	switch field {
	case fieldHostname:
		r.Hostname = string(v)
	case fieldServerName:
		r.ServerName = string(v)
	case fieldScriptName:
		r.ScriptName = string(v)
	case fieldSchema:
		r.Schema = string(v)
	case fieldDictionary:
		r.Dictionary = append(r.Dictionary, string(v))
	}
	return nil
}

// Word resolves an index into the record's intra-record dictionary,
// returning "" for an out-of-range index rather than panicking, so a
// malformed datagram cannot crash its caller.
func (r *Record) Word(idx uint32) string {
	if int(idx) >= len(r.Dictionary) {
		return ""
	}
	return r.Dictionary[idx]
}
