// Package histogram implements the logarithmic (HDR-style) histogram that
// reports with histograms enabled record into, to answer percentile queries in O(log n) space
// without retaining individual samples (spec.md §4.3, §7, and
// original_source/include/pinba/hdr_histogram.h).
//
// Values are tracked as int64 "units"; callers measuring durations in
// seconds should pick a unit (e.g. microseconds) and convert before
// recording, matching the fixed-precision tradeoff HDR histograms make
// everywhere.
package histogram

import "math/bits"

// Config mirrors the three parameters the original's hdr_histogram_init
// takes: the smallest and largest values worth distinguishing, and how many
// significant decimal digits of precision to preserve across that range.
type Config struct {
	LowestTrackableValue  int64 `yaml:"lowest_trackable_value"`
	HighestTrackableValue int64 `yaml:"highest_trackable_value"`
	SignificantFigures    int   `yaml:"significant_figures"` // 1..5
}

// DefaultConfig covers millisecond-ish timer values stored as microsecond
// units, keeping two significant figures - enough to distinguish a 1.0ms
// timer from a 1.1ms one without tracking every microsecond individually.
func DefaultConfig() Config {
	return Config{
		LowestTrackableValue:  1,
		HighestTrackableValue: 3_600_000_000, // one hour, in microseconds
		SignificantFigures:    2,
	}
}

// Histogram is a mutable, lazily-growing logarithmic histogram.
type Histogram struct {
	cfg Config

	unitMagnitude              uint
	subBucketHalfCountMagnitude uint
	subBucketCount              int64
	subBucketHalfCount           int64
	subBucketMask               int64
	bucketCount                  int
	countsLenFull                int
	countsLenHalf                int

	counts     []int64
	totalCount int64
	min, max   int64
	hasRecords bool

	// negativeInf counts values below LowestTrackableValue and positiveInf
	// counts values above HighestTrackableValue. Both are excluded from the
	// ordinary bucket walk entirely rather than clamped into a boundary
	// bucket, so ValueAtPercentile can short-circuit on them directly.
	negativeInf int64
	positiveInf int64
}

// New builds a histogram from cfg, allocating no counts storage until the
// first value is recorded.
func New(cfg Config) *Histogram {
	if cfg.SignificantFigures < 1 {
		cfg.SignificantFigures = 1
	}
	if cfg.SignificantFigures > 5 {
		cfg.SignificantFigures = 5
	}
	if cfg.LowestTrackableValue < 1 {
		cfg.LowestTrackableValue = 1
	}

	h := &Histogram{cfg: cfg}

	largestValueWithSingleUnitResolution := int64(2) * pow10(cfg.SignificantFigures)
	subBucketCountMagnitude := uint(ceilLog2(uint64(largestValueWithSingleUnitResolution)))
	if subBucketCountMagnitude < 1 {
		subBucketCountMagnitude = 1
	}
	h.subBucketHalfCountMagnitude = subBucketCountMagnitude - 1
	h.subBucketCount = 1 << (h.subBucketHalfCountMagnitude + 1)
	h.subBucketHalfCount = h.subBucketCount / 2
	h.unitMagnitude = uint(floorLog2(uint64(cfg.LowestTrackableValue)))
	h.subBucketMask = (h.subBucketCount - 1) << h.unitMagnitude

	smallestUntrackableValue := h.subBucketCount << h.unitMagnitude
	bucketsNeeded := 1
	for smallestUntrackableValue <= cfg.HighestTrackableValue {
		if smallestUntrackableValue > (1 << 62) {
			bucketsNeeded++
			break
		}
		smallestUntrackableValue <<= 1
		bucketsNeeded++
	}
	h.bucketCount = bucketsNeeded

	h.countsLenFull = int(int64(h.bucketCount+1) * h.subBucketHalfCount)
	h.countsLenHalf = h.countsLenFull / 2
	if h.countsLenHalf < int(h.subBucketCount) {
		h.countsLenHalf = h.countsLenFull
	}

	return h
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func floorLog2(v uint64) int {
	if v == 0 {
		return 0
	}
	return 63 - bits.LeadingZeros64(v)
}

func ceilLog2(v uint64) int {
	if v <= 1 {
		return 0
	}
	return 64 - bits.LeadingZeros64(v-1)
}

func (h *Histogram) bucketIndexOf(value int64) int {
	pow2Ceiling := 64 - bits.LeadingZeros64(uint64(value|h.subBucketMask))
	idx := pow2Ceiling - int(h.unitMagnitude) - int(h.subBucketHalfCountMagnitude+1)
	if idx < 0 {
		idx = 0
	}
	return idx
}

func (h *Histogram) subBucketIndexOf(value int64, bucketIndex int) int64 {
	return value >> (uint(bucketIndex) + h.unitMagnitude)
}

func (h *Histogram) countsIndex(bucketIndex int, subBucketIndex int64) int {
	bucketBaseIndex := (bucketIndex + 1) << h.subBucketHalfCountMagnitude
	offsetInBucket := subBucketIndex - h.subBucketHalfCount
	return bucketBaseIndex + int(offsetInBucket)
}

func (h *Histogram) indexFor(value int64) int {
	bucketIndex := h.bucketIndexOf(value)
	subBucketIndex := h.subBucketIndexOf(value, bucketIndex)
	return h.countsIndex(bucketIndex, subBucketIndex)
}

// valueFromIndex returns the lowest value that would map to idx, used when
// reporting the value at a given cumulative count boundary.
func (h *Histogram) valueFromIndex(idx int) int64 {
	bucketIndex := idx>>h.subBucketHalfCountMagnitude - 1
	subBucketIndex := int64(idx&int(h.subBucketHalfCount-1)) + h.subBucketHalfCount
	if bucketIndex < 0 {
		subBucketIndex = int64(idx)
		bucketIndex = 0
		return subBucketIndex << h.unitMagnitude
	}
	return subBucketIndex << (uint(bucketIndex) + h.unitMagnitude)
}

func (h *Histogram) ensureCapacity(idx int) {
	if idx < len(h.counts) {
		return
	}

	if h.counts == nil {
		size := h.countsLenHalf
		if idx >= size {
			size = h.countsLenFull
		}
		h.counts = make([]int64, size)
		return
	}

	grown := make([]int64, h.countsLenFull)
	copy(grown, h.counts)
	h.counts = grown
}

// RecordValue adds one observation of value.
func (h *Histogram) RecordValue(value int64) {
	h.RecordValues(value, 1)
}

// RecordValues adds count observations of value without a per-unit loop.
// Values outside [LowestTrackableValue, HighestTrackableValue] accumulate in
// negativeInf/positiveInf instead of the bucket array.
func (h *Histogram) RecordValues(value int64, count int64) {
	switch {
	case value < h.cfg.LowestTrackableValue:
		h.negativeInf += count
	case value > h.cfg.HighestTrackableValue:
		h.positiveInf += count
	default:
		idx := h.indexFor(value)
		h.ensureCapacity(idx)
		if idx >= len(h.counts) {
			idx = len(h.counts) - 1
		}
		h.counts[idx] += count
	}

	h.totalCount += count
	if !h.hasRecords || value < h.min {
		h.min = value
	}
	if !h.hasRecords || value > h.max {
		h.max = value
	}
	h.hasRecords = true
}

// TotalCount returns the number of observations recorded.
func (h *Histogram) TotalCount() int64 { return h.totalCount }

// NegativeInf returns the number of observations below LowestTrackableValue.
func (h *Histogram) NegativeInf() int64 { return h.negativeInf }

// PositiveInf returns the number of observations above HighestTrackableValue.
func (h *Histogram) PositiveInf() int64 { return h.positiveInf }

// Min returns the smallest value recorded, or 0 if empty.
func (h *Histogram) Min() int64 {
	if !h.hasRecords {
		return 0
	}
	return h.min
}

// Max returns the largest value recorded, or 0 if empty.
func (h *Histogram) Max() int64 {
	if !h.hasRecords {
		return 0
	}
	return h.max
}

// ValueAtPercentile returns the value at the given percentile (0..100).
// A percentile whose rank falls entirely within negativeInf or positiveInf
// mass short-circuits to LowestTrackableValue/HighestTrackableValue rather
// than walking buckets that hold no such observations.
func (h *Histogram) ValueAtPercentile(percentile float64) int64 {
	// An empty histogram, or a percentile of 0 (no rank required), reports
	// LowestTrackableValue.
	if h.totalCount == 0 || percentile <= 0 {
		return h.cfg.LowestTrackableValue
	}

	// With no inf mass at all, 100 is exact: the recorded Max. Otherwise
	// fall through to the general rank computation below, which applies the
	// negativeInf/positiveInf short-circuits uniformly across the whole
	// percentile range, including the 100 boundary.
	if h.negativeInf == 0 && h.positiveInf == 0 && percentile >= 100 {
		return h.Max()
	}

	countAtPercentile := int64((percentile/100)*float64(h.totalCount) + 0.5)
	if countAtPercentile < 1 {
		countAtPercentile = 1
	}
	if countAtPercentile > h.totalCount {
		countAtPercentile = h.totalCount
	}

	if countAtPercentile <= h.negativeInf {
		return h.cfg.LowestTrackableValue
	}
	if countAtPercentile > h.totalCount-h.positiveInf {
		return h.cfg.HighestTrackableValue
	}

	remaining := countAtPercentile - h.negativeInf
	var cumulative int64
	for idx, c := range h.counts {
		if c == 0 {
			continue
		}
		cumulative += c
		if cumulative >= remaining {
			return h.valueFromIndex(idx)
		}
	}

	return h.cfg.HighestTrackableValue
}

// Merge folds other's counts into h, growing h's storage as needed. Both
// histograms must share the same Config.
func (h *Histogram) Merge(other *Histogram) {
	for idx, c := range other.counts {
		if c == 0 {
			continue
		}
		h.ensureCapacity(idx)
		if idx >= len(h.counts) {
			grown := make([]int64, h.countsLenFull)
			copy(grown, h.counts)
			h.counts = grown
		}
		h.counts[idx] += c
	}

	h.totalCount += other.totalCount
	h.negativeInf += other.negativeInf
	h.positiveInf += other.positiveInf
	if other.hasRecords && (!h.hasRecords || other.min < h.min) {
		h.min = other.min
	}
	if other.hasRecords && (!h.hasRecords || other.max > h.max) {
		h.max = other.max
	}
	if other.hasRecords {
		h.hasRecords = true
	}
}

// Reset clears all recorded observations but keeps allocated storage.
func (h *Histogram) Reset() {
	for i := range h.counts {
		h.counts[i] = 0
	}
	h.totalCount = 0
	h.negativeInf = 0
	h.positiveInf = 0
	h.min = 0
	h.max = 0
	h.hasRecords = false
}

// FlatCounts returns a snapshot-safe copy of the raw bucket counts.
func (h *Histogram) FlatCounts() []int64 {
	out := make([]int64, len(h.counts))
	copy(out, h.counts)
	return out
}

// LoadFlatCounts replaces h's bucket counts and derived totals with a
// previously captured FlatCounts snapshot, without replaying individual
// RecordValue calls.
func (h *Histogram) LoadFlatCounts(counts []int64, total, negativeInf, positiveInf, min, max int64) {
	h.counts = make([]int64, len(counts))
	copy(h.counts, counts)
	h.totalCount = total
	h.negativeInf = negativeInf
	h.positiveInf = positiveInf
	h.min = min
	h.max = max
	h.hasRecords = total > 0
}
