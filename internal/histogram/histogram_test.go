package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EmptyHistogramPercentileIsLowestTrackable(t *testing.T) {
	h := New(DefaultConfig())
	assert.Equal(t, DefaultConfig().LowestTrackableValue, h.ValueAtPercentile(50))
	assert.Equal(t, int64(0), h.TotalCount())
}

func Test_SingleValueIsExactAtEveryPositivePercentile(t *testing.T) {
	h := New(DefaultConfig())
	h.RecordValue(1000)

	for _, p := range []float64{1, 50, 99, 100} {
		got := h.ValueAtPercentile(p)
		assert.InDelta(t, 1000, got, 50, "percentile %v", p)
	}
	assert.Equal(t, DefaultConfig().LowestTrackableValue, h.ValueAtPercentile(0))
}

func Test_PercentilesAreMonotonicallyNonDecreasing(t *testing.T) {
	h := New(DefaultConfig())
	for _, v := range []int64{10, 50, 100, 500, 1000, 5000, 10000} {
		h.RecordValue(v)
	}

	prev := int64(-1)
	for _, p := range []float64{0, 10, 25, 50, 75, 90, 99, 100} {
		v := h.ValueAtPercentile(p)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}

func Test_ValueAtPercentile100IsMax(t *testing.T) {
	h := New(DefaultConfig())
	h.RecordValue(10)
	h.RecordValue(20000)

	assert.Equal(t, h.Max(), h.ValueAtPercentile(100))
}

func Test_MergeCombinesTotalCounts(t *testing.T) {
	a := New(DefaultConfig())
	b := New(DefaultConfig())

	a.RecordValue(100)
	a.RecordValue(200)
	b.RecordValue(300)

	a.Merge(b)
	assert.EqualValues(t, 3, a.TotalCount())
	assert.Equal(t, int64(300), a.Max())
}

func Test_ResetClearsCountsButKeepsCapacity(t *testing.T) {
	h := New(DefaultConfig())
	h.RecordValue(500)
	require.EqualValues(t, 1, h.TotalCount())

	h.Reset()
	assert.EqualValues(t, 0, h.TotalCount())
	assert.Equal(t, DefaultConfig().LowestTrackableValue, h.ValueAtPercentile(50))
}

func Test_FlatCountsRoundTripPreservesTotal(t *testing.T) {
	h := New(DefaultConfig())
	h.RecordValue(42)
	h.RecordValue(4200)

	flat := h.FlatCounts()

	h2 := New(DefaultConfig())
	h2.LoadFlatCounts(flat, h.TotalCount(), h.NegativeInf(), h.PositiveInf(), h.Min(), h.Max())

	assert.Equal(t, h.TotalCount(), h2.TotalCount())
	assert.Equal(t, h.Min(), h2.Min())
	assert.Equal(t, h.Max(), h2.Max())
}

func Test_ValuesAboveHighestTrackableAccumulateInPositiveInf(t *testing.T) {
	cfg := Config{LowestTrackableValue: 1, HighestTrackableValue: 1000, SignificantFigures: 2}
	h := New(cfg)
	h.RecordValue(1_000_000)

	assert.EqualValues(t, 1, h.TotalCount())
	assert.EqualValues(t, 1, h.PositiveInf())
	assert.EqualValues(t, 0, h.NegativeInf())
	assert.LessOrEqual(t, h.ValueAtPercentile(100), cfg.HighestTrackableValue)
}

func Test_ValuesBelowLowestTrackableAccumulateInNegativeInf(t *testing.T) {
	cfg := Config{LowestTrackableValue: 1000, HighestTrackableValue: 1_000_000, SignificantFigures: 2}
	h := New(cfg)
	h.RecordValue(1)

	assert.EqualValues(t, 1, h.TotalCount())
	assert.EqualValues(t, 1, h.NegativeInf())
	assert.EqualValues(t, 0, h.PositiveInf())
	assert.GreaterOrEqual(t, h.ValueAtPercentile(50), cfg.LowestTrackableValue)
}

func Test_AllMassInNegativeInfReturnsLowestTrackableForEveryPositivePercentile(t *testing.T) {
	cfg := Config{LowestTrackableValue: 1000, HighestTrackableValue: 1_000_000, SignificantFigures: 2}
	h := New(cfg)
	h.RecordValue(1)
	h.RecordValue(2)
	h.RecordValue(3)

	for _, p := range []float64{1, 25, 50, 75, 99, 100} {
		assert.Equal(t, cfg.LowestTrackableValue, h.ValueAtPercentile(p), "percentile %v", p)
	}
}

func Test_AllMassInPositiveInfReturnsHighestTrackableForEveryPositivePercentile(t *testing.T) {
	cfg := Config{LowestTrackableValue: 1, HighestTrackableValue: 1000, SignificantFigures: 2}
	h := New(cfg)
	h.RecordValue(1_000_000)
	h.RecordValue(2_000_000)
	h.RecordValue(3_000_000)

	for _, p := range []float64{1, 25, 50, 75, 99, 100} {
		assert.Equal(t, cfg.HighestTrackableValue, h.ValueAtPercentile(p), "percentile %v", p)
	}
}
