package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/packet"
)

func mustBuild(t *testing.T, dict *dictionary.Dictionary, src *packet.Source) *packet.Packet {
	t.Helper()
	p, ok := packet.Build(src, dictInterner{dict})
	require.True(t, ok)
	return p
}

// dictInterner adapts *dictionary.Dictionary to packet.Interner for tests.
type dictInterner struct{ d *dictionary.Dictionary }

func (i dictInterner) Intern(s string) uint32 { return i.d.GetOrAddRef(s).ID }
func (i dictInterner) InternHashed(s string) (uint32, uint64) {
	h := i.d.GetOrAddRef(s)
	return h.ID, h.Hash
}

func Test_ByPacketAggregatesSingleRow(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{Name: "all", Kind: ByPacket}
	a := NewAggregator(cfg, dict)

	p1 := mustBuild(t, dict, &packet.Source{Hostname: "web-1", ReqTime: 0.1})
	p2 := mustBuild(t, dict, &packet.Source{Hostname: "web-2", ReqTime: 0.2})

	a.Add(p1, 1)
	a.Add(p2, 2)

	rows := a.Rows()
	require.Len(t, rows, 1)
	for _, r := range rows {
		assert.EqualValues(t, 2, r.Requests)
		assert.InDelta(t, 0.3, r.TimeSum, 1e-9)
	}
}

func Test_ByRequestKeysOnRequestFields(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{Name: "by-script", Kind: ByRequest, RequestFields: []string{"script"}}
	a := NewAggregator(cfg, dict)

	a.Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ScriptName: "a.php", ReqTime: 1}), 1)
	a.Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ScriptName: "a.php", ReqTime: 1}), 2)
	a.Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ScriptName: "b.php", ReqTime: 1}), 3)

	assert.Len(t, a.Rows(), 2)
}

func Test_ByRequestKeyExtendsWithRequestTagAndDropsPacketsMissingIt(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{
		Name: "by-script-and-env", Kind: ByRequest,
		RequestFields: []string{"script"},
		TagNames:      []string{"env"},
	}
	a := NewAggregator(cfg, dict)

	withTag := mustBuild(t, dict, &packet.Source{
		Hostname: "h", ScriptName: "a.php", ReqTime: 1,
		TagNames: []string{"env"}, TagValues: []string{"prod"},
	})
	a.Add(withTag, 1)

	sameScriptDifferentEnv := mustBuild(t, dict, &packet.Source{
		Hostname: "h", ScriptName: "a.php", ReqTime: 1,
		TagNames: []string{"env"}, TagValues: []string{"staging"},
	})
	a.Add(sameScriptDifferentEnv, 2)

	missingTag := mustBuild(t, dict, &packet.Source{Hostname: "h", ScriptName: "a.php", ReqTime: 1})
	a.Add(missingTag, 3)

	rows := a.Rows()
	require.Len(t, rows, 2, "request tag must extend the key, and a packet missing it must be dropped")
	for _, r := range rows {
		assert.EqualValues(t, 1, r.Requests)
	}
}

func Test_ByTimerDedupesRequestCountPerPacket(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{Name: "by-group", Kind: ByTimer, TagNames: []string{"group"}}
	a := NewAggregator(cfg, dict)

	p := mustBuild(t, dict, &packet.Source{
		Hostname: "h",
		Timers: []packet.SourceTimer{
			{HitCount: 1, Value: 0.01, TagNames: []string{"group"}, TagValues: []string{"checkout"}},
			{HitCount: 1, Value: 0.02, TagNames: []string{"group"}, TagValues: []string{"checkout"}},
		},
	})

	a.Add(p, 42) // one packet, same seq num, two timers into the same key

	rows := a.Rows()
	require.Len(t, rows, 1)
	for _, r := range rows {
		assert.EqualValues(t, 1, r.Requests, "two timers from one packet must dedup to one request")
		assert.EqualValues(t, 2, r.Timers)
	}
}

func Test_ByTimerSkipsPacketsWithoutMatchingBloom(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{Name: "by-group", Kind: ByTimer, TagNames: []string{"group"}}
	a := NewAggregator(cfg, dict)

	p := mustBuild(t, dict, &packet.Source{
		Hostname: "h",
		Timers: []packet.SourceTimer{
			{HitCount: 1, Value: 0.01, TagNames: []string{"other"}, TagValues: []string{"x"}},
		},
	})

	a.Add(p, 1)
	assert.Empty(t, a.Rows())
}

func Test_HistoryWindowedAdvanceSubtractsEvictedCounters(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{Name: "all", Kind: ByPacket, WindowSize: 2, Strategy: Windowed, SlotDuration: time.Second}
	h := NewHistory(cfg, dict)

	h.Current().Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ReqTime: 1}), 1)
	h.Advance()
	h.Current().Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ReqTime: 1}), 2)
	h.Advance() // window size 2: first slot now evicted

	total := h.WindowedTotal()
	require.Len(t, total, 1)
	for _, r := range total {
		assert.EqualValues(t, 1, r.Requests, "evicted slot's counters must be subtracted")
	}
}

func Test_GeneralSnapshotMergesAllLiveSlots(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{Name: "all", Kind: ByPacket, WindowSize: 3, Strategy: General}
	h := NewHistory(cfg, dict)

	h.Current().Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ReqTime: 1}), 1)
	h.Advance()
	h.Current().Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ReqTime: 1}), 2)

	snap := h.GeneralSnapshot()
	require.Len(t, snap, 1)
	for _, r := range snap {
		assert.EqualValues(t, 2, r.Requests)
	}
}

func Test_FilterRestrictsByPacketTag(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{
		Name: "prod-only", Kind: ByPacket,
		Filters: []Filter{{TagName: "env", TagValue: "prod"}},
	}
	a := NewAggregator(cfg, dict)

	pNoTag := mustBuild(t, dict, &packet.Source{Hostname: "h"})
	a.Add(pNoTag, 1)
	assert.Empty(t, a.Rows(), "packet without the filtered tag must be excluded")

	pMatching := mustBuild(t, dict, &packet.Source{
		Hostname:  "h",
		TagNames:  []string{"env"},
		TagValues: []string{"prod"},
	})
	a.Add(pMatching, 2)
	assert.Len(t, a.Rows(), 1, "packet carrying the matching tag must be counted")
}

func Test_SnapshotPrepareResolvesKeyFieldsToStrings(t *testing.T) {
	dict := dictionary.New(4)
	cfg := &Config{Name: "by-script", Kind: ByRequest, RequestFields: []string{"script"}}
	a := NewAggregator(cfg, dict)
	a.Add(mustBuild(t, dict, &packet.Source{Hostname: "h", ScriptName: "checkout.php", ReqTime: 1}), 1)

	snap := Prepare(cfg, dict, a.Rows())
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, []string{"checkout.php"}, snap.Rows[0].Fields)
}
