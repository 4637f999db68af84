package coordinator

import (
	"context"
	"time"

	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/queue"
	"github.com/pinba-platform/pinba2/internal/report"
)

// reportHost runs one configured report's history ring: it receives every
// packet batch the coordinator fans out, folds matching packets into the
// current slot, and advances the window on its own ticker.
type reportHost struct {
	cfg     *report.Config
	history *report.History
	in      *queue.Queue[*batch.PacketBatch]

	droppedBatches int64
}

func newReportHost(cfg *report.Config, dict *dictionary.Dictionary, queueCap int) *reportHost {
	return &reportHost{
		cfg:     cfg,
		history: report.NewHistory(cfg, dict),
		in:      queue.New[*batch.PacketBatch](queueCap),
	}
}

func (h *reportHost) run(ctx context.Context) {
	slotDuration := h.cfg.SlotDuration
	if slotDuration <= 0 {
		slotDuration = time.Second
	}

	ticker := time.NewTicker(slotDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.history.Advance()
		case pb := <-h.in.Chan():
			h.ingest(pb)
		}
	}
}

func (h *reportHost) ingest(pb *batch.PacketBatch) {
	agg := h.history.Current()
	for _, p := range pb.Packets {
		agg.Add(p, p.SeqNum)
	}
	h.history.RetainCurrent(pb)
	pb.Release()
}

// snapshot resolves the host's current window into a report.Snapshot.
func (h *reportHost) snapshot() report.Snapshot {
	var rows map[report.Key]*report.Row
	if h.cfg.Strategy == report.Windowed {
		rows = h.history.WindowedTotal()
	} else {
		rows = h.history.GeneralSnapshot()
	}
	return report.Prepare(h.cfg, h.history.Dict(), rows)
}
