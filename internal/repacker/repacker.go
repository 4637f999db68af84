// Package repacker implements the second pipeline stage (spec.md §4.2):
// M threads, each decoding raw datagram batches into validated,
// dictionary-resolved packet batches, with a per-thread word cache scoped
// to the current rotation window.
package repacker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pinba-platform/pinba2/internal/arena"
	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/packet"
	"github.com/pinba-platform/pinba2/internal/queue"
	"github.com/pinba-platform/pinba2/internal/wire"
)

// Stats holds the repacker pool's running counters.
type Stats struct {
	DatagramsDecoded atomic.Int64
	DecodeErrors     atomic.Int64
	PacketsDropped   atomic.Int64
	BatchesSealed    atomic.Int64
	BatchesDropped   atomic.Int64
	SlicesReaped     atomic.Int64
}

// Pool is the repacker thread pool.
type Pool struct {
	cfg  config.RepackerConfig
	dict *dictionary.Dictionary
	in   *queue.Queue[*batch.RawBatch]
	out  *queue.Queue[*batch.PacketBatch]
	log  *zap.SugaredLogger
	pool *arena.Pool

	reapers []*reaper

	Stats Stats
}

// New creates a repacker pool reading raw batches from in and writing
// sealed packet batches to out.
func New(cfg config.RepackerConfig, dict *dictionary.Dictionary, in *queue.Queue[*batch.RawBatch], out *queue.Queue[*batch.PacketBatch], log *zap.SugaredLogger) *Pool {
	return &Pool{
		cfg:  cfg,
		dict: dict,
		in:   in,
		out:  out,
		log:  log,
		pool: arena.NewPool(cfg.BatchSize * 256),
	}
}

// Run starts cfg.NThreads worker goroutines and blocks until ctx is
// cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.reapers = make([]*reaper, p.cfg.NThreads)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.NThreads; i++ {
		threadID := i
		r := newReaper(p.dict)
		p.reapers[threadID] = r
		g.Go(func() error {
			return p.runThread(ctx, threadID, r)
		})
	}

	return g.Wait()
}

func (p *Pool) runThread(ctx context.Context, threadID int, r *reaper) error {
	log := p.log.With("repacker_thread", threadID)
	log.Info("repacker thread starting")

	interner := newThreadInterner(p.dict)

	reapTicker := time.NewTicker(p.cfg.ReapInterval)
	defer reapTicker.Stop()

	var cur *arena.Arena
	var packets []*packet.Packet

	sealAndReset := func() {
		if len(packets) == 0 {
			return
		}
		pb := batch.NewPacketBatch(cur, interner.current, packets)
		if !p.out.TryPush(pb) {
			pb.Release()
			p.Stats.BatchesDropped.Add(1)
		} else {
			p.Stats.BatchesSealed.Add(1)
		}
		cur = arena.New(p.pool)
		packets = nil
	}
	cur = arena.New(p.pool)

	var seqNum uint64

	batchTimer := time.NewTimer(p.cfg.BatchTimeout)
	defer batchTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			sealAndReset()
			sealed := interner.rotate()
			r.track(sealed)
			return nil

		case <-reapTicker.C:
			sealAndReset()
			sealed := interner.rotate()
			r.track(sealed)
			reaped := r.reap()
			p.Stats.SlicesReaped.Add(int64(reaped))

		case <-batchTimer.C:
			sealAndReset()
			batchTimer.Reset(p.cfg.BatchTimeout)

		case rb := <-p.in.Chan():
			var rec wire.Record
			for _, datagram := range rb.Datagrams {
				rec.Reset()
				if err := wire.Decode(datagram, &rec); err != nil {
					p.Stats.DecodeErrors.Add(1)
					continue
				}
				p.Stats.DatagramsDecoded.Add(1)

				seqNum++
				src := toSource(&rec)
				pkt, valid := packet.Build(src, interner)
				if !valid {
					p.Stats.PacketsDropped.Add(1)
					continue
				}
				pkt.SeqNum = seqNum
				packets = append(packets, pkt)
			}
			rb.Release()

			if len(packets) >= p.cfg.BatchSize {
				sealAndReset()
				if !batchTimer.Stop() {
					<-batchTimer.C
				}
				batchTimer.Reset(p.cfg.BatchTimeout)
			}
		}
	}
}
