// Package engine wires the collector, repacker, coordinator and shared
// dictionary into a single running pipeline (spec.md §4), and exposes the
// control-plane operations other front ends (CLI, HTTP) drive.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/collector"
	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/coordinator"
	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/queue"
	"github.com/pinba-platform/pinba2/internal/repacker"
	"github.com/pinba-platform/pinba2/internal/report"
	"github.com/pinba-platform/pinba2/internal/stats"
)

// Engine owns every pipeline stage and the shared dictionary.
type Engine struct {
	cfg  *config.Config
	log  *zap.SugaredLogger
	dict *dictionary.Dictionary

	collector   *collector.Pool
	repacker    *repacker.Pool
	coordinator *coordinator.Coordinator

	rawQueue    *queue.Queue[*batch.RawBatch]
	packetQueue *queue.Queue[*batch.PacketBatch]
}

// New builds an Engine from cfg, wiring each stage's queues together, but
// does not start any goroutines.
func New(cfg *config.Config, log *zap.SugaredLogger) *Engine {
	dict := dictionary.New(cfg.Dictionary.Shards)

	rawQueue := queue.New[*batch.RawBatch](cfg.Collector.OutputQueueCapacity)
	packetQueue := queue.New[*batch.PacketBatch](cfg.Repacker.OutputQueueCapacity)

	collectorPool := collector.New(cfg.Collector, rawQueue, log.Named("collector"))
	repackerPool := repacker.New(cfg.Repacker, dict, rawQueue, packetQueue, log.Named("repacker"))
	coord := coordinator.New(cfg.Coordinator, dict, packetQueue, log.Named("coordinator"))

	return &Engine{
		cfg:         cfg,
		log:         log,
		dict:        dict,
		collector:   collectorPool,
		repacker:    repackerPool,
		coordinator: coord,
		rawQueue:    rawQueue,
		packetQueue: packetQueue,
	}
}

// Run starts every stage and the configured report hosts, and blocks until
// ctx is cancelled or a stage fails. It returns the first stage error, if
// any, combined with the error from shutting down the report hosts.
func (e *Engine) Run(ctx context.Context) error {
	for _, rc := range e.cfg.Reports {
		if err := e.coordinator.AddReport(ctx, rc); err != nil {
			return fmt.Errorf("engine: failed to add report %q: %w", rc.Name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.collector.Run(gctx)
	})
	g.Go(func() error {
		return e.repacker.Run(gctx)
	})
	g.Go(func() error {
		return e.coordinator.Run(gctx)
	})

	err := g.Wait()
	return multierr.Append(err, e.coordinator.Shutdown())
}

// AddReport registers a new report host while the engine is running.
func (e *Engine) AddReport(ctx context.Context, cfg report.Config) error {
	return e.coordinator.AddReport(ctx, cfg)
}

// DeleteReport stops and unregisters a report host.
func (e *Engine) DeleteReport(name string) error {
	return e.coordinator.DeleteReport(name)
}

// GetReportSnapshot resolves the named report's current window.
func (e *Engine) GetReportSnapshot(name string) (report.Snapshot, error) {
	return e.coordinator.GetReportSnapshot(name)
}

// GetReportState summarizes the named report's current row count.
func (e *Engine) GetReportState(name string) (coordinator.ReportState, error) {
	return e.coordinator.GetReportState(name)
}

// ListReports returns the names of registered reports matching pattern.
func (e *Engine) ListReports(pattern string) ([]string, error) {
	return e.coordinator.ListReports(pattern)
}

// StatsSource returns the live stage handles backing this engine's counters,
// for a metrics.Collector to poll on every scrape.
func (e *Engine) StatsSource() stats.Source {
	return stats.Source{
		Collector:   e.collector,
		Repacker:    e.repacker,
		Coordinator: e.coordinator,
		Dict:        e.dict,
	}
}

// Stats snapshots every stage's running counters.
func (e *Engine) Stats() stats.EngineStats {
	return stats.Snapshot(e.StatsSource())
}
