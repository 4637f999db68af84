// Package coordinator implements the single fan-out thread that hands each
// repacker-sealed packet batch to every configured report host, and serves
// the control-plane operations (spec.md §4.3, §3): add/delete report,
// snapshot, state, list, shutdown.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/queue"
	"github.com/pinba-platform/pinba2/internal/report"
)

// Stats holds the coordinator's running counters. The fan-out loop and any
// stats-reading goroutine (CLI, metrics exporter) run concurrently, so these
// are atomics rather than plain counters.
type Stats struct {
	BatchesFanned  atomic.Int64
	BatchesDropped atomic.Int64
}

// Coordinator owns the live set of report hosts and fans repacker output
// out to all of them.
type Coordinator struct {
	cfg  config.CoordinatorConfig
	dict *dictionary.Dictionary
	in   *queue.Queue[*batch.PacketBatch]
	log  *zap.SugaredLogger

	mu    sync.RWMutex
	hosts map[string]*reportHost
	stop  map[string]context.CancelFunc

	Stats Stats
}

// New creates a coordinator reading sealed packet batches from in.
func New(cfg config.CoordinatorConfig, dict *dictionary.Dictionary, in *queue.Queue[*batch.PacketBatch], log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		cfg:   cfg,
		dict:  dict,
		in:    in,
		log:   log,
		hosts: make(map[string]*reportHost),
		stop:  make(map[string]context.CancelFunc),
	}
}

// Run starts the fan-out loop. It blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pb := <-c.in.Chan():
			c.fanOut(pb)
		}
	}
}

func (c *Coordinator) fanOut(pb *batch.PacketBatch) {
	c.mu.RLock()
	hosts := make([]*reportHost, 0, len(c.hosts))
	for _, h := range c.hosts {
		hosts = append(hosts, h)
	}
	c.mu.RUnlock()

	for _, h := range hosts {
		pb.AddRef()
		if !h.in.TryPush(pb) {
			pb.Release()
			c.Stats.BatchesDropped.Add(1)
		}
	}

	pb.Release()
	c.Stats.BatchesFanned.Add(1)
}

// AddReport registers and starts a new report host. It returns
// codes.AlreadyExists if a report with this name is already registered.
func (c *Coordinator) AddReport(ctx context.Context, cfg report.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.hosts[cfg.Name]; ok {
		return status.Errorf(codes.AlreadyExists, "report %q already exists", cfg.Name)
	}

	cfgCopy := cfg
	host := newReportHost(&cfgCopy, c.dict, c.cfg.ReportQueueCapacity)

	hostCtx, cancel := context.WithCancel(ctx)
	c.hosts[cfg.Name] = host
	c.stop[cfg.Name] = cancel
	go host.run(hostCtx)

	c.log.Infow("report added", "name", cfg.Name, "kind", cfg.Kind.String())
	return nil
}

// DeleteReport stops and unregisters a report host. It returns
// codes.NotFound if no such report is registered.
func (c *Coordinator) DeleteReport(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancel, ok := c.stop[name]
	if !ok {
		return status.Errorf(codes.NotFound, "report %q not found", name)
	}

	cancel()
	delete(c.hosts, name)
	delete(c.stop, name)

	c.log.Infow("report deleted", "name", name)
	return nil
}

// GetReportSnapshot resolves the named report's current window into a
// dictionary-resolved snapshot.
func (c *Coordinator) GetReportSnapshot(name string) (report.Snapshot, error) {
	c.mu.RLock()
	host, ok := c.hosts[name]
	c.mu.RUnlock()

	if !ok {
		return report.Snapshot{}, status.Errorf(codes.NotFound, "report %q not found", name)
	}

	return host.snapshot(), nil
}

// ReportState is a lightweight status summary for one report, used by the
// get_report_state operation.
type ReportState struct {
	Name     string
	Kind     string
	RowCount int
}

// GetReportState summarizes the named report's current row count.
func (c *Coordinator) GetReportState(name string) (ReportState, error) {
	c.mu.RLock()
	host, ok := c.hosts[name]
	c.mu.RUnlock()

	if !ok {
		return ReportState{}, status.Errorf(codes.NotFound, "report %q not found", name)
	}

	snap := host.snapshot()
	return ReportState{Name: name, Kind: snap.Kind.String(), RowCount: len(snap.Rows)}, nil
}

// ListReports returns the names of registered reports matching a glob
// pattern (e.g. "by_*"); an empty pattern matches everything.
func (c *Coordinator) ListReports(pattern string) ([]string, error) {
	var g glob.Glob
	if pattern != "" {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid pattern: %v", err)
		}
		g = compiled
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.hosts))
	for name := range c.hosts {
		if g == nil || g.Match(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Shutdown stops every report host.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, cancel := range c.stop {
		cancel()
		delete(c.hosts, name)
		delete(c.stop, name)
	}
	return nil
}
