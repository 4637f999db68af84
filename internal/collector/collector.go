// Package collector implements the UDP ingestion pool (spec.md §4.1): N
// threads, each owning an SO_REUSEPORT socket, sealing raw datagrams into
// batches by size or timeout and pushing them to the repacker pool.
package collector

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/pinba-platform/pinba2/internal/arena"
	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/queue"
)

const maxDatagramSize = 64 * 1024

// Stats holds the collector pool's running counters, read atomically by
// the metrics exporter and the control-plane stats operation.
type Stats struct {
	DatagramsReceived atomic.Int64
	BatchesSealed     atomic.Int64
	BatchesDropped    atomic.Int64
	ReadErrors        atomic.Int64
}

// Pool is the collector thread pool.
type Pool struct {
	cfg  config.CollectorConfig
	log  *zap.SugaredLogger
	out  *queue.Queue[*batch.RawBatch]
	pool *arena.Pool

	Stats Stats
}

// New creates a collector pool whose sealed batches are pushed to out.
func New(cfg config.CollectorConfig, out *queue.Queue[*batch.RawBatch], log *zap.SugaredLogger) *Pool {
	return &Pool{
		cfg:  cfg,
		log:  log,
		out:  out,
		pool: arena.NewPool(cfg.BatchSize * 512),
	}
}

// Run starts cfg.NThreads worker goroutines, each binding its own
// SO_REUSEPORT socket, and blocks until ctx is cancelled or a worker
// returns a fatal error.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.NThreads; i++ {
		threadID := i
		g.Go(func() error {
			return p.runThread(ctx, threadID)
		})
	}

	return g.Wait()
}

func (p *Pool) runThread(ctx context.Context, threadID int) error {
	log := p.log.With("collector_thread", threadID)

	conn, err := p.bindWithRetry(ctx, log)
	if err != nil {
		return fmt.Errorf("collector[%d]: bind: %w", threadID, err)
	}
	defer conn.Close()

	log.Info("collector thread listening")

	cur := batch.NewRawBatch(p.pool)
	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()

	buf := make([]byte, maxDatagramSize)

	seal := func() {
		if cur.Len() == 0 {
			return
		}
		if !p.out.TryPush(cur) {
			p.Stats.BatchesDropped.Add(1)
			cur.Release()
		} else {
			p.Stats.BatchesSealed.Add(1)
		}
		cur = batch.NewRawBatch(p.pool)
	}

	for {
		select {
		case <-ctx.Done():
			seal()
			return nil
		case <-timer.C:
			seal()
			timer.Reset(p.cfg.BatchTimeout)
			continue
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			p.Stats.ReadErrors.Add(1)
			continue
		}

		p.Stats.DatagramsReceived.Add(1)
		cur.Add(buf[:n])

		if cur.Len() >= p.cfg.BatchSize {
			seal()
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(p.cfg.BatchTimeout)
		}
	}
}

// bindWithRetry binds an SO_REUSEPORT UDP socket, retrying with bounded
// exponential backoff if the port isn't available yet (e.g. during a
// rolling restart racing the old process's unbind).
func (p *Pool) bindWithRetry(ctx context.Context, log *zap.SugaredLogger) (*net.UDPConn, error) {
	op := func() (*net.UDPConn, error) {
		return p.bind()
	}

	if p.cfg.BindRetry.MaxElapsedTime <= 0 {
		return op()
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(p.cfg.BindRetry.MaxElapsedTime),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warnw("bind failed, retrying", "error", err, "backoff", d)
		}),
	)
}

func (p *Pool) bind() (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				if setErr == nil {
					bufBytes := int(p.cfg.RecvBufferSize.Bytes())
					if bufBytes > 0 {
						setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, bufBytes)
					}
				}
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.Address, p.cfg.Port)
	c, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, err
	}
	return c.(*net.UDPConn), nil
}
