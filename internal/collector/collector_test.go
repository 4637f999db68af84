package collector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/queue"
)

func Test_PoolBindsAndShutsDownCleanly(t *testing.T) {
	cfg := config.CollectorConfig{
		Address:             "127.0.0.1",
		Port:                0,
		NThreads:            1,
		BatchSize:           4,
		BatchTimeout:        50 * time.Millisecond,
		OutputQueueCapacity: 16,
	}

	out := queue.New[*batch.RawBatch](cfg.OutputQueueCapacity)
	log := zap.NewNop().Sugar()
	p := New(cfg, out, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	// Give the thread a moment to bind. Since Port=0 the bound port is not
	// exposed, so no datagram is sent: this test only checks that the pool
	// starts and returns without error once its context is cancelled.
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down in time")
	}
}

func Test_RawBatchSealsAtConfiguredSize(t *testing.T) {
	out := queue.New[*batch.RawBatch](4)
	cfg := config.CollectorConfig{BatchSize: 2, BatchTimeout: time.Hour}
	p := New(cfg, out, zap.NewNop().Sugar())

	cur := batch.NewRawBatch(p.pool)
	cur.Add([]byte("a"))
	cur.Add([]byte("b"))

	require.Equal(t, 2, cur.Len())
	require.True(t, out.TryPush(cur))

	got, ok := out.TryPop()
	require.True(t, ok)
	require.Equal(t, 2, got.Len())
}

func Test_ListenUDPBindsEphemeralPort(t *testing.T) {
	// Sanity check that net.ListenUDP still works the way the collector
	// relies on, independent of SO_REUSEPORT plumbing.
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer conn.Close()
	require.NotZero(t, conn.LocalAddr().(*net.UDPAddr).Port)
}
