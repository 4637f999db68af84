package repacker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/pinba-platform/pinba2/internal/batch"
	"github.com/pinba-platform/pinba2/internal/config"
	"github.com/pinba-platform/pinba2/internal/dictionary"
	"github.com/pinba-platform/pinba2/internal/queue"
)

func appendString(b []byte, field protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, field, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// encodeTestDatagram builds a minimal wire-format datagram matching the
// field numbers internal/wire assigns (hostname=1, server_name=2).
func encodeTestDatagram(hostname, server string) []byte {
	var b []byte
	b = appendString(b, 1, hostname)
	b = appendString(b, 2, server)
	return b
}

// Test_PendingBatchSurvivesAReapTickBeforeItSeals exercises the race between
// a periodic word-slice rotation and a not-yet-sealed packet batch: a
// reap tick landing while packets built from the current slice are still
// pending seals them into a batch before rotating, and must not erase the
// words those packets reference before the batch ships.
func Test_PendingBatchSurvivesAReapTickBeforeItSeals(t *testing.T) {
	dict := dictionary.New(4)
	in := queue.New[*batch.RawBatch](4)
	out := queue.New[*batch.PacketBatch](4)

	cfg := config.RepackerConfig{
		NThreads:            1,
		BatchSize:           1000, // large: BatchSize never seals the pending packet
		BatchTimeout:        60 * time.Millisecond,
		OutputQueueCapacity: 4,
		InputQueueCapacity:  4,
		ReapInterval:        5 * time.Millisecond, // a reap tick seals the pending packet before BatchTimeout fires
	}

	pool := New(cfg, dict, in, out, zap.NewNop().Sugar())

	rb := batch.NewRawBatch(pool.pool)
	rb.Add(encodeTestDatagram("web-1", "api"))
	require.True(t, in.TryPush(rb))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	var sealed *batch.PacketBatch
	require.Eventually(t, func() bool {
		pb, ok := out.TryPop()
		if !ok {
			return false
		}
		sealed = pb
		return true
	}, time.Second, 5*time.Millisecond)

	require.Len(t, sealed.Packets, 1)
	hostID := sealed.Packets[0].HostID

	word, ok := dict.GetWord(hostID)
	require.True(t, ok, "hostname word must still resolve from a batch that has not been released yet")
	require.Equal(t, "web-1", word)

	sealed.Release()
	cancel()
	require.NoError(t, <-errCh)
}
