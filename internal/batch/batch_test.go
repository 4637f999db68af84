package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinba-platform/pinba2/internal/arena"
	"github.com/pinba-platform/pinba2/internal/packet"
	"github.com/pinba-platform/pinba2/internal/wordslice"
)

func Test_RawBatchCopiesDatagramsIndependently(t *testing.T) {
	pool := arena.NewPool(64)
	b := NewRawBatch(pool)

	src := []byte("hello")
	b.Add(src)
	src[0] = 'X'

	require.Equal(t, 1, b.Len())
	assert.Equal(t, "hello", string(b.Datagrams[0]))
}

func Test_RawBatchReleaseReturnsArenaToPool(t *testing.T) {
	pool := arena.NewPool(64)
	b := NewRawBatch(pool)
	b.Add([]byte("payload"))
	b.Release()
	assert.Nil(t, b.Datagrams)
}

func Test_PacketBatchReleaseFreesSliceReferenceAtZero(t *testing.T) {
	pool := arena.NewPool(4096)
	a := arena.New(pool)
	slice := wordslice.New()
	slice.Register(1)

	pb := NewPacketBatch(a, slice, []*packet.Packet{{HostID: 1}})
	assert.EqualValues(t, 1, slice.RefCount())

	pb.AddRef()
	pb.Release()
	assert.EqualValues(t, 1, slice.RefCount(), "slice ref must survive while batch still held")

	pb.Release()
	assert.EqualValues(t, 0, slice.RefCount(), "slice ref must drop once last batch holder releases")
}
