package bloom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func hashOf(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func Test_TimerContains(t *testing.T) {
	var a, b Timer
	a.AddHashed(hashOf("group"))
	a.AddHashed(hashOf("host"))

	b.AddHashed(hashOf("group"))

	assert.True(t, a.Contains(b))
	assert.False(t, b.Contains(a) && a.Count() != b.Count())
}

func Test_PacketContainsTimer(t *testing.T) {
	var pkt Packet
	var tmr Timer

	h := hashOf("group")
	pkt.AddHashed(h)
	tmr.AddHashed(h)

	var probe Packet
	probe.AddHashed(h)

	assert.True(t, pkt.Contains(probe))
}

func Test_EmptyBloomContainsOnlyEmpty(t *testing.T) {
	var a Timer
	var empty Timer

	assert.True(t, a.Contains(empty))

	var full Timer
	full.AddHashed(hashOf("x"))
	assert.False(t, empty.Contains(full))
}

func Test_PacketResetAndCount(t *testing.T) {
	var p Packet
	p.AddHashed(hashOf("a"))
	p.AddHashed(hashOf("b"))
	assert.Greater(t, p.Count(), 0)

	p.Reset()
	assert.Equal(t, 0, p.Count())
}
