package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_TryPushFailsWhenFull(t *testing.T) {
	q := New[int](2)
	assert.True(t, q.TryPush(1))
	assert.True(t, q.TryPush(2))
	assert.False(t, q.TryPush(3))
	assert.EqualValues(t, 1, q.Dropped())
}

func Test_TryPopOnEmptyReturnsFalse(t *testing.T) {
	q := New[int](2)
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func Test_PushThenPopPreservesValue(t *testing.T) {
	q := New[string](4)
	q.TryPush("hello")

	v, ok := q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
}

func Test_PopUnblocksOnDoneClose(t *testing.T) {
	q := New[int](1)
	done := make(chan struct{})
	close(done)

	_, ok := q.Pop(done)
	assert.False(t, ok)
}
