package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueue_EnqueueDequeue(t *testing.T) {
	rq := NewRingQueue[int](3)
	assert.True(t, rq.IsEmpty())

	require.NoError(t, rq.Enqueue(1))
	require.NoError(t, rq.Enqueue(2))
	require.NoError(t, rq.Enqueue(3))
	assert.True(t, rq.IsFull())
	assert.ErrorIs(t, rq.Enqueue(4), ErrQueueFull)

	v, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, rq.Len())
}

func TestRingQueue_EmptyErrors(t *testing.T) {
	rq := NewRingQueue[string](2)
	_, err := rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, err = rq.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueue_PushEvictsOldest(t *testing.T) {
	rq := NewRingQueue[string](2)
	rq.Push("a")
	rq.Push("b")
	rq.Push("c")

	assert.Equal(t, []string{"b", "c"}, rq.Items())
}

func TestRingQueue_ItemsWrapAround(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 5; i++ {
		rq.Push(i)
	}
	assert.Equal(t, []int{3, 4, 5}, rq.Items())

	_, _ = rq.Dequeue()
	rq.Push(6)
	assert.Equal(t, []int{4, 5, 6}, rq.Items())
}

func TestNewRingQueue_MinimumSize(t *testing.T) {
	rq := NewRingQueue[int](0)
	require.NoError(t, rq.Enqueue(7))
	assert.True(t, rq.IsFull())
}
