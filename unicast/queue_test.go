package unicast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendQueueFIFOOrder(t *testing.T) {
	q := newSendQueue()

	wasEmpty := q.push(&queueEntry{Seq: 1, Payload: []byte("a")})
	assert.True(t, wasEmpty)

	wasEmpty = q.push(&queueEntry{Seq: 2, Payload: []byte("b")})
	assert.False(t, wasEmpty)

	head, ok := q.front()
	require.True(t, ok)
	assert.Equal(t, byte(1), head.Seq)

	q.popFront()
	head, ok = q.front()
	require.True(t, ok)
	assert.Equal(t, byte(2), head.Seq)

	q.popFront()
	_, ok = q.front()
	assert.False(t, ok)
}

func TestSendQueueLenAndEmptyPop(t *testing.T) {
	q := newSendQueue()
	assert.Equal(t, 0, q.len())

	q.popFront() // must not panic on an empty queue
	assert.Equal(t, 0, q.len())

	q.push(&queueEntry{Seq: 1})
	assert.Equal(t, 1, q.len())
}
