package unicast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlisia/mlst/link"
)

func TestHistorySeenAfterRecord(t *testing.T) {
	h := newHistory(3)
	assert.False(t, h.seen(1, 5))

	h.record(1, 5)
	assert.True(t, h.seen(1, 5))
	assert.False(t, h.seen(1, 6), "a different seq from the same source is not a match")
}

func TestHistoryRecordEvictsPriorEntryForSameSource(t *testing.T) {
	// §9 open question 3: record must evict any existing entry for src
	// before inserting the new one, never leaving two entries for one
	// source alive at once.
	h := newHistory(5)

	h.record(1, 1)
	h.record(2, 1)
	h.record(1, 2) // should replace (1,1), not add alongside it

	require.Equal(t, 2, h.size())
	assert.False(t, h.seen(1, 1))
	assert.True(t, h.seen(1, 2))
	assert.True(t, h.seen(2, 1))
}

func TestHistoryTrimsOldestWhenOverCapacity(t *testing.T) {
	h := newHistory(2)

	h.record(1, 1)
	h.record(2, 1)
	require.Equal(t, 2, h.size())

	h.record(3, 1) // over capacity: must evict the oldest surviving entry, source 1
	assert.Equal(t, 2, h.size())
	assert.False(t, h.seen(1, 1))
	assert.True(t, h.seen(2, 1))
	assert.True(t, h.seen(3, 1))
}

func TestHistoryZeroValueNodeIDIsOrdinary(t *testing.T) {
	h := newHistory(2)
	h.record(link.NodeID(0), 9)
	assert.True(t, h.seen(0, 9))
}
