package gossip_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlisia/mlst/gossip"
	"github.com/carlisia/mlst/link"
	"github.com/carlisia/mlst/link/simlink"
)

const gossipPort = 154

func TestBroadcastDeliversRecordToNeighbor(t *testing.T) {
	net := simlink.NewNetwork(10)
	radioA := net.NewRadio(1)
	radioB := net.NewRadio(2)
	net.Connect(1, 2)

	var newCount int
	recordA := []byte("node-1-record")
	ngA, err := gossip.New(radioA, gossipPort, func() []byte { return recordA }, time.Minute)
	require.NoError(t, err)
	defer ngA.Close()

	ngB, err := gossip.New(radioB, gossipPort, func() []byte { return nil }, time.Minute,
		gossip.WithCallbacks(gossip.Callbacks{
			OnNew: func(id link.NodeID, record []byte) { newCount++ },
		}),
	)
	require.NoError(t, err)
	defer ngB.Close()

	require.NoError(t, ngA.Broadcast(context.Background()))

	assert.Equal(t, 1, newCount)
	entry, ok := ngB.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, recordA, entry.Record)
}

func TestChangePredicateFiresOnlyOnDifference(t *testing.T) {
	net := simlink.NewNetwork(11)
	radioA := net.NewRadio(1)
	radioB := net.NewRadio(2)
	net.Connect(1, 2)

	record := []byte("v1")
	ngA, err := gossip.New(radioA, gossipPort, func() []byte { return record }, time.Minute)
	require.NoError(t, err)
	defer ngA.Close()

	var changes, news int
	ngB, err := gossip.New(radioB, gossipPort, func() []byte { return nil }, time.Minute,
		gossip.WithCallbacks(gossip.Callbacks{
			OnNew:    func(link.NodeID, []byte) { news++ },
			OnChange: func(link.NodeID, []byte) { changes++ },
		}),
	)
	require.NoError(t, err)
	defer ngB.Close()

	require.NoError(t, ngA.Broadcast(context.Background()))
	assert.Equal(t, 1, news)
	assert.Equal(t, 0, changes)

	// Same bytes again: no change should fire.
	require.NoError(t, ngA.Broadcast(context.Background()))
	assert.Equal(t, 0, changes)

	record = []byte("v2")
	require.NoError(t, ngA.Broadcast(context.Background()))
	assert.Equal(t, 1, changes)
}

func TestRemoveStaleEvictsOldNeighborsAndFiresOnDelete(t *testing.T) {
	net := simlink.NewNetwork(12)
	radioA := net.NewRadio(1)
	radioB := net.NewRadio(2)
	net.Connect(1, 2)

	ngA, err := gossip.New(radioA, gossipPort, func() []byte { return []byte("x") }, time.Minute)
	require.NoError(t, err)
	defer ngA.Close()

	var deleted []link.NodeID
	ngB, err := gossip.New(radioB, gossipPort, func() []byte { return nil }, 10*time.Millisecond,
		gossip.WithCallbacks(gossip.Callbacks{
			OnDelete: func(id link.NodeID) { deleted = append(deleted, id) },
		}),
	)
	require.NoError(t, err)
	defer ngB.Close()

	require.NoError(t, ngA.Broadcast(context.Background()))
	assert.Equal(t, 1, ngB.Size())

	time.Sleep(20 * time.Millisecond)
	ngB.RemoveStale()

	assert.Equal(t, 0, ngB.Size())
	require.Len(t, deleted, 1)
	assert.Equal(t, link.NodeID(1), deleted[0])
}

func TestAgeOfReportsElapsedSinceLastHeard(t *testing.T) {
	net := simlink.NewNetwork(13)
	radioA := net.NewRadio(1)
	radioB := net.NewRadio(2)
	net.Connect(1, 2)

	ngA, err := gossip.New(radioA, gossipPort, func() []byte { return []byte("x") }, time.Minute)
	require.NoError(t, err)
	defer ngA.Close()

	ngB, err := gossip.New(radioB, gossipPort, func() []byte { return nil }, time.Minute)
	require.NoError(t, err)
	defer ngB.Close()

	_, ok := ngB.AgeOf(1)
	assert.False(t, ok, "unknown neighbor should report not-found")

	require.NoError(t, ngA.Broadcast(context.Background()))
	time.Sleep(5 * time.Millisecond)

	age, ok := ngB.AgeOf(1)
	require.True(t, ok)
	assert.Positive(t, age)
}
