package memberlink

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlisia/mlst/link"
)

var testPort atomic.Int32

func init() {
	testPort.Store(17600)
}

func nextPort() int {
	return int(testPort.Add(1))
}

func newJoinedPair(t *testing.T) (*Radio, *Radio) {
	t.Helper()

	a, err := New(link.NodeID(1), "127.0.0.1", nextPort())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	b, err := New(link.NodeID(2), "127.0.0.1", nextPort())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Shutdown() })

	self := a.list.LocalNode()
	addr := net.JoinHostPort(self.Addr.String(), strconv.Itoa(int(self.Port)))
	n, err := b.Join([]string{addr})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		return len(a.list.Members()) == 2 && len(b.list.Members()) == 2
	}, 2*time.Second, 10*time.Millisecond, "both radios should see each other as members")

	return a, b
}

// TestSendUnicastAttributesSender guards against NotifyMsg hardcoding a
// zero sender: the receiving side's handler must see the real source id,
// not node 0, or every reception collapses onto one neighbor-table entry.
func TestSendUnicastAttributesSender(t *testing.T) {
	a, b := newJoinedPair(t)

	const port = 181
	var mu sync.Mutex
	var gotSrc link.NodeID
	var gotPayload []byte

	require.NoError(t, b.Listen(port, func(src link.NodeID, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		gotSrc = src
		gotPayload = append([]byte(nil), payload...)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.SendUnicast(ctx, link.NodeID(2), port, []byte("hello")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotSrc != 0
	}, 2*time.Second, 10*time.Millisecond, "b should receive a's unicast")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, link.NodeID(1), gotSrc)
	require.Equal(t, []byte("hello"), gotPayload)
}

// TestBroadcastAttributesSender exercises the same wire path via
// Broadcast, and also checks that two distinct ports on the same pair of
// radios demultiplex independently once sender ids are correctly decoded.
func TestBroadcastAttributesSender(t *testing.T) {
	a, b := newJoinedPair(t)

	const gossipPort = 154
	const otherPort = 155
	var mu sync.Mutex
	gossipSrc := map[link.NodeID]bool{}
	otherSrc := map[link.NodeID]bool{}

	require.NoError(t, b.Listen(gossipPort, func(src link.NodeID, _ []byte) {
		mu.Lock()
		defer mu.Unlock()
		gossipSrc[src] = true
	}))
	require.NoError(t, a.Listen(otherPort, func(src link.NodeID, _ []byte) {
		mu.Lock()
		defer mu.Unlock()
		otherSrc[src] = true
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Broadcast(ctx, gossipPort, []byte("record-a")))
	require.NoError(t, b.Broadcast(ctx, otherPort, []byte("record-b")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gossipSrc[link.NodeID(1)] && otherSrc[link.NodeID(2)]
	}, 2*time.Second, 10*time.Millisecond, "each port should attribute its own sender")
}
