package unicast

import (
	"sync"

	"github.com/gammazero/deque"
)

// queueEntry is the spec §3 "Send queue entry": an opaque payload buffer
// (without the seqno prefix, which is reconstructed at send time), its
// retry counter, and its assigned sequence number.
type queueEntry struct {
	Seq     byte
	Payload []byte
	Tries   int
}

// sendQueue is the per-node outbound FIFO. It uses gammazero/deque for
// O(1) head pop the same way the teacher's emerge/monitor.go uses it for
// its coherence-sample ring, here applied to the entries that must "leave
// the queue in FIFO order" with "only the head ... in flight at any time"
// (spec §3, §5).
type sendQueue struct {
	mu      sync.Mutex
	entries deque.Deque[*queueEntry]
}

func newSendQueue() *sendQueue {
	return &sendQueue{}
}

func (q *sendQueue) push(e *queueEntry) (wasEmpty bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	wasEmpty = q.entries.Len() == 0
	q.entries.PushBack(e)
	return wasEmpty
}

func (q *sendQueue) front() (*queueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries.Len() == 0 {
		return nil, false
	}
	return q.entries.Front(), true
}

func (q *sendQueue) popFront() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries.Len() > 0 {
		q.entries.PopFront()
	}
}

func (q *sendQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entries.Len()
}
