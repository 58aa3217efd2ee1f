package unicast

import (
	"sync"

	"github.com/gammazero/deque"

	"github.com/carlisia/mlst/link"
)

// historyEntry is the spec §3 "Receive-history entry": one node keeps at
// most one of these per source it has forwarded from.
type historyEntry struct {
	Source link.NodeID
	Seq    byte
}

// history is the per-source dedup table described in §4.C. It preserves
// the one-entry-per-source invariant by always evicting any existing
// entry for a source before inserting its replacement — the "evict then
// insert" fix called for by §9's open question 3, rather than the
// original's append-then-maybe-duplicate ordering.
type history struct {
	mu      sync.Mutex
	max     int
	entries deque.Deque[*historyEntry]
	bySrc   map[link.NodeID]*historyEntry
}

func newHistory(max int) *history {
	return &history{
		max:   max,
		bySrc: make(map[link.NodeID]*historyEntry),
	}
}

// seen reports whether (src, seq) is the most recently recorded pair for
// src — i.e. this exact datagram looks like a retransmission we already
// delivered.
func (h *history) seen(src link.NodeID, seq byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.bySrc[src]
	return ok && e.Seq == seq
}

// record evicts any existing entry for src, then inserts (src, seq) at the
// tail, then trims the oldest entries until the total is within max
// (§3's "Eviction is FIFO of entire list").
func (h *history) record(src link.NodeID, seq byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.bySrc[src]; ok {
		h.removeLocked(old)
	}

	e := &historyEntry{Source: src, Seq: seq}
	h.entries.PushBack(e)
	h.bySrc[src] = e

	for h.entries.Len() > h.max {
		oldest := h.entries.PopFront()
		if h.bySrc[oldest.Source] == oldest {
			delete(h.bySrc, oldest.Source)
		}
	}
}

func (h *history) removeLocked(e *historyEntry) {
	for i := 0; i < h.entries.Len(); i++ {
		if h.entries.At(i) == e {
			h.entries.Remove(i)
			break
		}
	}
	delete(h.bySrc, e.Source)
}

// size reports the current number of distinct sources tracked, bounded by
// max (§8's "total history size ≤ 30").
func (h *history) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Len()
}
