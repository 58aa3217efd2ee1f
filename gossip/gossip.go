// Package gossip implements the Neighborhood Gossip fabric described in
// spec §4.A: each node periodically broadcasts a small typed record and
// maintains a freshness-bounded table of its neighbors' latest records,
// firing change/new/delete notifications the way the teacher's
// emerge/agent/neighbor_storage.go tracks Agent neighbors, but keyed by
// link identifier and bounded by age instead of by a fixed capacity slice.
package gossip

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carlisia/mlst/link"
)

// ChangePredicate compares an old and new record and reports whether the
// difference is significant enough to fire OnChange. The default is exact
// byte equality (§4.A).
type ChangePredicate func(old, cur []byte) bool

// Callbacks are the observers an NG instance fires on neighbor events.
// Any of them may be nil, in which case the event is silently skipped
// (§9, "Callbacks into user code").
type Callbacks struct {
	OnNew    func(id link.NodeID, record []byte)
	OnChange func(id link.NodeID, record []byte)
	OnDelete func(id link.NodeID)
}

// Entry is a single neighbor's most recent record and the time it was
// last heard from (spec §3, "Neighbor entry").
type Entry struct {
	ID      link.NodeID
	Record  []byte
	heardAt time.Time
}

// RecordSource returns the owner's current record bytes at broadcast
// time. It stands in for the C source's "pointer to the owner's record":
// Go has no stable pointer-to-mutable-struct-bytes idiom as clean as a
// closure the caller controls.
type RecordSource func() []byte

// now is overridable in tests so neighbor aging can be driven without
// real sleeps.
type nowFunc func() time.Time

// NG is one Neighborhood Gossip instance, bound to a single port on a
// single Radio. Multiple independent instances may share a Radio as long
// as each uses a distinct port (§4.A).
type NG struct {
	port   uint16
	radio  link.Radio
	source RecordSource
	maxAge time.Duration
	log    *zap.Logger
	now    nowFunc

	predicate ChangePredicate
	callbacks Callbacks

	mu        sync.RWMutex
	neighbors map[link.NodeID]*Entry
}

// Option configures an NG instance at construction time.
type Option func(*NG)

// WithChangePredicate overrides the default exact-byte-equality predicate.
func WithChangePredicate(p ChangePredicate) Option {
	return func(g *NG) { g.predicate = p }
}

// WithCallbacks registers the new/change/delete observers.
func WithCallbacks(cb Callbacks) Option {
	return func(g *NG) { g.callbacks = cb }
}

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *NG) { g.log = l }
}

// New creates an NG instance bound to port on radio, broadcasting whatever
// source() returns and evicting neighbors older than maxAge. It registers
// a receive handler on the radio immediately; per §9 a single port must
// never host two NG instances simultaneously, so a second New on the same
// port/radio fails with link.ErrPortInUse.
func New(radio link.Radio, port uint16, source RecordSource, maxAge time.Duration, opts ...Option) (*NG, error) {
	g := &NG{
		port:      port,
		radio:     radio,
		source:    source,
		maxAge:    maxAge,
		log:       zap.NewNop(),
		predicate: func(old, cur []byte) bool { return !bytes.Equal(old, cur) },
		now:       time.Now,
		neighbors: make(map[link.NodeID]*Entry),
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := radio.Listen(port, g.receive); err != nil {
		return nil, fmt.Errorf("gossip: listen on port %d: %w", port, err)
	}
	return g, nil
}

// Close stops listening for gossip datagrams on this instance's port.
func (g *NG) Close() {
	g.radio.StopListening(g.port)
}

// Broadcast transmits the owner's current record as a single datagram.
// If the radio is offline, it is briefly opened, used, and closed again
// (§4.A).
func (g *NG) Broadcast(ctx context.Context) error {
	payload := g.source()
	if err := g.radio.Broadcast(ctx, g.port, payload); err != nil {
		// Link errors from broadcast are silently ignored by design (§4.A);
		// we still log at debug level for operators, never surface the
		// error to the caller.
		g.log.Debug("gossip broadcast suppressed link error", zap.Error(err))
		return nil
	}
	return nil
}

// receive is the radio's reception handler for this instance's port.
func (g *NG) receive(src link.NodeID, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	g.mu.Lock()
	entry, existed := g.neighbors[src]
	if !existed {
		entry = &Entry{ID: src}
		g.neighbors[src] = entry
	}
	old := entry.Record
	entry.Record = cp
	entry.heardAt = g.now()
	g.mu.Unlock()

	switch {
	case !existed:
		if g.callbacks.OnNew != nil {
			g.callbacks.OnNew(src, cp)
		}
	case g.predicate(old, cp):
		if g.callbacks.OnChange != nil {
			g.callbacks.OnChange(src, cp)
		}
	}
}

// RemoveStale evicts every neighbor whose last-heard timestamp is older
// than maxAge, firing OnDelete for each. §4.A requires the client invoke
// this periodically; eviction is never driven by incoming traffic alone.
func (g *NG) RemoveStale() {
	cutoff := g.now().Add(-g.maxAge)

	g.mu.Lock()
	var stale []link.NodeID
	for id, e := range g.neighbors {
		if e.heardAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(g.neighbors, id)
	}
	g.mu.Unlock()

	for _, id := range stale {
		if g.callbacks.OnDelete != nil {
			g.callbacks.OnDelete(id)
		}
	}
}

// Iterate yields a stable snapshot of live neighbor entries for read-only
// inspection. Callers must call RemoveStale before iterating if they need
// the snapshot to reflect current age bounds (§4.A).
func (g *NG) Iterate(fn func(Entry)) {
	g.mu.RLock()
	snapshot := make([]Entry, 0, len(g.neighbors))
	for _, e := range g.neighbors {
		snapshot = append(snapshot, Entry{ID: e.ID, Record: e.Record, heardAt: e.heardAt})
	}
	g.mu.RUnlock()

	for _, e := range snapshot {
		fn(e)
	}
}

// Size returns the current neighborhood size.
func (g *NG) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.neighbors)
}

// Lookup returns the current record for a specific neighbor, if present.
func (g *NG) Lookup(id link.NodeID) (Entry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.neighbors[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{ID: e.ID, Record: e.Record, heardAt: e.heardAt}, true
}

// AgeOf exposes how long ago a neighbor was last heard from, used by the
// tree controller's MaxAgeOfParent check (§4.B).
func (g *NG) AgeOf(id link.NodeID) (time.Duration, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.neighbors[id]
	if !ok {
		return 0, false
	}
	return g.now().Sub(e.heardAt), true
}
