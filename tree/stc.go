package tree

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carlisia/mlst/gossip"
	"github.com/carlisia/mlst/internal/config"
	"github.com/carlisia/mlst/internal/prng"
	"github.com/carlisia/mlst/link"
	"github.com/carlisia/mlst/unicast"
)

// State is a node's current position in the STC state machine (spec
// §4.B).
type State int

// States named in spec §4.B.
const (
	StateUndefined State = iota
	StateBackbone
	StateLeaf
)

// String renders a State for logs and print_state output.
func (s State) String() string {
	switch s {
	case StateBackbone:
		return "backbone"
	case StateLeaf:
		return "leaf"
	default:
		return "undefined"
	}
}

// STC is the Spanning-Tree Controller for one node: it owns the node's
// Neighborhood Gossip instance, runs the periodic election, and drives
// the RUP layer's parent and sleep policy.
type STC struct {
	cfg    config.Tunables
	id     link.NodeID
	isRoot bool
	rup    *unicast.RUP
	rnd    *prng.Source
	log    *zap.Logger
	ng     *gossip.NG

	mu                sync.Mutex
	record            Record
	state             State
	energyState       EnergyClass
	stayActivePeriods int
	divideBy          int
}

// Option configures an STC at construction time.
type Option func(*STC)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *STC) { t.log = l }
}

// WithInitialEnergy sets the node's starting energy class, for EA variants.
func WithInitialEnergy(c EnergyClass) Option {
	return func(t *STC) { t.energyState = c }
}

// New creates an STC bound to radio (shared with rup per node) and wires
// its own Neighborhood Gossip instance on cfg.GossipPort.
func New(radio link.Radio, rup *unicast.RUP, id link.NodeID, isRoot bool, cfg config.Tunables, rnd *prng.Source, opts ...Option) (*STC, error) {
	t := &STC{
		cfg:      cfg,
		id:       id,
		isRoot:   isRoot,
		rup:      rup,
		rnd:      rnd,
		log:      zap.NewNop(),
		divideBy: 1,
		record:   undefinedRecord(0),
		state:    StateUndefined,
	}
	for _, opt := range opts {
		opt(t)
	}
	if isRoot {
		t.record = rootRecord(cfg.Variant, t.energyState)
		t.state = StateBackbone
	}

	ng, err := gossip.New(radio, cfg.GossipPort, t.recordBytes, cfg.MaxNeighborAge,
		gossip.WithLogger(t.log),
		gossip.WithChangePredicate(t.recordsChanged),
		gossip.WithCallbacks(gossip.Callbacks{
			OnNew:    func(id link.NodeID, _ []byte) { t.onNeighborEvent() },
			OnChange: func(id link.NodeID, _ []byte) { t.onNeighborEvent() },
			OnDelete: t.onNeighborDeleted,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("tree: create gossip instance: %w", err)
	}
	t.ng = ng

	return t, nil
}

// recordBytes is the gossip.RecordSource backing this node's broadcasts.
func (t *STC) recordBytes() []byte {
	t.mu.Lock()
	r := t.record
	t.mu.Unlock()
	return encode(t.cfg.Variant, r)
}

// recordsChanged is the gossip.ChangePredicate: only parent_id or
// children_count differences are significant (spec §4.B).
func (t *STC) recordsChanged(old, cur []byte) bool {
	oldR, ok1 := decode(t.cfg.Variant, old)
	curR, ok2 := decode(t.cfg.Variant, cur)
	if !ok1 || !ok2 {
		return ok1 != ok2
	}
	return changed(oldR, curR)
}

func (t *STC) onNeighborEvent() {
	t.mu.Lock()
	t.stayActivePeriods = t.cfg.StayActivePeriods
	t.mu.Unlock()
}

// onNeighborDeleted handles gossip eviction of any neighbor; per spec
// §4.B "Parent loss", losing the current parent's entry resets this node
// to Undefined immediately rather than waiting for the next recompute to
// notice a stale record.
func (t *STC) onNeighborDeleted(id link.NodeID) {
	t.mu.Lock()
	t.stayActivePeriods = t.cfg.StayActivePeriods
	lostParent := !t.isRoot && t.record.ParentID == id
	if lostParent {
		t.record = undefinedRecord(0)
		t.state = StateUndefined
	}
	t.mu.Unlock()

	if lostParent {
		t.rup.DisallowSleep()
		t.rup.SetParent(ParentUndefined)
	}
}

// Run drives the periodic election loop until ctx is canceled. Root nodes
// skip election and simply rebroadcast the fixed root record each period.
func (t *STC) Run(ctx context.Context) error {
	if t.isRoot {
		return t.runRoot(ctx)
	}
	return t.runNode(ctx)
}

func (t *STC) runRoot(ctx context.Context) error {
	for {
		if err := t.ng.Broadcast(ctx); err != nil {
			t.log.Debug("tree root broadcast suppressed link error", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.periodDuration()):
		}
	}
}

func (t *STC) runNode(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.periodDuration()):
		}
		t.recompute(ctx)
	}
}

// periodDuration computes the jittered, possibly-accelerated wait before
// the next period (spec §4.B: base ×uniform[0.8,1.0], divided by
// divide_period_time_by while churn is fresh).
func (t *STC) periodDuration() time.Duration {
	t.mu.Lock()
	divisor := t.divideBy
	t.mu.Unlock()
	if divisor < 1 {
		divisor = 1
	}
	base := time.Duration(float64(t.cfg.PeriodLength) * t.rnd.UniformIn(0.8, 1.0))
	return base / time.Duration(divisor)
}

// recompute runs one period's election (spec §4.B) and publishes the
// result.
func (t *STC) recompute(ctx context.Context) {
	t.mu.Lock()
	oldRecord := t.record
	energy := t.energyState
	t.mu.Unlock()

	neighbors := t.collectNeighbors()

	var newRecord Record
	switch t.cfg.Variant {
	case config.VariantEA2:
		parent, dh, dm, dl, children := electEA2(t.id, neighbors)
		newRecord = Record{
			ParentID:      parent,
			ChildrenCount: children,
			EnergyState:   energy,
			DHigh:         dh,
			DMid:          dm,
			DLow:          dl,
		}
		newRecord.DistanceToRoot = bestOf(dh, dm, dl)
	default:
		best, children, potential := electSingleDistance(t.id, t.cfg.Variant, neighbors)
		switch {
		case best == nil:
			newRecord = undefinedRecord(children)
		case potential > 1 && t.rnd.Bool(0.5):
			// Deliberate tie-breaking defer (spec §4.B): more than one
			// equally-good candidate, so flip a coin and sit out this
			// period to let the tie resolve itself.
			newRecord = undefinedRecord(children)
		default:
			newRecord = Record{
				DistanceToRoot: best.Dist,
				ParentID:       best.ID,
				ChildrenCount:  children,
				EnergyState:    energy,
			}
		}
	}

	stateChanged := changed(oldRecord, newRecord)
	newState := classifyState(newRecord)

	t.mu.Lock()
	t.record = newRecord
	t.state = newState
	if stateChanged {
		t.stayActivePeriods = t.cfg.StayActivePeriods
		t.divideBy = 3
	} else if t.stayActivePeriods > 0 {
		t.stayActivePeriods--
	}
	if t.divideBy > 1 {
		t.divideBy--
	}
	stayActive := t.stayActivePeriods
	t.mu.Unlock()

	switch newState {
	case StateLeaf:
		if stayActive > 0 || t.parentStale(newRecord.ParentID) {
			t.rup.DisallowSleep()
		} else {
			t.rup.AllowSleep()
		}
	default:
		t.rup.DisallowSleep()
	}

	t.rup.SetParent(newRecord.ParentID)

	if err := t.ng.Broadcast(ctx); err != nil {
		t.log.Debug("tree broadcast suppressed link error", zap.Error(err))
	}
}

// classifyState derives the §4.B state machine position from a record.
func classifyState(r Record) State {
	if r.ParentID == ParentUndefined {
		return StateUndefined
	}
	if r.ChildrenCount == 0 {
		return StateLeaf
	}
	return StateBackbone
}

// parentStale reports whether the current parent's neighbor entry is
// older than MaxAgeOfParent, forcing a leaf to "stay active to fetch
// news" (spec §4.B).
func (t *STC) parentStale(parent link.NodeID) bool {
	if parent == ParentUndefined {
		return false
	}
	age, ok := t.ng.AgeOf(parent)
	if !ok {
		return true
	}
	return age > t.cfg.MaxAgeOfParent
}

// collectNeighbors snapshots NG's current table, decoding each entry;
// entries whose record length doesn't match this variant are dropped as
// malformed/orphan receptions (spec §7).
func (t *STC) collectNeighbors() []neighborView {
	var out []neighborView
	t.ng.Iterate(func(e gossip.Entry) {
		r, ok := decode(t.cfg.Variant, e.Record)
		if !ok {
			return
		}
		out = append(out, neighborView{ID: e.ID, Record: r})
	})
	return out
}

func bestOf(vals ...uint8) uint8 {
	best := DistUndefined
	for _, v := range vals {
		if v < best {
			best = v
		}
	}
	return best
}

// ParentID returns the currently elected parent, or ParentUndefined.
func (t *STC) ParentID() link.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.ParentID
}

// Distance returns the currently published distance_to_root.
func (t *STC) Distance() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.DistanceToRoot
}

// IsUndefined reports whether this node currently has no parent.
func (t *STC) IsUndefined() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateUndefined
}

// IsLeaf reports whether this node is currently a leaf.
func (t *STC) IsLeaf() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateLeaf
}

// Send delegates an application payload to the unicast layer.
func (t *STC) Send(payload []byte) error {
	return t.rup.Send(payload)
}

// SetEnergyState updates this node's energy class, taking effect at the
// next recompute (spec §6, eamlst_set_energy_state).
func (t *STC) SetEnergyState(c EnergyClass) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.energyState = c
}

// PrintState renders a short human-readable summary, analogous to the
// source's print_state diagnostic.
func (t *STC) PrintState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("node=%d state=%s parent=%d dist=%d children=%d energy=%d",
		t.id, t.state, t.record.ParentID, t.record.DistanceToRoot, t.record.ChildrenCount, t.record.EnergyState)
}

// Close tears down the underlying gossip instance.
func (t *STC) Close() {
	t.ng.Close()
}
