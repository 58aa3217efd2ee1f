// Package node wires the gossip, tree, and unicast layers together behind
// the single per-node API named in spec §6's "Local API": mlst_init,
// mlst_send, mlst_is_undefined, mlst_print_state, set_root_receive_callback,
// and eamlst_set_energy_state.
package node

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/carlisia/mlst/internal/config"
	"github.com/carlisia/mlst/internal/energy"
	"github.com/carlisia/mlst/internal/prng"
	"github.com/carlisia/mlst/link"
	"github.com/carlisia/mlst/tree"
	"github.com/carlisia/mlst/unicast"
)

// RootReceiveCallback delivers a payload that has traveled all the way to
// the root. Only meaningful on a node constructed with isRoot = true.
type RootReceiveCallback func(payload []byte)

type options struct {
	log           *zap.Logger
	rootCB        RootReceiveCallback
	initialEnergy tree.EnergyClass
	budget        *energy.Budget
}

// Option configures a Node at construction time.
type Option func(*options)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRootReceiveCallback registers the root's delivery callback
// (set_root_receive_callback). Ignored on non-root nodes.
func WithRootReceiveCallback(cb RootReceiveCallback) Option {
	return func(o *options) { o.rootCB = cb }
}

// WithInitialEnergy sets the node's starting energy class for the EA
// variants.
func WithInitialEnergy(c tree.EnergyClass) Option {
	return func(o *options) { o.initialEnergy = c }
}

// WithEnergyBudget attaches a depletable battery budget: every Send
// charges its payload's byte cost, every RUP retry charges this hop's
// retry cost, and the node's advertised energy class
// (eamlst_set_energy_state) is re-derived from the remaining fraction
// after each charge.
func WithEnergyBudget(b *energy.Budget) Option {
	return func(o *options) { o.budget = b }
}

// Node is one participant in the tree: a radio, its reliable-unicast
// layer, and its spanning-tree controller, all bound together.
type Node struct {
	id     link.NodeID
	isRoot bool
	radio  link.Radio
	rup    *unicast.RUP
	stc    *tree.STC
	budget *energy.Budget
}

// New creates and wires a Node's NG/STC/RUP stack on radio (mlst_init).
func New(radio link.Radio, id link.NodeID, isRoot bool, cfg config.Tunables, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("node: invalid tunables: %w", err)
	}

	o := &options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if isRoot && o.rootCB == nil {
		o.rootCB = func([]byte) {}
	}
	if o.budget != nil && o.initialEnergy == tree.EnergyUndefined {
		o.initialEnergy = tree.EnergyClass(energy.ClassFraction(o.budget.Fraction()))
	}

	rnd := prng.New(uint16(id))

	var rup *unicast.RUP
	var err error
	if isRoot {
		rup, err = unicast.New(radio, cfg, rnd,
			unicast.AsRoot(unicast.RootReceiveCallback(o.rootCB)),
			unicast.WithLogger(o.log))
	} else {
		rup, err = unicast.New(radio, cfg, rnd, unicast.WithLogger(o.log))
	}
	if err != nil {
		return nil, fmt.Errorf("node: create unicast layer: %w", err)
	}

	stc, err := tree.New(radio, rup, id, isRoot, cfg, rnd,
		tree.WithLogger(o.log), tree.WithInitialEnergy(o.initialEnergy))
	if err != nil {
		return nil, fmt.Errorf("node: create tree controller: %w", err)
	}

	n := &Node{id: id, isRoot: isRoot, radio: radio, rup: rup, stc: stc, budget: o.budget}
	if o.budget != nil {
		rup.SetFailureCallback(func(_ link.NodeID, tries int) {
			o.budget.SpendForRetry(tries)
			stc.SetEnergyState(tree.EnergyClass(energy.ClassFraction(o.budget.Fraction())))
		})
	}
	return n, nil
}

// Run drives the node's periodic control loop until ctx is canceled.
func (n *Node) Run(ctx context.Context) error {
	return n.stc.Run(ctx)
}

// ID returns this node's link identifier.
func (n *Node) ID() link.NodeID { return n.id }

// IsRoot reports whether this node was constructed as the root.
func (n *Node) IsRoot() bool { return n.isRoot }

// Send enqueues an application payload for reliable delivery to the root
// (mlst_send). If an energy budget is attached, the payload's transmit
// cost is charged first and the node's energy class is re-derived from
// the remaining fraction; any further retry cost is charged as it happens,
// via the RUP failure callback wired in New.
func (n *Node) Send(payload []byte) error {
	if n.budget != nil {
		n.budget.SpendForSend(len(payload))
		n.stc.SetEnergyState(tree.EnergyClass(energy.ClassFraction(n.budget.Fraction())))
	}
	return n.stc.Send(payload)
}

// IsUndefined reports whether this node currently has no parent
// (mlst_is_undefined).
func (n *Node) IsUndefined() bool {
	return n.stc.IsUndefined()
}

// IsLeaf reports whether this node is currently a leaf.
func (n *Node) IsLeaf() bool {
	return n.stc.IsLeaf()
}

// ParentID returns this node's currently elected parent, or
// tree.ParentUndefined.
func (n *Node) ParentID() link.NodeID {
	return n.stc.ParentID()
}

// Distance returns this node's currently published distance to root.
func (n *Node) Distance() uint8 {
	return n.stc.Distance()
}

// PrintState renders a short diagnostic summary (mlst_print_state).
func (n *Node) PrintState() string {
	return n.stc.PrintState()
}

// SetEnergyState updates this node's energy class for the EA variants
// (eamlst_set_energy_state).
func (n *Node) SetEnergyState(c tree.EnergyClass) {
	n.stc.SetEnergyState(c)
}

// Close releases the node's gossip listener; the radio itself remains the
// caller's to close.
func (n *Node) Close() {
	n.stc.Close()
}
