// Package simnet provides a multi-node simulation harness over
// link/simlink, used to exercise the convergence scenarios in spec §8
// without any real network transport.
package simnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carlisia/mlst/internal/config"
	"github.com/carlisia/mlst/link"
	"github.com/carlisia/mlst/link/simlink"
	"github.com/carlisia/mlst/node"
)

// Harness runs a set of nodes over a shared simlink.Network.
type Harness struct {
	Network *simlink.Network
	Nodes   map[link.NodeID]*node.Node

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates an empty harness; seed drives the simulated network's
// packet-loss decisions so loss scenarios are reproducible.
func New(seed uint16) *Harness {
	return &Harness{
		Network: simlink.NewNetwork(seed),
		Nodes:   make(map[link.NodeID]*node.Node),
	}
}

// AddRoot creates and registers the tree's root, forwarding delivered
// payloads to onReceive.
func (h *Harness) AddRoot(id link.NodeID, cfg config.Tunables, onReceive func([]byte)) (*node.Node, error) {
	radio := h.Network.NewRadio(id)
	n, err := node.New(radio, id, true, cfg, node.WithRootReceiveCallback(onReceive))
	if err != nil {
		return nil, fmt.Errorf("simnet: add root %d: %w", id, err)
	}
	h.Nodes[id] = n
	return n, nil
}

// AddNode creates and registers a non-root node.
func (h *Harness) AddNode(id link.NodeID, cfg config.Tunables) (*node.Node, error) {
	radio := h.Network.NewRadio(id)
	n, err := node.New(radio, id, false, cfg)
	if err != nil {
		return nil, fmt.Errorf("simnet: add node %d: %w", id, err)
	}
	h.Nodes[id] = n
	return n, nil
}

// Connect marks two nodes as within radio range of each other.
func (h *Harness) Connect(a, b link.NodeID) { h.Network.Connect(a, b) }

// Disconnect breaks a radio-range link, simulating a node moving out of
// range or dying (spec §8 scenario 4, "parent death").
func (h *Harness) Disconnect(a, b link.NodeID) { h.Network.Disconnect(a, b) }

// ConnectChain wires ids into a linear chain (spec §8 scenario 1) via
// simlink.Chain.
func (h *Harness) ConnectChain(ids ...link.NodeID) error {
	return simlink.Chain(h.Network, ids)
}

// ConnectStar wires hub to every one of spokes, and nothing else, via
// simlink.Star.
func (h *Harness) ConnectStar(hub link.NodeID, spokes ...link.NodeID) error {
	return simlink.Star(h.Network, hub, spokes)
}

// ConnectFullMesh wires every pair in ids via simlink.FullyConnected,
// matching spec §8 scenario 2's "all in range of R and of each other".
func (h *Harness) ConnectFullMesh(ids ...link.NodeID) error {
	return simlink.FullyConnected(h.Network, ids)
}

// Run starts every registered node's control loop under an errgroup.Group,
// bound to a child of ctx so Stop can cancel all of them together and
// collect whichever errors they return.
func (h *Harness) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	g, groupCtx := errgroup.WithContext(runCtx)
	h.group = g
	for _, n := range h.Nodes {
		n := n
		g.Go(func() error { return n.Run(groupCtx) })
	}
}

// Stop cancels every running node's control loop and waits for them all to
// return, surfacing the first non-context-cancellation error reported by
// any node's Run, if any.
func (h *Harness) Stop() error {
	if h.cancel != nil {
		h.cancel()
	}
	if h.group == nil {
		return nil
	}
	if err := h.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// WaitFor polls cond until it reports true or timeout elapses, returning
// the final result of cond either way.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// FastTunables returns §6 defaults scaled down so convergence scenarios
// settle in milliseconds instead of tens of seconds.
func FastTunables() config.Tunables {
	cfg := config.Default()
	cfg.PeriodLength = 15 * time.Millisecond
	cfg.MaxNeighborAge = 300 * time.Millisecond
	cfg.MaxAgeOfParent = 150 * time.Millisecond
	cfg.AckTimeout = 8 * time.Millisecond
	cfg.NextMsgDelay = 2 * time.Millisecond
	cfg.DelayOnFail = 4 * time.Millisecond
	return cfg
}
