// Package simlink provides an in-process simulated radio keyed by a
// connectivity matrix, used by the bundled node simulator and by the
// convergence tests in §8. It plays the role the teacher's
// internal/topology builders play for emerge.Swarm, and the role
// other_examples' bfix-leatea sim-network.go plays for its mesh-routing
// simulation: a shared "ether" that only delivers a broadcast to nodes
// within reach of the sender.
package simlink

import (
	"context"
	"sync"

	"github.com/carlisia/mlst/internal/prng"
	"github.com/carlisia/mlst/link"
)

// LossFunc returns, for a given port, the probability in [0, 1] that a
// datagram on that port is dropped in transit. It lets tests model the "30% independent
// ACK loss on each hop" scenario in spec §8 without touching the protocol
// layers above.
type LossFunc func(port uint16) float64

// Network is the simulated medium shared by every Radio created from it.
// It owns the connectivity matrix (who can hear whom) and delivers
// broadcasts and unicasts synchronously from the caller's goroutine,
// matching the single-threaded cooperative model in §5: there is no
// separate "ether" goroutine to race with.
type Network struct {
	mu        sync.RWMutex
	radios    map[link.NodeID]*Radio
	reachable map[link.NodeID]map[link.NodeID]bool
	loss      LossFunc
	rnd       *prng.Source
}

// NewNetwork creates an empty simulated network. seed drives the packet
// loss decisions so that "30% ACK loss" scenarios are reproducible.
func NewNetwork(seed uint16) *Network {
	return &Network{
		radios:    make(map[link.NodeID]*Radio),
		reachable: make(map[link.NodeID]map[link.NodeID]bool),
		rnd:       prng.New(seed),
	}
}

// SetLoss installs a loss model; nil disables packet loss entirely.
func (n *Network) SetLoss(fn LossFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loss = fn
}

// NewRadio creates and registers a simulated radio for id. The radio starts
// online, as real radios do once a node process starts.
func (n *Network) NewRadio(id link.NodeID) *Radio {
	r := &Radio{
		id:   id,
		net:  n,
		disp: link.NewDispatcher(),
	}
	r.online.Store(true)
	n.mu.Lock()
	n.radios[id] = r
	if n.reachable[id] == nil {
		n.reachable[id] = make(map[link.NodeID]bool)
	}
	n.mu.Unlock()
	return r
}

// Connect marks a and b as able to hear each other (symmetric radio
// range). It is idempotent.
func (n *Network) Connect(a, b link.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.link(a, b)
	n.link(b, a)
}

// Disconnect breaks a symmetric link, simulating a node moving out of
// range or dying (used by the "parent death" scenario in §8).
func (n *Network) Disconnect(a, b link.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.reachable[a], b)
	delete(n.reachable[b], a)
}

func (n *Network) link(a, b link.NodeID) {
	if n.reachable[a] == nil {
		n.reachable[a] = make(map[link.NodeID]bool)
	}
	n.reachable[a][b] = true
}

func (n *Network) connected(a, b link.NodeID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.reachable[a][b]
}

func (n *Network) dropped(port uint16) bool {
	n.mu.RLock()
	fn := n.loss
	n.mu.RUnlock()
	if fn == nil {
		return false
	}
	return n.rnd.Bool(fn(port))
}

func (n *Network) radio(id link.NodeID) *Radio {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.radios[id]
}

// deliverBroadcast hands payload to every online, connected neighbor of
// src that is listening on port.
func (n *Network) deliverBroadcast(_ context.Context, src link.NodeID, port uint16, payload []byte) {
	n.mu.RLock()
	neighbors := make([]link.NodeID, 0, len(n.reachable[src]))
	for id := range n.reachable[src] {
		neighbors = append(neighbors, id)
	}
	n.mu.RUnlock()

	for _, id := range neighbors {
		r := n.radio(id)
		if r == nil || !r.Online() {
			continue
		}
		if n.dropped(port) {
			continue
		}
		r.disp.Dispatch(src, link.Frame{Port: port, Payload: payload})
	}
}

// deliverUnicast hands payload to dst only, if reachable, online, and the
// loss model doesn't eat it.
func (n *Network) deliverUnicast(src, dst link.NodeID, port uint16, payload []byte) bool {
	if !n.connected(src, dst) {
		return false
	}
	r := n.radio(dst)
	if r == nil || !r.Online() {
		return false
	}
	if n.dropped(port) {
		return false
	}
	r.disp.Dispatch(src, link.Frame{Port: port, Payload: payload})
	return true
}
