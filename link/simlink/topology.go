package simlink

import (
	"fmt"

	"github.com/carlisia/mlst/link"
)

// ErrInsufficientNodes mirrors the teacher's ErrInsufficientAgents: a
// topology was asked to connect too few nodes to make sense.
var ErrInsufficientNodes = fmt.Errorf("insufficient nodes for topology")

// Chain connects ids in a line: ids[0] — ids[1] — ids[2] — ...,  mirroring
// spec §8 scenario 1 (root, then a linear run of relay nodes).
func Chain(n *Network, ids []link.NodeID) error {
	if len(ids) < 2 {
		return fmt.Errorf("%w for chain topology: got %d, need at least 2", ErrInsufficientNodes, len(ids))
	}
	for i := 0; i < len(ids)-1; i++ {
		n.Connect(ids[i], ids[i+1])
	}
	return nil
}

// Star connects hub to every id in spokes, and nothing else to anything
// else; the spokes cannot hear each other.
func Star(n *Network, hub link.NodeID, spokes []link.NodeID) error {
	if len(spokes) < 1 {
		return fmt.Errorf("%w for star topology: got 0 spokes", ErrInsufficientNodes)
	}
	for _, s := range spokes {
		n.Connect(hub, s)
	}
	return nil
}

// Ring connects each id to its immediate neighbors in a circle.
func Ring(n *Network, ids []link.NodeID) error {
	count := len(ids)
	if count < 3 {
		return fmt.Errorf("%w for ring topology: got %d, need at least 3", ErrInsufficientNodes, count)
	}
	for i, id := range ids {
		next := ids[(i+1)%count]
		n.Connect(id, next)
	}
	return nil
}

// FullyConnected connects every pair in ids.
func FullyConnected(n *Network, ids []link.NodeID) error {
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			n.Connect(a, b)
		}
	}
	return nil
}
