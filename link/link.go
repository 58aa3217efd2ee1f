// Package link defines the radio abstraction that the gossip, tree, and
// unicast layers treat as an external collaborator (spec §1, §6): the
// low-level broadcast/unicast datagram primitive is out of scope for this
// module, but every layer above it needs a concrete interface to program
// against, plus a way to demultiplex inbound datagrams by port the way
// §9 ("Shared broadcast socket per port") describes.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NodeID is the node's opaque 16-bit link identifier. Zero is reserved
// (spec §3) as "undefined parent / no state" in the tree layer, but it is a
// perfectly ordinary link address here.
type NodeID uint16

// Frame is a single datagram as seen by a Radio: the port it arrived on or
// is destined for, and its raw payload. The sender is passed alongside it
// (see Dispatcher.Dispatch), not carried in the Frame.
type Frame struct {
	Port    uint16
	Payload []byte
}

// Handler is invoked once per inbound datagram on a registered port. It
// must return quickly: per §5, reception callbacks run to completion
// without suspending.
type Handler func(src NodeID, payload []byte)

// ErrPortInUse is returned by Listen when another instance already owns the
// port; §4.A requires that "a single port must never host two NG instances
// simultaneously."
var ErrPortInUse = errors.New("link: port already has a listener")

// ErrOffline is returned by SendUnicast calls made while the radio has
// been explicitly closed. Broadcast does not return it: it opens the radio
// momentarily instead.
var ErrOffline = errors.New("link: radio is offline")

// Radio is the external collaborator named in spec §6: broadcast and
// unicast datagram primitives, independent of whatever physical or
// simulated transport backs them.
type Radio interface {
	// ID returns this radio's own node identifier.
	ID() NodeID

	// Listen registers handler for all datagrams arriving on port. Only one
	// handler may be registered per port at a time.
	Listen(port uint16, handler Handler) error

	// StopListening removes whatever handler is registered on port, if any.
	StopListening(port uint16)

	// Broadcast transmits payload to every node in range on port. If the
	// radio is offline, implementations open it, send, and close it again
	// per §4.A's broadcast() contract.
	Broadcast(ctx context.Context, port uint16, payload []byte) error

	// SendUnicast transmits payload to a specific destination on port.
	SendUnicast(ctx context.Context, dst NodeID, port uint16, payload []byte) error

	// Open brings the radio online; while online it both sends and
	// receives.
	Open() error

	// Close takes the radio offline; while offline, only momentary
	// open/close-wrapped Broadcast calls succeed, and no receptions occur.
	Close() error

	// Online reports whether the radio currently has an open link.
	Online() bool
}

// Dispatcher multiplexes inbound frames across ports, independent of the
// Radio implementation backing it. Concrete Radios embed a Dispatcher so
// the "channel-to-instance map" in §7's "orphan reception" error applies
// uniformly to every transport.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[uint16]Handler
}

// NewDispatcher creates an empty port dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint16]Handler)}
}

// Register installs handler for port, failing if one is already present.
func (d *Dispatcher) Register(port uint16, handler Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[port]; exists {
		return fmt.Errorf("%w: port %d", ErrPortInUse, port)
	}
	d.handlers[port] = handler
	return nil
}

// Unregister removes whatever handler is installed on port.
func (d *Dispatcher) Unregister(port uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, port)
}

// Dispatch routes an inbound frame to its port's handler, if any. It
// reports whether a handler was found so callers can log an orphan
// reception (§7) when it was not.
func (d *Dispatcher) Dispatch(src NodeID, f Frame) bool {
	d.mu.RLock()
	h, ok := d.handlers[f.Port]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	h(src, f.Payload)
	return true
}
