package simlink

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	"github.com/carlisia/mlst/link"
)

// Radio is a simulated link.Radio backed by a shared Network. It is the
// "radio" half of §1's "low-level radio link" external collaborator.
type Radio struct {
	id     link.NodeID
	net    *Network
	disp   *link.Dispatcher
	online atomic.Bool
}

var _ link.Radio = (*Radio)(nil)

// ID returns the radio's node identifier.
func (r *Radio) ID() link.NodeID { return r.id }

// Listen registers handler for port.
func (r *Radio) Listen(port uint16, handler link.Handler) error {
	return r.disp.Register(port, handler)
}

// StopListening removes whatever handler is registered on port.
func (r *Radio) StopListening(port uint16) {
	r.disp.Unregister(port)
}

// Open brings the simulated radio online.
func (r *Radio) Open() error {
	r.online.Store(true)
	return nil
}

// Close takes the simulated radio offline.
func (r *Radio) Close() error {
	r.online.Store(false)
	return nil
}

// Online reports whether the radio is currently open.
func (r *Radio) Online() bool {
	return r.online.Load()
}

// Broadcast sends payload to every in-range neighbor on port. Per §4.A, a
// broadcast from an offline radio briefly opens the link, sends, and
// closes it again.
func (r *Radio) Broadcast(ctx context.Context, port uint16, payload []byte) error {
	wasOffline := !r.Online()
	if wasOffline {
		_ = r.Open()
	}
	r.net.deliverBroadcast(ctx, r.id, port, payload)
	if wasOffline {
		_ = r.Close()
	}
	return nil
}

// SendUnicast sends payload to dst on port. Delivery failures (dst out of
// range, offline, or the datagram lost) are never returned as hard failures
// to RUP: per §4.A, unicast failures surface as a timeout instead, because a
// real radio gives no synchronous delivery confirmation. Sending from a
// closed radio returns link.ErrOffline.
func (r *Radio) SendUnicast(ctx context.Context, dst link.NodeID, port uint16, payload []byte) error {
	if !r.Online() {
		return fmt.Errorf("%w: node %d", link.ErrOffline, r.id)
	}
	r.net.deliverUnicast(r.id, dst, port, payload)
	return nil
}
