// Package memberlink implements link.Radio on top of HashiCorp's
// memberlist, the real gossip-membership transport the teacher wires in
// attractor/gossip.go. Where the teacher stops short of actually routing
// bytes over memberlist ("In real implementation, would use memberlist
// delegate"), this package finishes the job: every outbound frame is
// tagged with the port it targets and carried as a memberlist user
// message, and NotifyMsg demultiplexes inbound bytes back to the right
// link.Dispatcher port.
//
// §6 specifies that node identifiers ride in the link address as two
// big-endian bytes; here that identifier is published as memberlist node
// metadata so peers can resolve a NodeID to a live *memberlist.Node without
// a separate naming service.
package memberlink

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hashicorp/memberlist"
	"golang.org/x/time/rate"

	"github.com/carlisia/mlst/link"
)

// Radio adapts a *memberlist.Memberlist into a link.Radio.
type Radio struct {
	id   link.NodeID
	list *memberlist.Memberlist
	disp *link.Dispatcher

	// limiter caps the real radio's transmit rate, modeling the duty-cycle
	// ceiling of physical sensor hardware; nil means unlimited (the
	// default, and always the case for link/simlink).
	limiter *rate.Limiter

	mu     sync.RWMutex
	online bool
}

// WithTransmitLimit caps this radio to burst transmissions per second
// (averaged, with a one-message burst allowance), modeling a node's
// hardware duty-cycle ceiling. Call before first Broadcast/SendUnicast.
func (r *Radio) WithTransmitLimit(perSecond float64) *Radio {
	r.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	return r
}

func (r *Radio) waitTransmit(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

var _ link.Radio = (*Radio)(nil)
var _ memberlist.Delegate = (*delegate)(nil)
var _ memberlist.EventDelegate = (*delegate)(nil)

// delegate bridges memberlist's callback interfaces to our Dispatcher.
type delegate struct {
	id     link.NodeID
	disp   *link.Dispatcher
	online func() bool
}

// NodeMeta publishes this node's 16-bit id as 2 big-endian bytes, matching
// the wire convention in §6.
func (d *delegate) NodeMeta(limit int) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(d.id))
	if len(buf) > limit {
		return buf[:limit]
	}
	return buf
}

// NotifyMsg receives a user message sent via SendBestEffort/SendReliable.
// memberlist's Delegate interface carries no sender identity on its own, so
// every frame is tagged with a 2-byte big-endian sender id followed by a
// 2-byte big-endian port, letting one memberlist instance carry both NG
// gossip (port 154) and RUP data/ACK (181/182) traffic while still
// attributing each reception to the right source node, per §6's "node
// identifiers are carried in the underlying link address". Frames arriving
// while the radio is closed are dropped.
func (d *delegate) NotifyMsg(buf []byte) {
	if len(buf) < 4 {
		return // orphan/malformed reception, §7
	}
	if d.online != nil && !d.online() {
		return
	}
	src := link.NodeID(binary.BigEndian.Uint16(buf[:2]))
	port := binary.BigEndian.Uint16(buf[2:4])
	d.disp.Dispatch(src, link.Frame{Port: port, Payload: buf[4:]})
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *delegate) LocalState(join bool) []byte                { return nil }
func (d *delegate) MergeRemoteState(buf []byte, join bool)      {}

func (d *delegate) NotifyJoin(*memberlist.Node)   {}
func (d *delegate) NotifyLeave(*memberlist.Node)  {}
func (d *delegate) NotifyUpdate(*memberlist.Node) {}

// New creates a Radio bound to id, listening on bindAddr:bindPort for
// memberlist's own SWIM traffic (distinct from the MLST data/ACK/gossip
// ports it carries as payload).
func New(id link.NodeID, bindAddr string, bindPort int) (*Radio, error) {
	disp := link.NewDispatcher()
	del := &delegate{id: id, disp: disp}

	cfg := memberlist.DefaultLocalConfig()
	cfg.Name = fmt.Sprintf("mlst-%d", id)
	cfg.BindAddr = bindAddr
	cfg.BindPort = bindPort
	cfg.AdvertisePort = bindPort
	cfg.Delegate = del
	cfg.Events = del

	list, err := memberlist.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("memberlink: create memberlist: %w", err)
	}

	r := &Radio{id: id, list: list, disp: disp, online: true}
	del.online = r.Online
	return r, nil
}

// Join seeds this radio's membership view from existing cluster peers
// (host:port strings), the multi-process analogue of radio range.
func (r *Radio) Join(peers []string) (int, error) {
	n, err := r.list.Join(peers)
	if err != nil {
		return n, fmt.Errorf("memberlink: join: %w", err)
	}
	return n, nil
}

// ID returns this radio's node identifier.
func (r *Radio) ID() link.NodeID { return r.id }

// Listen registers handler for port.
func (r *Radio) Listen(port uint16, handler link.Handler) error {
	return r.disp.Register(port, handler)
}

// StopListening removes whatever handler is registered on port.
func (r *Radio) StopListening(port uint16) {
	r.disp.Unregister(port)
}

// Open marks the radio online again. memberlist has no explicit offline
// mode, so Open/Close here is a soft gate tracked locally and enforced in
// Broadcast/SendUnicast and on reception in NotifyMsg.
func (r *Radio) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = true
	return nil
}

// Close marks the radio offline without leaving the memberlist cluster,
// so a sleeping leaf (§4.B) still resumes instantly on the next Open.
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = false
	return nil
}

// Online reports the local open/closed gate.
func (r *Radio) Online() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online
}

// frame prepends src's 2-byte id and then the 2-byte port to payload, the
// wire shape NotifyMsg decodes on the receiving end.
func frame(src link.NodeID, port uint16, payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(buf[:2], uint16(src))
	binary.BigEndian.PutUint16(buf[2:4], port)
	copy(buf[4:], payload)
	return buf
}

// Broadcast sends payload to every known member on port, best-effort
// (§4.A: gossip is "best-effort by design").
func (r *Radio) Broadcast(ctx context.Context, port uint16, payload []byte) error {
	if err := r.waitTransmit(ctx); err != nil {
		return fmt.Errorf("memberlink: broadcast rate wait: %w", err)
	}

	wasOffline := !r.Online()
	if wasOffline {
		_ = r.Open()
	}

	msg := frame(r.id, port, payload)
	self := r.list.LocalNode()
	for _, m := range r.list.Members() {
		if m.Name == self.Name {
			continue
		}
		// Link errors are silently ignored: §4.A's failure semantics.
		_ = r.list.SendBestEffort(m, msg)
	}

	if wasOffline {
		_ = r.Close()
	}
	return nil
}

// SendUnicast resolves dst by its published NodeMeta id and sends payload
// on port, best-effort; RUP supplies its own ACK/retry on top.
func (r *Radio) SendUnicast(ctx context.Context, dst link.NodeID, port uint16, payload []byte) error {
	if !r.Online() {
		return fmt.Errorf("%w: node %d", link.ErrOffline, r.id)
	}
	if err := r.waitTransmit(ctx); err != nil {
		return fmt.Errorf("memberlink: unicast rate wait: %w", err)
	}
	target, err := r.resolve(dst)
	if err != nil {
		return err
	}
	if err := r.list.SendBestEffort(target, frame(r.id, port, payload)); err != nil {
		return fmt.Errorf("memberlink: send to %d: %w", dst, err)
	}
	return nil
}

func (r *Radio) resolve(id link.NodeID) (*memberlist.Node, error) {
	want := make([]byte, 2)
	binary.BigEndian.PutUint16(want, uint16(id))
	for _, m := range r.list.Members() {
		if len(m.Meta) >= 2 && m.Meta[0] == want[0] && m.Meta[1] == want[1] {
			return m, nil
		}
	}
	return nil, fmt.Errorf("memberlink: no member advertises node id %d", id)
}

// Shutdown leaves the memberlist cluster and releases local resources.
func (r *Radio) Shutdown() error {
	if err := r.list.Leave(0); err != nil {
		return fmt.Errorf("memberlink: leave: %w", err)
	}
	if err := r.list.Shutdown(); err != nil {
		return fmt.Errorf("memberlink: shutdown: %w", err)
	}
	return nil
}
