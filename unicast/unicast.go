// Package unicast implements the Reliable Unicast to Parent (RUP) layer
// from spec §4.C: per-hop acknowledged delivery toward the current parent,
// bounded retries with quadratic backoff, receiver-side deduplication, and
// onward forwarding, cooperating with the leaf sleep policy.
package unicast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/carlisia/mlst/internal/clock"
	"github.com/carlisia/mlst/internal/config"
	"github.com/carlisia/mlst/internal/prng"
	"github.com/carlisia/mlst/link"
)

// ErrNoParent names the "no parent set, payload queued" condition. Send
// does not return it: per §4.C step 1, a payload sent while no parent is
// installed is queued, held until a parent is set, and Send returns nil.
var ErrNoParent = errors.New("unicast: no parent set, payload queued")

// FailureCallback is invoked once per timed-out send attempt, with the
// parent that failed to ACK and the attempt count so far (§4.C contract).
type FailureCallback func(parent link.NodeID, tries int)

// RootReceiveCallback delivers a payload that has traveled all the way to
// the root (§4.C, registered only at the root).
type RootReceiveCallback func(payload []byte)

// RUP is exactly one instance per node (§4.C, "Single-instance
// discipline"), so the sleep policy it drives is unambiguous.
type RUP struct {
	cfg   config.Tunables
	radio link.Radio
	log   *zap.Logger
	rnd   *prng.Source

	isRoot bool
	rootCB RootReceiveCallback
	failCB FailureCallback

	mu           sync.Mutex
	parent       link.NodeID
	sleepAllowed bool
	queue        *sendQueue
	history      *history
	timer        clock.RearmTimer

	seq atomic.Uint32
}

// Option configures a RUP at construction time.
type Option func(*RUP)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *RUP) { r.log = l }
}

// AsRoot marks this instance as the root's RUP: it never sends (a root has
// no parent to forward to) and delivers received payloads to cb instead of
// re-enqueuing them.
func AsRoot(cb RootReceiveCallback) Option {
	return func(r *RUP) {
		r.isRoot = true
		r.rootCB = cb
	}
}

// New creates a RUP bound to radio, registering handlers on the data and
// ACK ports from cfg.
func New(radio link.Radio, cfg config.Tunables, rnd *prng.Source, opts ...Option) (*RUP, error) {
	r := &RUP{
		cfg:     cfg,
		radio:   radio,
		log:     zap.NewNop(),
		rnd:     rnd,
		queue:   newSendQueue(),
		history: newHistory(cfg.MaxHistorySize),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := radio.Listen(cfg.MessagingPort, r.onData); err != nil {
		return nil, fmt.Errorf("unicast: listen data port: %w", err)
	}
	if err := radio.Listen(cfg.AckPort, r.onAck); err != nil {
		return nil, fmt.Errorf("unicast: listen ack port: %w", err)
	}
	return r, nil
}

// SetFailureCallback registers the per-hop-send-failure observer (§4.C).
func (r *RUP) SetFailureCallback(cb FailureCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCB = cb
}

// SetParent installs the current parent id. A zero id means undefined; a
// send already in flight toward a stale parent is allowed to time out
// naturally rather than being canceled (§7, "Parent loss mid-flight").
func (r *RUP) SetParent(id link.NodeID) {
	r.mu.Lock()
	old := r.parent
	r.parent = id
	shouldKick := old == 0 && id != 0 && r.queue.len() > 0 && !r.timer.Armed()
	r.mu.Unlock()

	if shouldKick {
		r.performSend()
	}
}

// Send enqueues an application payload for delivery to the root. It always
// copies the payload and prepends nothing itself; the wire seqno prefix is
// added lazily in performSend from the entry's assigned Seq.
func (r *RUP) Send(payload []byte) error {
	r.enqueue(payload)
	return nil
}

// enqueue is shared by Send (application-originated) and onData's
// forwarding path (§4.C, "re-enqueue the payload for onward delivery").
func (r *RUP) enqueue(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	seq := byte(r.seq.Add(1) - 1) // wraps through zero at 256, per §3

	entry := &queueEntry{Seq: seq, Payload: cp}

	if !r.radio.Online() {
		_ = r.radio.Open()
	}

	wasEmpty := r.queue.push(entry)
	if wasEmpty {
		delay := jitter(r.rnd, r.cfg.NextMsgDelay, 0.5, 1.0)
		r.mu.Lock()
		r.timer.Arm(delay, r.performSend)
		r.mu.Unlock()
	}
}

// performSend transmits the current head of queue, if any, and arms the
// ACK timeout. Per §4.C step 1, nothing is transmitted while the parent is
// undefined.
func (r *RUP) performSend() {
	head, ok := r.queue.front()
	if !ok {
		return
	}

	r.mu.Lock()
	parent := r.parent
	r.mu.Unlock()
	if parent == 0 {
		return
	}

	frame := make([]byte, 1+len(head.Payload))
	frame[0] = head.Seq
	copy(frame[1:], head.Payload)

	head.Tries++

	ctx := context.Background()
	if err := r.radio.SendUnicast(ctx, parent, r.cfg.MessagingPort, frame); err != nil {
		r.log.Debug("unicast send suppressed link error", zap.Error(err))
	}

	r.mu.Lock()
	r.timer.Arm(r.cfg.AckTimeout, r.onTimeout)
	r.mu.Unlock()
}

// onTimeout is the §4.C "On timeout" handler.
func (r *RUP) onTimeout() {
	head, ok := r.queue.front()
	if !ok {
		return
	}

	r.mu.Lock()
	parent := r.parent
	cb := r.failCB
	r.mu.Unlock()

	if cb != nil {
		cb(parent, head.Tries)
	}

	if head.Tries > r.cfg.MaxTries {
		r.queue.popFront()
	}

	if r.queue.len() == 0 {
		r.mu.Lock()
		if r.sleepAllowed {
			_ = r.radio.Close()
		}
		r.mu.Unlock()
		return
	}

	backoff := quadraticBackoff(r.rnd, r.cfg.DelayOnFail, head.Tries)
	r.mu.Lock()
	r.timer.Arm(backoff, r.performSend)
	r.mu.Unlock()
}

// onAck is the §4.C "On ACK" handler. The ACK frame is a single byte 'A';
// the sender identity on the ACK port is not otherwise checked, because at
// most one send is ever in flight (§5).
func (r *RUP) onAck(_ link.NodeID, payload []byte) {
	if len(payload) != 1 || payload[0] != 'A' {
		return // malformed, treat as orphan noise
	}

	_, ok := r.queue.front()
	if !ok {
		r.log.Debug("unexpected ACK with empty send queue")
		return
	}
	r.queue.popFront()

	if r.queue.len() == 0 {
		r.mu.Lock()
		if r.sleepAllowed {
			_ = r.radio.Close()
		}
		r.mu.Unlock()
		return
	}

	delay := jitter(r.rnd, r.cfg.NextMsgDelay, 0.5, 1.0)
	r.mu.Lock()
	r.timer.Arm(delay, r.performSend)
	r.mu.Unlock()
}

// onData is the §4.C reception handler on the data port.
func (r *RUP) onData(src link.NodeID, payload []byte) {
	if len(payload) < 1 {
		return
	}
	seq := payload[0]
	data := payload[1:]

	// ACKs are unconditional: they signal correct receipt, independent of
	// duplicate status, so a retry caused by a lost ACK still clears.
	ctx := context.Background()
	if err := r.radio.SendUnicast(ctx, src, r.cfg.AckPort, []byte{'A'}); err != nil {
		r.log.Debug("unicast ack send suppressed link error", zap.Error(err))
	}

	if r.isRoot {
		// §9 open question 1: the root checks history but never records
		// into it, so every subsequent duplicate also passes the check and
		// is re-delivered. This is preserved deliberately, not "fixed".
		if !r.history.seen(src, seq) && r.rootCB != nil {
			r.rootCB(data)
		}
		return
	}

	if r.history.seen(src, seq) {
		return // duplicate, drop payload but ACK already sent
	}
	r.history.record(src, seq)
	r.enqueue(data)
}

// AllowSleep permits the radio to close once the send queue drains, and
// closes it immediately if it is already empty (§4.C).
func (r *RUP) AllowSleep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleepAllowed = true
	if r.queue.len() == 0 {
		_ = r.radio.Close()
	}
}

// DisallowSleep forbids the radio from closing and reopens it immediately
// if it was offline (§4.C).
func (r *RUP) DisallowSleep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleepAllowed = false
	if !r.radio.Online() {
		_ = r.radio.Open()
	}
}

// QueueDepth reports the current send queue length, mostly for tests and
// diagnostics.
func (r *RUP) QueueDepth() int {
	return r.queue.len()
}

// HistorySize reports the number of distinct sources tracked in the dedup
// history, mostly for tests and diagnostics.
func (r *RUP) HistorySize() int {
	return r.history.size()
}

func jitter(rnd *prng.Source, base time.Duration, lo, hi float64) time.Duration {
	factor := rnd.UniformIn(lo, hi)
	return time.Duration(float64(base) * factor)
}

func quadraticBackoff(rnd *prng.Source, base time.Duration, tries int) time.Duration {
	factor := rnd.Float64() * float64(tries*tries)
	return time.Duration(float64(base) * factor)
}
