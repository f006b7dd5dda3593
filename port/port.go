// Package port models one virtio-net-shaped client attachment to the
// switch: a transmit ring the client fills with frames to send, a
// receive ring the switch fills with frames addressed to the client,
// a VLAN mode, and a list of transfers still waiting for room in the
// receive ring, grounded on
// original_source's Virtio_port (server/switch/port.h).
package port

import (
	"time"

	"github.com/google/uuid"

	"vnetswitch/mac"
	"vnetswitch/request"
	"vnetswitch/ring"
	"vnetswitch/transfer"
	"vnetswitch/vlan"
)

// DefaultPendingDeadline is how long a transfer blocked on a full
// receive ring is retried before being given up on, matching spec.md's
// chosen pending-transfer variant (SPEC_FULL.md §1).
const DefaultPendingDeadline = 2 * time.Second

type pendingEntry struct {
	xfer     *transfer.Transfer
	deadline time.Time
}

// Port is one attachment point to the switch. Name must be unique
// within a Switch; StaticMAC, if non-zero, is an optional fixed address
// the switch additionally enforces as unique at AddPort time (for a
// host-backed port whose address is known up front, as opposed to one
// only ever discovered by MAC learning).
type Port struct {
	Name      string
	StaticMAC mac.Addr
	Mode      vlan.Mode
	Monitor   bool

	// Token identifies this attachment across a port name being reused
	// (a reconnect after a crash, say) for log correlation; it plays no
	// part in any forwarding decision, which is keyed strictly on
	// mac.Addr.
	Token string

	Tx ring.DescriptorRing // client writes frames to send here
	Rx ring.DescriptorRing // switch writes delivered frames here

	PendingDeadline time.Duration

	// OnTxDropped, OnDelivered and OnExpired are optional hooks the
	// switch wires up to metrics.Metrics; all are nil-safe.
	OnTxDropped func()
	OnDelivered func(bytes uint32)
	OnExpired   func()

	pending []pendingEntry
}

// New constructs a regular switched port.
func New(name string, mode vlan.Mode, tx, rx ring.DescriptorRing) *Port {
	return &Port{
		Name:            name,
		Mode:            mode,
		Tx:              tx,
		Rx:              rx,
		Token:           uuid.New().String(),
		PendingDeadline: DefaultPendingDeadline,
	}
}

// NewMonitor constructs a monitor port: it never transmits (its tx ring
// is drained and discarded) and mirrors every VLAN regardless of its
// nominal mode (spec.md §4.5).
func NewMonitor(name string, tx, rx ring.DescriptorRing) *Port {
	p := New(name, vlan.NewMonitor(), tx, rx)
	p.Monitor = true
	return p
}

// TxWorkPending reports whether the client has frames queued to send.
func (p *Port) TxWorkPending() bool { return p.Tx.DescAvail() }

// PendingRetryWork reports whether this port has transfers waiting for
// receive-ring room.
func (p *Port) PendingRetryWork() bool { return len(p.pending) > 0 }

// GetTxRequest pulls the next request this port is allowed to send. A
// monitor port's transmit ring is drained without being parsed
// (monitor ports may not send, spec.md §4.3). A request whose tag does
// not satisfy this port's ingress policy (spec.md §4.2,
// vlan.Mode.AcceptIngress) is dropped and the search continues. Returns
// (nil, nil) once the ring has no more requests to offer; a non-nil
// error means the ring produced a malformed descriptor and the caller
// must flag this port's device and abort the current drain pass.
func (p *Port) GetTxRequest() (*request.Request, error) {
	if p.Monitor {
		request.DropRequests(p.Tx)
		return nil, nil
	}
	for {
		req, err := request.FromNextAvailable(p.Tx, p)
		if err != nil {
			return nil, err
		}
		if req == nil {
			return nil, nil
		}
		if !p.Mode.AcceptIngress(req.HasVlan(), req.VlanID()) {
			req.Drop()
			if p.OnTxDropped != nil {
				p.OnTxDropped()
			}
			continue
		}
		return req, nil
	}
}

// EffectiveVLAN returns the VLAN a request should be switched on, given
// the port it arrived on: the tag carried on the wire for a trunk port,
// or this port's own access/native tag otherwise (spec.md §4.2).
func (p *Port) EffectiveVLAN(req *request.Request) vlan.ID {
	if p.Mode.IsTrunk() {
		return req.VlanID()
	}
	return p.Mode.Tag()
}

// Deliver attempts to forward req to this port's receive ring,
// applying mangle to the VLAN tag as it copies. If the receive ring
// has no room, the transfer is retained and retried on every
// subsequent DrainPending call until PendingDeadline elapses.
func (p *Port) Deliver(req *request.Request, mangle vlan.Mangle, now time.Time) {
	t := transfer.New(req, p.Rx, mangle)
	switch t.Attempt() {
	case transfer.Pending:
		p.pending = append(p.pending, pendingEntry{xfer: t, deadline: now.Add(p.effectiveDeadline())})
	case transfer.Delivered:
		if p.OnDelivered != nil {
			p.OnDelivered(t.BytesCopied())
		}
	}
}

// DrainPending retries every transfer still waiting for receive-ring
// room, dropping any that have exceeded their deadline.
func (p *Port) DrainPending(now time.Time) {
	if len(p.pending) == 0 {
		return
	}
	kept := p.pending[:0]
	for _, e := range p.pending {
		if now.After(e.deadline) {
			e.xfer.Cancel()
			if p.OnExpired != nil {
				p.OnExpired()
			}
			continue
		}
		switch e.xfer.Attempt() {
		case transfer.Pending:
			kept = append(kept, e)
		case transfer.Delivered:
			if p.OnDelivered != nil {
				p.OnDelivered(e.xfer.BytesCopied())
			}
		}
	}
	p.pending = kept
}

// PendingCount reports how many transfers are currently waiting for
// receive-ring room, for a gauge metric.
func (p *Port) PendingCount() int { return len(p.pending) }

// Teardown cancels every transfer still waiting in this port's pending
// list, releasing their references on the underlying requests. Called
// when a port is removed from the switch.
func (p *Port) Teardown() {
	for _, e := range p.pending {
		e.xfer.Cancel()
	}
	p.pending = nil
}

func (p *Port) effectiveDeadline() time.Duration {
	if p.PendingDeadline <= 0 {
		return DefaultPendingDeadline
	}
	return p.PendingDeadline
}
