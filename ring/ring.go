// Package ring models a split-virtqueue-shaped descriptor ring: the
// transport spec.md treats as "driver-provided" and external (§6). The
// real shared-memory backing, capability plumbing and client IRQ delivery
// stay out of scope; this package gives the switch core something
// concrete to pull frames from and push frames into, both for the demo
// CLI and for tests.
package ring

import "errors"

// ErrBadDescriptor is returned by NextAvail when a descriptor chain fails
// to parse, corresponding to spec.md's SourceBadDescriptor/
// DestBadDescriptor error kinds.
var ErrBadDescriptor = errors.New("ring: malformed descriptor chain")

// Head is the opaque handle identifying a descriptor chain, returned to
// the client on Finish so it can reclaim the chain.
type Head uint32

// Chain is one descriptor chain pulled from a ring: an ordered list of
// buffers. For a transmit chain, each buffer holds frame bytes already
// written by the guest. For a receive chain, each buffer is an empty
// scratch area of fixed capacity that the switch writes into.
//
// The switch takes its own cursor (buffer index + offset) into a Chain
// and advances it independently per Transfer, matching the "private
// source cursor, copied from the Request" requirement of spec.md §3 —
// multiple Transfers (one per destination of a broadcast Request) read
// the same Chain without disturbing each other.
type Chain struct {
	head    Head
	buffers [][]byte
	invalid bool
}

// Head returns the chain's descriptor handle.
func (c *Chain) Head() Head { return c.head }

// NumBuffers reports how many descriptor buffers make up the chain.
func (c *Chain) NumBuffers() int { return len(c.buffers) }

// MergedEntry pairs a destination chain's head with the number of bytes
// written into it, for the multi-chain "merged receive buffers" finish
// call.
type MergedEntry struct {
	Head   Head
	Length uint32
}

// Notifier delivers the client-visible "kick" IRQ for one port. The
// capability/IRQ plumbing that implements it for a real client is out of
// scope per spec.md §1.
type Notifier interface {
	Notify()
}

// DescriptorRing is the operations the Transfer Engine, Request View and
// Port need from one direction (tx or rx) of a port's virtqueue pair.
//
// Only the core writes to a ring's "used" side and to a destination
// header's NumBuffers field (spec.md §5); everything else is read from
// memory the core must treat as untrusted (spec.md §9).
type DescriptorRing interface {
	// Ready reports whether the ring has been initialized by its client.
	Ready() bool

	// DescAvail reports whether at least one chain is available to pull.
	DescAvail() bool

	// NextAvail pulls the next available chain. ok is false if none is
	// available. err is non-nil if the descriptor chain itself is
	// malformed (spec.md's SourceBadDescriptor/DestBadDescriptor); in
	// that case the caller must flag the owning device via FlagError and
	// must not call Rewind to "undo" the failed pull.
	NextAvail() (chain *Chain, ok bool, err error)

	// Rewind pushes the last n chains pulled via NextAvail back onto the
	// front of the available queue, restoring the ring's available
	// cursor to its pre-pull state. Used when a transfer must be
	// Dropped after partially consuming destination chains.
	Rewind(n int)

	// Finish completes delivery of a single chain, publishing total
	// bytes written to the used ring and notifying the client (subject
	// to the batching in DisableNotify/EnableNotify).
	Finish(head Head, bytesWritten uint32)

	// FinishMerged completes delivery of a frame that spans multiple
	// destination chains (virtio-net's merged receive buffers).
	FinishMerged(entries []MergedEntry)

	// FlagError marks the owning device as errored. A DestBadDescriptor
	// on the receive side means this ring must not be touched again
	// until the client resets the device.
	FlagError()

	// Errored reports whether FlagError was called and not yet cleared.
	Errored() bool

	// DisableNotify suppresses Notify calls until EnableNotify is
	// called, batching the client-visible kick across one drain pass
	// (spec.md §5, "Ordering guarantees").
	DisableNotify()

	// EnableNotify re-enables notification delivery. If a Finish/
	// FinishMerged happened while notifications were disabled, exactly
	// one Notify fires now.
	EnableNotify()
}
