package vlan

import (
	"vnetswitch/mac"
	"vnetswitch/ring"
	"vnetswitch/virtionet"
)

// kind enumerates the three tag transforms a Mangle can perform.
type kind int

const (
	kindNone kind = iota
	kindInsert
	kindRemove
)

// TagLen is the width in bytes of one 802.1Q tag (TPID + TCI).
const TagLen = 4

// Mangle describes the VLAN tag transform applied while the Transfer
// Engine copies a frame's payload from a source port to a destination
// port: None (verbatim), Insert(vid) (splice a tag in after the two MAC
// addresses), or Remove (drop the tag present at that same offset).
//
// A Mangle owns no buffers. It is a stateless policy value plus a small
// counter tracking bytes copied so far, so it can locate the splice point
// across arbitrary source/destination buffer boundaries (spec.md §3).
type Mangle struct {
	which kind
	tci   uint16

	// macRemaining counts down the 12 bytes of dst/src MAC still to be
	// copied verbatim before the splice point is reached.
	macRemaining int
	// tagRemaining is positive while inserting (bytes of synthetic tag
	// left to emit) and negative while removing (bytes of the existing
	// tag left to skip).
	tagRemaining int
}

// None is the no-op mangle: bytes pass through unchanged.
func None() Mangle { return Mangle{which: kindNone} }

// Insert splices a newly constructed 802.1Q tag carrying vid right after
// the destination/source MAC addresses. The caller must ensure the frame
// is not already tagged.
func Insert(vid ID) Mangle {
	return Mangle{which: kindInsert, tci: uint16(vid), macRemaining: 2 * mac.Length, tagRemaining: TagLen}
}

// Remove strips the 4-byte 802.1Q tag assumed present at the same offset.
func Remove() Mangle {
	return Mangle{which: kindRemove, macRemaining: 2 * mac.Length, tagRemaining: -TagLen}
}

// ForPorts selects the mangle to apply when forwarding from a source
// port in srcMode to a destination port in dstMode, per spec.md §4.2's
// egress tag policy table.
func ForPorts(dstMode, srcMode Mode) Mangle {
	if dstMode.IsTrunk() {
		// Add a tag only if the frame doesn't have one already (coming
		// from another trunk) and does belong to a VLAN (coming from an
		// access port). Traffic from native ports reaching a trunk only
		// happens for the monitor case and stays untagged.
		if !srcMode.IsTrunk() && !srcMode.IsNative() {
			return Insert(srcMode.AccessID())
		}
		return None()
	}
	if srcMode.IsTrunk() {
		return Remove()
	}
	return None()
}

// CopyPkt copies bytes from src to dst, applying the mangle's transform,
// and returns the number of bytes written into dst on this call (the
// quantity the Transfer Engine accumulates as bytes-emitted-so-far). For
// a verbatim or MAC-prefix copy this equals the bytes consumed from src;
// for an inserted tag it is the synthetic bytes written with no src
// consumed, and for a removed tag it is zero while src bytes are
// skipped. It is meant to be called repeatedly until src is exhausted;
// each call may make partial progress across a dst/src buffer boundary.
func (m *Mangle) CopyPkt(dst, src *ring.Cursor) uint32 {
	switch {
	case m.which == kindNone:
		return uint32(ring.CopyBytes(dst, src, -1))

	case m.macRemaining > 0:
		n := ring.CopyBytes(dst, src, m.macRemaining)
		m.macRemaining -= n
		return uint32(n)

	case m.tagRemaining > 0:
		tag := [TagLen]byte{TPIDHigh, TPIDLow, byte(m.tci >> 8), byte(m.tci & 0xff)}
		avail := dst.Left()
		n := m.tagRemaining
		if avail < n {
			n = avail
		}
		if n <= 0 {
			return 0
		}
		copy(dst.Bytes()[:n], tag[TagLen-m.tagRemaining:TagLen-m.tagRemaining+n])
		dst.Skip(n)
		m.tagRemaining -= n
		return uint32(n)

	case m.tagRemaining < 0:
		skipped := src.Skip(-m.tagRemaining)
		m.tagRemaining += skipped
		return 0

	default:
		return uint32(ring.CopyBytes(dst, src, -1))
	}
}

// RewriteHdr adjusts the destination virtio-net header for the tag
// change, called exactly once per frame. Presently this only corrects
// CsumStart when a tag was spliced in or out ahead of the checksum
// field and the frame is marked partially checksummed.
func (m *Mangle) RewriteHdr(hdr *virtionet.Hdr) {
	if m.which == kindNone || !hdr.NeedsCsum() {
		return
	}
	if m.which == kindRemove {
		hdr.CsumStart -= TagLen
	} else {
		hdr.CsumStart += TagLen
	}
}
