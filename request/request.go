// Package request parses one descriptor chain pulled from a port's
// transmit ring into a virtio-net header plus a cursor onto the Ethernet
// frame that follows it.
package request

import (
	"vnetswitch/mac"
	"vnetswitch/ring"
	"vnetswitch/vlan"
	"vnetswitch/virtionet"
)

// Request is a parsed view over one transmit-ring descriptor chain. It is
// reference counted: the switch holds one reference while making its
// forwarding decision, and each Transfer constructed from the request
// (one per destination, since a broadcast request fans out to many)
// holds one more. The underlying descriptor is only reclaimed -- Finish
// called on the source ring -- once every reference has been released,
// which is what lets a request that is still waiting in some
// destination's pending list keep its source descriptor alive until that
// wait resolves (spec.md §3, "Lifecycle").
type Request struct {
	src    ring.DescriptorRing
	head   ring.Head
	Header virtionet.Hdr
	cursor *ring.Cursor
	// SrcPort is the port this request was read from. It is stored for
	// diagnostics; the switch already has its own reference to the
	// source port from the drain loop and does not need to recover it
	// from here.
	SrcPort any

	refs int
}

// FromNextAvailable pulls and parses the next available descriptor chain
// from r. It returns (nil, nil) if no chain is available. It returns a
// non-nil error if the chain is malformed (spec.md's SourceBadDescriptor);
// the caller must flag the source device and abort the current drain
// pass. If the chain parses but the virtio-net header does not fit, the
// chain is released (Finish'd with zero bytes) and (nil, nil) is
// returned, matching "Fail... releasing the head as consumed with zero
// bytes written" (spec.md §4.3).
func FromNextAvailable(r ring.DescriptorRing, srcPort any) (*Request, error) {
	chain, ok, err := r.NextAvail()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	cur := ring.NewCursor(chain)
	hdrBuf := make([]byte, virtionet.HdrLen)
	if !readExact(cur, hdrBuf) {
		r.Finish(chain.Head(), 0)
		return nil, nil
	}
	hdr, _ := virtionet.Decode(hdrBuf)

	if cur.Done() && !cur.Advance() {
		r.Finish(chain.Head(), 0)
		return nil, nil
	}

	return &Request{
		src:     r,
		head:    chain.Head(),
		Header:  hdr,
		cursor:  cur,
		SrcPort: srcPort,
		refs:    1,
	}, nil
}

// readExact fills out with exactly len(out) bytes read from cur,
// crossing descriptor boundaries as needed. It reports false if the
// chain is exhausted first.
func readExact(cur *ring.Cursor, out []byte) bool {
	got := 0
	for got < len(out) {
		if cur.Done() && !cur.Advance() {
			return false
		}
		n := copy(out[got:], cur.Bytes())
		cur.Skip(n)
		got += n
	}
	return true
}

// Cursor returns the cursor positioned at the first byte of the Ethernet
// frame (just past the virtio-net header). The Transfer Engine clones it
// once per destination.
func (r *Request) Cursor() *ring.Cursor { return r.cursor }

// DstMac reads the frame's destination address, bounded to the current
// buffer exactly as spec.md §4.3 describes.
func (r *Request) DstMac() mac.Addr {
	b := r.cursor.Peek(2 * mac.Length)
	if len(b) < mac.Length {
		return mac.Unknown
	}
	return mac.FromBytes(b[:mac.Length])
}

// SrcMac reads the frame's source address, bounded to the current buffer.
func (r *Request) SrcMac() mac.Addr {
	b := r.cursor.Peek(2 * mac.Length)
	if len(b) < 2*mac.Length {
		return mac.Unknown
	}
	return mac.FromBytes(b[mac.Length : 2*mac.Length])
}

// HasVlan reports whether the two bytes at offset 12 are the 802.1Q TPID.
func (r *Request) HasVlan() bool {
	b := r.cursor.Peek(14)
	if len(b) < 14 {
		return false
	}
	return b[12] == vlan.TPIDHigh && b[13] == vlan.TPIDLow
}

// VlanID reads the 12-bit VID following the TPID, or vlan.Native if the
// frame is untagged or the field is out of bounds.
func (r *Request) VlanID() vlan.ID {
	if !r.HasVlan() {
		return vlan.Native
	}
	b := r.cursor.Peek(16)
	if len(b) < 16 {
		return vlan.Native
	}
	return vlan.ID(uint16(b[14])<<8|uint16(b[15])) & 0xfff
}

// Len returns the number of Ethernet-frame bytes following the
// virtio-net header, without disturbing the request's cursor. Used for
// metrics; cheap since a chain holds only a handful of buffers.
func (r *Request) Len() int {
	c := r.cursor.Clone()
	total := 0
	for {
		total += c.Left()
		if !c.Advance() {
			return total
		}
	}
}

// EtherType reads the frame's EtherType/length field, skipping over an
// 802.1Q tag if present. Returns 0 if the field is out of bounds,
// matching original_source's filter.cc EtherType dispatch.
func (r *Request) EtherType() uint16 {
	off := 12
	if r.HasVlan() {
		off = 16
	}
	b := r.cursor.Peek(off + 2)
	if len(b) < off+2 {
		return 0
	}
	return uint16(b[off])<<8 | uint16(b[off+1])
}

// Retain adds one reference, taken by the switch on behalf of a Transfer
// it is about to construct for one destination.
func (r *Request) Retain() { r.refs++ }

// Release drops one reference. Once the last reference is released the
// source descriptor is finished (zero bytes, always -- the tx direction
// only ever reclaims the descriptor, it never reports a byte count) and
// the source client is notified.
func (r *Request) Release() {
	r.refs--
	if r.refs == 0 {
		r.src.Finish(r.head, 0)
	}
}

// Drop releases the switch's own initial reference. The switch calls it
// once per request after its forwarding decision, whether or not any
// Transfer retained the request; Port.GetTxRequest calls it for a frame
// the VLAN ingress policy rejects.
func (r *Request) Drop() {
	r.Release()
}

// DropRequests drains every available head on r's ring, finishing each
// with zero bytes, without attempting to parse them. Used for a monitor
// port's transmit ring, since monitor ports are never allowed to send
// (spec.md §4.3).
func DropRequests(r ring.DescriptorRing) {
	for r.DescAvail() {
		chain, ok, err := r.NextAvail()
		if err != nil {
			r.FlagError()
			return
		}
		if !ok {
			return
		}
		r.Finish(chain.Head(), 0)
	}
}
