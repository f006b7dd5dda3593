// Package transfer implements the Transfer Engine: the state machine that
// copies one parsed Request's frame into a destination port's receive
// ring, splicing in whatever VLAN tag mangle the switch decided on,
// grounded on original_source's Virtio_net_transfer (server/switch/
// transfer.h).
package transfer

import (
	"vnetswitch/request"
	"vnetswitch/ring"
	"vnetswitch/virtionet"
	"vnetswitch/vlan"
)

// Result is the outcome of one Attempt call.
type Result int

const (
	// Pending means the destination ring had no available chain at some
	// point during the copy. Any destination chains already pulled for
	// this attempt were rewound, and the transfer's progress was reset to
	// the start of the frame -- the next Attempt call restarts the copy
	// from scratch. The caller owns the retry policy (spec.md's chosen
	// pending-transfer variant: retain the transfer and retry on every
	// later drain of the destination port, up to a deadline).
	Pending Result = iota

	// Delivered means the frame was fully copied and the destination
	// ring's used entries were published. The Transfer's reference on
	// the source Request has been released.
	Delivered

	// Exception means the destination ring produced a malformed
	// descriptor, or a chain too small to hold the virtio-net header.
	// The destination device has been flagged in error and must not be
	// touched again until its client resets it. The Transfer's reference
	// on the source Request has been released; this outcome is terminal,
	// there is no retry.
	//
	// spec.md's failure table lists "malformed destination descriptor"
	// and "destination buffer too small for the header" as two separate
	// rows; both leave the destination ring unusable for this transfer,
	// so they are merged into one terminal outcome here.
	Exception
)

// Transfer copies one Request's frame to one destination port's receive
// ring. It is constructed once per destination -- a broadcast Request
// produces one Transfer per eligible port -- and Attempt is called
// repeatedly until it returns something other than Pending.
type Transfer struct {
	req    *request.Request
	srcOrg *ring.Cursor

	dstRing  ring.DescriptorRing
	template vlan.Mangle

	srcCur  *ring.Cursor
	mangle  vlan.Mangle
	dstChain *ring.Chain
	dstCur   *ring.Cursor

	hdrSet    bool
	hdrField  []byte
	total     uint32
	numMerged uint16
	consumed  []ring.MergedEntry

	released bool
}

// New constructs a Transfer for delivering req to dstRing, applying
// mangle to the tag as it copies. It retains one reference on req for
// the Transfer's whole lifetime, released only once Attempt returns a
// terminal Result.
func New(req *request.Request, dstRing ring.DescriptorRing, mangle vlan.Mangle) *Transfer {
	req.Retain()
	return &Transfer{
		req:      req,
		srcOrg:   req.Cursor(),
		dstRing:  dstRing,
		template: mangle,
	}
}

// Attempt runs (or re-runs) the copy. Each call starts from the
// beginning of the frame using a fresh clone of the Request's source
// cursor, so a Pending outcome from a previous call never leaves partial
// state behind.
func (t *Transfer) Attempt() Result {
	if t.released {
		return Exception
	}

	t.srcCur = t.srcOrg.Clone()
	t.mangle = t.template
	t.dstChain = nil
	t.dstCur = nil
	t.hdrSet = false
	t.hdrField = nil
	t.total = 0
	t.numMerged = 0
	t.consumed = nil

	src := t.srcCur
	first := true
	for first || !src.Done() || src.Advance() {
		first = false
		if t.dstChain == nil {
			chain, ok, err := t.dstRing.NextAvail()
			if err != nil {
				t.dstRing.FlagError()
				return t.terminal(Exception)
			}
			if !ok {
				if len(t.consumed) > 0 {
					t.dstRing.Rewind(len(t.consumed))
				}
				return Pending
			}
			t.dstChain = chain
			t.dstCur = ring.NewCursor(chain)

			if !t.hdrSet {
				if !t.writeHeader() {
					t.dstRing.FlagError()
					return t.terminal(Exception)
				}
			}
			t.numMerged++
		}

		if t.dstCur.Done() && !t.dstCur.Advance() {
			t.consumed = append(t.consumed, ring.MergedEntry{Head: t.dstChain.Head(), Length: t.total})
			t.total = 0
			t.dstChain = nil
			t.dstCur = nil
			continue
		}
		t.total += t.mangle.CopyPkt(t.dstCur, src)
	}

	if t.dstChain != nil {
		t.consumed = append(t.consumed, ring.MergedEntry{Head: t.dstChain.Head(), Length: t.total})
	}
	if len(t.hdrField) == virtionet.HdrLen {
		virtionet.SetNumBuffers(t.hdrField, t.numMerged)
	}
	t.dstRing.FinishMerged(t.consumed)
	return t.terminal(Delivered)
}

// writeHeader copies the source request's virtio-net header verbatim
// into the first destination chain, applying the mangle's header
// rewrite (currently just CsumStart), and remembers where NumBuffers
// lives so it can be patched once the whole frame has been copied.
func (t *Transfer) writeHeader() bool {
	hdr := t.req.Header
	t.mangle.RewriteHdr(&hdr)

	if t.dstCur.Left() < virtionet.HdrLen {
		return false
	}
	buf := t.dstCur.Bytes()[:virtionet.HdrLen]
	if err := hdr.Encode(buf); err != nil {
		return false
	}
	t.hdrField = buf
	t.dstCur.Skip(virtionet.HdrLen)
	t.total = virtionet.HdrLen
	t.hdrSet = true
	return true
}

func (t *Transfer) terminal(r Result) Result {
	t.released = true
	t.req.Release()
	return r
}

// BytesCopied returns the total number of bytes written across every
// destination chain used by a Delivered transfer, header included. Its
// value is meaningless before Attempt has returned Delivered.
func (t *Transfer) BytesCopied() uint32 {
	var sum uint32
	for _, e := range t.consumed {
		sum += e.Length
	}
	return sum
}

// Cancel abandons the transfer without touching the destination ring
// again, releasing its reference on the source Request. Used when a
// pending transfer's retry deadline expires, or its destination port is
// torn down while the transfer is still waiting.
func (t *Transfer) Cancel() {
	if t.released {
		return
	}
	t.released = true
	t.req.Release()
}
