// Package virtionet defines the virtio-net per-packet header that prefixes
// every frame exchanged over a port's descriptor rings, grounded on the
// kernel's virtio_net_hdr as reproduced in
// other_examples/lab47-lnf__vhdr.go and
// other_examples/noisysockets-network__virtio_net_header_linux.go.
package virtionet

import (
	"encoding/binary"
	"io"
)

// GSO types, matching other_examples/lab47-lnf__virtio_net.go.
const (
	GSONone  uint8 = 0
	GSOTCPv4 uint8 = 1
	GSOUDP   uint8 = 3
	GSOTCPv6 uint8 = 4
	GSOECN   uint8 = 0x80
)

// Flags, as carried in Hdr.Flags.
const (
	FlagNeedsCsum uint8 = 1
	FlagDataValid uint8 = 2
)

// HdrLen is the on-the-wire size of Hdr: flags(1) + gso_type(1) +
// hdr_len(2) + gso_size(2) + csum_start(2) + csum_offset(2) +
// num_buffers(2) = 12 bytes, the merged-rx-buffers shape of
// virtio_net_hdr_mrg_rxbuf.
const HdrLen = 12

// Hdr is the virtio-net header copied verbatim from a source descriptor
// chain to a destination descriptor chain by the Transfer Engine. The
// switch always overwrites NumBuffers, and shifts CsumStart by the tag
// length when a VLAN tag is inserted or removed on a frame flagged
// NeedsCsum (vlan.Mangle.RewriteHdr); every other field passes through
// unchanged under the assumption that guests negotiated guest offload
// features (spec §6).
type Hdr struct {
	Flags      uint8
	GSOType    uint8
	HdrLen     uint16
	GSOSize    uint16
	CsumStart  uint16
	CsumOffset uint16
	NumBuffers uint16
}

// NeedsCsum reports whether the partial-checksum flag is set.
func (h Hdr) NeedsCsum() bool {
	return h.Flags&FlagNeedsCsum != 0
}

// Decode parses a Hdr from the first HdrLen bytes of b.
func Decode(b []byte) (Hdr, error) {
	var h Hdr
	if len(b) < HdrLen {
		return h, io.ErrShortBuffer
	}
	h.Flags = b[0]
	h.GSOType = b[1]
	h.HdrLen = binary.LittleEndian.Uint16(b[2:4])
	h.GSOSize = binary.LittleEndian.Uint16(b[4:6])
	h.CsumStart = binary.LittleEndian.Uint16(b[6:8])
	h.CsumOffset = binary.LittleEndian.Uint16(b[8:10])
	h.NumBuffers = binary.LittleEndian.Uint16(b[10:12])
	return h, nil
}

// SetNumBuffers patches just the NumBuffers field of an already-encoded
// header in place. The Transfer Engine uses this to fill in the merged
// receive buffer count only once the whole frame has been copied, without
// re-encoding the rest of the header.
func SetNumBuffers(b []byte, n uint16) {
	binary.LittleEndian.PutUint16(b[10:12], n)
}

// Encode writes h into the first HdrLen bytes of b.
func (h Hdr) Encode(b []byte) error {
	if len(b) < HdrLen {
		return io.ErrShortBuffer
	}
	b[0] = h.Flags
	b[1] = h.GSOType
	binary.LittleEndian.PutUint16(b[2:4], h.HdrLen)
	binary.LittleEndian.PutUint16(b[4:6], h.GSOSize)
	binary.LittleEndian.PutUint16(b[6:8], h.CsumStart)
	binary.LittleEndian.PutUint16(b[8:10], h.CsumOffset)
	binary.LittleEndian.PutUint16(b[10:12], h.NumBuffers)
	return nil
}
