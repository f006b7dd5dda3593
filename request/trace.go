package request

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// DescribeFrame renders a human-readable one-line trace of the request's
// Ethernet frame for debug logging, grounded on
// original_source/server/switch/request.h's dump_request() (a src/dst
// MAC plus EtherType-name dump). It is never called on the hot
// forwarding path -- gopacket's allocation cost per decoded packet is
// unacceptable there, and the switch itself only ever needs the raw
// byte offsets request.go already reads directly -- only from an
// operator-enabled debug trace.
//
// It does not disturb the request's cursor: the frame bytes are copied
// out of the (possibly multi-buffer) chain into one contiguous slice
// first, since gopacket decodes from a single []byte.
func (r *Request) DescribeFrame() string {
	frame := r.frameBytes()
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return "malformed ethernet frame"
	}
	eth, _ := ethLayer.(*layers.Ethernet)

	desc := fmt.Sprintf("%s -> %s ethertype=%s", eth.SrcMAC, eth.DstMAC, eth.EthernetType)
	if dot1q := packet.Layer(layers.LayerTypeDot1Q); dot1q != nil {
		tag := dot1q.(*layers.Dot1Q)
		desc = fmt.Sprintf("%s vlan=%d ethertype=%s", desc, tag.VLANIdentifier, tag.Type)
	}
	return desc
}

// frameBytes copies the request's Ethernet frame (everything after the
// virtio-net header) into one contiguous slice, without disturbing the
// request's own cursor.
func (r *Request) frameBytes() []byte {
	c := r.cursor.Clone()
	var out []byte
	for {
		out = append(out, c.Bytes()...)
		if !c.Advance() {
			return out
		}
	}
}
