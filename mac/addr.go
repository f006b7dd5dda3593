// Package mac provides the six-octet Ethernet address type and the
// bounded, round-robin learning table used by the switch's forwarding
// engine.
package mac

import (
	"fmt"
	"net"
)

// Length is the number of octets in an Ethernet MAC address.
const Length = 6

// Unknown is the distinguished "not yet learned" address.
var Unknown = Addr{}

// Broadcast is the all-ones address.
var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Addr is a six-octet Ethernet address, stored in wire order.
type Addr [Length]byte

// FromBytes builds an Addr from the first 6 bytes of b. It panics if b is
// shorter than Length; callers that read from untrusted buffers must bound
// the length themselves first (see request.Request).
func FromBytes(b []byte) Addr {
	var a Addr
	copy(a[:], b[:Length])
	return a
}

// FromHardwareAddr converts a net.HardwareAddr, as produced by net.ParseMAC,
// into an Addr.
func FromHardwareAddr(hw net.HardwareAddr) Addr {
	var a Addr
	copy(a[:], hw)
	return a
}

// HardwareAddr returns a net.HardwareAddr view of a, for logging and for
// interop with packages that expect the standard library representation.
func (a Addr) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(a[:])
}

// IsBroadcast reports whether a is the broadcast address or any multicast
// address. Both are flooded by the switch, so a single predicate covers
// both: the least significant bit of the first octet is the
// broadcast/multicast bit.
func (a Addr) IsBroadcast() bool {
	return a[0]&1 == 1
}

// IsUnknown reports whether a is the all-zero sentinel meaning "no MAC
// learned/assigned yet".
func (a Addr) IsUnknown() bool {
	return a == Unknown
}

// String renders the address in standard colon-separated hex form.
func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}
