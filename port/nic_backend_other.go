//go:build !linux

package port

import (
	"fmt"

	"vnetswitch/ring"
)

// NICBackend is unavailable outside Linux; TAP devices are a Linux-only
// concept. See nic_backend.go for the real implementation.
type NICBackend struct {
	Tx *ring.MemRing
	Rx *ring.MemRing
}

// NewNICBackend always fails on non-Linux platforms.
func NewNICBackend(portName, device string) (*NICBackend, error) {
	return nil, fmt.Errorf("port %q: tap-backed ports are only supported on linux", portName)
}

// Close is a no-op on the non-Linux stub.
func (b *NICBackend) Close() error { return nil }

// Pump is a no-op on the non-Linux stub.
func (b *NICBackend) Pump() {}
