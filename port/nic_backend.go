//go:build linux

package port

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/songgao/packets/ethernet"
	"github.com/songgao/water"

	"vnetswitch/ring"
)

// nicMTU bounds one Ethernet frame plus its virtio-net header, generous
// enough that a real frame never needs more than one merged receive
// chain.
const nicMTU = 12 + 1514

// nicRxDepth is how many empty scratch buffers the backend keeps queued
// on its receive ring at all times.
const nicRxDepth = 64

// NICBackend bridges a Linux TAP device (github.com/songgao/water,
// github.com/songgao/packets/ethernet for the frame type read off it)
// to the port.Port descriptor-ring interface, so a port can be backed
// by a real network interface instead of the in-memory test transport.
// It is a demo-grade adapter built on ring.MemRing, not a zero-copy
// shared-memory path -- the real transport stays out of scope per
// spec.md §1.
type NICBackend struct {
	Tx *ring.MemRing // frames read from the TAP device, offered for the switch to pull
	Rx *ring.MemRing // frames the switch delivers here are written out to the TAP device

	iface *water.Interface

	mu   sync.Mutex
	bufs map[ring.Head][]byte

	// read holds frames pulled off the TAP device by readLoop's own
	// goroutine until Pump copies them onto Tx from the caller's
	// goroutine. MemRing carries no locking of its own (spec.md §5: the
	// core is single-threaded and cooperative), so nothing but Pump may
	// touch Tx, and Pump must only ever be called from the same
	// goroutine that drives the switch's Drain loop.
	read    chan ethernet.Frame
	readErr atomic.Bool
}

// NewNICBackend opens (or creates) the named TAP device and starts the
// background read pump.
func NewNICBackend(portName, device string) (*NICBackend, error) {
	cfg := water.Config{DeviceType: water.TAP}
	cfg.Name = device
	iface, err := water.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("port %q: opening tap device %q: %w", portName, device, err)
	}

	b := &NICBackend{
		Tx:    ring.NewMemRing(nil),
		iface: iface,
		bufs:  make(map[ring.Head][]byte, nicRxDepth),
		read:  make(chan ethernet.Frame, nicRxDepth),
	}
	b.Rx = ring.NewMemRing(rxNotifier{b})

	for i := 0; i < nicRxDepth; i++ {
		b.offerRxBuffer()
	}

	go b.readLoop()
	return b, nil
}

// Pump moves any frames the background read loop has queued since the
// last call onto Tx, where the switch's own goroutine can pull them via
// the normal GetTxRequest path. It must be called from the same
// goroutine that calls Switch.Drain on this backend's port, before each
// drain, since it is the only thing allowed to touch Tx.
func (b *NICBackend) Pump() {
	for {
		select {
		case frame := <-b.read:
			if log.IsLevelEnabled(log.TraceLevel) {
				log.WithField("src", frame.Source()).
					WithField("dst", frame.Destination()).
					Trace("nic frame pumped onto tx ring")
			}
			hdr := make([]byte, 12)
			b.Tx.Offer(hdr, frame)
		default:
			if b.readErr.Load() {
				b.Tx.FlagError()
			}
			return
		}
	}
}

// Close releases the underlying TAP device.
func (b *NICBackend) Close() error {
	return b.iface.Close()
}

func (b *NICBackend) offerRxBuffer() {
	buf := make([]byte, nicMTU)
	h := b.Rx.Offer(buf)
	b.mu.Lock()
	b.bufs[h] = buf
	b.mu.Unlock()
}

// readLoop pulls frames off the TAP device and queues them for Pump to
// offer to the switch as a (zeroed virtio-net header, frame) descriptor
// chain; this backend never requests guest offloads, so the header is
// always the all-zero "no GSO, no checksum" shape. A frame arriving
// while the queue is full is dropped -- Pump is not keeping up.
func (b *NICBackend) readLoop() {
	raw := make([]byte, nicMTU)
	for {
		n, err := b.iface.Read(raw)
		if err != nil {
			b.readErr.Store(true)
			return
		}
		frame := make(ethernet.Frame, n)
		copy(frame, raw[:n])
		select {
		case b.read <- frame:
		default:
		}
	}
}

// rxNotifier drains whatever the switch just finished delivering into
// b.Rx out to the TAP device, then tops the ring back up so the switch
// always has somewhere to deliver the next frame.
type rxNotifier struct{ b *NICBackend }

func (n rxNotifier) Notify() {
	b := n.b
	used := b.Rx.Used
	b.Rx.Used = nil

	for _, u := range used {
		b.mu.Lock()
		buf, ok := b.bufs[u.Head]
		delete(b.bufs, u.Head)
		b.mu.Unlock()
		if !ok || u.Length < 12 {
			continue
		}
		// Skip the 12-byte virtio-net header; only the Ethernet frame
		// goes out over the wire.
		if _, err := b.iface.Write(buf[12:u.Length]); err != nil {
			b.Rx.FlagError()
			return
		}
		b.offerRxBuffer()
	}
}
