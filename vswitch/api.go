// Package vswitch is the switch core: the fixed-capacity set of ports,
// the MAC learning table, and the forwarding/mirroring loop that ties
// the MAC table, VLAN classifier, Request view and Transfer Engine
// together. Grounded on the teacher's vswitch.Handler and on
// original_source's server/switch/switch.h (Virtio_switch).
package vswitch

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"vnetswitch/filter"
	"vnetswitch/mac"
	"vnetswitch/metrics"
	"vnetswitch/port"
)

// DefaultCapacity is the default maximum number of switched ports, not
// counting the single optional monitor port.
const DefaultCapacity = 256

// Switch is a single-threaded, cooperative virtual Ethernet switch. It
// carries no locking: every exported method must be called from the
// one goroutine that drives the switch's event loop (spec.md §5,
// "Ordering guarantees").
type Switch struct {
	Name string

	ports    []*port.Port
	byName   map[string]*port.Port
	monitor  *port.Port
	macTable *mac.Table[*port.Port]

	Filter  filter.Func
	Metrics *metrics.Metrics
}

// New creates a Switch with room for capacity ports and a MAC table of
// macTableSize entries. A capacity or macTableSize of zero falls back
// to DefaultCapacity / mac.DefaultSize.
func New(name string, capacity, macTableSize int) *Switch {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Switch{
		Name:     name,
		ports:    make([]*port.Port, 0, capacity),
		byName:   make(map[string]*port.Port, capacity),
		macTable: mac.NewTable[*port.Port](macTableSize),
		Filter:   filter.AllowAll,
	}
}

// AddPort attaches p to the switch. It is rejected if the switch is at
// capacity, if a port of the same name is already attached, or if p
// carries a StaticMAC already claimed by another port.
func (s *Switch) AddPort(p *port.Port) error {
	if len(s.ports) >= cap(s.ports) {
		return fmt.Errorf("vswitch: %q is at capacity (%d ports)", s.Name, cap(s.ports))
	}
	if _, exists := s.byName[p.Name]; exists {
		return fmt.Errorf("vswitch: port name %q already in use", p.Name)
	}
	if !p.StaticMAC.IsUnknown() {
		for _, other := range s.ports {
			if other.StaticMAC == p.StaticMAC {
				return fmt.Errorf("vswitch: static MAC %s already claimed by port %q", p.StaticMAC, other.Name)
			}
		}
	}
	s.wireMetrics(p)
	s.ports = append(s.ports, p)
	s.byName[p.Name] = p
	log.WithField("switch", s.Name).
		WithField("port", p.Name).
		WithField("token", p.Token).
		Debug("port attached")
	return nil
}

// AddMonitorPort attaches p as the switch's monitor port. At most one
// monitor port may be attached at a time (spec.md §4.5).
func (s *Switch) AddMonitorPort(p *port.Port) error {
	if s.monitor != nil {
		return fmt.Errorf("vswitch: %q already has a monitor port (%q)", s.Name, s.monitor.Name)
	}
	if _, exists := s.byName[p.Name]; exists {
		return fmt.Errorf("vswitch: port name %q already in use", p.Name)
	}
	p.Monitor = true
	s.wireMetrics(p)
	s.monitor = p
	s.byName[p.Name] = p
	log.WithField("switch", s.Name).
		WithField("port", p.Name).
		WithField("token", p.Token).
		Debug("monitor port attached")
	return nil
}

// RemovePort detaches the named port, tearing down any transfers it
// still had pending and flushing its entries from the MAC table.
func (s *Switch) RemovePort(name string) error {
	if s.monitor != nil && s.monitor.Name == name {
		s.monitor.Teardown()
		delete(s.byName, name)
		s.monitor = nil
		return nil
	}
	for i, p := range s.ports {
		if p.Name != name {
			continue
		}
		p.Teardown()
		s.macTable.Flush(p)
		s.ports = append(s.ports[:i], s.ports[i+1:]...)
		delete(s.byName, name)
		return nil
	}
	return fmt.Errorf("vswitch: no such port %q", name)
}

// Port looks up an attached port (switched or monitor) by name.
func (s *Switch) Port(name string) (*port.Port, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// CheckPorts scans every attached port for a device that has flagged
// itself in error (spec.md's DestBadDescriptor/SourceBadDescriptor
// outcomes) and tears it down, flushing its MAC table entries. It is
// meant to be called periodically by the driving event loop, the same
// liveness role original_source's dispatcher plays by polling capability
// validity on every client.
func (s *Switch) CheckPorts() {
	live := s.ports[:0]
	for _, p := range s.ports {
		if p.Tx.Errored() || p.Rx.Errored() {
			p.Teardown()
			s.macTable.Flush(p)
			delete(s.byName, p.Name)
			continue
		}
		live = append(live, p)
	}
	s.ports = live

	if s.monitor != nil && (s.monitor.Tx.Errored() || s.monitor.Rx.Errored()) {
		s.monitor.Teardown()
		delete(s.byName, s.monitor.Name)
		s.monitor = nil
	}
}

func (s *Switch) wireMetrics(p *port.Port) {
	if s.Metrics == nil {
		return
	}
	name := p.Name
	p.OnTxDropped = func() { s.Metrics.TxDropped.WithLabelValues(name).Inc() }
	p.OnDelivered = func(bytes uint32) {
		s.Metrics.RxFrames.WithLabelValues(name).Inc()
		s.Metrics.RxBytes.WithLabelValues(name).Add(float64(bytes))
	}
	p.OnExpired = func() { s.Metrics.RxDropped.WithLabelValues(name).Inc() }
}
