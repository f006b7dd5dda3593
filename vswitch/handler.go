package vswitch

import (
	"time"

	log "github.com/sirupsen/logrus"

	"vnetswitch/mac"
	"vnetswitch/port"
	"vnetswitch/request"
	"vnetswitch/vlan"
)

// Drain runs one cooperative pass over the whole switch: every port's
// transmit ring is drained of available requests, each is forwarded or
// flooded, every port's pending-transfer list is retried, and
// client-visible notifications are batched to fire at most once per
// ring for the whole pass (spec.md §5, "Ordering guarantees").
func (s *Switch) Drain(now time.Time) {
	s.setNotify(false)
	defer s.setNotify(true)

	for _, p := range s.allPorts() {
		if !p.TxWorkPending() {
			continue
		}
		s.drainPort(now, p)
	}

	for _, p := range s.allPorts() {
		p.DrainPending(now)
		if s.Metrics != nil {
			s.Metrics.RxPending.WithLabelValues(p.Name).Set(float64(p.PendingCount()))
		}
	}
}

func (s *Switch) allPorts() []*port.Port {
	if s.monitor == nil {
		return s.ports
	}
	return append(append([]*port.Port{}, s.ports...), s.monitor)
}

func (s *Switch) setNotify(enabled bool) {
	for _, p := range s.allPorts() {
		if enabled {
			p.Tx.EnableNotify()
			p.Rx.EnableNotify()
		} else {
			p.Tx.DisableNotify()
			p.Rx.DisableNotify()
		}
	}
}

// drainPort pulls every request currently available on src and forwards
// each. A malformed descriptor flags src's transmit device and aborts
// the rest of this port's pass (spec.md's SourceBadDescriptor).
func (s *Switch) drainPort(now time.Time, src *port.Port) {
	for {
		req, err := src.GetTxRequest()
		if err != nil {
			log.WithField("switch", s.Name).
				WithField("port", src.Name).
				WithError(err).
				Error("malformed descriptor on transmit ring, flagging device")
			src.Tx.FlagError()
			return
		}
		if req == nil {
			return
		}
		if s.Metrics != nil {
			s.Metrics.TxFrames.WithLabelValues(src.Name).Inc()
			s.Metrics.TxBytes.WithLabelValues(src.Name).Add(float64(req.Len()))
		}
		if log.IsLevelEnabled(log.TraceLevel) {
			log.WithField("switch", s.Name).
				WithField("port", src.Name).
				Trace(req.DescribeFrame())
		}
		s.forward(now, src, req)
	}
}

// forward learns the request's source address, decides whether its
// destination is known, and forwards it accordingly. req's switch-held
// reference is always dropped before returning; any ports the frame was
// handed to hold their own reference via their Transfer (spec.md §3,
// "Lifecycle").
func (s *Switch) forward(now time.Time, src *port.Port, req *request.Request) {
	defer req.Drop()

	srcMac := req.SrcMac()
	vid := src.EffectiveVLAN(req)

	if !srcMac.IsUnknown() && !srcMac.IsBroadcast() {
		s.learn(srcMac, src)
	}

	dstMac := req.DstMac()
	if !dstMac.IsBroadcast() {
		if dst, ok := s.macTable.Lookup(dstMac); ok {
			// A known destination is a hit even when it resolves back to
			// src itself (the stacked-switch case spec.md §4.6 names):
			// the frame is never flooded, only dropped if it has nowhere
			// to go.
			if dst != src && dst.Mode.Match(vid) {
				dst.Deliver(req, vlan.ForPorts(dst.Mode, src.Mode), now)
				s.mirror(now, src, req)
			}
			return
		}
	}

	// Broadcast, multicast, or unknown unicast: flood to every VLAN-
	// matching port except the one it arrived on (self-loop suppression,
	// spec.md §4.6).
	for _, p := range s.ports {
		if p == src || !p.Mode.Match(vid) {
			continue
		}
		p.Deliver(req, vlan.ForPorts(p.Mode, src.Mode), now)
	}
	s.mirror(now, src, req)
}

func (s *Switch) learn(addr mac.Addr, p *port.Port) {
	_, known := s.macTable.Lookup(addr)
	s.macTable.Learn(addr, p)
	if !known {
		log.WithField("switch", s.Name).
			WithField("mac", addr).
			WithField("port", p.Name).
			Info("learned new mac address")
	}
}

// mirror copies req to the monitor port, if one is attached, unless the
// frame arrived on the monitor itself or the configured Filter rejects
// it.
func (s *Switch) mirror(now time.Time, src *port.Port, req *request.Request) {
	if s.monitor == nil || s.monitor == src {
		return
	}
	if s.Filter != nil && s.Filter(req) {
		return
	}
	s.monitor.Deliver(req, vlan.ForPorts(s.monitor.Mode, src.Mode), now)
}
