// Package metrics exposes per-port forwarding counters, a domain-stack
// addition not present in the teacher switch: the pack's
// veesix-networks-osvbng repo exports its routing-protocol state the
// same way, via github.com/prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the switch-wide counter vectors, labelled by port name.
type Metrics struct {
	TxFrames   *prometheus.CounterVec
	TxBytes    *prometheus.CounterVec
	TxDropped  *prometheus.CounterVec
	RxFrames   *prometheus.CounterVec
	RxBytes    *prometheus.CounterVec
	RxDropped  *prometheus.CounterVec
	RxPending  *prometheus.GaugeVec
}

// New creates a Metrics set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TxFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnetswitch",
			Name:      "tx_frames_total",
			Help:      "Frames pulled from a port's transmit ring.",
		}, []string{"port"}),
		TxBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnetswitch",
			Name:      "tx_bytes_total",
			Help:      "Ethernet-frame bytes pulled from a port's transmit ring, virtio-net header excluded.",
		}, []string{"port"}),
		TxDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnetswitch",
			Name:      "tx_dropped_total",
			Help:      "Transmit-ring requests dropped by the port's VLAN ingress policy.",
		}, []string{"port"}),
		RxFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnetswitch",
			Name:      "rx_frames_total",
			Help:      "Frames delivered into a port's receive ring.",
		}, []string{"port"}),
		RxBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnetswitch",
			Name:      "rx_bytes_total",
			Help:      "Bytes delivered into a port's receive ring, header included.",
		}, []string{"port"}),
		RxDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnetswitch",
			Name:      "rx_dropped_total",
			Help:      "Transfers abandoned after their pending deadline expired.",
		}, []string{"port"}),
		RxPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vnetswitch",
			Name:      "rx_pending",
			Help:      "Transfers currently waiting for receive-ring room.",
		}, []string{"port"}),
	}

	reg.MustRegister(m.TxFrames, m.TxBytes, m.TxDropped, m.RxFrames, m.RxBytes, m.RxDropped, m.RxPending)
	return m
}
