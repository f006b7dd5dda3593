// Command vswitch runs a switch instance from a YAML config file,
// driving its Drain loop on a timer and exposing Prometheus metrics.
// Grounded on the teacher's cmd/exu (argument dispatch, logrus setup)
// and carlmontanari-slurpeeth's cli/entrypoint.go (github.com/urfave/
// cli/v2 flag handling).
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"vnetswitch/config"
	"vnetswitch/mac"
	"vnetswitch/metrics"
	"vnetswitch/port"
	"vnetswitch/ring"
	"vnetswitch/vlan"
	"vnetswitch/vswitch"
)

func main() {
	log.SetLevel(log.InfoLevel)

	app := &cli.App{
		Name:  "vswitch",
		Usage: "run a virtual Ethernet switch from a YAML config file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "switch configuration file to load",
				Value: "vswitch.yaml",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "address to serve /metrics on",
				Value: ":9100",
			},
			&cli.DurationFlag{
				Name:  "tick",
				Usage: "how often to drain the switch",
				Value: 10 * time.Millisecond,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("vswitch exited")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	stopWatch, err := config.Watch(c.String("config"))
	if err != nil {
		return err
	}
	defer stopWatch()

	reg := prometheus.NewRegistry()
	sw := vswitch.New(cfg.Name, cfg.Capacity, cfg.MacTableSize)
	sw.Metrics = metrics.New(reg)

	var nics []*port.NICBackend

	for _, pc := range cfg.Ports {
		p, backend, err := buildPort(pc)
		if err != nil {
			return err
		}
		if backend != nil {
			nics = append(nics, backend)
		}
		if err := sw.AddPort(p); err != nil {
			return err
		}
		log.WithField("port", pc.Name).WithField("mode", pc.Mode).Info("attached port")
	}

	if cfg.Monitor != nil {
		p, backend, err := buildPort(*cfg.Monitor)
		if err != nil {
			return err
		}
		if backend != nil {
			nics = append(nics, backend)
		}
		if err := sw.AddMonitorPort(p); err != nil {
			return err
		}
		log.WithField("port", cfg.Monitor.Name).Info("attached monitor port")
	}

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		addr := c.String("metrics-addr")
		log.WithField("addr", addr).Info("serving metrics")
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	ticker := time.NewTicker(c.Duration("tick"))
	defer ticker.Stop()

	checkTicker := time.NewTicker(time.Second)
	defer checkTicker.Stop()

	log.WithField("name", cfg.Name).Info("switch running")
	for {
		select {
		case now := <-ticker.C:
			for _, n := range nics {
				n.Pump()
			}
			sw.Drain(now)
		case <-checkTicker.C:
			sw.CheckPorts()
		}
	}
}

func buildPort(pc config.PortConfig) (*port.Port, *port.NICBackend, error) {
	mode, err := buildMode(pc)
	if err != nil {
		return nil, nil, err
	}

	var p *port.Port
	var backend *port.NICBackend
	if pc.Device != "" {
		backend, err = port.NewNICBackend(pc.Name, pc.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("port %q: %w", pc.Name, err)
		}
		p = port.New(pc.Name, mode, backend.Tx, backend.Rx)
	} else {
		tx := ring.NewMemRing(nil)
		rx := ring.NewMemRing(nil)
		p = port.New(pc.Name, mode, tx, rx)
	}

	if pc.StaticMAC != "" {
		hw, err := net.ParseMAC(pc.StaticMAC)
		if err != nil {
			return nil, nil, fmt.Errorf("port %q: invalid mac %q: %w", pc.Name, pc.StaticMAC, err)
		}
		p.StaticMAC = mac.FromHardwareAddr(hw)
	}
	return p, backend, nil
}

func buildMode(pc config.PortConfig) (vlan.Mode, error) {
	switch pc.Mode {
	case "", "native":
		return vlan.NewNative(), nil
	case "access":
		if !vlan.Valid(vlan.ID(pc.AccessVID)) {
			return vlan.Mode{}, fmt.Errorf("port %q: invalid access_vid %d", pc.Name, pc.AccessVID)
		}
		return vlan.NewAccess(vlan.ID(pc.AccessVID)), nil
	case "trunk":
		ids := make([]vlan.ID, len(pc.TrunkVIDs))
		for i, v := range pc.TrunkVIDs {
			if !vlan.Valid(vlan.ID(v)) {
				return vlan.Mode{}, fmt.Errorf("port %q: invalid trunk vid %d", pc.Name, v)
			}
			ids[i] = vlan.ID(v)
		}
		return vlan.NewTrunk(ids), nil
	default:
		return vlan.Mode{}, fmt.Errorf("port %q: unknown mode %q", pc.Name, pc.Mode)
	}
}
