// Package config loads the switch's YAML configuration and watches the
// config file for changes, in the same shape as the teacher pack's
// carlmontanari-slurpeeth (github.com/fsnotify/fsnotify,
// gopkg.in/yaml.v3). Unlike slurpeeth, a detected change only logs a
// warning that a restart is needed: the switch's single-threaded,
// lock-free core (spec.md §5) has no safe way to swap its port set or
// MAC table out from under an in-progress Drain pass, so live-reload is
// deliberately not attempted (SPEC_FULL.md §3).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk switch configuration.
type Config struct {
	Name            string       `yaml:"name"`
	Capacity        int          `yaml:"capacity"`
	MacTableSize    int          `yaml:"mac_table_size"`
	PendingDeadline string       `yaml:"pending_deadline"`
	Ports           []PortConfig `yaml:"ports"`
	Monitor         *PortConfig  `yaml:"monitor"`
}

// PortConfig describes one configured port.
type PortConfig struct {
	Name      string   `yaml:"name"`
	StaticMAC string   `yaml:"mac"`
	Mode      string   `yaml:"mode"` // "native", "access", or "trunk"
	AccessVID uint16   `yaml:"access_vid"`
	TrunkVIDs []uint16 `yaml:"trunk_vids"`
	Device    string   `yaml:"device"` // optional TAP device name, port/nic_backend.go
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return &c, nil
}

// Watch starts watching the directory containing path and logs a
// warning whenever the file is written, since the switch cannot safely
// reload configuration while running (see the package comment). The
// returned function stops the watch.
func Watch(path string) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: starting watcher: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name == path && event.Has(fsnotify.Write) {
					log.WithField("path", path).
						Warn("config file changed on disk; restart the switch to apply it")
				}
			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(watchErr).Error("config watcher error")
			}
		}
	}()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watching %q: %w", path, err)
	}

	return func() { watcher.Close() }, nil
}
