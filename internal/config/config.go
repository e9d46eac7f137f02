// Package config loads server tunables from defaults, an optional YAML
// file, and CLI flags, in that overriding order, mirroring the layered
// merge the rest of this codebase's teacher uses for its own settings.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the server needs. Zero values mean "not set
// by this layer" during merge; Defaults() fills in the real defaults.
type Config struct {
	Host         string  `yaml:"host"`
	BusPort      int     `yaml:"bus_port"`
	BrowserPort  int     `yaml:"browser_port"`
	MetricsPort  int     `yaml:"metrics_port"`
	CellSize     float64 `yaml:"cell_size"`
	StalenessSec float64 `yaml:"staleness_seconds"`
	ReapIntervalSec  float64 `yaml:"reap_interval_seconds"`
	PushIntervalSec  float64 `yaml:"push_interval_seconds"`
	AcceptRate   float64 `yaml:"accept_rate"`
	AcceptBurst  int     `yaml:"accept_burst"`
	Verbose      bool    `yaml:"verbose"`
	LogFile      string  `yaml:"log_file"`
}

// Defaults returns the built-in defaults named throughout spec.md.
func Defaults() Config {
	return Config{
		Host:            "127.0.0.1",
		BusPort:         8080,
		BrowserPort:     8000,
		MetricsPort:     9090,
		CellSize:        0.1,
		StalenessSec:    10,
		ReapIntervalSec: 5,
		PushIntervalSec: 1.0,
		AcceptRate:      5,
		AcceptBurst:     20,
	}
}

// Staleness, ReapInterval, and PushInterval convert the YAML's
// float-seconds fields into time.Duration for the components that consume
// them.
func (c Config) Staleness() time.Duration {
	return time.Duration(c.StalenessSec * float64(time.Second))
}

func (c Config) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSec * float64(time.Second))
}

func (c Config) PushInterval() time.Duration {
	return time.Duration(c.PushIntervalSec * float64(time.Second))
}

// Load reads path (if non-empty and present) as a YAML overlay on top of
// Defaults(). A missing file is not an error — it just means "use
// defaults", matching the teacher's config.Manager.loadConfig behavior for
// absent files.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	overlay, err := loadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	cfg.merge(overlay)
	return cfg, nil
}

func loadFile(path string) (Config, error) {
	var overlay Config
	data, err := os.ReadFile(path)
	if err != nil {
		return overlay, err
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return overlay, err
	}
	return overlay, nil
}

// merge overwrites every field of c that has a non-zero value in other.
func (c *Config) merge(other Config) {
	if other.Host != "" {
		c.Host = other.Host
	}
	if other.BusPort != 0 {
		c.BusPort = other.BusPort
	}
	if other.BrowserPort != 0 {
		c.BrowserPort = other.BrowserPort
	}
	if other.MetricsPort != 0 {
		c.MetricsPort = other.MetricsPort
	}
	if other.CellSize != 0 {
		c.CellSize = other.CellSize
	}
	if other.StalenessSec != 0 {
		c.StalenessSec = other.StalenessSec
	}
	if other.ReapIntervalSec != 0 {
		c.ReapIntervalSec = other.ReapIntervalSec
	}
	if other.PushIntervalSec != 0 {
		c.PushIntervalSec = other.PushIntervalSec
	}
	if other.AcceptRate != 0 {
		c.AcceptRate = other.AcceptRate
	}
	if other.AcceptBurst != 0 {
		c.AcceptBurst = other.AcceptBurst
	}
	if other.Verbose {
		c.Verbose = other.Verbose
	}
	if other.LogFile != "" {
		c.LogFile = other.LogFile
	}
}

// HotReloadable reports the subset of fields that Watch republishes on a
// file change: staleness, reap interval, push interval, and cell size for
// newly-placed vehicles. Ports and host are not reloadable since the
// listeners are already bound.
type HotReloadable struct {
	CellSize     float64
	Staleness    time.Duration
	ReapInterval time.Duration
	PushInterval time.Duration
}

func (c Config) Hot() HotReloadable {
	return HotReloadable{
		CellSize:     c.CellSize,
		Staleness:    c.Staleness(),
		ReapInterval: c.ReapInterval(),
		PushInterval: c.PushInterval(),
	}
}
