// Command busserver runs the fleet geospatial fan-out server: a producer
// WebSocket endpoint ingesting vehicle positions, a viewer WebSocket
// endpoint streaming viewport-filtered snapshots, and a background reaper
// evicting vehicles that stop reporting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetwatch/buswatch/internal/bus"
	"github.com/fleetwatch/buswatch/internal/config"
	"github.com/fleetwatch/buswatch/internal/logger"
	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/reaper"
	"github.com/fleetwatch/buswatch/internal/supervisor"
	"github.com/fleetwatch/buswatch/internal/viewer"
	"github.com/fleetwatch/buswatch/internal/world"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "busserver",
		Short: "real-time geospatial fan-out server for a vehicle fleet",
		RunE:  run,
	}

	defaults := config.Defaults()
	root.Flags().String("host", defaults.Host, "listen host for both endpoints")
	root.Flags().Int("bus-port", defaults.BusPort, "producer gateway port")
	root.Flags().Int("browser-port", defaults.BrowserPort, "viewer endpoint port")
	root.Flags().Int("metrics-port", defaults.MetricsPort, "metrics/healthz port (0 disables)")
	root.Flags().String("config", "", "path to a YAML config file")
	root.Flags().BoolP("verbose", "v", false, "enable debug logging")

	return root
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyFlagOverrides(cmd, &cfg)

	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	if err := logger.Init(level, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store := world.New(cfg.CellSize)
	reg := &metrics.Registry{}
	gateway := bus.New(store, reg)
	viewerHandler := viewer.New(store, reg, cfg.PushInterval())
	zombieReaper := reaper.New(store, reg, cfg.ReapInterval(), cfg.Staleness())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		hot := config.NewHot(cfg.Hot())
		go config.Watch(ctx, configPath, hot)
		go applyHotReload(ctx, hot, store, zombieReaper)
	}

	sup := supervisor.New(supervisor.Config{
		Host:        cfg.Host,
		BusPort:     cfg.BusPort,
		BrowserPort: cfg.BrowserPort,
		MetricsPort: cfg.MetricsPort,
		AcceptRate:  cfg.AcceptRate,
		AcceptBurst: cfg.AcceptBurst,
	}, store, gateway, viewerHandler, zombieReaper, reg)

	logger.Info("starting busserver", "host", cfg.Host, "bus_port", cfg.BusPort, "browser_port", cfg.BrowserPort)
	return sup.Run(ctx)
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("host"); cmd.Flags().Changed("host") {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetInt("bus-port"); cmd.Flags().Changed("bus-port") {
		cfg.BusPort = v
	}
	if v, _ := cmd.Flags().GetInt("browser-port"); cmd.Flags().Changed("browser-port") {
		cfg.BrowserPort = v
	}
	if v, _ := cmd.Flags().GetInt("metrics-port"); cmd.Flags().Changed("metrics-port") {
		cfg.MetricsPort = v
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
}

// applyHotReload republishes the hot-reloadable tunables from hot into the
// live store and reaper whenever the config file changes. Polls rather
// than reacting to fsnotify events directly since config.Watch only
// exposes the result through the atomic Hot pointer.
func applyHotReload(ctx context.Context, hot *config.Hot, store *world.Store, r *reaper.Reaper) {
	last := hot.Load()
	store.SetCellSize(last.CellSize)
	r.SetTunables(last.ReapInterval, last.Staleness)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := hot.Load()
			if current != last {
				store.SetCellSize(current.CellSize)
				r.SetTunables(current.ReapInterval, current.Staleness)
				last = current
			}
		}
	}
}
