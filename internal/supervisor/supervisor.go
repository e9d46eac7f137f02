// Package supervisor roots the whole server process in one structured
// concurrency scope: it binds the producer and viewer listeners, starts
// the zombie reaper, and tears everything down together on shutdown.
package supervisor

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetwatch/buswatch/internal/bus"
	"github.com/fleetwatch/buswatch/internal/logger"
	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/ratelimit"
	"github.com/fleetwatch/buswatch/internal/reaper"
	"github.com/fleetwatch/buswatch/internal/viewer"
	"github.com/fleetwatch/buswatch/internal/world"
)

// Config is the subset of the process configuration the supervisor needs
// to bind listeners and size the rate limiter.
type Config struct {
	Host        string
	BusPort     int
	BrowserPort int
	MetricsPort int
	AcceptRate  float64
	AcceptBurst int
}

// Supervisor owns the three HTTP listeners (producer, viewer, metrics) and
// the reaper, all rooted in one errgroup.Group scope (spec.md's "Scope").
type Supervisor struct {
	cfg     Config
	store   *world.Store
	gateway *bus.Gateway
	viewer  *viewer.Handler
	reaper  *reaper.Reaper
	metrics *metrics.Registry

	busSrv     *http.Server
	viewerSrv  *http.Server
	metricsSrv *http.Server
}

// New wires a Supervisor from already-constructed components.
func New(cfg Config, store *world.Store, gw *bus.Gateway, vh *viewer.Handler, rp *reaper.Reaper, reg *metrics.Registry) *Supervisor {
	return &Supervisor{cfg: cfg, store: store, gateway: gw, viewer: vh, reaper: rp, metrics: reg}
}

// Run binds all listeners, starts the reaper, and blocks until ctx is
// cancelled or one of the children fails. Every listener is bound before
// anything starts, so a bind failure returns with nothing running; once
// started, it always attempts a graceful HTTP shutdown before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	busListener, err := s.listen(s.cfg.BusPort, ratelimit.New(s.cfg.AcceptRate, s.cfg.AcceptBurst))
	if err != nil {
		return err
	}
	viewerListener, err := s.listen(s.cfg.BrowserPort, ratelimit.New(s.cfg.AcceptRate, s.cfg.AcceptBurst))
	if err != nil {
		return err
	}
	var metricsListener net.Listener
	if s.cfg.MetricsPort != 0 {
		metricsListener, err = s.listen(s.cfg.MetricsPort, nil)
		if err != nil {
			return err
		}
	}

	s.busSrv = &http.Server{Handler: s.gateway}
	s.viewerSrv = &http.Server{Handler: s.viewer}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("producer gateway listening", "addr", busListener.Addr().String())
		if err := s.busSrv.Serve(busListener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("viewer endpoint listening", "addr", viewerListener.Addr().String())
		if err := s.viewerSrv.Serve(viewerListener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.reaper.Run(gctx)
	})

	if metricsListener != nil {
		s.metricsSrv = &http.Server{Handler: s.metricsMux()}
		g.Go(func() error {
			logger.Info("metrics endpoint listening", "addr", metricsListener.Addr().String())
			if err := s.metricsSrv.Serve(metricsListener); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	<-gctx.Done()
	s.shutdown()
	err = g.Wait()

	if ctx.Err() != nil {
		// Parent context was cancelled (SIGINT/SIGTERM): children returning
		// context.Canceled from the shutdown they were just asked to do
		// isn't a failure worth surfacing.
		return nil
	}
	return err
}

func (s *Supervisor) listen(port int, limiter *ratelimit.AcceptLimiter) (net.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		return ln, nil
	}
	return &ratelimit.Listener{
		Listener: ln,
		Limiter:  limiter,
		OnThrottled: func() {
			if s.metrics != nil {
				s.metrics.ConnectionsThrottled.Add(1)
			}
		},
	}, nil
}

func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.busSrv != nil {
		s.busSrv.Shutdown(ctx)
	}
	if s.viewerSrv != nil {
		s.viewerSrv.Shutdown(ctx)
	}
	if s.metricsSrv != nil {
		s.metricsSrv.Shutdown(ctx)
	}
}

func (s *Supervisor) metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /debug/vars", func(w http.ResponseWriter, r *http.Request) {
		snap := s.metrics.Snapshot(s.store.Len())
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap)
	})
	return mux
}
