package viewer

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fleetwatch/buswatch/internal/logger"
	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/world"
)

// Handler accepts viewer WebSocket connections and runs one Session per
// connection until the peer disconnects or ctx is cancelled.
type Handler struct {
	Store        *world.Store
	Metrics      *metrics.Registry
	PushInterval time.Duration
}

// New creates a Handler streaming snapshots every pushInterval.
func New(store *world.Store, reg *metrics.Registry, pushInterval time.Duration) *Handler {
	return &Handler{Store: store, Metrics: reg, PushInterval: pushInterval}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Debug("viewer upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sess := &session{
		id:      uuid.New().String()[:8],
		conn:    conn,
		store:   h.Store,
		metrics: h.Metrics,
		push:    h.PushInterval,
	}
	logger.Debug("viewer connected", "session", sess.id, "remote", r.RemoteAddr)
	reason := sess.run(r.Context())
	logger.Debug("viewer disconnected", "session", sess.id, "reason", reason)
}

// session is one viewer connection: a reader goroutine overwriting the
// viewport and a sender goroutine pushing filtered snapshots on a fixed
// cadence. The two share viewport only via an atomic.Pointer, so the
// reader never blocks on a send in progress and vice versa (spec.md §9,
// single-writer/single-reader on the viewport).
type session struct {
	id       string
	conn     *websocket.Conn
	store    *world.Store
	metrics  *metrics.Registry
	push     time.Duration
	viewport atomic.Pointer[Viewport]
}

// run roots the reader and sender in one errgroup scope: either goroutine
// returning ends the session and cancels the other via the derived context
// (spec.md §5/§9's Scope semantics, rendered as golang.org/x/sync/errgroup).
func (s *session) run(ctx context.Context) string {
	g, gctx := errgroup.WithContext(ctx)
	reason := "peer-closed"

	g.Go(func() error {
		err := s.readLoop(gctx)
		if err != nil && gctx.Err() == nil {
			reason = "reader-error"
		}
		return err
	})
	g.Go(func() error {
		err := s.sendLoop(gctx)
		if err != nil && gctx.Err() == nil {
			reason = "sender-error"
		}
		return err
	})

	if err := g.Wait(); err != nil && errors.Is(ctx.Err(), context.Canceled) {
		reason = "shutdown"
	}
	return reason
}

func (s *session) readLoop(ctx context.Context) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		vp, ok := parseBounds(data)
		if !ok {
			continue
		}
		s.viewport.Store(&vp)
	}
}

func (s *session) sendLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.push)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sendSnapshot(ctx); err != nil {
				return err
			}
		}
	}
}

func (s *session) sendSnapshot(ctx context.Context) error {
	buses := s.visibleBuses()

	payload, err := encodeSnapshot(buses)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SnapshotsSent.Add(1)
	}
	return nil
}

// visibleBuses applies the viewport filter. An unset viewport means "send
// every vehicle" — the policy decision recorded in SPEC_FULL.md §4.3,
// chosen so a freshly-connected viewer sees data before it has reported
// any bounds.
func (s *session) visibleBuses() []busOut {
	vpPtr := s.viewport.Load()
	if vpPtr == nil || !vpPtr.Set {
		return toBusOut(s.store.SnapshotAll())
	}
	vp := *vpPtr

	cxLo, cxHi, cyLo, cyHi := vp.CellRange(s.store.CellSize())
	candidates := s.store.QueryCells(cxLo, cxHi, cyLo, cyHi)

	out := make([]busOut, 0, len(candidates))
	for _, v := range candidates {
		if vp.Contains(v.Lat, v.Lng) {
			out = append(out, busOut{BusID: v.ID, Lat: v.Lat, Lng: v.Lng, Route: v.Route})
		}
	}
	return out
}

func toBusOut(vehicles []world.Vehicle) []busOut {
	out := make([]busOut, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, busOut{BusID: v.ID, Lat: v.Lat, Lng: v.Lng, Route: v.Route})
	}
	return out
}
