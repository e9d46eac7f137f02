package bus

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/fleetwatch/buswatch/internal/logger"
	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/world"
)

// Clock lets tests control the timestamps recorded on upsert.
type Clock func() time.Time

// Gateway accepts producer WebSocket connections and applies their
// position updates to a world.Store. It sends nothing back to producers.
type Gateway struct {
	Store   *world.Store
	Metrics *metrics.Registry
	Now     Clock
}

// New creates a Gateway writing into store.
func New(store *world.Store, reg *metrics.Registry) *Gateway {
	return &Gateway{Store: store, Metrics: reg, Now: time.Now}
}

// ServeHTTP upgrades the request to a WebSocket and runs the per-connection
// read loop until the peer closes, a frame fails to parse, or a frame
// fails schema validation. No reply is ever written — spec.md §4.2/§7.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Debug("producer upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	connID := uuid.New().String()[:8]
	logger.Debug("producer connected", "conn", connID, "remote", r.RemoteAddr)

	ctx := r.Context()
	reason := g.readLoop(ctx, connID, conn)
	logger.Debug("producer disconnected", "conn", connID, "reason", reason)
}

func (g *Gateway) readLoop(ctx context.Context, connID string, conn *websocket.Conn) string {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return "shutdown"
			}
			return "peer-closed"
		}

		pos, err := parseFrame(data)
		switch {
		case err == nil:
			g.Store.Upsert(pos.BusID, pos.Lat, pos.Lng, pos.Route, g.Now())
			if g.Metrics != nil {
				g.Metrics.FramesParsed.Add(1)
			}
		case errors.Is(err, errSkip):
			if g.Metrics != nil {
				g.Metrics.FramesSkipped.Add(1)
			}
			continue
		default:
			if g.Metrics != nil {
				g.Metrics.FramesRejected.Add(1)
			}
			logger.Warn("producer frame rejected", "conn", connID, "err", err)
			conn.Close(websocket.StatusUnsupportedData, "malformed frame")
			return "malformed-frame"
		}
	}
}
