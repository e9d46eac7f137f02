package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/fleetwatch/buswatch/internal/bus"
	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/reaper"
	"github.com/fleetwatch/buswatch/internal/viewer"
	"github.com/fleetwatch/buswatch/internal/world"
)

func pickFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestRunServesHealthzAndShutsDownCleanly exercises the full wiring: bind
// both endpoints plus the metrics server, confirm /healthz responds, then
// cancel and confirm Run returns without error.
func TestRunServesHealthzAndShutsDownCleanly(t *testing.T) {
	store := world.New(0.1)
	reg := &metrics.Registry{}
	gw := bus.New(store, reg)
	vh := viewer.New(store, reg, 50*time.Millisecond)
	rp := reaper.New(store, reg, 50*time.Millisecond, time.Second)

	cfg := Config{Host: "127.0.0.1", BusPort: 0, BrowserPort: 0, MetricsPort: 0, AcceptRate: 100, AcceptBurst: 100}
	sup := New(cfg, store, gw, vh, rp, reg)

	// Ports must be concrete for http.Server to bind predictably in a test;
	// the supervisor itself supports port 0 (OS-assigned) for the two
	// domain listeners, but the test needs a known metrics port to poll.
	metricsPort := pickFreePort(t)
	sup.cfg.MetricsPort = metricsPort

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitForHTTP(t, fmt.Sprintf("http://127.0.0.1:%d/healthz", metricsPort))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/debug/vars", metricsPort))
	if err != nil {
		t.Fatalf("get /debug/vars: %v", err)
	}
	defer resp.Body.Close()
	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error after shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func waitForHTTP(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server at %s never came up", url)
}
