package bus

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fleetwatch/buswatch/internal/metrics"
	"github.com/fleetwatch/buswatch/internal/world"
)

func testGatewayServer(t *testing.T) (*Gateway, *httptest.Server) {
	t.Helper()
	store := world.New(0.1)
	reg := &metrics.Registry{}
	gw := New(store, reg)
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)
	return gw, ts
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

// Scenario A building block: a well-formed frame upserts the vehicle.
func TestGatewayUpsertsWellFormedFrame(t *testing.T) {
	gw, ts := testGatewayServer(t)
	conn := dialWS(t, wsURL(ts.URL))

	if err := conn.Write(context.Background(), websocket.MessageText,
		[]byte(`{"busId":"A","lat":55.75,"lng":37.61,"route":"R1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, func() bool { return gw.Store.Len() == 1 })
}

// Scenario E: malformed JSON closes the connection; a later connection
// still works.
func TestGatewayClosesOnMalformedJSON(t *testing.T) {
	gw, ts := testGatewayServer(t)
	conn := dialWS(t, wsURL(ts.URL))

	if err := conn.Write(context.Background(), websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected read to fail after server closed the connection")
	}

	// A fresh connection still works.
	conn2 := dialWS(t, wsURL(ts.URL))
	if err := conn2.Write(context.Background(), websocket.MessageText,
		[]byte(`{"busId":"B","lat":1,"lng":1,"route":"R1"}`)); err != nil {
		t.Fatalf("write on new connection: %v", err)
	}
	waitFor(t, func() bool { return gw.Store.Len() == 1 })
}

func TestGatewaySkipsEmptyBusID(t *testing.T) {
	gw, ts := testGatewayServer(t)
	conn := dialWS(t, wsURL(ts.URL))

	if err := conn.Write(context.Background(), websocket.MessageText,
		[]byte(`{"busId":"","lat":1,"lng":1,"route":"R1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.Write(context.Background(), websocket.MessageText,
		[]byte(`{"busId":"A","lat":1,"lng":1,"route":"R1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return gw.Store.Len() == 1 })
}

func TestGatewayClosesOnMissingLat(t *testing.T) {
	gw, ts := testGatewayServer(t)
	_ = gw
	conn := dialWS(t, wsURL(ts.URL))

	if err := conn.Write(context.Background(), websocket.MessageText,
		[]byte(`{"busId":"A","lng":1,"route":"R1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected read to fail after server closed the connection on missing lat")
	}
}

func TestGatewayClosesOnWrongTypedRoute(t *testing.T) {
	_, ts := testGatewayServer(t)
	conn := dialWS(t, wsURL(ts.URL))

	if err := conn.Write(context.Background(), websocket.MessageText,
		[]byte(`{"busId":"A","lat":1,"lng":1,"route":42}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected read to fail after server closed the connection on wrong-typed route")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
