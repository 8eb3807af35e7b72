package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"ListingRadar/internal/domain/models"
	"ListingRadar/pkg/logger"

	"github.com/gorilla/websocket"
)

// feedServer upgrades incoming connections and hands them to the test.
func feedServer(t *testing.T) (*httptest.Server, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("key", u, []string{"binance_announcements"}, time.Millisecond, 10*time.Millisecond, logger.Nop())
	return c.(*Client)
}

// drainSubscribe consumes the subscribe frames the client writes on connect.
func drainSubscribe(t *testing.T, conn *websocket.Conn, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		var msg map[string]string
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("subscribe read: %v", err)
		}
		if msg["type"] != "subscribe" {
			t.Fatalf("frame = %v, want subscribe", msg)
		}
	}
}

func TestReadDeliversNormalizedSignals(t *testing.T) {
	srv, conns := feedServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	server := <-conns
	drainSubscribe(t, server, 1)

	frame := `{"type":"signal","data":[` +
		`{"source":"binance_announcements","symbol":"ABC/USDT","stage":"cex","kind":"listing_confirmed","strength":0.9,"ts":1700000000000},` +
		`{"source":"binance_announcements","symbol":"BAD","stage":"nope","kind":"rumor","strength":0.1,"ts":1700000000000}]}`
	if err := server.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}

	signals, _ := c.Read(ctx)
	select {
	case sig := <-signals:
		if sig.Symbol != "ABC/USDT" || sig.Stage != models.StageCex {
			t.Fatalf("signal = %+v", sig)
		}
		if got := sig.Timestamp; got != time.Unix(0, 1700000000000*int64(time.Millisecond)).UTC() {
			t.Fatalf("timestamp = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no signal delivered")
	}

	// The invalid-stage entry of the same frame was dropped.
	select {
	case sig := <-signals:
		t.Fatalf("unexpected signal %+v", sig)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPingLoopStopsWithReadLoop(t *testing.T) {
	srv, conns := feedServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	server := <-conns
	drainSubscribe(t, server, 1)

	baseline := runtime.NumGoroutine()

	_, errs := c.Read(ctx)
	server.Close()
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected read error after server close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not surface the error")
	}

	// The ping goroutine must wind down with the read loop, not linger
	// until ctx cancellation.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > baseline {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d, want <= %d", runtime.NumGoroutine(), baseline)
		}
		time.Sleep(10 * time.Millisecond)
	}
	_ = c.Close()
}

func TestCloseDuringReadIsSafe(t *testing.T) {
	srv, conns := feedServer(t)
	c := newTestClient(t, srv)
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	server := <-conns
	drainSubscribe(t, server, 1)
	defer server.Close()

	_, errs := c.Read(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			c.IsConnected()
		}
	}()
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-done

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected read error after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop after close")
	}
	if c.IsConnected() {
		t.Fatal("client still reports connected")
	}
}

func TestReadWithoutConnectFailsFast(t *testing.T) {
	c := &Client{pingInterval: time.Second, log: logger.Nop().With("feed")}

	signals, errs := c.Read(context.Background())
	if err := <-errs; err == nil {
		t.Fatal("expected error without a connection")
	}
	if _, ok := <-signals; ok {
		t.Fatal("signals channel not closed")
	}
}
