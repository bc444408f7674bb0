package wsrelay

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type rejectEverythingLimiter struct{}

func (rejectEverythingLimiter) Allow(remoteAddr string) bool { return false }

type rejectEverythingAuthenticator struct{}

func (rejectEverythingAuthenticator) Authenticate(r *http.Request) error {
	return ErrUnauthorized
}

func dialWS(t *testing.T, httpURL string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http")
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func TestServerAcceptsAndEchoesThroughOnConnection(t *testing.T) {
	server := NewServer()
	connected := make(chan *ConnectionHandle, 1)
	server.OnConnection(func(c *Connection) {
		c.OnText(func(h *ConnectionHandle, msg string) {
			_ = h.SendText("echo:" + msg)
		})
		connected <- c.Handle()
	})

	httpServer := httptest.NewServer(http.HandlerFunc(server.serveHTTP))
	defer httpServer.Close()

	conn, _, err := dialWS(t, httpServer.URL)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnection never fired")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "echo:hi" {
		t.Errorf("expected echo:hi, got %q", data)
	}

	if server.ActiveConnections() != 1 {
		t.Errorf("expected 1 active connection, got %d", server.ActiveConnections())
	}
}

func TestServerRejectsWhenRateLimited(t *testing.T) {
	server := NewServer(WithRateLimiter(rejectEverythingLimiter{}))
	httpServer := httptest.NewServer(http.HandlerFunc(server.serveHTTP))
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
}

func TestServerRejectsUnauthorizedHandshake(t *testing.T) {
	var reported error
	server := NewServer(WithAuthenticator(rejectEverythingAuthenticator{}))
	server.OnError(func(err error) { reported = err })

	httpServer := httptest.NewServer(http.HandlerFunc(server.serveHTTP))
	defer httpServer.Close()

	resp, err := http.Get(httpServer.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	if reported == nil {
		t.Error("expected OnError to be invoked for unauthorized handshake")
	}
}

// reserveLoopbackAddr picks a free port by binding then immediately
// releasing it, so server.Listen can be started against a known,
// dialable address from the test goroutine.
func reserveLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve addr: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestServerListenAndShutdown(t *testing.T) {
	server := NewServer()

	closedCh := make(chan struct{}, 1)
	server.OnClose(func() { closedCh <- struct{}{} })

	addr := reserveLoopbackAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenDone := make(chan error, 1)
	go func() {
		listenDone <- server.Listen(ctx, addr)
	}()

	waitForDialable(t, addr)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	select {
	case <-closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose never fired")
	}

	select {
	case err := <-listenDone:
		if err != nil {
			t.Errorf("expected Listen to return nil after graceful shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen never returned after Shutdown")
	}
}

// waitForDialable retries a plain TCP dial until the listener is up or
// the deadline passes, avoiding a fixed sleep racing Listen's bind.
func waitForDialable(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never became dialable at %s", addr)
}

// TestServerShutdownForceClosesLiveConnections is a regression test for
// Shutdown/Listen hanging on an unresponsive peer: a client connects and
// never reads or writes anything, so it never replies to the server's
// Close frame. Shutdown must still return promptly by force-closing the
// socket directly, not by waiting on the peer.
func TestServerShutdownForceClosesLiveConnections(t *testing.T) {
	server := NewServer()
	connected := make(chan struct{}, 1)
	server.OnConnection(func(c *Connection) {
		connected <- struct{}{}
	})

	addr := reserveLoopbackAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenDone := make(chan error, 1)
	go func() {
		listenDone <- server.Listen(ctx, addr)
	}()
	waitForDialable(t, addr)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnection never fired")
	}

	if server.ActiveConnections() != 1 {
		t.Fatalf("expected 1 active connection before shutdown, got %d", server.ActiveConnections())
	}

	shutdownStart := time.Now()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if elapsed := time.Since(shutdownStart); elapsed > 1*time.Second {
		t.Errorf("expected Shutdown to return promptly by force-closing the live connection, took %v", elapsed)
	}

	select {
	case err := <-listenDone:
		if err != nil {
			t.Errorf("expected Listen to return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen never returned after Shutdown force-closed the live connection")
	}
}

// TestServerListenReturnsOnContextCancelWithLiveConnection is a
// regression test for the ctx-cancellation path (as opposed to an
// explicit Shutdown call): canceling ctx alone must also force-close
// live connections so Listen's s.wg.Wait() doesn't block forever.
func TestServerListenReturnsOnContextCancelWithLiveConnection(t *testing.T) {
	server := NewServer()
	connected := make(chan struct{}, 1)
	server.OnConnection(func(c *Connection) {
		connected <- struct{}{}
	})

	addr := reserveLoopbackAddr(t)
	ctx, cancel := context.WithCancel(context.Background())

	listenDone := make(chan error, 1)
	go func() {
		listenDone <- server.Listen(ctx, addr)
	}()
	waitForDialable(t, addr)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnection never fired")
	}

	cancel()

	select {
	case err := <-listenDone:
		if err != nil {
			t.Errorf("expected Listen to return nil on ctx cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Listen never returned after ctx cancellation with a live connection")
	}
}

func TestAcceptRetryListenerReturnsOnClosed(t *testing.T) {
	underlying, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	_ = underlying.Close()

	l := &acceptRetryListener{Listener: underlying, onError: func(error) {}}
	if _, err := l.Accept(); err == nil {
		t.Error("expected Accept on a closed listener to return an error")
	}
}
