package server

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zero2005x/glasscam/internal/capture"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTransition(t *testing.T, conn *websocket.Conn) capture.Transition {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var tr capture.Transition
	if err := conn.ReadJSON(&tr); err != nil {
		t.Fatalf("read transition: %v", err)
	}
	return tr
}

func TestStateHub_Broadcast(t *testing.T) {
	hub := NewStateHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)

	// The client map is updated inside the handler goroutine; give the
	// upgrade a moment to land before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(capture.Transition{State: capture.StateCapturing})
	tr := readTransition(t, conn)
	if tr.State != capture.StateCapturing {
		t.Errorf("state = %v, want %v", tr.State, capture.StateCapturing)
	}

	hub.Broadcast(capture.Transition{State: capture.StateSuccess, Bytes: 12345})
	tr = readTransition(t, conn)
	if tr.State != capture.StateSuccess || tr.Bytes != 12345 {
		t.Errorf("transition = %+v, want success with 12345 bytes", tr)
	}
}

// Broadcasts from the controller worker must not collide with the replay
// write to a freshly connected client: the connection has a single writer.
func TestStateHub_BroadcastDuringConnects(t *testing.T) {
	hub := NewStateHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Broadcast(capture.Transition{State: capture.StateReady})

	stop := make(chan struct{})
	broadcastDone := make(chan struct{})
	go func() {
		defer close(broadcastDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				hub.Broadcast(capture.Transition{State: capture.StateCapturing, Bytes: i})
			}
		}
	}()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(time.Second))
			// Read a handful of transitions, replay included.
			for j := 0; j < 20; j++ {
				var tr capture.Transition
				if err := conn.ReadJSON(&tr); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-broadcastDone
}

func TestStateHub_DropsSlowClient(t *testing.T) {
	hub := NewStateHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	_ = conn // never read from: the client falls behind

	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Flood well past the client's backlog; the hub must shed the client
	// instead of blocking the broadcaster.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Broadcast(capture.Transition{State: capture.StateCapturing, Bytes: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}

	hub.mu.RLock()
	n := len(hub.clients)
	hub.mu.RUnlock()
	if n != 0 {
		t.Errorf("slow client still registered, %d clients", n)
	}
}

func TestStateHub_ReplaysLastToNewClient(t *testing.T) {
	hub := NewStateHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	hub.Broadcast(capture.Transition{State: capture.StateError, Message: "camera in use: held"})

	conn := dialHub(t, srv)
	tr := readTransition(t, conn)
	if tr.State != capture.StateError {
		t.Errorf("replayed state = %v, want %v", tr.State, capture.StateError)
	}
	if tr.Message == "" {
		t.Error("replayed transition should carry the failure message")
	}
}
