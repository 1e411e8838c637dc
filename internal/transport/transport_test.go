package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoopbackPairDeliversBytesBothWays(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")

	if !a.IsOpen() || !b.IsOpen() {
		t.Fatal("expected both ends open initially")
	}

	if err := a.Send([]byte{0x11, 0x22}); err != nil {
		t.Fatalf("a.Send: %v", err)
	}
	select {
	case got := <-b.Recv():
		if len(got) != 2 || got[0] != 0x11 || got[1] != 0x22 {
			t.Fatalf("got %x", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for b to receive")
	}

	if err := b.Send([]byte{0xAA}); err != nil {
		t.Fatalf("b.Send: %v", err)
	}
	select {
	case got := <-a.Recv():
		if len(got) != 1 || got[0] != 0xAA {
			t.Fatalf("got %x", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a to receive")
	}
}

func TestLoopbackSetOpenGatesSend(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	_ = b
	a.SetOpen(false)
	if a.IsOpen() {
		t.Fatal("expected closed after SetOpen(false)")
	}
	if err := a.Send([]byte{1}); err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestLoopbackCloseRejectsSend(t *testing.T) {
	a, b := NewLoopbackPair("a", "b")
	_ = b
	a.Close()
	if err := a.Send([]byte{1}); err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestNetBridgeRoundTripsOverWebsocket(t *testing.T) {
	server := NewNetBridge("server")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := server.ServeHTTP(w, r); err != nil {
			t.Errorf("ServeHTTP: %v", err)
		}
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	client := NewNetBridge("client")
	if err := client.Dial(wsURL); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !server.IsOpen() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !server.IsOpen() {
		t.Fatal("server-side connection never attached")
	}

	if err := client.Send([]byte("hello")); err != nil {
		t.Fatalf("client.Send: %v", err)
	}
	select {
	case got := <-server.Recv():
		if string(got) != "hello" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive")
	}
}
