package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/lakefront-db/sparkbridge/protocol"
)

// newEchoServer starts a websocket server that runs handler per connection
// and returns the ws:// endpoint for it.
func newEchoServer(t *testing.T, handler websocket.Handler) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialSendReceive(t *testing.T) {
	endpoint := newEchoServer(t, func(conn *websocket.Conn) {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return
		}
		_ = websocket.Message.Send(conn, `{"state":"COMPLETED"}`)
	})

	tr, err := Dial(context.Background(), Options{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer tr.Close()

	if !tr.IsAlive() {
		t.Fatal("IsAlive() = false after Dial")
	}
	if err := tr.Send(context.Background(), []byte(`{"type":"code","exec_cmd":"pass"}`)); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	got, err := tr.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if string(got) != `{"state":"COMPLETED"}` {
		t.Errorf("frame = %q", got)
	}
}

func TestDialSendsHandshakeHeaders(t *testing.T) {
	headerCh := make(chan string, 1)
	endpoint := newEchoServer(t, func(conn *websocket.Conn) {
		headerCh <- conn.Request().Header.Get("Authorization")
		_ = websocket.Message.Send(conn, "ok")
	})

	headers := http.Header{}
	headers.Set("Authorization", "Bearer test-token")
	tr, err := Dial(context.Background(), Options{Endpoint: endpoint, Headers: headers})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer tr.Close()

	if _, err := tr.Receive(context.Background()); err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if got := <-headerCh; got != "Bearer test-token" {
		t.Errorf("Authorization header = %q", got)
	}
}

func TestDialRejectsEmptyEndpoint(t *testing.T) {
	_, err := Dial(context.Background(), Options{})
	te, ok := err.(*protocol.TransportError)
	if !ok || te.Code != protocol.ErrorCodeConnectFailed {
		t.Fatalf("error = %v, want connect error", err)
	}
}

func TestDialFailsOnRefusedConnection(t *testing.T) {
	// Reserve a port and close the listener so nothing is listening.
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := Dial(context.Background(), Options{
		Endpoint:       endpoint,
		ConnectTimeout: time.Second,
	})
	te, ok := err.(*protocol.TransportError)
	if !ok || te.Code != protocol.ErrorCodeConnectFailed {
		t.Fatalf("error = %v, want connect error", err)
	}
}

func TestReceiveAfterServerClose(t *testing.T) {
	endpoint := newEchoServer(t, func(conn *websocket.Conn) {
		_ = conn.Close()
	})

	tr, err := Dial(context.Background(), Options{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer tr.Close()

	_, err = tr.Receive(context.Background())
	te, ok := err.(*protocol.TransportError)
	if !ok || te.Code != protocol.ErrorCodeDisconnected {
		t.Fatalf("error = %v, want disconnected", err)
	}
	if tr.IsAlive() {
		t.Error("IsAlive() = true after disconnect")
	}
}

func TestReceiveHonorsContextDeadline(t *testing.T) {
	block := make(chan struct{})
	endpoint := newEchoServer(t, func(conn *websocket.Conn) {
		<-block
	})
	defer close(block)

	tr, err := Dial(context.Background(), Options{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Receive(ctx)
	te, ok := err.(*protocol.TransportError)
	if !ok || te.Code != protocol.ErrorCodeTimeout {
		t.Fatalf("error = %v, want timeout", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	endpoint := newEchoServer(t, func(conn *websocket.Conn) {
		var msg string
		_ = websocket.Message.Receive(conn, &msg)
	})

	tr, err := Dial(context.Background(), Options{Endpoint: endpoint})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if tr.IsAlive() {
		t.Error("IsAlive() = true after Close")
	}
}

func TestDeriveOrigin(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{endpoint: "wss://host.example.com/v1/session?id=3", want: "https://host.example.com"},
		{endpoint: "ws://localhost:8080/socket", want: "http://localhost:8080"},
	}
	for _, tt := range tests {
		got, err := deriveOrigin(tt.endpoint)
		if err != nil {
			t.Fatalf("deriveOrigin(%q) error: %v", tt.endpoint, err)
		}
		if got != tt.want {
			t.Errorf("deriveOrigin(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}
