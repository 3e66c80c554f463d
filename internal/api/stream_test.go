package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkmesh/linkmesh/internal/config"
	"github.com/linkmesh/linkmesh/internal/logging"
	"github.com/linkmesh/linkmesh/internal/models"
)

var upgrader = websocket.Upgrader{}

// newStreamServer runs a ws endpoint that answers every text message with
// the given frames in order, repeating the last one.
func newStreamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		i := 0
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			frame := frames[i]
			if i < len(frames)-1 {
				i++
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newStreamDialer(t *testing.T, baseURL string) *StreamDialer {
	t.Helper()
	cfg := config.New()
	cfg.APIBaseURL = baseURL
	return NewStreamDialer(cfg, logging.Nop())
}

func TestStreamPingAndReceive(t *testing.T) {
	server := newStreamServer(t, []string{
		`{"status":"running","progress":40,"message":"Computing similarities..."}`,
	})
	dialer := newStreamDialer(t, server.URL)

	ch, err := dialer.Dial(t.Context(), "abc123")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	if err := ch.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	frame, err := ch.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if frame.Status != models.StatusRunning || frame.Progress != 40 {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestStreamMalformedFrameIsProtocolError(t *testing.T) {
	server := newStreamServer(t, []string{
		`{"status":"running"}`,
		`{"status":"running","progress":50,"message":"ok"}`,
	})
	dialer := newStreamDialer(t, server.URL)

	ch, err := dialer.Dial(t.Context(), "abc123")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	if err := ch.Ping(); err != nil {
		t.Fatal(err)
	}
	_, err = ch.Receive()
	var perr *models.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *models.ProtocolError", err)
	}

	// The channel survives a bad frame.
	if err := ch.Ping(); err != nil {
		t.Fatal(err)
	}
	frame, err := ch.Receive()
	if err != nil {
		t.Fatalf("Receive after protocol error: %v", err)
	}
	if frame.Progress != 50 {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestStreamCloseIdempotent(t *testing.T) {
	server := newStreamServer(t, []string{`{"status":"queued","progress":0,"message":""}`})
	dialer := newStreamDialer(t, server.URL)

	ch, err := dialer.Dial(t.Context(), "abc123")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// A closed channel reports transport errors, not protocol errors.
	_, err = ch.Receive()
	if err == nil {
		t.Fatal("Receive on closed channel succeeded")
	}
	var perr *models.ProtocolError
	if errors.As(err, &perr) {
		t.Fatal("transport error misreported as protocol error")
	}
}

func TestStreamDialUnreachable(t *testing.T) {
	cfg := config.New()
	cfg.APIBaseURL = "http://127.0.0.1:1"
	dialer := NewStreamDialer(cfg, logging.Nop())
	dialer.dialer.HandshakeTimeout = 500 * time.Millisecond

	if _, err := dialer.Dial(t.Context(), "abc123"); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/abc123"},
		{"https://engine.example.com", "wss://engine.example.com/ws/abc123"},
		{"https://engine.example.com/api", "wss://engine.example.com/api/ws/abc123"},
	}
	for _, tt := range tests {
		cfg := config.New()
		cfg.APIBaseURL = tt.base
		d := NewStreamDialer(cfg, logging.Nop())
		got, err := d.wsURL("abc123")
		if err != nil {
			t.Fatalf("%s: %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.base, got, tt.want)
		}
	}
}
