package asr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoBackend answers every binary frame with a transcript event.
func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			// Binary noise first, which the client must skip.
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x00})
			if len(data) >= 4 {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"text": "xin chao", "reset_session": true}`))
			} else {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"text": "xin"}`))
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestWSTransport_RoundTrip(t *testing.T) {
	srv := echoBackend(t)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Dial(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Close()

	if err := tr.WriteFrame([]byte{1, 2}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if err := tr.WriteFrame([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	l := NewListener(tr, nil)
	text, err := l.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if text != "xin chao" {
		t.Errorf("Expected %q, got %q", "xin chao", text)
	}
	if l.Partial() != "" {
		t.Errorf("Expected partial reset after final, got %q", l.Partial())
	}
}

func TestWSTransport_CloseIsIdempotent(t *testing.T) {
	srv := echoBackend(t)
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = wsURL(srv)

	tr, err := Dial(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	first := tr.Close()
	second := tr.Close()
	if second != first {
		t.Errorf("Second Close returned %v, first %v", second, first)
	}

	if _, err := tr.ReadMessage(); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed after Close, got %v", err)
	}
	if err := tr.WriteFrame([]byte{1}); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed on write after Close, got %v", err)
	}
}

func TestDial_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://127.0.0.1:1"
	cfg.DialTimeout = 500 * time.Millisecond

	if _, err := Dial(context.Background(), cfg, nil); err == nil {
		t.Fatal("Expected dial error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty url")
	}
}
