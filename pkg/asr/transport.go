package asr

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport is a Transport over a gorilla websocket connection.
type WSTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the transcription backend at cfg.URL.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*WSTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("asr: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.DialTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("asr: dial %s: status %d: %w", cfg.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("asr: dial %s: %w", cfg.URL, err)
	}
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}

	logger.Info("connected to transcription backend", "url", cfg.URL)

	return NewWSTransport(conn, cfg.WriteTimeout, logger), nil
}

// NewWSTransport wraps an established connection.
func NewWSTransport(conn *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *WSTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSTransport{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "asr.transport"),
	}
}

// WriteFrame sends one PCM frame as a binary message.
func (t *WSTransport) WriteFrame(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	return nil
}

// ReadMessage returns the next text message. Binary messages are skipped.
func (t *WSTransport) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransportClosed, err)
		}
		if mt != websocket.TextMessage {
			t.logger.Debug("ignoring non-text message", "type", mt, "bytes", len(data))
			continue
		}
		return data, nil
	}
}

// Close sends a close frame and closes the connection. Safe to call more than once.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.closeErr = t.conn.Close()
		t.logger.Debug("transport closed")
	})
	return t.closeErr
}

var _ Transport = (*WSTransport)(nil)
