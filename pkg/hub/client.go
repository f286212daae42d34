package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/chuoibo/full-pipeline/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound control traffic; clients only send pongs
	maxMessageSize = 64 * 1024

	// sendBuffer is how many events may wait for the writer
	sendBuffer = 256
)

// ErrClientClosed is returned by Send once the connection is gone.
var ErrClientClosed = errors.New("hub: client closed")

// Conn is the part of a websocket connection a Client uses.
// *websocket.Conn from gofiber/websocket satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents a single websocket connection
type Client struct {
	id     string
	conn   Conn
	logger *slog.Logger
	send   chan Message

	mu     sync.RWMutex
	closed bool

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	written   chan struct{} // closed when the write pump exits
	gone      chan struct{} // closed when the read pump exits
	goneOnce  sync.Once

	sent atomic.Int64
}

// NewClient wraps conn. Call Start to run its pumps.
func NewClient(conn Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		logger:  logger.With("component", "hub.client", "client", id),
		send:    make(chan Message, sendBuffer), // Buffered channel for backpressure
		written: make(chan struct{}),
		gone:    make(chan struct{}),
	}
}

// ID returns the client id.
func (c *Client) ID() string { return c.id }

// Start launches the read and write pumps.
func (c *Client) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.writePump()
		go c.readPump()
	})
}

// Disconnected is closed when the peer hangs up or the read side fails.
func (c *Client) Disconnected() <-chan struct{} { return c.gone }

// Send queues an event for the writer. It blocks while the buffer is full,
// until ctx is done or the connection goes away.
func (c *Client) Send(ctx context.Context, msg *protocol.Message) error {
	m, err := Encode(msg)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case <-c.written:
		return ErrClientClosed
	case <-c.gone:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.written:
		return ErrClientClosed
	case <-c.gone:
		return ErrClientClosed
	}
}

// TrySend queues m without blocking. It reports false when the client is
// closed or too slow.
func (c *Client) TrySend(m Message) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// Sent returns the number of frames written to the socket.
func (c *Client) Sent() int64 { return c.sent.Load() }

// Close stops accepting events, lets the writer flush what is queued, then
// sends a close frame. It waits at most timeout for the flush.
func (c *Client) Close(timeout time.Duration) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		if !c.started.Load() {
			c.conn.Close()
			return
		}
		select {
		case <-c.written:
		case <-time.After(timeout):
			c.logger.Warn("client flush timed out", "pending", len(c.send))
		}
		c.conn.Close()
	})
}

// readPump reads messages from the websocket connection
// It keeps the connection alive and detects disconnection
func (c *Client) readPump() {
	defer c.goneOnce.Do(func() { close(c.gone) })

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// We don't expect messages from clients, but we need to read
		// to detect disconnection and receive pong responses
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logger.Debug("client read ended", "error", err)
			return
		}
	}
}

// writePump writes messages to the websocket connection
// Only this goroutine writes to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.written)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Closed by Close - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
				c.logger.Debug("client write failed", "error", err)
				return
			}
			c.sent.Add(1)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
