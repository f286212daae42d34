package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrDuplicateSession is returned when a session id is already registered.
	ErrDuplicateSession = errors.New("hub: session already registered")

	// ErrShuttingDown is returned by Register after CancelAll.
	ErrShuttingDown = errors.New("hub: shutting down")
)

// Session is what the hub needs from a running session.
type Session interface {
	ID() string
	Close() error
}

type entry struct {
	session   Session
	client    *Client
	connected time.Time
}

// SessionInfo describes a registered session.
type SessionInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	Sent      int64     `json:"sent"`
}

// Hub maintains the set of active sessions. The server owns it; sessions
// never reference each other.
type Hub struct {
	// Name for logging
	name   string
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]entry
	closing  bool

	wg sync.WaitGroup
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:     name,
		logger:   logger.With("component", "hub", "hub", name),
		sessions: make(map[string]entry),
	}
}

// Register adds a session and the client it writes to. client may be nil.
func (h *Hub) Register(s Session, client *Client) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return ErrShuttingDown
	}
	if _, ok := h.sessions[s.ID()]; ok {
		h.mu.Unlock()
		return ErrDuplicateSession
	}
	h.sessions[s.ID()] = entry{session: s, client: client, connected: time.Now()}
	h.wg.Add(1)
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("session registered", "session", s.ID(), "total", count)
	return nil
}

// Remove drops a session. It reports false if the id was not registered,
// so concurrent removals release the session exactly once.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	_, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
		h.wg.Done()
	}
	count := len(h.sessions)
	h.mu.Unlock()

	if ok {
		h.logger.Info("session removed", "session", id, "remaining", count)
	}
	return ok
}

// Get returns a registered session.
func (h *Hub) Get(id string) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.sessions[id]
	return e.session, ok
}

// Count returns the number of registered sessions
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions returns info about all registered sessions
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(h.sessions))
	for id, e := range h.sessions {
		info := SessionInfo{ID: id, Connected: e.connected}
		if e.client != nil {
			info.Sent = e.client.Sent()
		}
		infos = append(infos, info)
	}
	return infos
}

// Broadcast queues m on every registered client without blocking and
// returns how many accepted it. Slow clients miss the message.
func (h *Hub) Broadcast(m Message) int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions))
	for _, e := range h.sessions {
		if e.client != nil {
			clients = append(clients, e.client)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.TrySend(m) {
			delivered++
		} else {
			h.logger.Warn("dropped message for slow client", "client", c.ID())
		}
	}
	return delivered
}

// CancelAll refuses new sessions and closes every registered one.
// Sessions remove themselves as they exit; see Wait.
func (h *Hub) CancelAll() {
	h.mu.Lock()
	h.closing = true
	sessions := make([]Session, 0, len(h.sessions))
	for _, e := range h.sessions {
		sessions = append(sessions, e.session)
	}
	h.mu.Unlock()

	h.logger.Info("cancelling sessions", "count", len(sessions))
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			h.logger.Warn("session close failed", "session", s.ID(), "error", err)
		}
	}
}

// Wait blocks until every registered session has been removed or ctx is
// done. Call it after CancelAll.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.logger.Warn("sessions still running at shutdown", "count", h.Count())
		return ctx.Err()
	}
}
