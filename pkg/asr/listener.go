package asr

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ListenerState is the lifecycle state of a Listener.
type ListenerState int32

const (
	// StateListening means the listener is consuming backend messages.
	StateListening ListenerState = iota
	// StateClosed means the listener has stopped for good.
	StateClosed
)

func (s ListenerState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler receives finalized utterances in continuous mode.
type Handler func(ctx context.Context, text string)

// Listener consumes transcript events and reports finalized utterances.
//
// A Listener is used once, in either continuous mode (Listen) or single-shot
// mode (Next). It never closes the underlying transport; the owner does.
type Listener struct {
	r      MessageReader
	logger *slog.Logger

	state atomic.Int32

	mu      sync.Mutex
	partial string

	onPartial      func(text string)
	dispatchBuffer int

	finals    atomic.Int64
	malformed atomic.Int64
	dropped   atomic.Int64
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithPartialHook is called for every non-final update, on the read goroutine.
func WithPartialHook(fn func(text string)) ListenerOption {
	return func(l *Listener) {
		l.onPartial = fn
	}
}

// WithDispatchBuffer sets how many finalized utterances may wait for the
// handler before new ones are dropped. Default: 16.
func WithDispatchBuffer(n int) ListenerOption {
	return func(l *Listener) {
		if n > 0 {
			l.dispatchBuffer = n
		}
	}
}

// NewListener creates a listener reading from r.
func NewListener(r MessageReader, logger *slog.Logger, opts ...ListenerOption) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		r:              r,
		logger:         logger.With("component", "asr.listener"),
		dispatchBuffer: 16,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current state.
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Partial returns the latest non-final transcript text.
func (l *Listener) Partial() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.partial
}

// Finals returns the number of finalized utterances seen.
func (l *Listener) Finals() int64 {
	return l.finals.Load()
}

// Malformed returns the number of messages that could not be decoded.
func (l *Listener) Malformed() int64 {
	return l.malformed.Load()
}

// Dropped returns the number of utterances dropped because the handler fell behind.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// Listen runs in continuous mode until the transport fails or ctx is done.
//
// Each finalized utterance is handed to handler on a separate dispatch
// goroutine, in arrival order, so a slow handler never blocks receiving.
// The handler context is cancelled when Listen returns; utterances still
// queued at that point are discarded. Listen waits for the running
// dispatch to finish before returning. The returned error
// wraps ErrTransportClosed when the backend connection ended.
func (l *Listener) Listen(ctx context.Context, handler Handler) error {
	if l.State() == StateClosed {
		return ErrListenerClosed
	}
	defer l.state.Store(int32(StateClosed))

	// dctx ends when Listen returns; finals still queued then are skipped.
	dctx, dcancel := context.WithCancel(ctx)
	queue := make(chan string, l.dispatchBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for text := range queue {
			if dctx.Err() != nil {
				continue
			}
			handler(dctx, text)
		}
	}()
	defer func() {
		dcancel()
		close(queue)
		<-done
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, ok, err := l.receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if !ok || !ev.IsFinal() {
			continue
		}

		text := ev.TextOrEmpty()
		select {
		case queue <- text:
		default:
			l.dropped.Add(1)
			l.logger.Warn("handler busy, dropping utterance", "text", text)
		}
	}
}

// Next runs in single-shot mode: it returns the first finalized utterance
// and closes the listener.
func (l *Listener) Next(ctx context.Context) (string, error) {
	if l.State() == StateClosed {
		return "", ErrListenerClosed
	}
	defer l.state.Store(int32(StateClosed))

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		ev, ok, err := l.receive()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		if ok && ev.IsFinal() {
			return ev.TextOrEmpty(), nil
		}
	}
}

// receive reads one message. ok is false for malformed input, which is
// logged and skipped. A non-nil error is terminal.
func (l *Listener) receive() (TranscriptEvent, bool, error) {
	data, err := l.r.ReadMessage()
	if err != nil {
		if !errors.Is(err, ErrTransportClosed) {
			err = errors.Join(ErrTransportClosed, err)
		}
		l.logger.Info("transcript stream ended", "error", err)
		return TranscriptEvent{}, false, err
	}

	ev, err := ParseEvent(data)
	if err != nil {
		l.malformed.Add(1)
		l.logger.Warn("skipping malformed transcript event", "error", err, "bytes", len(data))
		return TranscriptEvent{}, false, nil
	}

	if ev.IsFinal() {
		l.finals.Add(1)
		l.mu.Lock()
		l.partial = ""
		l.mu.Unlock()
		l.logger.Info("utterance finalized", "text", ev.TextOrEmpty())
		return ev, true, nil
	}

	if ev.Text != nil {
		text := *ev.Text
		l.mu.Lock()
		l.partial = text
		l.mu.Unlock()
		l.logger.Debug("partial transcript", "text", text)
		if l.onPartial != nil {
			l.onPartial(text)
		}
	}
	return ev, true, nil
}
