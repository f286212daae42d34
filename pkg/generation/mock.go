package generation

import (
	"context"
	"io"
	"sync"
	"time"
)

// Mock is a scripted Provider. Every Stream call replays Deltas, pausing
// Delay before each one, or fails with Err when it is set.
type Mock struct {
	Deltas []string
	Delay  time.Duration
	Err    error

	mu       sync.Mutex
	counts   map[string]int
	requests []*Request
}

// NewMock returns a mock answering every request with deltas.
func NewMock(deltas ...string) *Mock {
	if len(deltas) == 0 {
		deltas = []string{"Mock response."}
	}
	return &Mock{Deltas: deltas}
}

// NewSlowMock returns a mock that waits delay before each delta.
func NewSlowMock(delay time.Duration, deltas ...string) *Mock {
	m := NewMock(deltas...)
	m.Delay = delay
	return m
}

// WithError returns a mock whose Stream always fails with err.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

func (m *Mock) Stream(ctx context.Context, req *Request) (Stream, error) {
	m.mu.Lock()
	m.count("Stream")
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return NewSliceStream(ctx, m.Delay, m.Deltas...), nil
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Close() error {
	m.mu.Lock()
	m.count("Close")
	m.mu.Unlock()
	return nil
}

// count must be called with mu held.
func (m *Mock) count(method string) {
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
}

// CallCount returns how many times method was called since the last Reset.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

// Requests returns the requests passed to Stream, oldest first.
func (m *Mock) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Request(nil), m.requests...)
}

// Reset forgets recorded calls and requests.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = nil
	m.requests = nil
}

// SliceStream replays fixed deltas. The last one carries FinishReason "stop".
type SliceStream struct {
	ctx    context.Context
	delay  time.Duration
	deltas []string

	mu     sync.Mutex
	closed bool
}

func NewSliceStream(ctx context.Context, delay time.Duration, deltas ...string) *SliceStream {
	return &SliceStream{ctx: ctx, delay: delay, deltas: deltas}
}

func (s *SliceStream) Recv() (*Chunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStreamClosed
	}
	if len(s.deltas) == 0 {
		s.mu.Unlock()
		return nil, io.EOF
	}
	delta := s.deltas[0]
	s.deltas = s.deltas[1:]
	last := len(s.deltas) == 0
	s.mu.Unlock()

	if err := s.wait(); err != nil {
		return nil, err
	}

	chunk := &Chunk{Delta: delta}
	if last {
		chunk.FinishReason = "stop"
	}
	return chunk, nil
}

func (s *SliceStream) wait() error {
	if s.delay <= 0 {
		return s.ctx.Err()
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SliceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ Provider = (*Mock)(nil)
