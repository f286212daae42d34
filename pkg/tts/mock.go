package tts

import (
	"context"
	"sync"
	"time"
)

// MockBytesPerChar is how much audio Silence produces per character:
// 20 ms of 24 kHz mono PCM16.
const MockBytesPerChar = 960

// Mock is a scripted Provider. Stream serves the SynthesizeFunc result as a
// single buffered stream. A nil SynthesizeFunc makes every call fail with
// ErrUnavailable.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text, voiceID string) (*AudioResult, error)

	// Latency is waited out before each request, honoring cancellation.
	Latency time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded request.
type MockCall struct {
	Method  string
	Text    string
	VoiceID string
}

// NewMock returns a mock that answers with Silence.
func NewMock() *Mock {
	return &Mock{SynthesizeFunc: Silence}
}

// NewFixedMock returns a mock that answers every text with d of silence.
func NewFixedMock(d time.Duration) *Mock {
	audio := make([]byte, int(d*24000/time.Second)*2)
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text, voiceID string) (*AudioResult, error) {
			return &AudioResult{Audio: audio, Format: EncodingPCM24.Format(), CharCount: len(text), Duration: d}, nil
		},
	}
}

// WithError returns a mock whose every request fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(context.Context, string, string) (*AudioResult, error) {
			return nil, err
		},
	}
}

// WithLatency sets m.Latency and returns m.
func WithLatency(m *Mock, d time.Duration) *Mock {
	m.Latency = d
	return m
}

// Silence synthesizes MockBytesPerChar bytes of silent PCM24 per character.
func Silence(_ context.Context, text, _ string) (*AudioResult, error) {
	return &AudioResult{
		Audio:     make([]byte, len(text)*MockBytesPerChar),
		Format:    EncodingPCM24.Format(),
		CharCount: len(text),
		Duration:  time.Duration(len(text)) * 20 * time.Millisecond,
	}, nil
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Synthesize(ctx context.Context, text, voiceID string) (*AudioResult, error) {
	m.record("Synthesize", text, voiceID)
	return m.synthesize(ctx, text, voiceID)
}

func (m *Mock) Stream(ctx context.Context, text, voiceID string) (AudioStream, error) {
	m.record("Stream", text, voiceID)
	res, err := m.synthesize(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}
	return newBufferStream(res.Audio, res.Format), nil
}

func (m *Mock) synthesize(ctx context.Context, text, voiceID string) (*AudioResult, error) {
	if m.Latency > 0 {
		t := time.NewTimer(m.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.SynthesizeFunc == nil {
		return nil, WrapError("mock", ErrUnavailable)
	}
	return m.SynthesizeFunc(ctx, text, voiceID)
}

func (m *Mock) Close() error {
	m.record("Close", "", "")
	return nil
}

func (m *Mock) record(method, text, voiceID string) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, VoiceID: voiceID})
	m.mu.Unlock()
}

// Calls returns the recorded calls, oldest first.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns how many times method was called.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call, or nil.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
