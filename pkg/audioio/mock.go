package audioio

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MockCapture stands in for a microphone. Every interval it synthesizes one
// frame of audio, silence unless a tone is configured, and hands it to the
// frame callback through a Framer exactly as a device backend would.
type MockCapture struct {
	cfg    Config
	logger *slog.Logger

	interval time.Duration
	tone     tone
	startErr error
	limit    int64 // 0 is unlimited

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}

	frames atomic.Int64
	starts atomic.Int64
	stops  atomic.Int64
}

// tone is a sine generator; a zero freq produces silence.
type tone struct {
	freq, amp float64
	phase     float64 // in samples
}

func (t *tone) fill(samples []int16, rate, channels int) {
	if t.freq <= 0 {
		clear(samples)
		return
	}
	step := 2 * math.Pi * t.freq / float64(rate)
	for i := 0; i < len(samples); i += channels {
		s := int16(t.amp * math.Sin(step*t.phase) * math.MaxInt16)
		for ch := range channels {
			samples[i+ch] = s
		}
		t.phase = math.Mod(t.phase+1, float64(rate))
	}
}

type MockCaptureOption func(*MockCapture)

// WithSineWave makes the mock produce a tone at frequency Hz with the given
// amplitude in [0, 1].
func WithSineWave(frequency, amplitude float64) MockCaptureOption {
	return func(m *MockCapture) { m.tone = tone{freq: frequency, amp: amplitude} }
}

// WithInterval sets the frame period. The default is the frame duration.
func WithInterval(d time.Duration) MockCaptureOption {
	return func(m *MockCapture) { m.interval = d }
}

// WithStartError makes Start fail with err.
func WithStartError(err error) MockCaptureOption {
	return func(m *MockCapture) { m.startErr = err }
}

// WithFrameLimit goes quiet after n frames.
func WithFrameLimit(n int64) MockCaptureOption {
	return func(m *MockCapture) { m.limit = n }
}

func NewMockCapture(cfg Config, logger *slog.Logger, opts ...MockCaptureOption) *MockCapture {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockCapture{
		cfg:      cfg,
		logger:   logger.With("component", "audioio.mock"),
		interval: cfg.FrameDuration(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.interval <= 0 {
		m.interval = 30 * time.Millisecond
	}
	return m
}

// Start begins producing frames. Starting a running capture is a no-op.
func (m *MockCapture) Start(onFrame func(Frame)) error {
	if m.startErr != nil {
		return m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	m.done = make(chan struct{})
	m.starts.Add(1)
	go m.run(ctx, onFrame, m.done)

	m.logger.Debug("mock capture started", "interval", m.interval, "tone_hz", m.tone.freq)
	return nil
}

func (m *MockCapture) run(ctx context.Context, onFrame func(Frame), done chan struct{}) {
	defer close(done)

	framer := NewFramer(m.cfg.FrameBytes())
	samples := make([]int16, m.cfg.FrameSamples*m.cfg.Channels)
	emit := func(f Frame) {
		m.frames.Add(1)
		onFrame(f)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if m.limit > 0 && m.frames.Load() >= m.limit {
			continue
		}
		m.tone.fill(samples, m.cfg.SampleRate, m.cfg.Channels)
		framer.Write(EncodeSamples(samples), emit)
	}
}

// Stop halts the generator and waits for it to exit. Stopping an idle
// capture is a no-op.
func (m *MockCapture) Stop() error {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop = nil
	m.mu.Unlock()

	if stop == nil {
		return nil
	}
	stop()
	<-done
	m.stops.Add(1)
	m.logger.Debug("mock capture stopped", "frames", m.frames.Load())
	return nil
}

func (m *MockCapture) Config() Config { return m.cfg }

func (m *MockCapture) Name() string { return string(BackendMock) }

// Starts counts successful opens.
func (m *MockCapture) Starts() int64 { return m.starts.Load() }

// Stops counts releases of an open capture.
func (m *MockCapture) Stops() int64 { return m.stops.Load() }

func (m *MockCapture) Stats() CaptureStats {
	m.mu.Lock()
	running := m.stop != nil
	m.mu.Unlock()
	return CaptureStats{Frames: m.frames.Load(), Running: running, Backend: m.Name()}
}

var _ Capture = (*MockCapture)(nil)
