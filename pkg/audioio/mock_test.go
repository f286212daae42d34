package audioio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMockCapture_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	c := NewMockCapture(cfg, nil, WithInterval(5*time.Millisecond))

	// Stop before Start should be a no-op
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop before Start failed: %v", err)
	}

	if err := c.Start(func(Frame) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Starting again should be a no-op
	if err := c.Start(func(Frame) {}); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	if c.Starts() != 1 {
		t.Errorf("Expected 1 start, got %d", c.Starts())
	}
	if c.Stops() != 1 {
		t.Errorf("Expected 1 stop, got %d", c.Stops())
	}
}

func TestMockCapture_Frames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	c := NewMockCapture(cfg, nil, WithInterval(2*time.Millisecond), WithSineWave(440, 0.5))
	q := NewFrameQueue(64)

	if err := c.Start(func(f Frame) { q.Push(f) }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer c.Stop()

	f, ok := q.Pop(time.Second)
	if !ok {
		t.Fatal("No frame captured")
	}
	if len(f.Data) != cfg.FrameBytes() {
		t.Errorf("Expected %d bytes, got %d", cfg.FrameBytes(), len(f.Data))
	}
	if f.Seq != 1 {
		t.Errorf("Expected first seq 1, got %d", f.Seq)
	}
	if got := f.Duration(cfg.SampleRate, cfg.Channels); got != 30*time.Millisecond {
		t.Errorf("Expected 30ms frame, got %v", got)
	}

	nonZero := false
	for _, s := range f.Samples() {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("Expected sine wave samples, got silence")
	}
}

func TestMockCapture_FrameLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	var mu sync.Mutex
	var got int
	c := NewMockCapture(cfg, nil, WithInterval(time.Millisecond), WithFrameLimit(3))
	if err := c.Start(func(Frame) {
		mu.Lock()
		got++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	if got != 3 {
		t.Errorf("Expected 3 frames, got %d", got)
	}
}

func TestMockCapture_StartError(t *testing.T) {
	cfg := DefaultConfig()
	c := NewMockCapture(cfg, nil, WithStartError(ErrDeviceUnavailable))

	err := c.Start(func(Frame) {})
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if c.Starts() != 0 {
		t.Errorf("Expected no successful start, got %d", c.Starts())
	}
}

func TestFramer(t *testing.T) {
	fr := NewFramer(4)

	var frames []Frame
	emit := func(f Frame) { frames = append(frames, f) }

	fr.Write([]byte{1, 2, 3}, emit)
	if len(frames) != 0 {
		t.Fatalf("Expected no frame yet, got %d", len(frames))
	}

	fr.Write([]byte{4, 5, 6, 7, 8, 9}, emit)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if fr.Pending() != 1 {
		t.Errorf("Expected 1 pending byte, got %d", fr.Pending())
	}

	want := [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i, f := range frames {
		if string(f.Data) != string(want[i]) {
			t.Errorf("Frame %d: got %v, want %v", i, f.Data, want[i])
		}
		if f.Seq != uint64(i+1) {
			t.Errorf("Frame %d: seq %d", i, f.Seq)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"mock", func(c *Config) { c.Backend = BackendMock }, false},
		{"unknown backend", func(c *Config) { c.Backend = "alsa" }, true},
		{"zero rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"zero frame", func(c *Config) { c.FrameSamples = 0 }, true},
		{"zero queue", func(c *Config) { c.QueueCapacity = 0 }, true},
		{"zero timeout", func(c *Config) { c.PopTimeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig_Format(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.FrameBytes() != 960 {
		t.Errorf("Expected 960-byte frames, got %d", cfg.FrameBytes())
	}
	if cfg.FrameDuration() != 30*time.Millisecond {
		t.Errorf("Expected 30ms frames, got %v", cfg.FrameDuration())
	}
}

func TestNewCapture(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock

	c, err := NewCapture(cfg, nil)
	if err != nil {
		t.Fatalf("NewCapture failed: %v", err)
	}
	if c.Name() != "mock" {
		t.Errorf("Expected mock backend, got %s", c.Name())
	}

	cfg.Backend = "bogus"
	if _, err := NewCapture(cfg, nil); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
