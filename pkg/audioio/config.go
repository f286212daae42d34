// Package audioio provides microphone capture for the transcription loop.
//
// Backends:
//   - malgo (miniaudio) - real capture device on Linux, macOS and Windows
//   - mock - synthetic frames for CI and tests without hardware
//
// Captured audio is re-framed into fixed-size PCM16 frames and handed to a
// FrameQueue, which decouples the real-time device callback from the
// network send loop.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the capture backend type.
type Backend string

const (
	// BackendMalgo captures from the default input device through miniaudio.
	BackendMalgo Backend = "malgo"
	// BackendMock generates synthetic frames for testing.
	BackendMock Backend = "mock"
)

// Fixed capture format expected by the transcription backend.
const (
	DefaultSampleRate    = 16000
	DefaultChannels      = 1
	DefaultFrameSamples  = 480 // 30ms at 16kHz
	DefaultQueueCapacity = 256 // ~7.7s of audio
	BytesPerSample       = 2   // signed 16-bit little-endian
)

// Config holds capture configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	// Default: "malgo"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// FrameSamples is the number of samples per channel in one frame.
	// Default: 480 (30ms at 16kHz)
	FrameSamples int `yaml:"frame_samples" json:"frame_samples"`

	// QueueCapacity bounds the number of frames buffered between the
	// device callback and the send loop. The oldest frame is dropped on overflow.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// PopTimeout is how long the send loop waits for a frame before
	// re-checking for cancellation.
	PopTimeout time.Duration `yaml:"pop_timeout" json:"pop_timeout"`
}

// DefaultConfig returns the fixed capture format: mono, 16-bit, 16kHz, 30ms frames.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendMalgo,
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		FrameSamples:  DefaultFrameSamples,
		QueueCapacity: DefaultQueueCapacity,
		PopTimeout:    100 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMalgo, BackendMock:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameSamples <= 0 {
		return fmt.Errorf("frame_samples must be positive, got %d", c.FrameSamples)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue_capacity must be positive, got %d", c.QueueCapacity)
	}
	if c.PopTimeout <= 0 {
		return fmt.Errorf("pop_timeout must be positive, got %v", c.PopTimeout)
	}
	return nil
}

// FrameBytes returns the size of one frame in bytes.
func (c *Config) FrameBytes() int {
	return c.FrameSamples * c.Channels * BytesPerSample
}

// FrameDuration returns the playback duration of one frame.
func (c *Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSamples) * time.Second / time.Duration(c.SampleRate)
}
