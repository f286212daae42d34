package audioio

import (
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned when the capture device cannot be opened.
var ErrDeviceUnavailable = errors.New("audioio: capture device unavailable")

// Frame is one fixed-size block of PCM16 audio as produced by the capture device.
type Frame struct {
	// Data contains little-endian signed 16-bit samples.
	Data []byte

	// Seq is the capture order of this frame, starting at 1.
	Seq uint64
}

// Samples decodes the frame into PCM16 samples.
func (f Frame) Samples() []int16 {
	samples := make([]int16, len(f.Data)/2)
	for i := range samples {
		samples[i] = int16(f.Data[i*2]) | int16(f.Data[i*2+1])<<8
	}
	return samples
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration(sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (BytesPerSample * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// EncodeSamples encodes PCM16 samples as little-endian bytes.
func EncodeSamples(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Capture is a microphone that delivers frames to a callback.
//
// The callback runs on the device's real-time thread and must not block;
// pushing into a FrameQueue is the intended use.
type Capture interface {
	// Start opens the device and begins delivering frames to onFrame.
	Start(onFrame func(Frame)) error

	// Stop halts capture and releases the device.
	// It is safe to call Stop multiple times and before Start.
	Stop() error

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name (e.g., "malgo", "mock").
	Name() string
}

// CaptureStats contains statistics about a capture device.
type CaptureStats struct {
	// Frames is the total number of frames delivered.
	Frames int64 `json:"frames"`

	// Running indicates if the device is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the capture backend.
	Backend string `json:"backend"`
}
