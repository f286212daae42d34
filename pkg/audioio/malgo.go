package audioio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoCapture records from the default input device using miniaudio.
type MalgoCapture struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	frames atomic.Int64
}

// NewMalgoCapture creates a capture for the default input device.
// The device is not opened until Start.
func NewMalgoCapture(cfg Config, logger *slog.Logger) *MalgoCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoCapture{
		cfg:    cfg,
		logger: logger.With("component", "audioio.malgo"),
	}
}

// Start opens the device and delivers fixed-size frames to onFrame.
func (m *MalgoCapture) Start(onFrame func(Frame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime

	actx, err := malgo.InitContext(nil, ctxCfg, func(msg string) {
		m.logger.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return fmt.Errorf("%w: init context: %w", ErrDeviceUnavailable, err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(m.cfg.Channels)
	devCfg.SampleRate = uint32(m.cfg.SampleRate)
	devCfg.PeriodSizeInFrames = uint32(m.cfg.FrameSamples)

	framer := NewFramer(m.cfg.FrameBytes())
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			framer.Write(input, func(f Frame) {
				m.frames.Add(1)
				onFrame(f)
			})
		},
	}

	device, err := malgo.InitDevice(actx.Context, devCfg, callbacks)
	if err != nil {
		_ = actx.Uninit()
		actx.Free()
		return fmt.Errorf("%w: init device: %w", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = actx.Uninit()
		actx.Free()
		return fmt.Errorf("%w: start device: %w", ErrDeviceUnavailable, err)
	}

	m.ctx = actx
	m.device = device

	m.logger.Info("capture started",
		"sample_rate", m.cfg.SampleRate,
		"channels", m.cfg.Channels,
		"frame_samples", m.cfg.FrameSamples,
	)
	return nil
}

// Stop halts capture and releases the device and context.
func (m *MalgoCapture) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return nil
	}

	var stopErr error
	if err := m.device.Stop(); err != nil {
		stopErr = fmt.Errorf("stop device: %w", err)
	}
	m.device.Uninit()
	m.device = nil

	if err := m.ctx.Uninit(); err != nil && stopErr == nil {
		stopErr = fmt.Errorf("uninit context: %w", err)
	}
	m.ctx.Free()
	m.ctx = nil

	m.logger.Info("capture stopped", "frames", m.frames.Load())
	return stopErr
}

// Config returns the capture configuration.
func (m *MalgoCapture) Config() Config {
	return m.cfg
}

// Name returns "malgo".
func (m *MalgoCapture) Name() string {
	return string(BackendMalgo)
}

// Stats returns capture statistics.
func (m *MalgoCapture) Stats() CaptureStats {
	m.mu.Lock()
	running := m.device != nil
	m.mu.Unlock()

	return CaptureStats{
		Frames:  m.frames.Load(),
		Running: running,
		Backend: m.Name(),
	}
}

var _ Capture = (*MalgoCapture)(nil)
