package audioio

import (
	"fmt"
	"log/slog"
)

// NewCapture creates a capture device for cfg.Backend.
func NewCapture(cfg Config, logger *slog.Logger) (Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating capture device",
		"backend", cfg.Backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameDuration().Milliseconds(),
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockCapture(cfg, logger), nil
	case BackendMalgo:
		return NewMalgoCapture(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// AvailableBackends returns the capture backends compiled into this binary.
func AvailableBackends() []Backend {
	return []Backend{BackendMalgo, BackendMock}
}
