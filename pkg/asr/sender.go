package asr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chuoibo/full-pipeline/pkg/audioio"
)

// CaptureSender owns the capture device and forwards its frames to the
// transcription backend.
//
// The device callback only pushes into the FrameQueue; Run pops frames with
// a bounded wait so it can observe cancellation promptly.
type CaptureSender struct {
	capture    audioio.Capture
	queue      *audioio.FrameQueue
	w          FrameWriter
	popTimeout time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stopErr  error

	sent atomic.Int64
}

// NewCaptureSender creates a sender. popTimeout bounds each queue wait;
// zero uses 100ms.
func NewCaptureSender(capture audioio.Capture, queue *audioio.FrameQueue, w FrameWriter, popTimeout time.Duration, logger *slog.Logger) *CaptureSender {
	if logger == nil {
		logger = slog.Default()
	}
	if popTimeout <= 0 {
		popTimeout = 100 * time.Millisecond
	}
	return &CaptureSender{
		capture:    capture,
		queue:      queue,
		w:          w,
		popTimeout: popTimeout,
		logger:     logger.With("component", "asr.sender"),
	}
}

// Start opens the capture device. Frames flow into the queue until Stop.
func (s *CaptureSender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	q := s.queue
	if err := s.capture.Start(func(f audioio.Frame) { q.Push(f) }); err != nil {
		return fmt.Errorf("asr: start capture: %w", err)
	}
	s.started = true

	s.logger.Info("capture started", "backend", s.capture.Name())
	return nil
}

// Run forwards frames until ctx is cancelled or a write fails.
// It returns nil on cancellation and an error wrapping ErrTransportClosed on
// write failure.
func (s *CaptureSender) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, ok := s.queue.Pop(s.popTimeout)
		if !ok {
			continue
		}

		if err := s.w.WriteFrame(frame.Data); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("frame write failed, stopping sender",
				"error", err,
				"seq", frame.Seq,
				"sent", s.sent.Load(),
			)
			return fmt.Errorf("%w: %w", ErrTransportClosed, err)
		}
		s.sent.Add(1)
	}
}

// Stop releases the capture device. It runs at most once and is a no-op
// if Start never succeeded.
func (s *CaptureSender) Stop() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return nil
	}

	s.stopOnce.Do(func() {
		s.stopErr = s.capture.Stop()
		s.logger.Info("capture released",
			"sent", s.sent.Load(),
			"dropped", s.queue.Dropped(),
		)
	})
	return s.stopErr
}

// Sent returns the number of frames written to the transport.
func (s *CaptureSender) Sent() int64 {
	return s.sent.Load()
}
