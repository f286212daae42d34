package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chuoibo/full-pipeline/pkg/asr"
	"github.com/chuoibo/full-pipeline/pkg/audioio"
	"github.com/chuoibo/full-pipeline/pkg/generation"
	"github.com/chuoibo/full-pipeline/pkg/protocol"
	"github.com/chuoibo/full-pipeline/pkg/speech"
	"github.com/chuoibo/full-pipeline/pkg/tts"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session outcomes, as counted by Collectors.Sessions.
const (
	outcomeCompleted     = "completed"
	outcomeCaptureFailed = "capture_failed"
	outcomeTransportLost = "transport_lost"
	outcomeOutboundLost  = "outbound_lost"
)

// Utterance dispositions, as counted by Collectors.Utterances.
const (
	dispositionAnswered    = "answered"
	dispositionEmpty       = "empty"
	dispositionInterrupted = "interrupted"
	dispositionDropped     = "dropped"
	dispositionAborted     = "aborted"
)

// Sink receives the outbound events of a session. Send is called from
// several goroutines and must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, msg *protocol.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg *protocol.Message) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, msg *protocol.Message) error {
	return f(ctx, msg)
}

// Deps are the collaborators of a Session. The session takes ownership of
// Capture and Transport and releases both on exit.
type Deps struct {
	Capture   audioio.Capture
	Transport asr.Transport
	Generator generation.Provider
	Synth     tts.Provider
	Out       Sink

	Logger     *slog.Logger
	Collectors *Collectors // nil creates unregistered collectors

	// EmitterOptions are passed to the speech emitter (e.g. a test clock).
	EmitterOptions []speech.Option
}

func (d *Deps) validate() error {
	switch {
	case d.Capture == nil:
		return errors.New("voice: capture is required")
	case d.Transport == nil:
		return errors.New("voice: transport is required")
	case d.Generator == nil:
		return errors.New("voice: generator is required")
	case d.Synth == nil:
		return errors.New("voice: synthesizer is required")
	case d.Out == nil:
		return errors.New("voice: outbound sink is required")
	}
	return nil
}

// Session runs the full pipeline for one client connection: microphone
// frames go to the transcription backend, finalized utterances are answered
// with paced synthesized speech on the outbound sink.
type Session struct {
	id         string
	cfg        Config
	logger     *slog.Logger
	collectors *Collectors

	transport asr.Transport
	sender    *asr.CaptureSender
	listener  *asr.Listener
	responder *Responder
	out       Sink

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	outErr error

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runDone   chan struct{}
	runs      sync.WaitGroup
	busy      atomic.Bool

	outOnce       sync.Once
	closeOnce     sync.Once
	closeErr      error
	transportOnce sync.Once
	transportErr  error
}

// NewSession validates cfg and deps and builds a session in StateConnecting.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collectors := deps.Collectors
	if collectors == nil {
		collectors = NewCollectors(nil)
	}

	id := uuid.NewString()
	logger = logger.With("session_id", id)

	var listenOpts []asr.ListenerOption
	if cfg.Overlap == OverlapQueue {
		listenOpts = append(listenOpts, asr.WithDispatchBuffer(cfg.QueueDepth))
	}
	listenOpts = append(listenOpts, asr.WithPartialHook(func(text string) {
		logger.Debug("partial transcript", "text", text)
	}))

	queue := audioio.NewFrameQueue(cfg.FrameQueueCapacity)

	return &Session{
		id:         id,
		cfg:        cfg,
		logger:     logger,
		collectors: collectors,
		transport:  deps.Transport,
		sender:     asr.NewCaptureSender(deps.Capture, queue, deps.Transport, cfg.PopTimeout, logger),
		listener:   asr.NewListener(deps.Transport, logger, listenOpts...),
		responder:  NewResponder(cfg, deps.Generator, deps.Synth, logger, deps.EmitterOptions...),
		out:        deps.Out,
		done:       make(chan struct{}),
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Turn returns the timeline of the session's responses.
func (s *Session) Turn() *Turn { return s.responder.Turn() }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run streams until ctx is cancelled or the session fails. It returns nil
// when ctx ended the session, or a *StageError describing the fatal
// failure. The session is torn down before Run returns.
func (s *Session) Run(parent context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(s.done)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.mu.Lock()
	if s.State() >= StateClosing {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		_ = s.Close()
		// Close may have run before Start; Stop releases the device once.
		_ = s.sender.Stop()
	}()

	if err := s.sender.Start(); err != nil {
		serr := &StageError{Stage: StageCapture, Err: err}
		s.logger.Error("capture failed", "error", err)
		s.sendFinal(parent, serr)
		s.collectors.Sessions.WithLabelValues(outcomeCaptureFailed).Inc()
		return serr
	}

	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateStreaming)) {
		return nil
	}
	s.collectors.ActiveSessions.Inc()
	defer s.collectors.ActiveSessions.Dec()
	s.logger.Info("session streaming", "overlap", s.cfg.Overlap)
	_ = s.send(ctx, protocol.NewStatusMessage(protocol.StatusReady))

	// Closing the transport unblocks the listener's pending read.
	stop := context.AfterFunc(ctx, func() { _ = s.closeTransport() })
	defer stop()

	senderErr := make(chan error, 1)
	go func() {
		err := s.sender.Run(ctx)
		if err != nil {
			cancel()
		}
		senderErr <- err
	}()

	listenErr := s.listener.Listen(ctx, s.handleUtterance)
	cancel()
	sendErr := <-senderErr
	s.runs.Wait()

	outcome, fatal := s.classifyEnd(sendErr, listenErr)
	s.collectors.Sessions.WithLabelValues(outcome).Inc()
	if fatal == nil {
		s.logger.Info("session ended", "frames_sent", s.sender.Sent(), "finals", s.listener.Finals())
		return nil
	}

	s.logger.Error("session failed", "error", fatal, "frames_sent", s.sender.Sent())
	if outcome != outcomeOutboundLost {
		s.sendFinal(parent, fatal)
	}
	return fatal
}

func (s *Session) classifyEnd(sendErr, listenErr error) (string, error) {
	if err := s.outboundErr(); err != nil {
		return outcomeOutboundLost, &StageError{Stage: StageOutbound, Err: err}
	}
	if sendErr != nil {
		return outcomeTransportLost, &StageError{Stage: StageTranscription, Err: sendErr}
	}
	if listenErr != nil && !errors.Is(listenErr, context.Canceled) && !errors.Is(listenErr, context.DeadlineExceeded) {
		return outcomeTransportLost, &StageError{Stage: StageTranscription, Err: listenErr}
	}
	return outcomeCompleted, nil
}

// Close tears the session down: it cancels any running response, releases
// the capture device and closes the transport. It runs at most once and is
// safe to call before, during or after Run.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.setState(StateClosing)
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		s.closeErr = errors.Join(s.sender.Stop(), s.closeTransport())
		s.setState(StateClosed)
		s.logger.Debug("session closed")
	})
	return s.closeErr
}

func (s *Session) closeTransport() error {
	s.transportOnce.Do(func() {
		s.transportErr = s.transport.Close()
	})
	return s.transportErr
}

// handleUtterance applies the overlap policy. It is called on the
// listener's dispatch goroutine, one utterance at a time.
func (s *Session) handleUtterance(ctx context.Context, text string) {
	switch s.cfg.Overlap {
	case OverlapQueue:
		s.runs.Add(1)
		s.respond(ctx, text, nil)

	case OverlapDrop:
		if !s.busy.CompareAndSwap(false, true) {
			s.logger.Warn("utterance dropped, response in progress", "text", text)
			s.collectors.Utterances.WithLabelValues(dispositionDropped).Inc()
			return
		}
		s.runs.Add(1)
		go s.respond(ctx, text, func() { s.busy.Store(false) })

	default:
		if s.interrupt() {
			s.collectors.Utterances.WithLabelValues(dispositionInterrupted).Inc()
			_ = s.send(ctx, protocol.NewStatusMessage(protocol.StatusInterrupted))
		}
		if ctx.Err() != nil {
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		s.runMu.Lock()
		s.runCancel, s.runDone = cancel, done
		s.runMu.Unlock()

		s.runs.Add(1)
		go s.respond(runCtx, text, func() {
			cancel()
			close(done)
		})
	}
}

// interrupt cancels the running response and waits for it to exit.
// It reports whether a response was still running.
func (s *Session) interrupt() bool {
	s.runMu.Lock()
	cancel, done := s.runCancel, s.runDone
	s.runCancel, s.runDone = nil, nil
	s.runMu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
	}
	cancel()
	<-done
	return true
}

func (s *Session) respond(ctx context.Context, text string, finish func()) {
	defer s.runs.Done()
	if finish != nil {
		defer finish()
	}

	err := s.pipeline(ctx, text)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		s.logger.Debug("response cancelled", "text", text)
	default:
		stage, _ := StageOf(err)
		s.logger.Warn("response aborted", "stage", stage, "error", err)
		s.collectors.Utterances.WithLabelValues(dispositionAborted).Inc()
		if stage != StageOutbound {
			s.collectors.StageErrors.WithLabelValues(string(stage)).Inc()
			_ = s.send(ctx, protocol.NewErrorMessage(err))
		}
	}
}

// pipeline answers one finalized utterance.
func (s *Session) pipeline(ctx context.Context, text string) error {
	s.responder.Begin()
	s.logger.Info("utterance finalized", "text", text)

	if err := s.send(ctx, protocol.NewTranscriptionMessage(text)); err != nil {
		return err
	}

	query := s.responder.Preprocess(text)
	if err := s.send(ctx, protocol.NewResponseMessage(query)); err != nil {
		return err
	}
	if query == "" {
		s.logger.Debug("empty query after preprocessing", "text", text)
		s.collectors.Utterances.WithLabelValues(dispositionEmpty).Inc()
		return nil
	}

	if err := s.send(ctx, protocol.NewTTSStartingMessage()); err != nil {
		return err
	}

	for chunk, err := range s.responder.Respond(ctx, query) {
		if err != nil {
			return err
		}
		s.observe(chunk)
		if err := s.send(ctx, protocol.NewTTSUpdateMessage(chunk)); err != nil {
			return err
		}
	}

	if err := s.send(ctx, protocol.NewTTSCompleteMessage()); err != nil {
		return err
	}

	st := s.responder.Turn().Stats()
	s.logger.Info("response delivered", "chunks", st.Chunks, "latency", st.String())
	s.collectors.Utterances.WithLabelValues(dispositionAnswered).Inc()
	return nil
}

func (s *Session) observe(c speech.AudioChunk) {
	s.collectors.Chunks.Inc()
	s.collectors.PlaybackDuration.Observe(c.PlaybackDuration.Seconds())
	s.collectors.PaceDelay.Observe(c.PaceDelay.Seconds())
	if c.Metrics == nil {
		return
	}
	if d := c.Metrics.GenerationLatency; d != nil {
		s.collectors.GenerationLatency.Observe(d.Seconds())
	}
	if d := c.Metrics.FirstAudioLatency; d != nil {
		s.collectors.FirstAudioLatency.Observe(d.Seconds())
	}
}

// send delivers msg. A sink failure not caused by cancellation is fatal to
// the session.
func (s *Session) send(ctx context.Context, msg *protocol.Message) error {
	if err := s.out.Send(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.outOnce.Do(func() {
			s.logger.Error("outbound channel failed", "error", err, "type", msg.Type)
			s.mu.Lock()
			s.outErr = err
			cancel := s.cancel
			s.mu.Unlock()
			if cancel != nil {
				cancel()
			}
		})
		return &StageError{Stage: StageOutbound, Err: err}
	}
	return nil
}

func (s *Session) outboundErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outErr
}

// sendFinal reports a fatal error while the client may still be listening.
func (s *Session) sendFinal(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if serr := s.out.Send(ctx, protocol.NewErrorMessage(err)); serr != nil {
		s.logger.Debug("final error event not delivered", "error", serr)
	}
}
