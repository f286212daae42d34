// Package speech turns text chunks into audio chunks released at playback pace.
//
// The Emitter synthesizes each chunk, decodes its playback duration, and
// then holds the next chunk back for max(0, playback - processing) so a
// client that plays chunks back to back never receives audio faster than
// it can play it.
package speech

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/chuoibo/full-pipeline/pkg/textseg"
	"github.com/chuoibo/full-pipeline/pkg/tts"
)

// ErrSynthesis marks failures of the synthesis backend.
var ErrSynthesis = errors.New("speech: synthesis failed")

// Metrics are the per-turn latencies reported with the first chunk of a response.
// A nil field means the reference mark was not recorded.
type Metrics struct {
	GenerationLatency *time.Duration
	FirstAudioLatency *time.Duration
}

// AudioChunk is one synthesized, paced piece of a response.
type AudioChunk struct {
	Text             string
	Sequence         int
	Audio            []byte
	Format           tts.AudioFormat
	PlaybackDuration time.Duration
	ProcessingTime   time.Duration
	PaceDelay        time.Duration

	// Metrics is set on the first chunk of each response only.
	Metrics *Metrics
}

// Marks supplies the reference times of the response turn being emitted.
// Zero values mean "not recorded".
type Marks interface {
	SpeechEnd() time.Time
	FirstToken() time.Time
}

// PaceDelay is how long to wait after releasing a chunk of the given
// playback duration that took processing to produce.
func PaceDelay(playback, processing time.Duration) time.Duration {
	return max(0, playback-processing)
}

// Emitter synthesizes and paces text chunks.
type Emitter struct {
	provider tts.Provider
	voiceID  string
	logger   *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) { e.logger = l }
}

// WithClock replaces the time source and the pacing wait.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Emitter) {
		e.now = now
		e.sleep = sleep
	}
}

// NewEmitter creates an Emitter that synthesizes with provider in voiceID.
func NewEmitter(provider tts.Provider, voiceID string, opts ...Option) *Emitter {
	e := &Emitter{
		provider: provider,
		voiceID:  voiceID,
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "speech.emitter")
	return e
}

// VoiceID returns the voice used for synthesis.
func (e *Emitter) VoiceID() string {
	return e.voiceID
}

// Emit returns a lazy sequence of audio chunks for chunks. Each chunk is
// synthesized only when the consumer asks for it, and after yielding a
// chunk the sequence waits out its pace delay before pulling the next.
// An upstream or synthesis error is yielded once and ends the sequence.
// Cancelling ctx during a wait yields ctx.Err().
func (e *Emitter) Emit(ctx context.Context, chunks iter.Seq2[textseg.TextChunk, error], marks Marks) iter.Seq2[AudioChunk, error] {
	return func(yield func(AudioChunk, error) bool) {
		first := true
		for chunk, err := range chunks {
			if err != nil {
				yield(AudioChunk{}, err)
				return
			}
			if strings.TrimSpace(chunk.Text) == "" {
				continue
			}

			ac, err := e.synthesize(ctx, chunk)
			if err != nil {
				yield(AudioChunk{}, err)
				return
			}
			if first {
				ac.Metrics = turnMetrics(marks, ac.firstAudio)
				first = false
			}

			if !yield(ac.AudioChunk, nil) {
				return
			}

			if ac.PaceDelay > 0 {
				if err := e.sleep(ctx, ac.PaceDelay); err != nil {
					yield(AudioChunk{}, err)
					return
				}
			}
		}
	}
}

type synthesized struct {
	AudioChunk
	firstAudio time.Time
}

func (e *Emitter) synthesize(ctx context.Context, chunk textseg.TextChunk) (synthesized, error) {
	start := e.now()

	stream, err := e.provider.Stream(ctx, chunk.Text, e.voiceID)
	if err != nil {
		return synthesized{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	defer stream.Close()

	var (
		audio      []byte
		firstAudio time.Time
	)
	for {
		b, err := stream.Read()
		if err != nil {
			return synthesized{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
		}
		if b == nil {
			break
		}
		if len(b) > 0 && firstAudio.IsZero() {
			firstAudio = e.now()
		}
		audio = append(audio, b...)
	}

	format := stream.Format()
	playback, err := tts.Duration(audio, format)
	if err != nil {
		return synthesized{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	processing := e.now().Sub(start)
	pace := PaceDelay(playback, processing)

	e.logger.Debug("chunk synthesized",
		"seq", chunk.Sequence,
		"bytes", len(audio),
		"playback", playback,
		"processing", processing,
		"pace", pace,
	)

	return synthesized{
		AudioChunk: AudioChunk{
			Text:             chunk.Text,
			Sequence:         chunk.Sequence,
			Audio:            audio,
			Format:           format,
			PlaybackDuration: playback,
			ProcessingTime:   processing,
			PaceDelay:        pace,
		},
		firstAudio: firstAudio,
	}, nil
}

func turnMetrics(marks Marks, firstAudio time.Time) *Metrics {
	m := &Metrics{}
	if marks == nil {
		return m
	}
	end := marks.SpeechEnd()
	if end.IsZero() {
		return m
	}
	if tok := marks.FirstToken(); !tok.IsZero() {
		d := tok.Sub(end)
		m.GenerationLatency = &d
	}
	if !firstAudio.IsZero() {
		d := firstAudio.Sub(end)
		m.FirstAudioLatency = &d
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
