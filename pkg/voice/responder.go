package voice

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/chuoibo/full-pipeline/pkg/generation"
	"github.com/chuoibo/full-pipeline/pkg/speech"
	"github.com/chuoibo/full-pipeline/pkg/textseg"
	"github.com/chuoibo/full-pipeline/pkg/tts"
)

// Responder turns one preprocessed query into paced audio chunks:
// generation deltas are segmented, synthesized and paced in turn.
//
// A Responder keeps the segment sequence across calls, so all responses of
// one session share a gapless numbering. Calls must not overlap.
type Responder struct {
	cfg     Config
	pre     *Preprocessor
	gen     generation.Provider
	seg     *textseg.Segmenter
	emitter *speech.Emitter
	turn    *Turn
}

// NewResponder wires a Responder from cfg and the two providers.
func NewResponder(cfg Config, gen generation.Provider, synth tts.Provider, logger *slog.Logger, opts ...speech.Option) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]speech.Option{speech.WithLogger(logger)}, opts...)
	return &Responder{
		cfg:     cfg,
		pre:     NewPreprocessor(cfg),
		gen:     gen,
		seg:     textseg.New(textseg.WithMaxWords(cfg.MaxWords), textseg.WithLogger(logger)),
		emitter: speech.NewEmitter(synth, cfg.VoiceID, opts...),
		turn:    NewTurn(),
	}
}

// Preprocess cleans a finalized utterance into a query.
func (r *Responder) Preprocess(text string) string {
	return r.pre.Preprocess(text)
}

// Turn returns the timeline of the current response.
func (r *Responder) Turn() *Turn {
	return r.turn
}

// Begin starts a new response turn. Latencies are measured from here.
func (r *Responder) Begin() {
	r.turn.Begin()
}

// Request builds the generation request for query.
func (r *Responder) Request(query string) *generation.Request {
	req := generation.NewPrompt(r.cfg.SystemPrompt, r.pre.Prompt(query))
	req.Model = r.cfg.Model
	req.MaxTokens = r.cfg.MaxTokens
	req.Temperature = r.cfg.Temperature
	return req
}

// Respond streams the audio answer to query. Errors are yielded once as
// *StageError, except cancellation which is yielded as ctx.Err().
func (r *Responder) Respond(ctx context.Context, query string) iter.Seq2[speech.AudioChunk, error] {
	return func(yield func(speech.AudioChunk, error) bool) {
		stream, err := r.gen.Stream(ctx, r.Request(query))
		if err != nil {
			yield(speech.AudioChunk{}, classify(ctx, &StageError{Stage: StageGeneration, Err: err}))
			return
		}

		chunks := r.seg.Segment(countDeltas(generation.Deltas(stream), r.turn.Delta))
		for ac, err := range r.emitter.Emit(ctx, chunks, r.turn) {
			if err != nil {
				yield(speech.AudioChunk{}, classify(ctx, err))
				return
			}
			r.turn.Chunk()
			if !yield(ac, nil) {
				return
			}
		}
		r.turn.Finish()
	}
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, speech.ErrSynthesis) {
		return &StageError{Stage: StageSynthesis, Err: err}
	}
	return &StageError{Stage: StageGeneration, Err: err}
}

// countDeltas calls count for every delta that passes through.
func countDeltas(deltas iter.Seq2[string, error], count func()) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for d, err := range deltas {
			if err == nil {
				count()
			}
			if !yield(d, err) {
				return
			}
		}
	}
}
