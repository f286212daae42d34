// Package tts synthesizes speech through hosted providers.
//
// A Provider turns (text, voice) into encoded audio, either as one buffer or
// as a stream of chunks. Playback duration is decoded from the audio itself
// (see Duration) so callers can pace delivery in real time.
//
//	provider, _ := tts.NewOpenAI(
//	    tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    tts.WithVoice("nova"),
//	)
//	defer provider.Close()
//
//	stream, _ := provider.Stream(ctx, "Xin chào", "")
//	audio, _ := tts.ReadAll(stream)
package tts

import (
	"bytes"
	"context"
	"io"
	"time"
)

// Provider is a speech synthesis backend. An empty voiceID selects the
// provider's configured voice.
type Provider interface {
	Synthesize(ctx context.Context, text, voiceID string) (*AudioResult, error)
	Stream(ctx context.Context, text, voiceID string) (AudioStream, error)

	// Name identifies the provider in logs, errors and cache keys.
	Name() string
	Close() error
}

// AudioStream yields audio chunks as the provider produces them. Read
// returns a nil chunk and nil error once the stream is complete.
type AudioStream interface {
	Read() ([]byte, error)
	Close() error
	Format() AudioFormat
}

// AudioResult is a complete synthesis.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // zero if unknown
	CharCount int
	LatencyMs int64 // time to first byte
}

// VoiceSettings tune the voice on providers that support it. Values other
// than Speed are in [0, 1].
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	SpeakerBoost    bool

	// Speed scales the speaking rate. Zero leaves the provider default.
	Speed float64
}

func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, SpeakerBoost: true}
}

// ReadAll drains s into one buffer and closes it.
func ReadAll(s AudioStream) ([]byte, error) {
	defer s.Close()

	var buf bytes.Buffer
	for {
		chunk, err := s.Read()
		if err != nil || chunk == nil {
			return buf.Bytes(), err
		}
		buf.Write(chunk)
	}
}

const streamChunkSize = 4096

// bufferStream serves an in-memory buffer as an AudioStream.
type bufferStream struct {
	data   []byte
	format AudioFormat
	closed bool
}

func newBufferStream(data []byte, format AudioFormat) *bufferStream {
	return &bufferStream{data: data, format: format}
}

func (s *bufferStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if len(s.data) == 0 {
		return nil, nil
	}
	n := min(streamChunkSize, len(s.data))
	chunk := s.data[:n]
	s.data = s.data[n:]
	return chunk, nil
}

func (s *bufferStream) Close() error {
	s.closed = true
	return nil
}

func (s *bufferStream) Format() AudioFormat { return s.format }

// bodyStream serves an HTTP response body as an AudioStream. Every chunk
// but the last is streamChunkSize bytes.
type bodyStream struct {
	body   io.ReadCloser
	format AudioFormat
	cancel context.CancelFunc
	done   bool
}

func newBodyStream(body io.ReadCloser, format AudioFormat, cancel context.CancelFunc) *bodyStream {
	return &bodyStream{body: body, format: format, cancel: cancel}
}

func (s *bodyStream) Read() ([]byte, error) {
	if s.done {
		return nil, nil
	}
	chunk := make([]byte, streamChunkSize)
	n, err := io.ReadFull(s.body, chunk)
	switch err {
	case nil:
		return chunk, nil
	case io.EOF:
		s.done = true
		return nil, nil
	case io.ErrUnexpectedEOF:
		s.done = true
		return chunk[:n], nil
	default:
		return nil, err
	}
}

func (s *bodyStream) Close() error {
	err := s.body.Close()
	if s.cancel != nil {
		s.cancel()
	}
	return err
}

func (s *bodyStream) Format() AudioFormat { return s.format }
