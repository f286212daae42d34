// Package generation streams text responses from a language model.
//
// Providers yield the response as incremental text deltas, which is what
// the segmenter needs to start synthesis before the response is complete.
//
// Example usage:
//
//	p, _ := generation.NewGemini(ctx,
//	    generation.WithAPIKey(os.Getenv("GOOGLE_API_KEY")),
//	    generation.WithModel("gemini-2.0-flash"),
//	)
//	defer p.Close()
//
//	stream, _ := p.Stream(ctx, generation.NewPrompt("", "Xin chào"))
//	for delta, err := range generation.Deltas(stream) {
//	    ...
//	}
package generation

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
)

// Provider generates streaming text responses.
type Provider interface {
	// Stream starts generating a response for req.
	Stream(ctx context.Context, req *Request) (Stream, error)

	// Name identifies the provider in logs and errors.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Stream is a streaming response.
type Stream interface {
	// Recv returns the next chunk. It returns io.EOF when the stream is complete.
	Recv() (*Chunk, error)

	// Close stops the stream and releases resources.
	Close() error
}

// Chunk is a piece of a streaming response.
type Chunk struct {
	// Delta is the incremental text content.
	Delta string

	// FinishReason indicates why generation stopped (stop, length, safety).
	FinishReason string

	// Done is true on the last chunk.
	Done bool
}

// Request for a streamed response.
type Request struct {
	// Messages is the prompt, system instruction first if present.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0). Zero uses the provider default.
	Temperature float64
}

// NewPrompt builds a request from an optional system instruction and a user prompt.
func NewPrompt(system, prompt string) *Request {
	req := &Request{}
	if system != "" {
		req.Messages = append(req.Messages, NewSystemMessage(system))
	}
	req.Messages = append(req.Messages, NewUserMessage(prompt))
	return req
}

// Deltas adapts a Stream into a lazy sequence of non-empty text deltas.
// The stream is closed when the sequence ends or the consumer stops.
func Deltas(s Stream) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if chunk == nil {
				return
			}
			if chunk.Delta != "" && !yield(chunk.Delta, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}
	}
}

// Collect reads a whole stream into one string.
func Collect(s Stream) (string, error) {
	var b strings.Builder
	for delta, err := range Deltas(s) {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(delta)
	}
	return b.String(), nil
}
