package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chuoibo/full-pipeline/internal/httpc"
)

const providerOpenAI = "openai"

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI implements Provider for OpenAI-compatible chat completion APIs.
type OpenAI struct {
	client *openai.Client
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := newConfig(DefaultOpenAIModel, opts...)
	if err := cfg.check(); err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httpc.NewClient(0)

	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		config: cfg,
		logger: cfg.Logger.With("component", "generation.openai"),
	}, nil
}

// Stream starts a streamed chat completion.
func (o *OpenAI) Stream(ctx context.Context, req *Request) (Stream, error) {
	if len(req.Messages) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyPrompt)
	}

	model := req.Model
	if model == "" {
		model = o.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = o.config.Temperature
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	// The timeout only guards the request being accepted; the body is
	// read until the caller's context ends or the stream is closed.
	streamCtx, cancel := context.WithCancel(ctx)
	var timer *time.Timer
	if o.config.Timeout > 0 {
		timer = time.AfterFunc(o.config.Timeout, cancel)
	}

	o.logger.Debug("starting stream", "model", model, "messages", len(msgs))

	stream, err := o.client.CreateChatCompletionStream(streamCtx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: float32(temp),
		Stream:      true,
	})
	if timer != nil && !timer.Stop() && err == nil {
		err = context.DeadlineExceeded
		stream.Close()
	}
	if err != nil {
		cancel()
		return nil, o.mapError(err)
	}

	return &openaiStream{stream: stream, provider: o, cancel: cancel}, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string {
	return providerOpenAI
}

// Close releases resources.
func (o *OpenAI) Close() error {
	return nil
}

func (o *OpenAI) mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out := &APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Provider:   providerOpenAI,
		}
		if apiErr.Code != nil {
			out.Code = fmt.Sprint(apiErr.Code)
		}
		return out
	}
	return WrapError(providerOpenAI, err)
}

type openaiStream struct {
	stream   *openai.ChatCompletionStream
	provider *OpenAI
	cancel   context.CancelFunc
	closed   bool
}

func (s *openaiStream) Recv() (*Chunk, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}

	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, s.provider.mapError(err)
	}

	chunk := &Chunk{}
	if len(resp.Choices) > 0 {
		chunk.Delta = resp.Choices[0].Delta.Content
		if fr := resp.Choices[0].FinishReason; fr != "" {
			chunk.FinishReason = string(fr)
		}
	}
	return chunk, nil
}

func (s *openaiStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.stream.Close()
	s.cancel()
	return err
}

var _ Provider = (*OpenAI)(nil)
