package generation

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"google.golang.org/genai"

	"github.com/chuoibo/full-pipeline/internal/httpc"
)

const providerGemini = "gemini"

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini implements Provider using the Google Gen AI SDK.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := newConfig(DefaultGeminiModel, opts...)
	if err := cfg.check(); err != nil {
		return nil, WrapError(providerGemini, err)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewClient(0),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "generation.gemini"),
	}, nil
}

// Stream starts a streamed generation.
func (g *Gemini) Stream(ctx context.Context, req *Request) (Stream, error) {
	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		return nil, WrapError(providerGemini, ErrEmptyPrompt)
	}

	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	gc := &genai.GenerateContentConfig{}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	temp := req.Temperature
	if temp == 0 {
		temp = g.config.Temperature
	}
	if temp > 0 {
		gc.Temperature = genai.Ptr(float32(temp))
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	if maxTokens > 0 {
		gc.MaxOutputTokens = int32(maxTokens)
	}

	g.logger.Debug("starting stream", "model", model, "turns", len(contents))

	next, stop := iter.Pull2(g.client.Models.GenerateContentStream(ctx, model, contents, gc))
	return &geminiStream{next: next, stop: stop}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string {
	return providerGemini
}

// Close releases resources. The SDK client holds no connections of its own.
func (g *Gemini) Close() error {
	return nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
	done bool
}

func (s *geminiStream) Recv() (*Chunk, error) {
	if s.done {
		return nil, io.EOF
	}

	resp, err, ok := s.next()
	if !ok {
		s.done = true
		return nil, io.EOF
	}
	if err != nil {
		s.done = true
		return nil, WrapError(providerGemini, err)
	}

	chunk := &Chunk{Delta: resp.Text()}
	if len(resp.Candidates) > 0 {
		if fr := resp.Candidates[0].FinishReason; fr != "" && fr != genai.FinishReasonUnspecified {
			chunk.FinishReason = string(fr)
		}
	}
	return chunk, nil
}

func (s *geminiStream) Close() error {
	s.done = true
	s.stop()
	return nil
}

var _ Provider = (*Gemini)(nil)
