package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chuoibo/full-pipeline/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

// OpenAI model options
const (
	ModelTTS1   = "tts-1"    // Standard quality, faster
	ModelTTS1HD = "tts-1-hd" // Higher quality, slower
)

// OpenAI implements Provider for the OpenAI speech endpoint. BaseURL may
// point at any server exposing a compatible /audio/speech route.
type OpenAI struct {
	config *Config
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	base := defaults()
	base.ModelID = ModelTTS1
	base.VoiceID = VoiceShimmer
	cfg := newConfig(base, opts...)
	if err := cfg.check(false); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceShimmer
	}
	if _, err := speechFormat(cfg.OutputFormat); err != nil {
		return nil, err
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = httpc.NewClient(0)

	return &OpenAI{
		config: cfg,
		client: openai.NewClientWithConfig(oc),
		logger: cfg.Logger.With("component", "tts.openai"),
	}, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string {
	return providerOpenAI
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text, voiceID string) (*AudioResult, error) {
	start := time.Now()

	if o.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.Timeout)
		defer cancel()
	}

	body, err := o.open(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	audio, err := io.ReadAll(body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}
	latency := time.Since(start).Milliseconds()

	format := o.config.OutputFormat.Format()
	dur, err := Duration(audio, format)
	if err != nil {
		o.logger.Warn("audio duration unknown", "error", err, "bytes", len(audio))
	}

	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.voiceOr(voiceID),
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  dur,
	}, nil
}

// Stream converts text to audio with streaming output.
func (o *OpenAI) Stream(ctx context.Context, text, voiceID string) (AudioStream, error) {
	cancel := func() {}
	if o.config.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.config.StreamTimeout)
	}

	body, err := o.open(ctx, text, voiceID)
	if err != nil {
		cancel()
		return nil, err
	}

	return newBodyStream(body, o.config.OutputFormat.Format(), cancel), nil
}

// Close releases resources held by the provider.
func (o *OpenAI) Close() error {
	return nil
}

func (o *OpenAI) open(ctx context.Context, text, voiceID string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	format, err := speechFormat(o.config.OutputFormat)
	if err != nil {
		return nil, err
	}

	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.config.ModelID),
		Input:          text,
		Voice:          openai.SpeechVoice(o.config.voiceOr(voiceID)),
		ResponseFormat: format,
		Speed:          o.config.VoiceSettings.Speed,
	}

	resp, err := o.client.CreateSpeech(ctx, req)
	if err != nil {
		return nil, o.mapError(err)
	}
	return resp, nil
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
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, err)
}

// speechFormat maps an Encoding onto the response formats the endpoint
// offers. Its raw PCM is always 24 kHz.
func speechFormat(enc Encoding) (openai.SpeechResponseFormat, error) {
	switch enc {
	case EncodingMP3, "":
		return openai.SpeechResponseFormatMp3, nil
	case EncodingOpus:
		return openai.SpeechResponseFormatOpus, nil
	case EncodingWAV:
		return openai.SpeechResponseFormatWav, nil
	case EncodingPCM24:
		return openai.SpeechResponseFormatPcm, nil
	default:
		return "", WrapError(providerOpenAI, fmt.Errorf("unsupported output format %q", enc))
	}
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
