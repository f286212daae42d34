package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chuoibo/full-pipeline/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs.
const (
	ModelTurboV2_5      = "eleven_turbo_v2_5"      // fastest, English
	ModelFlashV2_5      = "eleven_flash_v2_5"      // fastest, multilingual
	ModelMultilingualV2 = "eleven_multilingual_v2" // highest quality
)

// ElevenLabs synthesizes through the ElevenLabs text-to-speech endpoints.
// Synthesize retries temporary failures; Stream does not.
type ElevenLabs struct {
	cfg     *Config
	baseURL string
	logger  *slog.Logger

	client *http.Client // bounded by Timeout
	stream *http.Client // bounded by StreamTimeout through the context
}

func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := newConfig(defaults(), opts...)
	if err := cfg.check(true); err != nil {
		return nil, err
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = elevenLabsBaseURL
	}

	return &ElevenLabs{
		cfg:     cfg,
		baseURL: base,
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		client:  httpc.NewClient(cfg.Timeout),
		stream:  httpc.NewClient(0),
	}, nil
}

func (e *ElevenLabs) Name() string { return providerElevenLabs }

// VoiceID returns the default voice.
func (e *ElevenLabs) VoiceID() string { return e.cfg.VoiceID }

// ModelID returns the configured model.
func (e *ElevenLabs) ModelID() string { return e.cfg.ModelID }

func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) (*AudioResult, error) {
	body, err := e.payload(text)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.retry(ctx, e.endpoint(voiceID, false), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	latency := time.Since(start).Milliseconds()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("read response: %w", err))
	}

	format := e.cfg.OutputFormat.Format()
	dur, err := Duration(audio, format)
	if err != nil {
		e.logger.Warn("audio duration unknown", "error", err, "bytes", len(audio))
	}
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.cfg.ModelID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  dur,
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (e *ElevenLabs) Stream(ctx context.Context, text, voiceID string) (AudioStream, error) {
	body, err := e.payload(text)
	if err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if e.cfg.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.cfg.StreamTimeout)
	}

	resp, err := e.post(ctx, e.stream, e.endpoint(voiceID, true), body)
	if err != nil {
		cancel()
		return nil, err
	}
	return newBodyStream(resp.Body, e.cfg.OutputFormat.Format(), cancel), nil
}

func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	e.stream.CloseIdleConnections()
	return nil
}

type elevenLabsVoiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Style           float64  `json:"style"`
	SpeakerBoost    bool     `json:"use_speaker_boost"`
	Speed           *float64 `json:"speed,omitempty"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

func (e *ElevenLabs) payload(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}

	vs := e.cfg.VoiceSettings
	req := elevenLabsRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       vs.Stability,
			SimilarityBoost: vs.SimilarityBoost,
			Style:           vs.Style,
			SpeakerBoost:    vs.SpeakerBoost,
		},
	}
	if vs.Speed > 0 {
		req.VoiceSettings.Speed = &vs.Speed
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("marshal payload: %w", err))
	}
	return body, nil
}

// endpoint builds the synthesis URL for voiceID. WAV is not an ElevenLabs
// output format, so it leaves the query unset.
func (e *ElevenLabs) endpoint(voiceID string, streaming bool) string {
	u := e.baseURL + "/text-to-speech/" + url.PathEscape(e.cfg.voiceOr(voiceID))
	if streaming {
		u += "/stream"
	}
	if f := e.cfg.OutputFormat; f != "" && f != EncodingWAV {
		u += "?output_format=" + url.QueryEscape(string(f))
	}
	return u
}

// post sends one synthesis request. Any status but 200 is returned as an
// APIError with the body consumed.
func (e *ElevenLabs) post(ctx context.Context, client *http.Client, u string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerElevenLabs, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", e.cfg.OutputFormat.MIME())

	resp, err := client.Do(req)
	if err != nil {
		return nil, WrapError(providerElevenLabs, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, elevenLabsError(resp)
	}
	return resp, nil
}

// retry posts up to MaxRetries+1 times with linear backoff while the
// failure is Retryable or a transport error under a live context.
func (e *ElevenLabs) retry(ctx context.Context, u string, body []byte) (*http.Response, error) {
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Warn("retrying request", "attempt", attempt, "error", err)
			t := time.NewTimer(e.cfg.RetryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		var resp *http.Response
		resp, err = e.post(ctx, e.client, u, body)
		if err == nil {
			return resp, nil
		}
		var apiErr *APIError
		if ctx.Err() != nil || (errors.As(err, &apiErr) && !apiErr.Temporary()) {
			return nil, err
		}
	}
	return nil, err
}

// elevenLabsError decodes {"detail":{"status":..,"message":..}}. Validation
// failures carry a list or plain string in detail instead; those are kept
// verbatim as the message.
func elevenLabsError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{
		Provider:   providerElevenLabs,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}

	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &env) != nil || len(env.Detail) == 0 {
		return apiErr
	}
	var detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	var msg string
	switch {
	case json.Unmarshal(env.Detail, &detail) == nil && detail.Message != "":
		apiErr.Code, apiErr.Message = detail.Status, detail.Message
	case json.Unmarshal(env.Detail, &msg) == nil && msg != "":
		apiErr.Message = msg
	default:
		apiErr.Message = string(env.Detail)
	}
	return apiErr
}

var _ Provider = (*ElevenLabs)(nil)
