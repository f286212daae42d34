package tts

import (
	"fmt"
	"log/slog"
	"time"
)

// Config holds the settings shared by the synthesis providers. It is built
// from defaults and With* options by each constructor.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the provider's public endpoint

	VoiceID       string // used when a request names no voice
	ModelID       string
	VoiceSettings VoiceSettings
	OutputFormat  Encoding

	Timeout       time.Duration // whole Synthesize call
	StreamTimeout time.Duration // Stream, until the body is drained

	// Synthesize is retried on rate limits and server errors. Streams are
	// never replayed once audio has been handed out.
	MaxRetries int
	RetryDelay time.Duration // multiplied by the attempt number

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithBaseURL points the provider at another endpoint, e.g. a test server.
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

// WithVoice sets the default voice.
func WithVoice(voiceID string) Option { return func(c *Config) { c.VoiceID = voiceID } }

// WithModel sets the synthesis model.
func WithModel(modelID string) Option { return func(c *Config) { c.ModelID = modelID } }

// WithOutputFormat selects the audio encoding returned by the provider.
func WithOutputFormat(format Encoding) Option { return func(c *Config) { c.OutputFormat = format } }

// WithVoiceSettings replaces the voice characteristics.
func WithVoiceSettings(settings VoiceSettings) Option {
	return func(c *Config) { c.VoiceSettings = settings }
}

// WithSpeed scales the speaking rate, keeping the other voice settings.
func WithSpeed(speed float64) Option { return func(c *Config) { c.VoiceSettings.Speed = speed } }

// WithTimeout bounds each Synthesize call.
func WithTimeout(timeout time.Duration) Option { return func(c *Config) { c.Timeout = timeout } }

// WithStreamTimeout bounds each Stream from request to last byte.
func WithStreamTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.StreamTimeout = timeout }
}

// WithRetry enables up to maxRetries repeats of a failed Synthesize.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option { return func(c *Config) { c.Logger = logger } }

// newConfig applies opts over base.
func newConfig(base Config, opts ...Option) *Config {
	c := &base
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// defaults shared by every provider, which override model and voice.
func defaults() Config {
	return Config{
		ModelID:       ModelFlashV2_5,
		OutputFormat:  EncodingMP3,
		VoiceSettings: DefaultVoiceSettings(),
		Timeout:       30 * time.Second,
		StreamTimeout: 60 * time.Second,
		RetryDelay:    100 * time.Millisecond,
	}
}

// check validates the configuration. requireVoice is set by providers
// without a built-in default voice.
func (c *Config) check(requireVoice bool) error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	if requireVoice && c.VoiceID == "" {
		return ErrNoVoiceID
	}
	if s := c.VoiceSettings.Speed; s < 0 || s > 4 {
		return fmt.Errorf("tts: speed %v out of range [0, 4]", s)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("tts: negative retry count %d", c.MaxRetries)
	}
	return nil
}

// voiceOr returns voiceID, or the configured voice when it is empty.
func (c *Config) voiceOr(voiceID string) string {
	if voiceID != "" {
		return voiceID
	}
	return c.VoiceID
}
