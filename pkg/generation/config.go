package generation

import (
	"log/slog"
	"time"
)

// Config is shared by the hosted providers. Per-request fields on Request
// take precedence over MaxTokens and Temperature.
type Config struct {
	BaseURL string // empty selects the provider endpoint
	APIKey  string
	Model   string

	MaxTokens   int
	Temperature float64

	// Timeout bounds opening a stream; the caller's context bounds reading it.
	Timeout time.Duration

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }
func WithMaxTokens(n int) Option { return func(c *Config) { c.MaxTokens = n } }
func WithTemperature(t float64) Option { return func(c *Config) { c.Temperature = t } }
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// newConfig applies opts over defaults tuned for short spoken answers.
// model is the provider's default and may be overridden by WithModel.
func newConfig(model string, opts ...Option) *Config {
	c := &Config{
		Model:       model,
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c *Config) check() error {
	switch {
	case c.APIKey == "":
		return ErrNoAPIKey
	case c.Model == "":
		return ErrNoModel
	}
	return nil
}
