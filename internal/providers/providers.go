// Package providers builds the generation and synthesis backends named in
// the configuration.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chuoibo/full-pipeline/internal/config"
	"github.com/chuoibo/full-pipeline/pkg/generation"
	"github.com/chuoibo/full-pipeline/pkg/tts"
)

// NewGenerator creates the generation provider selected by cfg.
func NewGenerator(ctx context.Context, cfg config.GenerationConfig, logger *slog.Logger) (generation.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []generation.Option{
		generation.WithAPIKey(cfg.APIKey),
		generation.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, generation.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, generation.WithModel(cfg.Model))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, generation.WithTimeout(cfg.Timeout))
	}

	logger.Info("creating generation provider", "provider", cfg.Provider, "model", cfg.Model)

	switch cfg.Provider {
	case config.ProviderGemini:
		return generation.NewGemini(ctx, opts...)
	case config.ProviderOpenAI:
		return generation.NewOpenAI(opts...)
	case config.ProviderMock:
		return generation.NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}

// Synth is a synthesis provider together with the cache backing it, if any.
// Close releases both.
type Synth struct {
	tts.Provider
	cache *tts.Cache
}

// Cached reports whether synthesis results are cached.
func (s *Synth) Cached() bool {
	return s.cache != nil
}

// Close closes the provider, then the cache.
func (s *Synth) Close() error {
	err := s.Provider.Close()
	if s.cache != nil {
		err = errors.Join(err, s.cache.Close())
	}
	return err
}

// NewSynth creates the synthesis provider selected by cfg. voiceID is the
// default voice for requests that name none.
func NewSynth(cfg config.TTSConfig, voiceID string, cc config.CacheConfig, logger *slog.Logger) (*Synth, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []tts.Option{
		tts.WithAPIKey(cfg.APIKey),
		tts.WithVoice(voiceID),
		tts.WithSpeed(cfg.Speed),
		tts.WithLogger(logger),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, tts.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, tts.WithModel(cfg.Model))
	}
	if cfg.OutputFormat != "" {
		opts = append(opts, tts.WithOutputFormat(tts.Encoding(cfg.OutputFormat)))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, tts.WithTimeout(cfg.Timeout))
	}

	logger.Info("creating tts provider",
		"provider", cfg.Provider,
		"format", cfg.OutputFormat,
		"cache", cc.Enabled,
	)

	var (
		p   tts.Provider
		enc = tts.Encoding(cfg.OutputFormat)
		err error
	)
	switch cfg.Provider {
	case config.ProviderElevenLabs:
		p, err = tts.NewElevenLabs(opts...)
	case config.ProviderOpenAI:
		p, err = tts.NewOpenAI(opts...)
	case config.ProviderMock:
		p, enc = tts.NewMock(), tts.EncodingPCM24
	default:
		return nil, fmt.Errorf("unsupported tts provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if !cc.Enabled {
		return &Synth{Provider: p}, nil
	}

	cache, err := tts.OpenCache(cc.Path, cc.TTL, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return &Synth{
		Provider: tts.NewCachedProvider(p, cache, voiceID, enc),
		cache:    cache,
	}, nil
}
