// Package config loads the pipeline server configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and environment variables (optionally seeded from a
// .env file).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chuoibo/full-pipeline/pkg/asr"
	"github.com/chuoibo/full-pipeline/pkg/audioio"
	"github.com/chuoibo/full-pipeline/pkg/voice"
)

// Provider names accepted in the generation and tts sections.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderMock       = "mock"
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ASR        asr.Config       `yaml:"asr"`
	Capture    audioio.Config   `yaml:"capture"`
	Generation GenerationConfig `yaml:"generation"`
	TTS        TTSConfig        `yaml:"tts"`
	Cache      CacheConfig      `yaml:"cache"`
	Pipeline   voice.Config     `yaml:"pipeline"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Address         string        `yaml:"address"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestLogging  bool          `yaml:"request_logging"`
}

// GenerationConfig selects and configures the generation backend
type GenerationConfig struct {
	Provider string        `yaml:"provider"` // gemini, openai or mock
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// TTSConfig selects and configures the synthesis backend
type TTSConfig struct {
	Provider     string        `yaml:"provider"` // elevenlabs, openai or mock
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	OutputFormat string        `yaml:"output_format"`
	Speed        float64       `yaml:"speed"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CacheConfig controls the synthesis cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"` // empty keeps the cache in memory
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text, empty picks by GO_ENV
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	pipeline := voice.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
		},
		ASR:     asr.DefaultConfig(),
		Capture: audioio.DefaultConfig(),
		Generation: GenerationConfig{
			Provider: ProviderGemini,
			Model:    "gemini-2.0-flash",
			Timeout:  30 * time.Second,
		},
		TTS: TTSConfig{
			Provider:     ProviderElevenLabs,
			OutputFormat: "mp3_44100_128",
			Timeout:      30 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Pipeline: pipeline,
		Logging:  LoggingConfig{Level: "info"},
	}
}

// LoadDotEnv loads variables from .env files into the environment.
// Missing files are ignored; existing variables are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the YAML file at path (if
// not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Port = envInt("PORT", c.Server.Port)
	c.Server.RequestLogging = envBool("REQUEST_LOGGING", c.Server.RequestLogging)

	c.ASR.URL = envString("ASR_URL", c.ASR.URL)

	c.Generation.Provider = envString("GENERATION_PROVIDER", c.Generation.Provider)
	c.Generation.Model = envString("GENERATION_MODEL", c.Generation.Model)
	switch c.Generation.Provider {
	case ProviderGemini:
		c.Generation.APIKey = envFirst(c.Generation.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	case ProviderOpenAI:
		c.Generation.APIKey = envString("OPENAI_API_KEY", c.Generation.APIKey)
	}

	c.TTS.Provider = envString("TTS_PROVIDER", c.TTS.Provider)
	switch c.TTS.Provider {
	case ProviderElevenLabs:
		c.TTS.APIKey = envString("ELEVENLABS_API_KEY", c.TTS.APIKey)
	case ProviderOpenAI:
		c.TTS.APIKey = envString("OPENAI_API_KEY", c.TTS.APIKey)
	}
	c.Pipeline.VoiceID = envFirst(c.Pipeline.VoiceID, "TTS_VOICE_ID", "ELEVENLABS_VOICE_ID")

	c.Cache.Enabled = envBool("TTS_CACHE", c.Cache.Enabled)
	c.Cache.Path = envString("TTS_CACHE_PATH", c.Cache.Path)
	c.Cache.TTL = envDuration("TTS_CACHE_TTL", c.Cache.TTL)

	c.Logging.Level = envString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envString("LOG_FORMAT", c.Logging.Format)
}

// Addr returns the listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.ASR.Validate(); err != nil {
		return fmt.Errorf("asr config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Generation.Validate(); err != nil {
		return fmt.Errorf("generation config: %w", err)
	}
	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}
	if c.TTS.Provider == ProviderElevenLabs && c.Pipeline.VoiceID == "" {
		return errors.New("pipeline config: voice_id is required for elevenlabs")
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %v", s.ShutdownTimeout)
	}
	return nil
}

// Validate validates generation configuration
func (g *GenerationConfig) Validate() error {
	switch g.Provider {
	case ProviderGemini, ProviderOpenAI:
		if g.APIKey == "" {
			return fmt.Errorf("api_key is required for provider %q", g.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("provider must be one of [gemini, openai, mock], got %q", g.Provider)
	}
	if g.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", g.Timeout)
	}
	return nil
}

// Validate validates synthesis configuration
func (t *TTSConfig) Validate() error {
	switch t.Provider {
	case ProviderElevenLabs, ProviderOpenAI:
		if t.APIKey == "" {
			return fmt.Errorf("api_key is required for provider %q", t.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("provider must be one of [elevenlabs, openai, mock], got %q", t.Provider)
	}
	if t.Speed < 0 || t.Speed > 4 {
		return fmt.Errorf("speed must be between 0 and 4, got %v", t.Speed)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", t.Timeout)
	}
	return nil
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	if c.Enabled && c.TTL < 0 {
		return fmt.Errorf("ttl cannot be negative, got %v", c.TTL)
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}
	validFormats := map[string]bool{"": true, "json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}
	return nil
}
