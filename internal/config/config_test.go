package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chuoibo/full-pipeline/pkg/voice"
)

// mockConfig is a valid configuration that needs no credentials.
func mockConfig() *Config {
	c := Default()
	c.Generation.Provider = ProviderMock
	c.TTS.Provider = ProviderMock
	return c
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{name: "valid mock configuration", mutate: func(c *Config) {}},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
			errorMsg:    "server config",
		},
		{
			name:        "missing asr url",
			mutate:      func(c *Config) { c.ASR.URL = "" },
			expectError: true,
			errorMsg:    "asr config",
		},
		{
			name:        "unknown generation provider",
			mutate:      func(c *Config) { c.Generation.Provider = "llama" },
			expectError: true,
			errorMsg:    "generation config",
		},
		{
			name:        "gemini without key",
			mutate:      func(c *Config) { c.Generation.Provider = ProviderGemini },
			expectError: true,
			errorMsg:    "api_key is required",
		},
		{
			name: "elevenlabs without voice",
			mutate: func(c *Config) {
				c.TTS.Provider = ProviderElevenLabs
				c.TTS.APIKey = "key"
			},
			expectError: true,
			errorMsg:    "voice_id is required",
		},
		{
			name: "openai tts without voice",
			mutate: func(c *Config) {
				c.TTS.Provider = ProviderOpenAI
				c.TTS.APIKey = "key"
			},
		},
		{
			name:        "bad overlap policy",
			mutate:      func(c *Config) { c.Pipeline.Overlap = "sometimes" },
			expectError: true,
			errorMsg:    "pipeline config",
		},
		{
			name:        "bad log level",
			mutate:      func(c *Config) { c.Logging.Level = "loud" },
			expectError: true,
			errorMsg:    "logging config",
		},
		{
			name:        "bad tts speed",
			mutate:      func(c *Config) { c.TTS.Speed = 5 },
			expectError: true,
			errorMsg:    "tts config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mockConfig()
			tt.mutate(c)
			err := c.Validate()

			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("error %q should contain %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
asr:
  url: ws://asr.internal:5000
generation:
  provider: mock
tts:
  provider: mock
pipeline:
  overlap: queue
  queue_depth: 2
  max_words: 30
  stoplist: [unk, ờ]
  pop_timeout: 50ms
cache:
  enabled: true
  ttl: 1h
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", c.Server.Port)
	}
	if c.ASR.URL != "ws://asr.internal:5000" {
		t.Errorf("ASR.URL = %q", c.ASR.URL)
	}
	if c.Pipeline.Overlap != voice.OverlapQueue || c.Pipeline.QueueDepth != 2 || c.Pipeline.MaxWords != 30 {
		t.Errorf("Pipeline = %+v", c.Pipeline)
	}
	if len(c.Pipeline.Stoplist) != 2 || c.Pipeline.Stoplist[1] != "ờ" {
		t.Errorf("Stoplist = %v", c.Pipeline.Stoplist)
	}
	if c.Pipeline.PopTimeout != 50*time.Millisecond {
		t.Errorf("PopTimeout = %v", c.Pipeline.PopTimeout)
	}
	if !c.Cache.Enabled || c.Cache.TTL != time.Hour {
		t.Errorf("Cache = %+v", c.Cache)
	}
	// Untouched sections keep their defaults.
	if c.Pipeline.PromptTemplate != voice.DefaultPromptTemplate {
		t.Errorf("PromptTemplate = %q", c.Pipeline.PromptTemplate)
	}
	if c.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", c.Server.ShutdownTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("ASR_URL", "ws://10.0.0.2:5000")
	t.Setenv("GENERATION_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TTS_PROVIDER", "elevenlabs")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")
	t.Setenv("ELEVENLABS_VOICE_ID", "voice-1")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.Server.Port != 7000 || c.ASR.URL != "ws://10.0.0.2:5000" {
		t.Errorf("server/asr = %d %q", c.Server.Port, c.ASR.URL)
	}
	if c.Generation.Provider != ProviderOpenAI || c.Generation.APIKey != "sk-test" {
		t.Errorf("Generation = %+v", c.Generation)
	}
	if c.TTS.APIKey != "el-test" || c.Pipeline.VoiceID != "voice-1" {
		t.Errorf("TTS key %q voice %q", c.TTS.APIKey, c.Pipeline.VoiceID)
	}
	if c.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", c.Logging.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("server: [not, a, map"), 0o644)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("Load() = %v, want parse error", err)
	}

	// Defaults require credentials for the real providers.
	if _, err := Load(""); err == nil {
		t.Error("expected validation error without API keys")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ASR_URL=ws://from-dotenv:5000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("ASR_URL") })

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("ASR_URL"); got != "ws://from-dotenv:5000" {
		t.Errorf("ASR_URL = %q", got)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Address: "127.0.0.1", Port: 8000}
	if s.Addr() != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}

// clearEnv unsets every variable ApplyEnv reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "REQUEST_LOGGING", "ASR_URL",
		"GENERATION_PROVIDER", "GENERATION_MODEL", "GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY",
		"TTS_PROVIDER", "ELEVENLABS_API_KEY", "TTS_VOICE_ID", "ELEVENLABS_VOICE_ID",
		"TTS_CACHE", "TTS_CACHE_PATH", "TTS_CACHE_TTL", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}
