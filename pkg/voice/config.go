package voice

import (
	"errors"
	"fmt"
	"time"
)

// OverlapPolicy decides what happens to an utterance finalized while a
// response is still being delivered.
type OverlapPolicy string

const (
	// OverlapInterrupt cancels the running response and answers the new utterance.
	OverlapInterrupt OverlapPolicy = "interrupt"

	// OverlapQueue answers utterances one after another, in order.
	OverlapQueue OverlapPolicy = "queue"

	// OverlapDrop discards utterances that arrive while busy.
	OverlapDrop OverlapPolicy = "drop"
)

// DefaultPromptTemplate asks for short, precise answers.
const DefaultPromptTemplate = "bạn trả lời chính xác ngắn gọn thôi nhé: %s"

// Config holds the tunable parameters of a Session.
// Parameters are organized by stage.
type Config struct {
	// Synthesis
	VoiceID string `yaml:"voice_id"`

	// Preprocessing
	Stoplist           []string `yaml:"stoplist"`
	StripPunctuation   bool     `yaml:"strip_punctuation"`
	StripSingleLetters bool     `yaml:"strip_single_letters"`

	// Generation
	PromptTemplate string  `yaml:"prompt_template"`
	SystemPrompt   string  `yaml:"system_prompt"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`

	// Segmentation
	MaxWords int `yaml:"max_words"`

	// Concurrency
	Overlap    OverlapPolicy `yaml:"overlap"`
	QueueDepth int           `yaml:"queue_depth"` // Utterances waiting under OverlapQueue

	// Capture
	FrameQueueCapacity int           `yaml:"frame_queue_capacity"`
	PopTimeout         time.Duration `yaml:"pop_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Stoplist:           []string{"unk"},
		PromptTemplate:     DefaultPromptTemplate,
		MaxWords:           50,
		Overlap:            OverlapInterrupt,
		QueueDepth:         4,
		FrameQueueCapacity: 256,
		PopTimeout:         100 * time.Millisecond,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Overlap {
	case OverlapInterrupt, OverlapQueue, OverlapDrop:
	default:
		return fmt.Errorf("voice: unknown overlap policy %q", c.Overlap)
	}
	if c.MaxWords < 1 {
		return errors.New("voice: max words must be positive")
	}
	if c.Overlap == OverlapQueue && c.QueueDepth < 1 {
		return errors.New("voice: queue depth must be positive")
	}
	if c.FrameQueueCapacity < 1 {
		return errors.New("voice: frame queue capacity must be positive")
	}
	if c.PopTimeout <= 0 {
		return errors.New("voice: pop timeout must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("voice: temperature must be between 0 and 2")
	}
	return nil
}

// WithVoice returns a copy with the synthesis voice set.
func (c Config) WithVoice(voiceID string) Config {
	c.VoiceID = voiceID
	return c
}

// WithOverlap returns a copy with the overlap policy set.
func (c Config) WithOverlap(p OverlapPolicy) Config {
	c.Overlap = p
	return c
}

// WithSystemPrompt returns a copy with the system prompt set.
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}
