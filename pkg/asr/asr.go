// Package asr streams microphone audio to a remote transcription backend
// and turns its JSON transcript events into finalized utterances.
//
// The backend protocol is a single websocket: the client writes raw PCM16
// frames as binary messages, the backend answers with JSON text messages of
// the form {"text": "...", "reset_session": true}. A message with
// reset_session set and text present finalizes an utterance; everything
// else is a partial update.
package asr

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransportClosed is returned once the transcription socket is gone.
	// It is terminal for the session that owns the transport.
	ErrTransportClosed = errors.New("asr: transport closed")

	// ErrMalformedEvent is returned by ParseEvent for non-JSON input.
	ErrMalformedEvent = errors.New("asr: malformed transcript event")

	// ErrListenerClosed is returned when a closed listener is reused.
	ErrListenerClosed = errors.New("asr: listener closed")
)

// FrameWriter sends audio frames to the transcription backend.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// MessageReader receives transcript messages from the backend.
// ReadMessage blocks until a message arrives or the transport fails.
type MessageReader interface {
	ReadMessage() ([]byte, error)
}

// Transport is a full-duplex connection to the transcription backend.
type Transport interface {
	FrameWriter
	MessageReader
	Close() error
}

// Config holds connection settings for the transcription backend.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:5000.
	URL string `yaml:"url" json:"url"`

	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// ReadLimit is the maximum size of one inbound message in bytes.
	ReadLimit int64 `yaml:"read_limit" json:"read_limit"`
}

// DefaultConfig returns settings for a backend on localhost.
func DefaultConfig() Config {
	return Config{
		URL:          "ws://localhost:5000",
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadLimit:    1 << 20,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be positive, got %v", c.DialTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", c.WriteTimeout)
	}
	return nil
}

// TranscriptEvent is one message from the transcription backend.
type TranscriptEvent struct {
	// Text is nil when the message carried no text field.
	Text *string `json:"text"`

	// ResetSession marks Text as a finalized utterance.
	ResetSession bool `json:"reset_session"`
}

// ParseEvent decodes a backend message.
func ParseEvent(data []byte) (TranscriptEvent, error) {
	var ev TranscriptEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TranscriptEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return ev, nil
}

// IsFinal reports whether the event finalizes an utterance.
func (e TranscriptEvent) IsFinal() bool {
	return e.ResetSession && e.Text != nil
}

// TextOrEmpty returns the event text, or "" when absent.
func (e TranscriptEvent) TextOrEmpty() string {
	if e.Text == nil {
		return ""
	}
	return *e.Text
}
